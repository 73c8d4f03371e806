package loopback

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PendingConnect tracks one outbound connect awaiting accept.
type PendingConnect struct {
	Address    string
	User       string
	QueuedAt   time.Time
	DeadlineAt time.Time
}

// ConnectTable stores pending connects by target address.
type ConnectTable struct {
	mu    sync.Mutex
	items map[string]PendingConnect
}

func NewConnectTable() *ConnectTable {
	return &ConnectTable{
		items: make(map[string]PendingConnect),
	}
}

func (t *ConnectTable) Upsert(item PendingConnect) {
	key := strings.TrimSpace(item.Address)
	if key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[key] = item
}

func (t *ConnectTable) Remove(address string) bool {
	key := strings.TrimSpace(address)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.items[key]
	delete(t.items, key)
	return ok
}

func (t *ConnectTable) Get(address string) (PendingConnect, bool) {
	key := strings.TrimSpace(address)
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[key]
	return item, ok
}

// Expire removes and returns every item whose deadline is at or before now.
func (t *ConnectTable) Expire(now time.Time) []PendingConnect {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []PendingConnect
	for key, item := range t.items {
		if !item.DeadlineAt.After(now) {
			out = append(out, item)
			delete(t.items, key)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out
}

func (t *ConnectTable) List() []PendingConnect {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingConnect, 0, len(t.items))
	for _, item := range t.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out
}
