package loopback

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrAddressInUse   = errors.New("loopback: address in use")
	ErrInvalidAddress = errors.New("loopback: invalid address")
)

// HubConfig tunes the in-process network.
type HubConfig struct {
	ConnectTimeout time.Duration
	Now            func() time.Time
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		ConnectTimeout: 5 * time.Second,
		Now:            time.Now,
	}
}

// Hub connects endpoints living in one process.
type Hub struct {
	cfg HubConfig

	mu          sync.Mutex
	endpoints   map[string]*Endpoint
	links       map[string]map[string]struct{}
	partitioned map[string]struct{}
}

func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

func NewHubWithConfig(cfg HubConfig) *Hub {
	def := DefaultHubConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Hub{
		cfg:         cfg,
		endpoints:   make(map[string]*Endpoint),
		links:       make(map[string]map[string]struct{}),
		partitioned: make(map[string]struct{}),
	}
}

// Endpoint creates the engine bound to address.
func (h *Hub) Endpoint(address string) (*Endpoint, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrInvalidAddress
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.endpoints[address]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, address)
	}
	ep := newEndpoint(h, address)
	h.endpoints[address] = ep
	return ep, nil
}

// Addresses lists bound endpoints.
func (h *Hub) Addresses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.endpoints))
	for addr := range h.endpoints {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Partition silently drops traffic to and from address until Heal.
func (h *Hub) Partition(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.partitioned[address] = struct{}{}
}

func (h *Hub) Heal(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.partitioned, address)
}

// Drop unbinds address and tells every linked peer the connection was lost.
func (h *Hub) Drop(address string) {
	h.mu.Lock()
	ep := h.endpoints[address]
	delete(h.endpoints, address)
	peers := h.links[address]
	delete(h.links, address)
	targets := make([]*Endpoint, 0, len(peers))
	for peer := range peers {
		delete(h.links[peer], address)
		if target, ok := h.endpoints[peer]; ok {
			targets = append(targets, target)
		}
	}
	h.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].address < targets[j].address })
	for _, target := range targets {
		target.enqueueTerminate(address, "connection lost")
	}
	if ep != nil {
		ep.close()
	}
}

// Linked reports whether a and b share an accepted session.
func (h *Hub) Linked(a, b string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.links[a][b]
	return ok
}

func (h *Hub) route(to string, from string) (*Endpoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, cut := h.partitioned[to]; cut {
		return nil, false
	}
	if _, cut := h.partitioned[from]; cut {
		return nil, false
	}
	ep, ok := h.endpoints[to]
	return ep, ok
}

func (h *Hub) link(a, b string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		set, ok := h.links[pair[0]]
		if !ok {
			set = make(map[string]struct{})
			h.links[pair[0]] = set
		}
		set[pair[1]] = struct{}{}
	}
}

func (h *Hub) unlink(a, b string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.links[a], b)
	delete(h.links[b], a)
}
