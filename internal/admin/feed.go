package admin

import (
	"sync"
	"time"

	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/server"
	"github.com/rs/zerolog"
)

const (
	EventConnectionOpen  = "connection.open"
	EventConnectionClose = "connection.close"
	EventNodeCreate      = "node.create"
	EventNodeDestroy     = "node.destroy"
)

// Event is one lifecycle notification on the feed.
type Event struct {
	Kind    string    `json:"kind"`
	Address string    `json:"address,omitempty"`
	User    string    `json:"user,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Node    *NodeView `json:"node,omitempty"`
	At      time.Time `json:"at"`
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Feed is a server observer that fans lifecycle events out to subscribers.
// Slow subscribers lose events rather than stall the update loop.
type Feed struct {
	log    zerolog.Logger
	buffer int
	now    func() time.Time

	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	dropped uint64
	closed  bool
}

func NewFeed(buffer int, logger zerolog.Logger) *Feed {
	if buffer <= 0 {
		buffer = DefaultConfig().FeedBuffer
	}
	return &Feed{
		log:    logger,
		buffer: buffer,
		now:    time.Now,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Subscribe returns a channel of future events and a cancel func that
// closes it. After Close the channel comes back already closed.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, f.buffer)}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	return sub.ch, func() {
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
		sub.close()
	}
}

// Close ends every subscription and refuses new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[*subscriber]struct{})
	f.closed = true
	f.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}

func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Dropped counts events discarded because a subscriber buffer was full.
func (f *Feed) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func (f *Feed) publish(ev Event) {
	ev.At = f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		select {
		case sub.ch <- ev:
		default:
			f.dropped++
			f.log.Debug().Str("kind", ev.Kind).Msg("admin.Feed subscriber full")
		}
	}
}

func (f *Feed) OnConnectionOpen(c *server.Connection) {
	f.publish(Event{Kind: EventConnectionOpen, Address: c.Address, User: c.User})
}

func (f *Feed) OnConnectionClose(c *server.Connection, reason string) {
	f.publish(Event{Kind: EventConnectionClose, Address: c.Address, User: c.User, Reason: reason})
}

func (f *Feed) OnNodeCreate(n *node.Node) {
	view := viewNode(n)
	f.publish(Event{Kind: EventNodeCreate, Node: &view})
}

func (f *Feed) OnNodeDestroy(n *node.Node) {
	view := viewNode(n)
	f.publish(Event{Kind: EventNodeDestroy, Node: &view})
}
