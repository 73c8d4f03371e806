package index

import (
	"maps"
	"slices"
	"sync"

	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/observability"
	"github.com/danmuck/verse/internal/protocol"
)

// Deliverer sends node notifications to one peer.
type Deliverer interface {
	DeliverCreate(address string, n *node.Node) error
	DeliverDestroy(address string, n *node.Node) error
}

// Tracker holds the classes each address subscribed to.
type Tracker struct {
	out Deliverer

	mu   sync.Mutex
	subs map[string]protocol.ClassSet
}

func NewTracker(out Deliverer) *Tracker {
	return &Tracker{
		out:  out,
		subs: make(map[string]protocol.ClassSet),
	}
}

// Subscribe applies a subscription from address. An empty set clears it.
// Otherwise classes not yet held are replayed from nodes, in id order,
// before being added to the held set. It returns the replay count.
func (t *Tracker) Subscribe(address string, classes protocol.ClassSet, nodes *node.Registry) (int, error) {
	t.mu.Lock()
	if classes.Empty() {
		delete(t.subs, address)
		t.mu.Unlock()
		return 0, nil
	}
	current := t.subs[address]
	delta := classes.Minus(current)
	t.mu.Unlock()
	if delta.Empty() {
		return 0, nil
	}

	replayed := 0
	if nodes != nil {
		for _, n := range nodes.ByClass(delta) {
			if err := t.out.DeliverCreate(address, n); err != nil {
				return replayed, err
			}
			replayed++
		}
	}
	observability.RecordIndexReplay(replayed)

	t.mu.Lock()
	t.subs[address] = t.subs[address].Union(delta)
	t.mu.Unlock()
	return replayed, nil
}

// Subscriptions returns the classes held for address.
func (t *Tracker) Subscriptions(address string) protocol.ClassSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[address]
}

// Remove forgets address entirely.
func (t *Tracker) Remove(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, address)
}

// Subscribers lists addresses subscribed to typ in address order.
func (t *Tracker) Subscribers(typ protocol.NodeType) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subs))
	for _, addr := range slices.Sorted(maps.Keys(t.subs)) {
		if t.subs[addr].Has(typ) {
			out = append(out, addr)
		}
	}
	return out
}

// Created forwards a new node to every subscriber of its class. Delivery
// errors are collected per address and do not stop the fan-out.
func (t *Tracker) Created(n *node.Node) map[string]error {
	return t.fanOut(n, t.out.DeliverCreate)
}

// Destroyed forwards a node removal to every subscriber of its class.
func (t *Tracker) Destroyed(n *node.Node) map[string]error {
	return t.fanOut(n, t.out.DeliverDestroy)
}

func (t *Tracker) fanOut(n *node.Node, deliver func(string, *node.Node) error) map[string]error {
	var failed map[string]error
	for _, addr := range t.Subscribers(n.Type()) {
		if err := deliver(addr, n); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[addr] = err
		}
	}
	return failed
}
