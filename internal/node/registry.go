package node

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/danmuck/verse/internal/protocol"
)

// Registry maps ids to nodes. Ids it assigns start at 1, increase
// monotonically and are never reused.
type Registry struct {
	mu    sync.RWMutex
	nodes map[protocol.NodeID]*Node
	last  protocol.NodeID
}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[protocol.NodeID]*Node)}
}

// Add assigns the next id to n and registers it.
func (r *Registry) Add(n *Node) (protocol.NodeID, error) {
	if n == nil {
		return 0, fmt.Errorf("%w: nil node", protocol.ErrNode)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.last + 1
	if err := n.SetID(next); err != nil {
		return 0, err
	}
	r.last = next
	r.nodes[next] = n
	return next, nil
}

// Put registers a node that already carries an id, replacing any previous
// node with that id.
func (r *Registry) Put(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", protocol.ErrNode)
	}
	id := n.ID()
	if id == 0 {
		return fmt.Errorf("%w: node has no id", protocol.ErrNode)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id] = n
	if id > r.last {
		r.last = id
	}
	return nil
}

func (r *Registry) Remove(id protocol.NodeID) (*Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if ok {
		delete(r.nodes, id)
	}
	return n, ok
}

func (r *Registry) Get(id protocol.NodeID) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// All returns every node in id order.
func (r *Registry) All() []*Node {
	return r.filter(func(*Node) bool { return true })
}

// ByClass returns the nodes whose type is in classes, in id order.
func (r *Registry) ByClass(classes protocol.ClassSet) []*Node {
	return r.filter(func(n *Node) bool { return classes.Has(n.Type()) })
}

// OwnedBy returns the nodes owned by owner, in id order.
func (r *Registry) OwnedBy(owner Owner) []*Node {
	return r.filter(func(n *Node) bool { return n.OwnedBy(owner) })
}

func (r *Registry) filter(keep func(*Node) bool) []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Node, 0, len(r.nodes))
	for _, id := range slices.Sorted(maps.Keys(r.nodes)) {
		if n := r.nodes[id]; keep(n) {
			out = append(out, n)
		}
	}
	return out
}
