package node

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/danmuck/verse/internal/observe"
	"github.com/danmuck/verse/internal/protocol"
)

// Owner is the session or connection a node belongs to.
type Owner interface {
	Address() string
}

// CreateHandler observes node creation.
type CreateHandler interface {
	OnNodeCreate(n *Node)
}

// DestroyHandler observes node destruction.
type DestroyHandler interface {
	OnNodeDestroy(n *Node)
}

// NameSetHandler observes a node being renamed.
type NameSetHandler interface {
	OnNodeNameSet(n *Node, name string)
}

type TagGroupCreateHandler interface {
	OnTagGroupCreate(n *Node, group uint16, name string)
}

type TagGroupDestroyHandler interface {
	OnTagGroupDestroy(n *Node, group uint16)
}

// Node is one vertex of the shared graph.
type Node struct {
	mu               sync.Mutex
	id               protocol.NodeID
	typ              protocol.NodeType
	name             string
	owner            Owner
	dataVersion      uint64
	structureVersion uint64
	tagGroups        map[uint16]string
	nextGroup        uint16

	observers observe.Registry
}

func New(typ protocol.NodeType, name string) *Node {
	return &Node{
		typ:       typ,
		name:      name,
		tagGroups: make(map[uint16]string),
	}
}

// NewWithID builds a node whose id was assigned by a remote peer.
func NewWithID(id protocol.NodeID, typ protocol.NodeType, owner Owner) *Node {
	n := New(typ, "")
	n.id = id
	n.owner = owner
	return n
}

func (n *Node) ID() protocol.NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

// SetID assigns the id once.
func (n *Node) SetID(id protocol.NodeID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.id != 0 {
		return fmt.Errorf("%w: id already set (%d)", protocol.ErrNode, n.id)
	}
	if id == 0 {
		return fmt.Errorf("%w: id must be non-zero", protocol.ErrNode)
	}
	n.id = id
	return nil
}

func (n *Node) Type() protocol.NodeType {
	return n.typ
}

func (n *Node) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

// SetName renames the node and notifies its observers when the name changed.
func (n *Node) SetName(name string) {
	n.mu.Lock()
	if n.name == name {
		n.mu.Unlock()
		return
	}
	n.name = name
	n.dataVersion++
	n.mu.Unlock()
	observe.Notify(&n.observers, func(h NameSetHandler) { h.OnNodeNameSet(n, name) })
}

func (n *Node) Owner() Owner {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.owner
}

func (n *Node) SetOwner(owner Owner) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.owner = owner
}

// OwnedBy reports whether owner is this node's owner.
func (n *Node) OwnedBy(owner Owner) bool {
	if owner == nil {
		return false
	}
	return n.Owner() == owner
}

func (n *Node) DataVersion() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dataVersion
}

func (n *Node) StructureVersion() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.structureVersion
}

// CreateTagGroup allocates a new group id on this node.
func (n *Node) CreateTagGroup(name string) uint16 {
	n.mu.Lock()
	for {
		n.nextGroup++
		if _, taken := n.tagGroups[n.nextGroup]; !taken {
			break
		}
	}
	group := n.nextGroup
	n.mu.Unlock()
	n.ApplyTagGroup(group, name)
	return group
}

// ApplyTagGroup records a group whose id was chosen elsewhere.
func (n *Node) ApplyTagGroup(group uint16, name string) {
	n.mu.Lock()
	n.tagGroups[group] = name
	n.dataVersion++
	n.structureVersion++
	n.mu.Unlock()
	observe.Notify(&n.observers, func(h TagGroupCreateHandler) { h.OnTagGroupCreate(n, group, name) })
}

// DestroyTagGroup removes a group. Unknown groups are a no-op.
func (n *Node) DestroyTagGroup(group uint16) bool {
	n.mu.Lock()
	if _, ok := n.tagGroups[group]; !ok {
		n.mu.Unlock()
		return false
	}
	delete(n.tagGroups, group)
	n.dataVersion++
	n.structureVersion++
	n.mu.Unlock()
	observe.Notify(&n.observers, func(h TagGroupDestroyHandler) { h.OnTagGroupDestroy(n, group) })
	return true
}

func (n *Node) TagGroup(group uint16) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	name, ok := n.tagGroups[group]
	return name, ok
}

// TagGroupIDs lists group ids in ascending order.
func (n *Node) TagGroupIDs() []uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Sorted(maps.Keys(n.tagGroups))
}

func (n *Node) AddObserver(obs any) bool {
	return n.observers.Add(obs)
}

func (n *Node) RemoveObserver(obs any) bool {
	return n.observers.Remove(obs)
}

// NotifyDestroyed tells the node's own observers it is gone and detaches them.
func (n *Node) NotifyDestroyed() {
	observe.Notify(&n.observers, func(h DestroyHandler) { h.OnNodeDestroy(n) })
	n.observers.RemoveAll()
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.typ, n.ID())
}
