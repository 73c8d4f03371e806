package node

import (
	"errors"
	"testing"

	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/testutil/testlog"
	"github.com/go-playground/assert/v2"
)

func ids(nodes []*Node) []protocol.NodeID {
	out := make([]protocol.NodeID, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID())
	}
	return out
}

func TestRegistryAssignsMonotonicIDs(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	a := New(protocol.NodeObject, "a")
	b := New(protocol.NodeGeometry, "b")
	idA, err := reg.Add(a)
	if err != nil {
		t.Fatalf("add a: %v", err)
	}
	idB, err := reg.Add(b)
	if err != nil {
		t.Fatalf("add b: %v", err)
	}
	assert.Equal(t, idA, protocol.NodeID(1))
	assert.Equal(t, idB, protocol.NodeID(2))

	reg.Remove(idB)
	idC, err := reg.Add(New(protocol.NodeText, "c"))
	if err != nil {
		t.Fatalf("add c: %v", err)
	}
	assert.Equal(t, idC, protocol.NodeID(3))
}

func TestRegistryRejectsNodeWithID(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	n := New(protocol.NodeObject, "a")
	if _, err := reg.Add(n); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := reg.Add(n); !errors.Is(err, protocol.ErrNode) {
		t.Fatalf("expected ErrNode on re-add, got %v", err)
	}
	assert.Equal(t, reg.Len(), 1)
}

func TestRegistryQueriesAreSorted(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	me := owner("a:1")
	for _, typ := range []protocol.NodeType{protocol.NodeObject, protocol.NodeGeometry, protocol.NodeObject, protocol.NodeText} {
		n := New(typ, "")
		if typ == protocol.NodeObject {
			n.SetOwner(me)
		}
		if _, err := reg.Add(n); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	assert.Equal(t, ids(reg.All()), []protocol.NodeID{1, 2, 3, 4})
	assert.Equal(t, ids(reg.ByClass(protocol.Classes(protocol.NodeObject, protocol.NodeText))), []protocol.NodeID{1, 3, 4})
	assert.Equal(t, ids(reg.OwnedBy(me)), []protocol.NodeID{1, 3})
}

func TestRegistryPutKeepsRemoteIDs(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	if err := reg.Put(New(protocol.NodeObject, "")); !errors.Is(err, protocol.ErrNode) {
		t.Fatalf("expected ErrNode for id-less node, got %v", err)
	}
	if err := reg.Put(NewWithID(40, protocol.NodeAudio, nil)); err != nil {
		t.Fatalf("put: %v", err)
	}
	n, ok := reg.Get(40)
	if !ok || n.Type() != protocol.NodeAudio {
		t.Fatalf("missing remote node")
	}
	id, err := reg.Add(New(protocol.NodeObject, ""))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	assert.Equal(t, id, protocol.NodeID(41))
}
