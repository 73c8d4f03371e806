package index

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/testutil/testlog"
	"github.com/go-playground/assert/v2"
)

type delivery struct {
	op      string
	address string
	id      protocol.NodeID
}

type recorder struct {
	sent    []delivery
	failFor string
}

func (r *recorder) DeliverCreate(address string, n *node.Node) error {
	return r.record("create", address, n)
}

func (r *recorder) DeliverDestroy(address string, n *node.Node) error {
	return r.record("destroy", address, n)
}

func (r *recorder) record(op, address string, n *node.Node) error {
	if address == r.failFor {
		return fmt.Errorf("deliver to %s: unreachable", address)
	}
	r.sent = append(r.sent, delivery{op: op, address: address, id: n.ID()})
	return nil
}

func seeded(t *testing.T, types ...protocol.NodeType) *node.Registry {
	t.Helper()
	reg := node.NewRegistry()
	for _, typ := range types {
		if _, err := reg.Add(node.New(typ, "")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return reg
}

func TestSubscribeReplaysOnlyNewClasses(t *testing.T) {
	testlog.Start(t)
	// ids: 1 object, 2 geometry, 3 object, 4 text
	reg := seeded(t, protocol.NodeObject, protocol.NodeGeometry, protocol.NodeObject, protocol.NodeText)
	out := &recorder{}
	tr := NewTracker(out)

	n, err := tr.Subscribe("a:1", protocol.Classes(protocol.NodeObject), reg)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	assert.Equal(t, n, 2)
	assert.Equal(t, out.sent, []delivery{{"create", "a:1", 1}, {"create", "a:1", 3}})

	out.sent = nil
	n, err = tr.Subscribe("a:1", protocol.Classes(protocol.NodeObject, protocol.NodeGeometry), reg)
	if err != nil {
		t.Fatalf("widen: %v", err)
	}
	assert.Equal(t, n, 1)
	assert.Equal(t, out.sent, []delivery{{"create", "a:1", 2}})
	assert.Equal(t, tr.Subscriptions("a:1"), protocol.Classes(protocol.NodeObject, protocol.NodeGeometry))
}

func TestSubscribeSameClassesIsNoop(t *testing.T) {
	testlog.Start(t)
	reg := seeded(t, protocol.NodeObject)
	out := &recorder{}
	tr := NewTracker(out)
	_, _ = tr.Subscribe("a:1", protocol.Classes(protocol.NodeObject), reg)
	out.sent = nil
	n, err := tr.Subscribe("a:1", protocol.Classes(protocol.NodeObject), reg)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	assert.Equal(t, n, 0)
	assert.Equal(t, len(out.sent), 0)
}

func TestSubscribeNarrowerSetKeepsUnion(t *testing.T) {
	testlog.Start(t)
	reg := seeded(t, protocol.NodeObject, protocol.NodeText)
	tr := NewTracker(&recorder{})
	_, _ = tr.Subscribe("a:1", protocol.Classes(protocol.NodeObject, protocol.NodeText), reg)
	_, _ = tr.Subscribe("a:1", protocol.Classes(protocol.NodeObject), reg)
	assert.Equal(t, tr.Subscriptions("a:1"), protocol.Classes(protocol.NodeObject, protocol.NodeText))
}

func TestEmptySubscriptionClears(t *testing.T) {
	testlog.Start(t)
	reg := seeded(t, protocol.NodeObject)
	out := &recorder{}
	tr := NewTracker(out)
	_, _ = tr.Subscribe("a:1", protocol.Classes(protocol.NodeObject), reg)
	n, err := tr.Subscribe("a:1", 0, reg)
	if err != nil || n != 0 {
		t.Fatalf("clear n=%d err=%v", n, err)
	}
	assert.Equal(t, tr.Subscriptions("a:1").Empty(), true)

	out.sent = nil
	tr.Created(node.NewWithID(9, protocol.NodeObject, nil))
	assert.Equal(t, len(out.sent), 0)
}

func TestLiveForwardingByClass(t *testing.T) {
	testlog.Start(t)
	out := &recorder{}
	tr := NewTracker(out)
	_, _ = tr.Subscribe("b:1", protocol.Classes(protocol.NodeText), nil)
	_, _ = tr.Subscribe("a:1", protocol.Classes(protocol.NodeText, protocol.NodeObject), nil)
	_, _ = tr.Subscribe("c:1", protocol.Classes(protocol.NodeObject), nil)

	text := node.NewWithID(5, protocol.NodeText, nil)
	if failed := tr.Created(text); failed != nil {
		t.Fatalf("unexpected failures %v", failed)
	}
	tr.Destroyed(text)
	assert.Equal(t, out.sent, []delivery{
		{"create", "a:1", 5}, {"create", "b:1", 5},
		{"destroy", "a:1", 5}, {"destroy", "b:1", 5},
	})
}

func TestFanOutContinuesPastFailures(t *testing.T) {
	testlog.Start(t)
	out := &recorder{failFor: "a:1"}
	tr := NewTracker(out)
	_, _ = tr.Subscribe("a:1", protocol.AllClasses, nil)
	_, _ = tr.Subscribe("b:1", protocol.AllClasses, nil)
	failed := tr.Created(node.NewWithID(1, protocol.NodeAudio, nil))
	if len(failed) != 1 || failed["a:1"] == nil {
		t.Fatalf("unexpected failures %v", failed)
	}
	assert.Equal(t, out.sent, []delivery{{"create", "b:1", 1}})

	tr.Remove("a:1")
	assert.Equal(t, tr.Subscribers(protocol.NodeAudio), []string{"b:1"})
}

func TestReplayFailureDoesNotRecordClasses(t *testing.T) {
	testlog.Start(t)
	reg := seeded(t, protocol.NodeObject)
	tr := NewTracker(&recorder{failFor: "a:1"})
	if _, err := tr.Subscribe("a:1", protocol.Classes(protocol.NodeObject), reg); err == nil {
		t.Fatalf("expected delivery error")
	} else if errors.Is(err, protocol.ErrNode) {
		t.Fatalf("unexpected error class: %v", err)
	}
	assert.Equal(t, tr.Subscriptions("a:1").Empty(), true)
}
