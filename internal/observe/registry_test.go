package observe

import (
	"testing"

	"github.com/danmuck/verse/internal/testutil/testlog"
)

type pinger interface {
	OnPing(payload string)
}

type recorder struct {
	got []string
}

func (r *recorder) OnPing(payload string) {
	r.got = append(r.got, payload)
}

type bystander struct{ name string }

type boxed struct{ v any }

type selfRemover struct {
	reg   *Registry
	calls int
}

func (s *selfRemover) OnPing(string) {
	s.calls++
	s.reg.Remove(s)
}

type subject struct {
	Registry
}

func (s *subject) AddObserver(obs any) bool    { return s.Add(obs) }
func (s *subject) RemoveObserver(obs any) bool { return s.Remove(obs) }

func TestRegistrySetSemantics(t *testing.T) {
	testlog.Start(t)
	var reg Registry
	a := &recorder{}
	if !reg.Add(a) {
		t.Fatalf("first add should change the set")
	}
	if reg.Add(a) {
		t.Fatalf("second add should be idempotent")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one member, got %d", reg.Len())
	}
	if reg.Remove(&recorder{}) {
		t.Fatalf("removing a non-member should be a no-op")
	}
	if !reg.Remove(a) || reg.Len() != 0 {
		t.Fatalf("remove failed")
	}
}

func TestRegistryIgnoresNilAndNonComparable(t *testing.T) {
	testlog.Start(t)
	var reg Registry
	if reg.Add(nil) {
		t.Fatalf("nil must not be added")
	}
	if reg.Add([]int{1}) {
		t.Fatalf("slice must not be added")
	}
	if reg.Remove(map[string]int{}) {
		t.Fatalf("map remove must be a no-op")
	}
	if reg.Add(boxed{v: []int{1}}) || reg.Add(boxed{v: []int{2}}) {
		t.Fatalf("struct boxing a slice must not be added")
	}
	if reg.Contains(boxed{v: []int{1}}) || reg.Remove(boxed{v: []int{1}}) {
		t.Fatalf("struct boxing a slice must not match")
	}
	if !reg.Add(boxed{v: 7}) || !reg.Remove(boxed{v: 7}) {
		t.Fatalf("struct boxing a comparable value should be accepted")
	}
	if reg.Len() != 0 {
		t.Fatalf("unexpected members: %d", reg.Len())
	}
}

func TestObserversReturnsCopy(t *testing.T) {
	testlog.Start(t)
	var reg Registry
	a, b := &recorder{}, &recorder{}
	reg.Add(a)
	reg.Add(b)
	got := reg.Observers()
	got[0] = &bystander{name: "intruder"}
	if !reg.Contains(a) || reg.Contains(got[0]) {
		t.Fatalf("writing to the returned slice changed the registry")
	}
	if n := Notify(&reg, func(p pinger) { p.OnPing("x") }); n != 2 {
		t.Fatalf("expected both recorders notified, got %d", n)
	}
}

func TestNotifyDispatchesByCapability(t *testing.T) {
	testlog.Start(t)
	var reg Registry
	a := &recorder{}
	b := &recorder{}
	reg.Add(a)
	reg.Add(&bystander{name: "quiet"})
	reg.Add(b)

	n := Notify(&reg, func(h pinger) { h.OnPing("hello") })
	if n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("unexpected deliveries a=%v b=%v", a.got, b.got)
	}
}

func TestNotifyToleratesRemovalDuringDispatch(t *testing.T) {
	testlog.Start(t)
	var reg Registry
	s := &selfRemover{reg: &reg}
	after := &recorder{}
	reg.Add(s)
	reg.Add(after)

	if n := Notify(&reg, func(h pinger) { h.OnPing("x") }); n != 2 {
		t.Fatalf("snapshot should deliver to both, got %d", n)
	}
	if reg.Contains(s) {
		t.Fatalf("self remover still registered")
	}
	Notify(&reg, func(h pinger) { h.OnPing("y") })
	if s.calls != 1 || len(after.got) != 2 {
		t.Fatalf("unexpected calls remover=%d after=%v", s.calls, after.got)
	}
}

func TestRemoveAllReturnsMembers(t *testing.T) {
	testlog.Start(t)
	var reg Registry
	a, b := &recorder{}, &recorder{}
	reg.Add(a)
	reg.Add(b)
	removed := reg.RemoveAll()
	if len(removed) != 2 || removed[0] != any(a) || removed[1] != any(b) {
		t.Fatalf("unexpected removed set: %v", removed)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry not empty")
	}
}

func TestObserveAndStopObserving(t *testing.T) {
	testlog.Start(t)
	s1, s2 := &subject{}, &subject{}
	obs := &recorder{}
	Observe(obs, s1, s2, nil)
	if !s1.Contains(obs) || !s2.Contains(obs) {
		t.Fatalf("observe did not attach to every target")
	}
	StopObserving(obs, s1, s2)
	if s1.Len() != 0 || s2.Len() != 0 {
		t.Fatalf("stop observing left members behind")
	}
}
