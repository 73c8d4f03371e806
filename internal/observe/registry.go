package observe

import (
	"reflect"
	"slices"
	"sync"
)

// Observable is implemented by anything observers can attach to.
type Observable interface {
	AddObserver(obs any) bool
	RemoveObserver(obs any) bool
}

// Registry holds a set of observers. The zero value is ready to use.
//
// The member slice is replaced on every change, so a notification walks a
// stable snapshot while observers add or remove themselves.
type Registry struct {
	mu        sync.Mutex
	observers []any
}

// Add registers obs. It reports false when obs is nil, not comparable or
// already present.
func (r *Registry) Add(obs any) bool {
	if !isComparable(obs) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.observers, obs) {
		return false
	}
	next := make([]any, len(r.observers), len(r.observers)+1)
	copy(next, r.observers)
	r.observers = append(next, obs)
	return true
}

// Remove unregisters obs. Removing a non-member is a no-op.
func (r *Registry) Remove(obs any) bool {
	if !isComparable(obs) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.observers, obs)
	if i < 0 {
		return false
	}
	next := make([]any, 0, len(r.observers)-1)
	next = append(next, r.observers[:i]...)
	r.observers = append(next, r.observers[i+1:]...)
	return true
}

// RemoveAll clears the set and returns what was removed.
func (r *Registry) RemoveAll() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.observers
	r.observers = nil
	return out
}

// Observers returns a copy of the current members in insertion order.
func (r *Registry) Observers() []any {
	return slices.Clone(r.snapshot())
}

// snapshot returns the live member slice. It is never mutated in place, so
// callers may range over it without holding the lock.
func (r *Registry) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observers
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observers)
}

func (r *Registry) Contains(obs any) bool {
	if !isComparable(obs) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.observers, obs)
}

// Notify calls fn for every observer implementing H and returns how many
// were called. Observers without the capability are skipped.
func Notify[H any](r *Registry, fn func(H)) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, obs := range r.snapshot() {
		if h, ok := obs.(H); ok {
			fn(h)
			n++
		}
	}
	return n
}

// Observe attaches obs to every target.
func Observe(obs any, targets ...Observable) {
	for _, target := range targets {
		if target != nil {
			target.AddObserver(obs)
		}
	}
}

// StopObserving detaches obs from every target.
func StopObserving(obs any, targets ...Observable) {
	for _, target := range targets {
		if target != nil {
			target.RemoveObserver(obs)
		}
	}
}

func isComparable(obs any) bool {
	if obs == nil {
		return false
	}
	// A comparable static type can still hold an uncomparable dynamic value,
	// e.g. a struct with an interface field boxing a slice.
	return reflect.ValueOf(obs).Comparable()
}
