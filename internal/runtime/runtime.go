package runtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/danmuck/verse/internal/engine"
	"github.com/danmuck/verse/internal/observability"
	"github.com/danmuck/verse/internal/observe"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/rs/zerolog"
)

// PingHandler observes pings from any peer.
type PingHandler interface {
	OnPing(address, payload string)
}

// ConnectHandler observes inbound connect requests.
type ConnectHandler interface {
	OnConnect(user, password, address string, expected protocol.HostID)
}

// NodeIndexSubscribeHandler observes index subscription changes.
type NodeIndexSubscribeHandler interface {
	OnNodeIndexSubscribe(address string, classes protocol.ClassSet)
}

// TerminateHandler observes terminations no session claimed.
type TerminateHandler interface {
	OnConnectTerminate(address, message string)
}

// Target receives the events addressed to one peer.
type Target interface {
	Address() string
	HandleEvent(ev engine.Event)
}

// Options configures a Runtime.
type Options struct {
	Logger zerolog.Logger
}

// Runtime is the shared context for sessions on one engine.
type Runtime struct {
	eng engine.Engine
	log zerolog.Logger

	mu        sync.Mutex
	sessions  map[string]Target
	connected map[string]Target

	observers observe.Registry
}

func New(eng engine.Engine, opts Options) *Runtime {
	return &Runtime{
		eng:       eng,
		log:       observability.Component(opts.Logger, "runtime"),
		sessions:  make(map[string]Target),
		connected: make(map[string]Target),
	}
}

func (r *Runtime) Logger() zerolog.Logger {
	return r.log
}

// Do runs fn with exclusive access to the engine.
func (r *Runtime) Do(fn func(engine.Engine) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.eng)
}

// Register routes events from t's address to t. An address can be held by
// one target at a time.
func (r *Runtime) Register(t Target) error {
	addr := t.Address()
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[addr]; ok && cur != t {
		return fmt.Errorf("%w: address %s already has a session", protocol.ErrSession, addr)
	}
	r.sessions[addr] = t
	return nil
}

// Unregister drops t from the session table and the connected set.
func (r *Runtime) Unregister(t Target) {
	addr := t.Address()
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[addr]; ok && cur == t {
		delete(r.sessions, addr)
	}
	if cur, ok := r.connected[addr]; ok && cur == t {
		delete(r.connected, addr)
	}
}

func (r *Runtime) MarkConnected(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected[t.Address()] = t
}

func (r *Runtime) Session(address string) (Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.sessions[address]
	return t, ok
}

// Connected lists connected targets in address order.
func (r *Runtime) Connected() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Target, 0, len(r.connected))
	for _, addr := range slices.Sorted(maps.Keys(r.connected)) {
		out = append(out, r.connected[addr])
	}
	return out
}

func (r *Runtime) AddObserver(obs any) bool {
	return r.observers.Add(obs)
}

func (r *Runtime) RemoveObserver(obs any) bool {
	return r.observers.Remove(obs)
}

// Update polls the engine once and dispatches what it returned. The engine
// lock is released before any observer runs so callbacks may issue engine
// calls of their own.
func (r *Runtime) Update(timeout time.Duration) (int, error) {
	r.mu.Lock()
	events, err := r.eng.PollEvents(timeout)
	r.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("poll events: %w", err)
	}
	for _, ev := range events {
		r.dispatch(ev)
	}
	return len(events), nil
}

// Run calls Update until ctx is done. timeout bounds each poll, so it is
// also the worst-case cancellation latency.
func (r *Runtime) Run(ctx context.Context, timeout time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if _, err := r.Update(timeout); err != nil {
			return err
		}
	}
}

func (r *Runtime) dispatch(ev engine.Event) {
	kind := string(ev.Kind())
	switch e := ev.(type) {
	case engine.ConnectRequest:
		observability.RecordEvent(kind, "runtime")
		observe.Notify(&r.observers, func(h ConnectHandler) {
			h.OnConnect(e.User, e.Password, e.Address, e.Expected)
		})
		return
	case engine.NodeIndexSubscribe:
		observability.RecordEvent(kind, "runtime")
		observe.Notify(&r.observers, func(h NodeIndexSubscribeHandler) {
			h.OnNodeIndexSubscribe(e.Address, e.Classes)
		})
		return
	case engine.Ping:
		observability.RecordEvent(kind, "runtime")
		observe.Notify(&r.observers, func(h PingHandler) { h.OnPing(e.Address, e.Payload) })
		return
	}

	if target, ok := r.Session(ev.Peer()); ok {
		observability.RecordEvent(kind, "session")
		target.HandleEvent(ev)
		return
	}
	if e, ok := ev.(engine.ConnectTerminate); ok {
		n := observe.Notify(&r.observers, func(h TerminateHandler) { h.OnConnectTerminate(e.Address, e.Message) })
		if n > 0 {
			observability.RecordEvent(kind, "runtime")
			return
		}
	}
	observability.RecordEvent(kind, "dropped")
	r.log.Debug().
		Str("kind", kind).
		Str("peer", ev.Peer()).
		Msg("runtime.dispatch no session for peer")
}
