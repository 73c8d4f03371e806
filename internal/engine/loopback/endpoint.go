package loopback

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/verse/internal/engine"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/oklog/ulid/v2"
)

var ErrClosed = errors.New("loopback: endpoint closed")

// Endpoint is one engine instance on a Hub.
type Endpoint struct {
	hub     *Hub
	address string
	pending *ConnectTable

	mu      sync.Mutex
	queue   []engine.Event
	signal  chan struct{}
	closed  bool
	handles map[string]engine.SessionHandle
}

var _ engine.Engine = (*Endpoint)(nil)

func newEndpoint(h *Hub, address string) *Endpoint {
	return &Endpoint{
		hub:     h,
		address: address,
		pending: NewConnectTable(),
		signal:  make(chan struct{}, 1),
		handles: make(map[string]engine.SessionHandle),
	}
}

// Address is the address peers see for this endpoint.
func (e *Endpoint) Address() string {
	return e.address
}

// Pending lists connects still awaiting an accept.
func (e *Endpoint) Pending() []PendingConnect {
	return e.pending.List()
}

// Handle returns the session handle issued for an accepted peer.
func (e *Endpoint) Handle(address string) (engine.SessionHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[address]
	return h, ok
}

func (e *Endpoint) PollEvents(timeout time.Duration) ([]engine.Event, error) {
	if out, err := e.drain(); err != nil || len(out) > 0 {
		return out, err
	}
	if timeout <= 0 {
		return nil, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.signal:
	case <-timer.C:
	}
	return e.drain()
}

func (e *Endpoint) drain() ([]engine.Event, error) {
	for _, item := range e.pending.Expire(e.hub.cfg.Now()) {
		e.push(engine.ConnectTerminate{Address: item.Address, Message: "connect timeout"})
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	out := e.queue
	e.queue = nil
	return out, nil
}

func (e *Endpoint) IssueConnect(address, user, password string, expected protocol.HostID) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, protocol.ErrAddress)
	}
	if err := e.checkOpen(); err != nil {
		return err
	}
	now := e.hub.cfg.Now()
	e.pending.Upsert(PendingConnect{
		Address:    address,
		User:       user,
		QueuedAt:   now,
		DeadlineAt: now.Add(e.hub.cfg.ConnectTimeout),
	})
	e.send(address, engine.ConnectRequest{
		Address:  e.address,
		User:     user,
		Password: password,
		Expected: expected,
	})
	return nil
}

func (e *Endpoint) IssueConnectAccept(avatar protocol.NodeID, address string, hostID protocol.HostID) (engine.SessionHandle, error) {
	if err := e.checkOpen(); err != nil {
		return "", err
	}
	target, ok := e.hub.route(address, e.address)
	if !ok {
		return "", fmt.Errorf("%w: no endpoint at %s", ErrInvalidAddress, address)
	}
	handle := engine.SessionHandle(ulid.Make().String())
	e.mu.Lock()
	e.handles[address] = handle
	e.mu.Unlock()
	e.hub.link(e.address, address)
	target.pending.Remove(e.address)
	target.push(engine.ConnectAccept{Address: e.address, Avatar: avatar, HostID: hostID})
	return handle, nil
}

func (e *Endpoint) IssueConnectTerminate(address, message string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	e.pending.Remove(address)
	e.mu.Lock()
	delete(e.handles, address)
	e.mu.Unlock()
	e.hub.unlink(e.address, address)
	if target, ok := e.hub.route(address, e.address); ok {
		target.pending.Remove(e.address)
		target.push(engine.ConnectTerminate{Address: e.address, Message: message})
	}
	return nil
}

func (e *Endpoint) IssuePing(address, payload string) error {
	return e.issue(address, engine.Ping{Address: e.address, Payload: payload})
}

func (e *Endpoint) IssueNodeIndexSubscribe(address string, classes protocol.ClassSet) error {
	return e.issue(address, engine.NodeIndexSubscribe{Address: e.address, Classes: classes})
}

func (e *Endpoint) IssueNodeCreate(address string, info engine.NodeInfo) error {
	return e.issue(address, engine.NodeCreate{Address: e.address, Node: info})
}

func (e *Endpoint) IssueNodeDestroy(address string, id protocol.NodeID) error {
	return e.issue(address, engine.NodeDestroy{Address: e.address, ID: id})
}

func (e *Endpoint) IssueNodeNameSet(address string, id protocol.NodeID, name string) error {
	return e.issue(address, engine.NodeNameSet{Address: e.address, ID: id, Name: name})
}

func (e *Endpoint) IssueTagGroupCreate(address string, id protocol.NodeID, group uint16, name string) error {
	return e.issue(address, engine.TagGroupCreate{Address: e.address, ID: id, Group: group, Name: name})
}

func (e *Endpoint) IssueTagGroupDestroy(address string, id protocol.NodeID, group uint16) error {
	return e.issue(address, engine.TagGroupDestroy{Address: e.address, ID: id, Group: group})
}

// GenerateHostIdentity creates an ed25519 key pair and returns its public
// half. Nothing on a loopback hub signs, so the private half is dropped.
func (e *Endpoint) GenerateHostIdentity() (protocol.HostID, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return protocol.HostID{}, fmt.Errorf("generate host identity: %w", err)
	}
	return protocol.HostIDFromBytes(pub)
}

func (e *Endpoint) issue(address string, ev engine.Event) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, protocol.ErrAddress)
	}
	e.send(address, ev)
	return nil
}

// send delivers ev to address; unreachable peers lose it silently.
func (e *Endpoint) send(address string, ev engine.Event) {
	if target, ok := e.hub.route(address, e.address); ok {
		target.push(ev)
	}
}

func (e *Endpoint) push(ev engine.Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, ev)
	e.mu.Unlock()
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

func (e *Endpoint) enqueueTerminate(address, message string) {
	e.pending.Remove(address)
	e.mu.Lock()
	delete(e.handles, address)
	e.mu.Unlock()
	e.push(engine.ConnectTerminate{Address: address, Message: message})
}

func (e *Endpoint) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

func (e *Endpoint) close() {
	e.mu.Lock()
	e.closed = true
	e.queue = nil
	e.mu.Unlock()
	select {
	case e.signal <- struct{}{}:
	default:
	}
}
