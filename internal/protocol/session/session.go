package session

import (
	"fmt"
	"strings"
	"sync"
	"weak"

	"github.com/danmuck/verse/internal/engine"
	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/observability"
	"github.com/danmuck/verse/internal/observe"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/runtime"
	"github.com/rs/zerolog"
)

// State is a session lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectAcceptHandler observes a session becoming connected.
type ConnectAcceptHandler interface {
	OnConnectAccept(avatar *node.Node, address string, hostID protocol.HostID)
}

// ConnectTerminateHandler observes a session ending, locally or remotely.
type ConnectTerminateHandler interface {
	OnConnectTerminate(address, message string)
}

// NodeCreateRequestHandler observes a peer asking an accepting host to
// create a node.
type NodeCreateRequestHandler interface {
	OnNodeCreateRequest(s *Session, info engine.NodeInfo)
}

type NodeDestroyRequestHandler interface {
	OnNodeDestroyRequest(s *Session, id protocol.NodeID)
}

type NodeNameSetRequestHandler interface {
	OnNodeNameSetRequest(s *Session, id protocol.NodeID, name string)
}

// Observer is the common client-side observer shape.
type Observer interface {
	ConnectAcceptHandler
	ConnectTerminateHandler
}

// Session is one peer relationship driven by the runtime update loop.
type Session struct {
	rt  *runtime.Runtime
	log zerolog.Logger

	mu       sync.Mutex
	address  string
	user     string
	state    State
	hostID   protocol.HostID
	avatar   weak.Pointer[node.Node]
	handle   engine.SessionHandle
	accepted bool

	graph     *node.Registry
	observers observe.Registry
}

// New creates a disconnected session. address may be empty and set later.
func New(rt *runtime.Runtime, address string) *Session {
	return &Session{
		rt:      rt,
		log:     observability.Component(rt.Logger(), "session"),
		address: strings.TrimSpace(address),
		graph:   node.NewRegistry(),
	}
}

// Accepted builds the accepting side of a session that the engine already
// confirmed. It starts connected and is registered with the runtime.
func Accepted(
	rt *runtime.Runtime,
	address string,
	user string,
	avatar *node.Node,
	hostID protocol.HostID,
	handle engine.SessionHandle,
) (*Session, error) {
	s := New(rt, address)
	s.user = user
	s.state = StateConnected
	s.hostID = hostID
	s.handle = handle
	s.accepted = true
	if avatar != nil {
		s.avatar = weak.Make(avatar)
	}
	if err := rt.Register(s); err != nil {
		return nil, err
	}
	rt.MarkConnected(s)
	return s, nil
}

func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// SetAddress changes the peer address. It is only allowed before connecting.
func (s *Session) SetAddress(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		return fmt.Errorf("%w: address is fixed once %s", protocol.ErrSession, s.state)
	}
	s.address = strings.TrimSpace(address)
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// HostID is the peer identity recorded on accept.
func (s *Session) HostID() protocol.HostID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostID
}

func (s *Session) Handle() engine.SessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Avatar returns the avatar node, or nil when there is none or it is gone.
func (s *Session) Avatar() *node.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avatar.Value()
}

// Graph holds the nodes this session learned from its peer.
func (s *Session) Graph() *node.Registry {
	return s.graph
}

func (s *Session) IsAccepted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Session) AddObserver(obs any) bool {
	return s.observers.Add(obs)
}

func (s *Session) RemoveObserver(obs any) bool {
	return s.observers.Remove(obs)
}

// Connect starts the handshake without a host identity expectation.
func (s *Session) Connect(user, password string) error {
	return s.ConnectExpecting(user, password, protocol.Wildcard)
}

// ConnectExpecting starts the handshake. The peer drops the request if its
// identity does not match a non-wildcard expected.
func (s *Session) ConnectExpecting(user, password string, expected protocol.HostID) error {
	s.mu.Lock()
	address := s.address
	if address == "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: no address set", protocol.ErrAddress)
	}
	switch s.state {
	case StateConnecting:
		s.mu.Unlock()
		return fmt.Errorf("%w: connect already in progress", protocol.ErrSession)
	case StateConnected:
		s.mu.Unlock()
		return fmt.Errorf("%w: session already established", protocol.ErrSession)
	case StateTerminated:
		s.mu.Unlock()
		return fmt.Errorf("%w: session terminated", protocol.ErrSession)
	}
	s.state = StateConnecting
	s.user = user
	s.mu.Unlock()

	if err := s.rt.Register(s); err != nil {
		s.setState(StateDisconnected)
		return err
	}
	err := s.rt.Do(func(eng engine.Engine) error {
		return eng.IssueConnect(address, user, password, expected)
	})
	if err != nil {
		s.rt.Unregister(s)
		s.setState(StateDisconnected)
		return fmt.Errorf("issue connect: %w", err)
	}
	s.log.Debug().Str("peer", address).Str("user", user).Msg("session.connect issued")
	return nil
}

// Disconnect ends the session locally and tells the peer why.
func (s *Session) Disconnect(message string) error {
	return s.terminate(message, true)
}

// Drop ends the session locally without telling the peer. It is used when
// the peer is already gone or has replaced this session.
func (s *Session) Drop(message string) {
	_ = s.terminate(message, false)
}

// DestroyNode asks the peer to destroy a node this session owns.
func (s *Session) DestroyNode(n *node.Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", protocol.ErrNode)
	}
	address, err := s.activeAddress()
	if err != nil {
		return fmt.Errorf("%w: no active session", protocol.ErrNode)
	}
	if n.Owner() == nil {
		return fmt.Errorf("%w: no active session", protocol.ErrNode)
	}
	if !n.OwnedBy(s) {
		return fmt.Errorf("%w: not owned by this session", protocol.ErrNode)
	}
	return s.rt.Do(func(eng engine.Engine) error {
		return eng.IssueNodeDestroy(address, n.ID())
	})
}

// RequestNodeCreate asks the peer to create a node owned by this session.
func (s *Session) RequestNodeCreate(typ protocol.NodeType, name string) error {
	address, err := s.activeAddress()
	if err != nil {
		return err
	}
	var owner protocol.NodeID
	if avatar := s.Avatar(); avatar != nil {
		owner = avatar.ID()
	}
	return s.rt.Do(func(eng engine.Engine) error {
		return eng.IssueNodeCreate(address, engine.NodeInfo{Type: typ, Owner: owner, Name: name})
	})
}

// RequestNodeName asks the peer to rename a node.
func (s *Session) RequestNodeName(id protocol.NodeID, name string) error {
	address, err := s.activeAddress()
	if err != nil {
		return err
	}
	return s.rt.Do(func(eng engine.Engine) error {
		return eng.IssueNodeNameSet(address, id, name)
	})
}

// SubscribeIndex replaces interest in node classes. An empty set clears it.
func (s *Session) SubscribeIndex(classes protocol.ClassSet) error {
	address, err := s.activeAddress()
	if err != nil {
		return err
	}
	return s.rt.Do(func(eng engine.Engine) error {
		return eng.IssueNodeIndexSubscribe(address, classes)
	})
}

func (s *Session) Ping(payload string) error {
	address, err := s.activeAddress()
	if err != nil {
		return err
	}
	return s.rt.Do(func(eng engine.Engine) error {
		return eng.IssuePing(address, payload)
	})
}

func (s *Session) activeAddress() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return "", fmt.Errorf("%w: session is %s", protocol.ErrSession, s.state)
	}
	return s.address, nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// AllConnected lists the connected sessions of rt in address order.
func AllConnected(rt *runtime.Runtime) []*Session {
	targets := rt.Connected()
	out := make([]*Session, 0, len(targets))
	for _, t := range targets {
		if s, ok := t.(*Session); ok {
			out = append(out, s)
		}
	}
	return out
}
