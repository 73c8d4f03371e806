package server

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/verse/internal/auth"
	"github.com/danmuck/verse/internal/engine"
	"github.com/danmuck/verse/internal/index"
	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/observability"
	"github.com/danmuck/verse/internal/observe"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/protocol/session"
	"github.com/danmuck/verse/internal/runtime"
	"github.com/rs/zerolog"
)

// State is the server lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateTerminated State = "terminated"
)

// Config configures a Server.
type Config struct {
	// HostID is used as-is when not the wildcard.
	HostID protocol.HostID
	// HostIDPath is read, or created, when HostID is the wildcard. Empty
	// means a fresh identity per process.
	HostIDPath string
	// Auth checks credentials. Nil accepts everyone.
	Auth auth.Authenticator
}

func DefaultConfig() Config {
	return Config{
		HostIDPath: protocol.HostIDFile,
	}
}

// Connection is one accepted peer.
type Connection struct {
	Address  string
	User     string
	Session  *session.Session
	Avatar   *node.Node
	OpenedAt time.Time
}

// ConnectionOpenHandler observes accepted connections.
type ConnectionOpenHandler interface {
	OnConnectionOpen(c *Connection)
}

// ConnectionCloseHandler observes connections leaving the table.
type ConnectionCloseHandler interface {
	OnConnectionClose(c *Connection, reason string)
}

// Server accepts sessions and owns the shared graph.
type Server struct {
	rt     *runtime.Runtime
	log    zerolog.Logger
	auth   auth.Authenticator
	hostID protocol.HostID
	nodes  *node.Registry
	index  *index.Tracker

	mu    sync.RWMutex
	state State
	conns map[string]*Connection

	observers observe.Registry
}

// New builds an idle server bound to rt, resolving its host identity.
func New(rt *runtime.Runtime, cfg Config) (*Server, error) {
	hostID, err := resolveHostID(rt, cfg)
	if err != nil {
		return nil, err
	}
	authn := cfg.Auth
	if authn == nil {
		authn = auth.Anyone{}
	}
	s := &Server{
		rt:     rt,
		log:    observability.Component(rt.Logger(), "server"),
		auth:   authn,
		hostID: hostID,
		nodes:  node.NewRegistry(),
		state:  StateIdle,
		conns:  make(map[string]*Connection),
	}
	s.index = index.NewTracker(s)
	return s, nil
}

func resolveHostID(rt *runtime.Runtime, cfg Config) (protocol.HostID, error) {
	if !cfg.HostID.IsWildcard() {
		return cfg.HostID, nil
	}
	generate := func() (protocol.HostID, error) {
		var id protocol.HostID
		err := rt.Do(func(eng engine.Engine) error {
			var genErr error
			id, genErr = eng.GenerateHostIdentity()
			return genErr
		})
		return id, err
	}
	if path := strings.TrimSpace(cfg.HostIDPath); path != "" {
		return protocol.LoadOrCreateHostID(path, generate)
	}
	return generate()
}

func (s *Server) HostID() protocol.HostID {
	return s.hostID
}

func (s *Server) Nodes() *node.Registry {
	return s.nodes
}

func (s *Server) Index() *index.Tracker {
	return s.index
}

func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Running reports whether s is the process's running server.
func (s *Server) Running() bool {
	return isRunning(s)
}

// Connections returns the accepted connections in address order.
func (s *Server) Connections() []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, 0, len(s.conns))
	for _, addr := range slices.Sorted(maps.Keys(s.conns)) {
		out = append(out, s.conns[addr])
	}
	return out
}

func (s *Server) Connection(address string) (*Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[address]
	return c, ok
}

func (s *Server) AddObserver(obs any) bool {
	return s.observers.Add(obs)
}

func (s *Server) RemoveObserver(obs any) bool {
	return s.observers.Remove(obs)
}

// Run registers s as the running server and starts observing the runtime.
// Events are processed by whoever drives the runtime update loop.
func (s *Server) Run() error {
	if st := s.State(); st != StateIdle {
		return fmt.Errorf("%w: server is %s", protocol.ErrServer, st)
	}
	if err := claimRunning(s); err != nil {
		return err
	}
	s.setState(StateRunning)
	s.rt.AddObserver(s)
	s.log.Info().Str("hostid", s.hostID.String()).Int("nodes", s.nodes.Len()).Msg("server running")
	return nil
}

// Shutdown terminates every connection with reason and stops the server.
func (s *Server) Shutdown(reason string) error {
	if !isRunning(s) {
		return fmt.Errorf("%w: server isn't running", protocol.ErrServer)
	}
	s.rt.RemoveObserver(s)
	conns := s.Connections()
	for _, c := range conns {
		s.closeConnection(c, reason, true)
	}
	s.setState(StateTerminated)
	releaseRunning(s)
	s.log.Warn().Int("connections", len(conns)).Str("reason", reason).Msg("server shut down")
	return nil
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}
