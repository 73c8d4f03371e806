package server

import (
	"time"

	"github.com/danmuck/verse/internal/engine"
	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/observability"
	"github.com/danmuck/verse/internal/observe"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/protocol/session"
)

// OnConnect accepts or silently drops a connect request.
func (s *Server) OnConnect(user, password, address string, expected protocol.HostID) {
	if s.State() != StateRunning {
		return
	}
	log := observability.Peer(s.log, address)
	if !s.hostID.Matches(expected) {
		log.Warn().
			Str("user", user).
			Str("expected", expected.String()).
			Msg("server.OnConnect host id mismatch")
		observability.RecordConnectRejected("hostid_mismatch")
		return
	}
	if err := s.auth.Authenticate(user, password); err != nil {
		log.Warn().Str("user", user).Err(err).Msg("server.OnConnect authentication failed")
		observability.RecordConnectRejected("auth")
		return
	}
	if old, ok := s.Connection(address); ok {
		log.Warn().Str("user", old.User).Msg("server.OnConnect replacing stale connection")
		s.closeConnection(old, "replaced", false)
	}

	avatar := node.New(protocol.NodeObject, user)
	id, err := s.nodes.Add(avatar)
	if err != nil {
		log.Error().Err(err).Msg("server.OnConnect register avatar")
		return
	}
	var handle engine.SessionHandle
	err = s.rt.Do(func(eng engine.Engine) error {
		var acceptErr error
		handle, acceptErr = eng.IssueConnectAccept(id, address, s.hostID)
		return acceptErr
	})
	if err != nil {
		s.nodes.Remove(id)
		log.Error().Err(err).Msg("server.OnConnect issue accept")
		observability.RecordConnectRejected("engine")
		return
	}
	sess, err := session.Accepted(s.rt, address, user, avatar, protocol.Wildcard, handle)
	if err != nil {
		s.nodes.Remove(id)
		log.Error().Err(err).Msg("server.OnConnect register session")
		_ = s.rt.Do(func(eng engine.Engine) error {
			return eng.IssueConnectTerminate(address, "session unavailable")
		})
		return
	}
	avatar.SetOwner(sess)
	sess.AddObserver(s)

	conn := &Connection{
		Address:  address,
		User:     user,
		Session:  sess,
		Avatar:   avatar,
		OpenedAt: time.Now(),
	}
	s.mu.Lock()
	s.conns[address] = conn
	active := len(s.conns)
	s.mu.Unlock()

	observability.RecordConnectAccepted()
	observability.SetActiveConnections(active)
	log.Info().
		Str("user", user).
		Uint32("avatar", uint32(id)).
		Str("handle", string(handle)).
		Msg("server accepted connection")
	observe.Notify(&s.observers, func(h ConnectionOpenHandler) { h.OnConnectionOpen(conn) })
	s.nodeCreated(avatar)
}

// OnConnectTerminate handles an accepted session ending from the peer side.
func (s *Server) OnConnectTerminate(address, message string) {
	conn, ok := s.Connection(address)
	if !ok || conn.Session.State() != session.StateTerminated {
		return
	}
	s.closeConnection(conn, message, false)
}

func (s *Server) OnNodeIndexSubscribe(address string, classes protocol.ClassSet) {
	log := observability.Peer(s.log, address)
	if _, ok := s.Connection(address); !ok {
		log.Debug().Str("classes", classes.String()).Msg("server.OnNodeIndexSubscribe unknown connection")
		return
	}
	n, err := s.index.Subscribe(address, classes, s.nodes)
	if err != nil {
		log.Warn().Err(err).Msg("server.OnNodeIndexSubscribe replay failed")
		return
	}
	log.Debug().Str("classes", classes.String()).Int("replayed", n).Msg("server index subscription")
}

func (s *Server) OnPing(address, payload string) {
	s.log.Debug().Str("peer", address).Str("payload", payload).Msg("server ping")
}

// OnNodeCreateRequest creates a node owned by the requesting connection.
func (s *Server) OnNodeCreateRequest(sess *session.Session, info engine.NodeInfo) {
	log := observability.Peer(s.log, sess.Address())
	if !info.Type.Valid() || info.Type == protocol.NodeSystem {
		log.Warn().Str("type", info.Type.String()).Msg("server.OnNodeCreateRequest invalid type")
		return
	}
	n := node.New(info.Type, info.Name)
	n.SetOwner(sess)
	if err := s.addNode(n); err != nil {
		log.Error().Err(err).Msg("server.OnNodeCreateRequest")
	}
}

// OnNodeDestroyRequest destroys a node only if the requester owns it.
func (s *Server) OnNodeDestroyRequest(sess *session.Session, id protocol.NodeID) {
	n, ok := s.nodes.Get(id)
	if !ok || !n.OwnedBy(sess) {
		log := observability.Peer(s.log, sess.Address())
		log.Warn().
			Uint32("node", uint32(id)).
			Msg("server.OnNodeDestroyRequest not owned by requester")
		return
	}
	s.removeNode(n)
}

func (s *Server) OnNodeNameSetRequest(sess *session.Session, id protocol.NodeID, name string) {
	n, ok := s.nodes.Get(id)
	if !ok || !n.OwnedBy(sess) {
		log := observability.Peer(s.log, sess.Address())
		log.Warn().
			Uint32("node", uint32(id)).
			Msg("server.OnNodeNameSetRequest not owned by requester")
		return
	}
	_ = s.SetNodeName(n, name)
}

// closeConnection removes c and everything it owns. When disconnect is set
// the peer is told reason; otherwise the session is dropped locally.
func (s *Server) closeConnection(c *Connection, reason string, disconnect bool) {
	s.mu.Lock()
	if cur, ok := s.conns[c.Address]; ok && cur == c {
		delete(s.conns, c.Address)
	}
	active := len(s.conns)
	s.mu.Unlock()

	log := observability.Peer(s.log, c.Address)
	observe.StopObserving(s, c.Session)
	if disconnect {
		if err := c.Session.Disconnect(reason); err != nil {
			log.Warn().Err(err).Msg("server.closeConnection disconnect")
		}
	} else {
		c.Session.Drop(reason)
	}
	s.index.Remove(c.Address)
	for _, n := range s.nodes.OwnedBy(c.Session) {
		s.removeNode(n)
	}

	observability.SetActiveConnections(active)
	log.Info().
		Str("user", c.User).
		Str("reason", reason).
		Msg("server connection closed")
	observe.Notify(&s.observers, func(h ConnectionCloseHandler) { h.OnConnectionClose(c, reason) })
}
