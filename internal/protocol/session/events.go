package session

import (
	"weak"

	"github.com/danmuck/verse/internal/engine"
	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/observe"
	"github.com/danmuck/verse/internal/protocol"
)

// HandleEvent applies one event routed to this session by the runtime.
func (s *Session) HandleEvent(ev engine.Event) {
	switch e := ev.(type) {
	case engine.ConnectAccept:
		s.onAccept(e)
	case engine.ConnectTerminate:
		_ = s.terminate(e.Message, false)
	case engine.NodeCreate:
		if s.IsAccepted() {
			observe.Notify(&s.observers, func(h NodeCreateRequestHandler) { h.OnNodeCreateRequest(s, e.Node) })
			return
		}
		s.onNodeCreate(e.Node)
	case engine.NodeDestroy:
		if s.IsAccepted() {
			observe.Notify(&s.observers, func(h NodeDestroyRequestHandler) { h.OnNodeDestroyRequest(s, e.ID) })
			return
		}
		s.onNodeDestroy(e.ID)
	case engine.NodeNameSet:
		if s.IsAccepted() {
			observe.Notify(&s.observers, func(h NodeNameSetRequestHandler) { h.OnNodeNameSetRequest(s, e.ID, e.Name) })
			return
		}
		if n, ok := s.graph.Get(e.ID); ok {
			n.SetName(e.Name)
		}
	case engine.TagGroupCreate:
		if n, ok := s.clientNode(e.ID); ok {
			n.ApplyTagGroup(e.Group, e.Name)
		}
	case engine.TagGroupDestroy:
		if n, ok := s.clientNode(e.ID); ok {
			n.DestroyTagGroup(e.Group)
		}
	default:
		s.log.Debug().Str("kind", string(ev.Kind())).Msg("session.HandleEvent ignored")
	}
}

func (s *Session) onAccept(e engine.ConnectAccept) {
	s.mu.Lock()
	if s.state != StateConnecting {
		state := s.state
		s.mu.Unlock()
		s.log.Debug().Str("state", state.String()).Msg("session.onAccept ignored outside connecting")
		return
	}
	avatar := node.NewWithID(e.Avatar, protocol.NodeObject, s)
	if err := s.graph.Put(avatar); err != nil {
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("session.onAccept invalid avatar")
		return
	}
	s.avatar = weak.Make(avatar)
	s.hostID = e.HostID
	s.state = StateConnected
	address := s.address
	s.mu.Unlock()

	s.rt.MarkConnected(s)
	s.log.Info().
		Str("peer", address).
		Uint32("avatar", uint32(e.Avatar)).
		Str("hostid", e.HostID.String()).
		Msg("session connected")
	observe.Notify(&s.observers, func(h ConnectAcceptHandler) {
		h.OnConnectAccept(avatar, address, e.HostID)
	})
}

// terminate moves the session to its absorbing state exactly once.
func (s *Session) terminate(message string, local bool) error {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateTerminated
	address := s.address
	s.mu.Unlock()

	var err error
	if local && (prev == StateConnecting || prev == StateConnected) {
		err = s.rt.Do(func(eng engine.Engine) error {
			return eng.IssueConnectTerminate(address, message)
		})
	}
	s.rt.Unregister(s)
	if !s.IsAccepted() {
		for _, n := range s.graph.All() {
			s.graph.Remove(n.ID())
			if n.OwnedBy(s) {
				n.SetOwner(nil)
			}
		}
	}
	s.log.Info().
		Str("peer", address).
		Str("from", prev.String()).
		Bool("local", local).
		Str("message", message).
		Msg("session terminated")
	observe.Notify(&s.observers, func(h ConnectTerminateHandler) {
		h.OnConnectTerminate(address, message)
	})
	return err
}

func (s *Session) onNodeCreate(info engine.NodeInfo) {
	if existing, ok := s.graph.Get(info.ID); ok {
		if info.Name != "" {
			existing.SetName(info.Name)
		}
		return
	}
	var owner node.Owner
	if avatar := s.Avatar(); avatar != nil && (info.Owner == avatar.ID() || info.ID == avatar.ID()) {
		owner = s
	}
	n := node.NewWithID(info.ID, info.Type, owner)
	n.SetName(info.Name)
	if err := s.graph.Put(n); err != nil {
		s.log.Warn().Err(err).Msg("session.onNodeCreate rejected")
		return
	}
	observe.Notify(&s.observers, func(h node.CreateHandler) { h.OnNodeCreate(n) })
}

func (s *Session) onNodeDestroy(id protocol.NodeID) {
	n, ok := s.graph.Remove(id)
	if !ok {
		return
	}
	observe.Notify(&s.observers, func(h node.DestroyHandler) { h.OnNodeDestroy(n) })
	n.NotifyDestroyed()
}

func (s *Session) clientNode(id protocol.NodeID) (*node.Node, bool) {
	if s.IsAccepted() {
		return nil, false
	}
	return s.graph.Get(id)
}
