package server

import (
	"fmt"

	"github.com/danmuck/verse/internal/engine"
	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/observability"
	"github.com/danmuck/verse/internal/observe"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/protocol/session"
)

// Seed describes a node created before any peer connects.
type Seed struct {
	Type      protocol.NodeType
	Name      string
	TagGroups []string
}

// Preload creates server-owned nodes from seeds.
func (s *Server) Preload(seeds []Seed) error {
	for i, seed := range seeds {
		n, err := s.CreateNode(seed.Type, seed.Name)
		if err != nil {
			return fmt.Errorf("preload[%d]: %w", i, err)
		}
		for _, group := range seed.TagGroups {
			if _, err := s.CreateTagGroup(n, group); err != nil {
				return fmt.Errorf("preload[%d] tag group %q: %w", i, group, err)
			}
		}
	}
	return nil
}

// CreateNode adds a server-owned node and announces it to subscribers.
func (s *Server) CreateNode(typ protocol.NodeType, name string) (*node.Node, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: invalid node type %d", protocol.ErrArgument, typ)
	}
	n := node.New(typ, name)
	if err := s.addNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// DestroyNode removes a registered node and announces it to subscribers.
func (s *Server) DestroyNode(n *node.Node) error {
	if err := s.checkRegistered(n); err != nil {
		return err
	}
	s.removeNode(n)
	return nil
}

// SetNodeName renames n and forwards the change to its class subscribers.
func (s *Server) SetNodeName(n *node.Node, name string) error {
	if err := s.checkRegistered(n); err != nil {
		return err
	}
	n.SetName(name)
	s.forward(n, func(eng engine.Engine, addr string) error {
		return eng.IssueNodeNameSet(addr, n.ID(), name)
	})
	return nil
}

func (s *Server) CreateTagGroup(n *node.Node, name string) (uint16, error) {
	if err := s.checkRegistered(n); err != nil {
		return 0, err
	}
	group := n.CreateTagGroup(name)
	s.forward(n, func(eng engine.Engine, addr string) error {
		return eng.IssueTagGroupCreate(addr, n.ID(), group, name)
	})
	return group, nil
}

func (s *Server) DestroyTagGroup(n *node.Node, group uint16) error {
	if err := s.checkRegistered(n); err != nil {
		return err
	}
	if !n.DestroyTagGroup(group) {
		return fmt.Errorf("%w: node %d has no tag group %d", protocol.ErrArgument, n.ID(), group)
	}
	s.forward(n, func(eng engine.Engine, addr string) error {
		return eng.IssueTagGroupDestroy(addr, n.ID(), group)
	})
	return nil
}

// DeliverCreate announces n to one peer.
func (s *Server) DeliverCreate(address string, n *node.Node) error {
	info := s.nodeInfo(n)
	return s.rt.Do(func(eng engine.Engine) error {
		return eng.IssueNodeCreate(address, info)
	})
}

// DeliverDestroy announces the removal of n to one peer.
func (s *Server) DeliverDestroy(address string, n *node.Node) error {
	id := n.ID()
	return s.rt.Do(func(eng engine.Engine) error {
		return eng.IssueNodeDestroy(address, id)
	})
}

func (s *Server) nodeInfo(n *node.Node) engine.NodeInfo {
	info := engine.NodeInfo{ID: n.ID(), Type: n.Type(), Name: n.Name()}
	if sess, ok := n.Owner().(*session.Session); ok {
		if avatar := sess.Avatar(); avatar != nil {
			info.Owner = avatar.ID()
		}
	}
	return info
}

func (s *Server) checkRegistered(n *node.Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", protocol.ErrNode)
	}
	if cur, ok := s.nodes.Get(n.ID()); !ok || cur != n {
		return fmt.Errorf("%w: node %d is not registered", protocol.ErrNode, n.ID())
	}
	return nil
}

func (s *Server) addNode(n *node.Node) error {
	if _, err := s.nodes.Add(n); err != nil {
		return err
	}
	s.nodeCreated(n)
	return nil
}

func (s *Server) nodeCreated(n *node.Node) {
	observability.SetLiveNodes(s.nodes.Len())
	for addr, err := range s.index.Created(n) {
		s.log.Warn().Str("peer", addr).Err(err).Msg("server node create forward failed")
	}
	observe.Notify(&s.observers, func(h node.CreateHandler) { h.OnNodeCreate(n) })
}

func (s *Server) removeNode(n *node.Node) {
	if _, ok := s.nodes.Remove(n.ID()); !ok {
		return
	}
	observability.SetLiveNodes(s.nodes.Len())
	for addr, err := range s.index.Destroyed(n) {
		s.log.Warn().Str("peer", addr).Err(err).Msg("server node destroy forward failed")
	}
	observe.Notify(&s.observers, func(h node.DestroyHandler) { h.OnNodeDestroy(n) })
	n.NotifyDestroyed()
}

func (s *Server) forward(n *node.Node, issue func(engine.Engine, string) error) {
	for _, addr := range s.index.Subscribers(n.Type()) {
		err := s.rt.Do(func(eng engine.Engine) error { return issue(eng, addr) })
		if err != nil {
			s.log.Warn().Str("peer", addr).Err(err).Msg("server node update forward failed")
		}
	}
}
