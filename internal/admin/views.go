package admin

import (
	"time"

	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/server"
)

type ConnectionView struct {
	Address  string          `json:"address"`
	User     string          `json:"user"`
	State    string          `json:"state"`
	Avatar   protocol.NodeID `json:"avatar"`
	OpenedAt time.Time       `json:"opened_at"`
}

type NodeView struct {
	ID        protocol.NodeID `json:"id"`
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Owner     string          `json:"owner,omitempty"`
	TagGroups []string        `json:"tag_groups,omitempty"`
	Version   uint64          `json:"version"`
}

func viewConnection(c *server.Connection) ConnectionView {
	view := ConnectionView{
		Address:  c.Address,
		User:     c.User,
		OpenedAt: c.OpenedAt,
	}
	if c.Session != nil {
		view.State = c.Session.State().String()
	}
	if c.Avatar != nil {
		view.Avatar = c.Avatar.ID()
	}
	return view
}

func viewNode(n *node.Node) NodeView {
	view := NodeView{
		ID:      n.ID(),
		Type:    n.Type().String(),
		Name:    n.Name(),
		Version: n.DataVersion(),
	}
	if owner := n.Owner(); owner != nil {
		view.Owner = owner.Address()
	}
	for _, group := range n.TagGroupIDs() {
		if name, ok := n.TagGroup(group); ok {
			view.TagGroups = append(view.TagGroups, name)
		}
	}
	return view
}
