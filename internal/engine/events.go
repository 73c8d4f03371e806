package engine

import "github.com/danmuck/verse/internal/protocol"

// Kind names an event type for logs and metrics.
type Kind string

const (
	KindConnectRequest     Kind = "connect"
	KindConnectAccept      Kind = "connect_accept"
	KindConnectTerminate   Kind = "connect_terminate"
	KindPing               Kind = "ping"
	KindNodeCreate         Kind = "node_create"
	KindNodeDestroy        Kind = "node_destroy"
	KindNodeNameSet        Kind = "node_name_set"
	KindNodeIndexSubscribe Kind = "node_index_subscribe"
	KindTagGroupCreate     Kind = "tag_group_create"
	KindTagGroupDestroy    Kind = "tag_group_destroy"
)

// Event is one inbound occurrence. Peer is the remote address it came from.
type Event interface {
	Peer() string
	Kind() Kind
}

// ConnectRequest asks this host to accept a session.
type ConnectRequest struct {
	Address  string
	User     string
	Password string
	Expected protocol.HostID
}

// ConnectAccept confirms a session this host requested.
type ConnectAccept struct {
	Address string
	Avatar  protocol.NodeID
	HostID  protocol.HostID
}

type ConnectTerminate struct {
	Address string
	Message string
}

type Ping struct {
	Address string
	Payload string
}

type NodeCreate struct {
	Address string
	Node    NodeInfo
}

type NodeDestroy struct {
	Address string
	ID      protocol.NodeID
}

type NodeNameSet struct {
	Address string
	ID      protocol.NodeID
	Name    string
}

type NodeIndexSubscribe struct {
	Address string
	Classes protocol.ClassSet
}

type TagGroupCreate struct {
	Address string
	ID      protocol.NodeID
	Group   uint16
	Name    string
}

type TagGroupDestroy struct {
	Address string
	ID      protocol.NodeID
	Group   uint16
}

func (e ConnectRequest) Peer() string     { return e.Address }
func (e ConnectAccept) Peer() string      { return e.Address }
func (e ConnectTerminate) Peer() string   { return e.Address }
func (e Ping) Peer() string               { return e.Address }
func (e NodeCreate) Peer() string         { return e.Address }
func (e NodeDestroy) Peer() string        { return e.Address }
func (e NodeNameSet) Peer() string        { return e.Address }
func (e NodeIndexSubscribe) Peer() string { return e.Address }
func (e TagGroupCreate) Peer() string     { return e.Address }
func (e TagGroupDestroy) Peer() string    { return e.Address }

func (ConnectRequest) Kind() Kind     { return KindConnectRequest }
func (ConnectAccept) Kind() Kind      { return KindConnectAccept }
func (ConnectTerminate) Kind() Kind   { return KindConnectTerminate }
func (Ping) Kind() Kind               { return KindPing }
func (NodeCreate) Kind() Kind         { return KindNodeCreate }
func (NodeDestroy) Kind() Kind        { return KindNodeDestroy }
func (NodeNameSet) Kind() Kind        { return KindNodeNameSet }
func (NodeIndexSubscribe) Kind() Kind { return KindNodeIndexSubscribe }
func (TagGroupCreate) Kind() Kind     { return KindTagGroupCreate }
func (TagGroupDestroy) Kind() Kind    { return KindTagGroupDestroy }
