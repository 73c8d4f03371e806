package engine

import (
	"time"

	"github.com/danmuck/verse/internal/protocol"
)

// SessionHandle is the engine's opaque reference to an accepted session.
type SessionHandle string

// NodeInfo describes a node announced to a peer.
type NodeInfo struct {
	ID    protocol.NodeID
	Type  protocol.NodeType
	Owner protocol.NodeID
	Name  string
}

// Engine is the transport engine the runtime drives.
type Engine interface {
	// PollEvents waits up to timeout for inbound events and returns them in
	// arrival order. A zero timeout does not block.
	PollEvents(timeout time.Duration) ([]Event, error)

	IssueConnect(address, user, password string, expected protocol.HostID) error
	IssueConnectAccept(avatar protocol.NodeID, address string, hostID protocol.HostID) (SessionHandle, error)
	IssueConnectTerminate(address, message string) error
	IssuePing(address, payload string) error

	IssueNodeIndexSubscribe(address string, classes protocol.ClassSet) error
	IssueNodeCreate(address string, info NodeInfo) error
	IssueNodeDestroy(address string, id protocol.NodeID) error
	IssueNodeNameSet(address string, id protocol.NodeID, name string) error
	IssueTagGroupCreate(address string, id protocol.NodeID, group uint16, name string) error
	IssueTagGroupDestroy(address string, id protocol.NodeID, group uint16) error

	GenerateHostIdentity() (protocol.HostID, error)
}
