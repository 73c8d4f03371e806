package protocol

import (
	"fmt"
	"strings"
)

// DefaultPort is the port a server listens on when none is configured.
const DefaultPort = 4950

// NodeID identifies a node within one server's graph. Zero means unset.
type NodeID uint32

// NodeType is the class of a node.
type NodeType uint8

const (
	NodeObject NodeType = iota
	NodeGeometry
	NodeMaterial
	NodeBitmap
	NodeText
	NodeCurve
	NodeAudio
	NodeSystem NodeType = 7
)

var nodeTypeNames = map[NodeType]string{
	NodeObject:   "object",
	NodeGeometry: "geometry",
	NodeMaterial: "material",
	NodeBitmap:   "bitmap",
	NodeText:     "text",
	NodeCurve:    "curve",
	NodeAudio:    "audio",
	NodeSystem:   "system",
}

func (t NodeType) String() string {
	if name, ok := nodeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("nodetype(%d)", uint8(t))
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	_, ok := nodeTypeNames[t]
	return ok
}

// ParseNodeType resolves a type name as used in config files.
func ParseNodeType(raw string) (NodeType, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for t, name := range nodeTypeNames {
		if name == key {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown node type %q", ErrArgument, raw)
}
