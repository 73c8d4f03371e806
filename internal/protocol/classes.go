package protocol

import "strings"

// ClassSet is a set of node types, one bit per type.
type ClassSet uint32

// AllClasses covers every subscribable node type.
const AllClasses = ClassSet(1<<NodeObject | 1<<NodeGeometry | 1<<NodeMaterial |
	1<<NodeBitmap | 1<<NodeText | 1<<NodeCurve | 1<<NodeAudio)

// Classes builds a set from the given types.
func Classes(types ...NodeType) ClassSet {
	var s ClassSet
	for _, t := range types {
		s |= 1 << t
	}
	return s
}

func (s ClassSet) Has(t NodeType) bool {
	return s&(1<<t) != 0
}

func (s ClassSet) Union(o ClassSet) ClassSet {
	return s | o
}

// Minus returns the classes in s that are not in o.
func (s ClassSet) Minus(o ClassSet) ClassSet {
	return s &^ o
}

func (s ClassSet) Empty() bool {
	return s == 0
}

// Types lists the members in ascending type order.
func (s ClassSet) Types() []NodeType {
	out := make([]NodeType, 0, 8)
	for t := NodeType(0); t < 32; t++ {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s ClassSet) String() string {
	if s.Empty() {
		return "{}"
	}
	names := make([]string, 0, 8)
	for _, t := range s.Types() {
		names = append(names, t.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}
