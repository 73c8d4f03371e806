// Package node owns graph nodes and the registry that assigns their ids.
//
// Ownership boundary:
// - node identity, type, name and ownership
// - data and structure version counters
// - tag groups
// - node observer handler interfaces
package node
