// Package protocol owns the shared vocabulary of the session layer.
//
// Ownership boundary:
// - node ids, node types and class sets
// - host identity values and their on-disk form
// - error taxonomy shared by sessions, servers and registries
//
// Wire encoding lives behind the engine boundary and is not modelled here.
package protocol
