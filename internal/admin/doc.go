// Package admin owns the operator HTTP surface of a running server.
//
// Ownership boundary:
// - health and readiness probes
// - read-only snapshots of connections and the node graph
// - prometheus scrape endpoint
// - websocket feed of connection and node lifecycle events
//
// Admin never mutates server state.
package admin
