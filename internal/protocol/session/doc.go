// Package session owns the per-peer session state machine.
//
// Ownership boundary:
// - connect, accept and terminate transitions
// - the avatar reference and the peer's host identity
// - the graph of nodes learned from the peer
// - server-side accepted sessions and client redial with backoff
//
// Transitions only happen on events routed by the runtime update loop or on
// an explicit local Disconnect.
package session
