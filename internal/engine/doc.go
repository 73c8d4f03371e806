// Package engine owns the boundary to the transport engine.
//
// Ownership boundary:
// - the Engine interface the session layer issues commands through
// - typed inbound events returned by PollEvents
//
// Engines are not safe for concurrent use; callers serialize access.
package engine
