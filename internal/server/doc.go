// Package server owns the accepting side of the session layer.
//
// Ownership boundary:
// - the connection acceptor and the connection table
// - the authoritative node registry and index subscriptions
// - the process-wide running-instance monitor
// - orderly shutdown of every accepted session
//
// A server never returns errors for untrusted peer input; it logs and drops.
package server
