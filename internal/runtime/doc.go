// Package runtime owns the process-side context every session shares.
//
// Ownership boundary:
// - the engine handle and the lock that serializes access to it
// - the session table keyed by peer address and the connected set
// - the update loop that polls the engine and routes events
//
// The runtime carries no protocol logic; it only demultiplexes.
package runtime
