// Package trust owns the client-side record of server host identities.
//
// Ownership boundary:
// - known_hosts formatted storage of host ids per server address
// - lookup of the expected id before connecting
// - trust-on-first-use recording when a session is accepted
package trust
