// Package loopback owns an in-process engine used by tests and the simulator.
//
// Ownership boundary:
// - endpoint addressing within one Hub
// - delivery of typed events between endpoints without encoding
// - connect deadlines and link teardown
package loopback
