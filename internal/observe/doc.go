// Package observe owns observer registration and capability dispatch.
//
// Ownership boundary:
// - observer sets with insertion order and set semantics
// - typed notification to observers implementing a handler interface
//
// Handler interfaces are declared next to the component that emits them.
package observe
