// Package index owns node-index subscriptions per peer address.
//
// Ownership boundary:
// - which node classes each address subscribed to
// - replay of existing nodes when a subscription widens
// - live forwarding of node creation and destruction to subscribers
package index
