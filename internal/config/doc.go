// Package config owns on-disk configuration for verse tooling.
//
// Ownership boundary:
// - simulated client roster (TOML)
// - world preload file (YAML)
// - starter templates for each kind
package config
