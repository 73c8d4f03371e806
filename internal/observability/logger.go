package observability

import (
	"github.com/rs/zerolog"
)

// Component derives a child logger tagged with the emitting component.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// Peer tags a logger with the remote address it is talking about.
func Peer(base zerolog.Logger, address string) zerolog.Logger {
	return base.With().Str("peer", address).Logger()
}
