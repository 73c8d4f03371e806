package testlog

import (
	"testing"

	"github.com/danmuck/verse/internal/logging"
	"github.com/rs/zerolog"
)

// Start announces the test on the shared test logger.
func Start(t *testing.T) {
	t.Helper()
	logger := logging.ConfigureTests()
	logger.Info().Str("test", t.Name()).Msg("start")
}

// New returns a debug logger that writes through t, so output is grouped
// with the test that produced it.
func New(t *testing.T) zerolog.Logger {
	t.Helper()
	Start(t)
	return zerolog.New(zerolog.NewConsoleWriter(zerolog.ConsoleTestWriter(t))).
		Level(zerolog.DebugLevel).
		With().
		Str("test", t.Name()).
		Logger()
}
