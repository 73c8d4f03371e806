package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) got=%v ok=%v", raw, got, ok)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level should not parse")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogFormat, "json")

	cfg := DefaultConfig(ProfileRuntime)
	ApplyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("unexpected level %v", cfg.Level)
	}
	if cfg.Timestamp || !cfg.NoColor || cfg.Format != "json" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.WarnLevel, Format: "json", Out: &buf})
	logger.Info().Msg("hidden")
	logger.Warn().Str("address", "127.0.0.1:4950").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked: %s", out)
	}
	if !strings.Contains(out, `"address":"127.0.0.1:4950"`) {
		t.Fatalf("missing field: %s", out)
	}
}
