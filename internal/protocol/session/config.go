package session

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config holds session timing defaults.
type Config struct {
	// PollTimeout bounds one update loop poll.
	PollTimeout time.Duration
	// ConnectTimeout is how long a connect may wait for accept.
	ConnectTimeout time.Duration
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		PollTimeout:    50 * time.Millisecond,
		ConnectTimeout: 5 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.PollTimeout <= 0 {
		c.PollTimeout = def.PollTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

// Delay is the wait before retry attempt (1-based). Growth is geometric and
// capped by MaxDelay; with Jitter the result lies in [delay/2, delay].
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	mult := max(b.Multiplier, 1.0)
	delay := float64(b.InitialDelay) * math.Pow(mult, float64(max(attempt, 1)-1))
	if b.MaxDelay > 0 {
		delay = min(delay, float64(b.MaxDelay))
	}
	if b.Jitter && rng != nil {
		delay = delay/2 + rng.Float64()*delay/2
	}
	return time.Duration(delay)
}
