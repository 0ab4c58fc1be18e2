package pacing

import (
	"context"
	"math/rand"
	"time"

	"albumgrab/pkg/config"
	"albumgrab/pkg/retry"
)

// Pacer inserts a deliberate pause between requests to reduce burstiness.
// It is a politeness policy, not a correctness requirement.
type Pacer interface {
	// Pause blocks for the pacing delay or until the context is cancelled
	Pause(ctx context.Context)
}

// RandomDelay pauses for a random duration in [Min, Max]
type RandomDelay struct {
	Min time.Duration
	Max time.Duration

	// Rand and Sleep are injectable for tests
	Rand  func() float64
	Sleep retry.SleepFunc
}

// NewRandomDelay creates a pacer with the given delay range
func NewRandomDelay(min, max time.Duration) *RandomDelay {
	return &RandomDelay{
		Min:   min,
		Max:   max,
		Rand:  rand.Float64,
		Sleep: retry.Wait,
	}
}

// Pause sleeps for a random duration within the configured range
func (rd *RandomDelay) Pause(ctx context.Context) {
	delay := rd.Min
	if rd.Max > rd.Min {
		delay += time.Duration(rd.Rand() * float64(rd.Max-rd.Min))
	}
	_ = rd.Sleep(ctx, delay)
}

// None is a no-op pacer
type None struct{}

// Pause returns immediately
func (None) Pause(ctx context.Context) {}

// FromConfig builds a pacer from the pacing configuration
func FromConfig(cfg *config.PacingConfig) Pacer {
	if cfg == nil || !cfg.Enabled {
		return None{}
	}
	return NewRandomDelay(cfg.MinDelay, cfg.MaxDelay)
}
