// Package backoff provides retry delay strategies for failed jobs.
// All strategies are safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultBase is the default base of the exponential delay, matching the
// engine's default base_backoff setting.
const DefaultBase = 2 * time.Second

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long a job must wait after its attempt-th failed
	// execution (1-indexed) before it becomes eligible again.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt:
// Delay = Base * 2^(attempt-1), capped at Max when Max > 0.
//
// The queue default is uncapped and jitter-free. Unbounded growth and the
// absence of jitter are known limitations at this scale; callers who need
// either can set Max or use ExponentialWithJitter.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an uncapped exponential strategy.
func NewExponential(base time.Duration) *Exponential {
	return &Exponential{Base: base}
}

// Delay returns Base * 2^(attempt-1), capped at Max when Max > 0.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base:
// Delay = random value in [0, min(Base * 2^(attempt-1), Max)]. Jitter
// spreads out retries when many jobs fail at once.
type ExponentialWithJitter struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(base, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Base: base, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Base * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Base) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Dynamic
// ──────────────────────────────────────────────────

// Dynamic is an uncapped exponential strategy whose base is resolved on
// every call. The engine uses it to read base_backoff through the settings
// store, so a configuration change takes effect for already-running
// workers without a restart.
type Dynamic struct {
	// Base returns the current base delay. A nil func or a non-positive
	// result falls back to DefaultBase.
	Base func() time.Duration
}

// NewDynamic creates a Dynamic strategy with the given base provider.
func NewDynamic(base func() time.Duration) *Dynamic {
	return &Dynamic{Base: base}
}

// Delay returns base() * 2^(attempt-1).
func (d *Dynamic) Delay(attempt int) time.Duration {
	base := time.Duration(0)
	if d.Base != nil {
		base = d.Base()
	}
	if base <= 0 {
		base = DefaultBase
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// Default returns the strategy stores fall back to when none is injected:
// uncapped exponential with a 2s base.
func Default() Strategy {
	return NewExponential(DefaultBase)
}
