// Package backoff computes retry delays for failed vote jobs. Strategies
// hold no mutable state and may be shared across workers.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy maps a retry attempt number to a wait duration.
type Strategy interface {
	// Delay returns the wait before attempt n. Attempts are 1-indexed:
	// attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant waits the same interval between every retry.
type Constant struct {
	Interval time.Duration
}

// NewConstant returns a strategy with a fixed retry interval.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(int) time.Duration { return c.Interval }

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear grows the delay by Initial on each attempt, up to Max.
// A Max of zero leaves the growth uncapped.
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear returns a linearly growing strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

func (l *Linear) Delay(attempt int) time.Duration {
	return clamp(l.Initial*time.Duration(attempt), l.Max)
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the previous delay on each attempt, up to Max.
// A Max of zero leaves the growth uncapped.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential returns a doubling strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	return clamp(doubled(e.Initial, attempt), e.Max)
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter
// ──────────────────────────────────────────────────

// ExponentialWithJitter draws a uniform delay from [0, ceiling], where the
// ceiling doubles per attempt up to Max. Spreading retries out keeps a burst
// of simultaneously failed jobs from hammering the store in lockstep.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter returns a full-jitter doubling strategy.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	ceiling := clamp(doubled(e.Initial, attempt), e.Max)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1)) //nolint:gosec // scheduling jitter, not a secret
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy is the retry schedule for vote jobs: 5s, 10s, 20s for the
// three attempts, capped at 5m for custom jobs with higher attempt limits.
// No jitter: vote traffic is spread by participants, not by retry storms,
// and fixed doubling keeps retry timing predictable for operators.
func DefaultStrategy() Strategy {
	return NewExponential(5*time.Second, 5*time.Minute)
}

// doubled returns initial << (attempt-1), saturating instead of wrapping
// when the shift overflows.
func doubled(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initial
	for i := 1; i < attempt; i++ {
		next := d << 1
		if next < d {
			return 1<<63 - 1
		}
		d = next
	}
	return d
}

func clamp(d, ceiling time.Duration) time.Duration {
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}
