package batch

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// MaxQueueDelay is the longest delivery delay SQS accepts for a message.
const MaxQueueDelay = 15 * time.Minute

// RetryPolicy bounds retries of unprocessed items. Delays grow exponentially
// without jitter, so every attempt waits strictly longer than the one before.
type RetryPolicy struct {
	// MaxAttempts is the attempt ceiling. Once reached, items are abandoned.
	// Default: 5
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	// Default: 30s
	InitialDelay time.Duration

	// Multiplier scales the delay per attempt. Must be greater than 1.
	// Default: 2
	Multiplier float64

	// MaxDelay caps any single delay. MaxAttempts is lowered so that no
	// allowed attempt would hit the cap.
	// Default: MaxQueueDelay
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy used for queued retries:
// 30s, 1m, 2m, 4m between five attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 30 * time.Second,
		Multiplier:   2,
		MaxDelay:     MaxQueueDelay,
	}
}

// validate fills in defaults and lowers MaxAttempts until delays stay
// strictly increasing under MaxDelay.
func (p *RetryPolicy) validate() {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.InitialDelay > p.MaxDelay {
		p.InitialDelay = p.MaxDelay
	}
	for p.MaxAttempts > 1 && p.rawDelay(p.MaxAttempts-1) > p.MaxDelay {
		p.MaxAttempts--
	}
}

// Normalized returns the policy with defaults applied.
func (p RetryPolicy) Normalized() RetryPolicy {
	p.validate()
	return p
}

// Delay returns how long to wait after the given number of failed attempts.
// Attempts below 1 are treated as 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p.validate()
	return min(p.rawDelay(attempt), p.MaxDelay)
}

// Exhausted reports whether attempt has reached the ceiling.
func (p RetryPolicy) Exhausted(attempt int) bool {
	p.validate()
	return attempt >= p.MaxAttempts
}

// rawDelay computes the uncapped delay for attempt.
func (p RetryPolicy) rawDelay(attempt int) time.Duration {
	b := p.backOff()
	var d time.Duration
	for range max(attempt, 1) {
		d = b.NextBackOff()
	}
	return d
}

// backOff returns a fresh deterministic exponential backoff for the policy.
func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         time.Duration(math.MaxInt64),
	}
	b.Reset()
	return b
}
