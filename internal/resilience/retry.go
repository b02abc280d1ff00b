// Package resilience provides the retry policy applied to provider calls.
// The policy is constructed once from config and handed to the extraction
// orchestrator; call sites never embed their own timers.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls retry behavior for provider calls: attempt budget,
// exponential backoff with jitter, and which error kinds are retryable.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// 1 means no retries. Default: 2 (one retry before fallback).
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Default: 400ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff. Default: 10s.
	MaxBackoff time.Duration

	// Multiplier scales the backoff per attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction randomizes the delay by ±fraction. Default: 0.2.
	JitterFraction float64

	// Retryable overrides the default transient check when non-nil.
	Retryable func(err error) bool
}

// DefaultPolicy returns the retry policy used for provider calls unless
// config overrides it.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		InitialBackoff: 400 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// Do runs fn under the policy, retrying transient failures. Context
// cancellation stops retries immediately and returns the last error.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !retryable(lastErr) {
			return zero, lastErr
		}
		if attempt >= p.MaxAttempts-1 {
			break
		}

		zap.L().Warn("retrying provider call",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 2
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 400 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	if p.JitterFraction > 0 {
		jitter := delay * p.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
