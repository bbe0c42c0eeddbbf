package agent

import (
	"context"
	"time"

	"github.com/embervale/hearth-agent/hearth/agent/fault"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
)

// Retry defaults, applied when the configured values are out of range.
const (
	DefaultRetryAttempts       = 4
	DefaultRetryBaseDelay      = 1 * time.Second
	DefaultRetryAttemptCeiling = 15 * time.Second
	DefaultRetryTotalCeiling   = 45 * time.Second
)

// RetryPolicy retries rate/quota-limited operations with exponential
// backoff. Waits are overridden by a server-suggested delay when the error
// carries one, and bounded by two independent ceilings: a per-attempt wait
// ceiling (a suggested wait above it is quota exhaustion, not a transient
// limit) and a cumulative ceiling across all attempts. Exceeding either, or
// exhausting the attempt count, re-raises the original error unchanged.
type RetryPolicy struct {
	maxAttempts    int
	baseDelay      time.Duration
	attemptCeiling time.Duration
	totalCeiling   time.Duration
	clock          ports.Clock
	logger         zerolog.Logger
}

// RetryConfig carries the policy knobs; zero values select the defaults.
type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptCeiling time.Duration
	TotalCeiling   time.Duration
}

// NewRetryPolicy builds a policy, clamping out-of-range configuration.
func NewRetryPolicy(cfg RetryConfig, clock ports.Clock, logger zerolog.Logger) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts:    cfg.MaxAttempts,
		baseDelay:      cfg.BaseDelay,
		attemptCeiling: cfg.AttemptCeiling,
		totalCeiling:   cfg.TotalCeiling,
		clock:          clock,
		logger:         logger.With().Str("component", "retry").Logger(),
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultRetryAttempts
	}
	if p.baseDelay <= 0 {
		p.baseDelay = DefaultRetryBaseDelay
	}
	if p.attemptCeiling <= 0 {
		p.attemptCeiling = DefaultRetryAttemptCeiling
	}
	if p.totalCeiling <= 0 {
		p.totalCeiling = DefaultRetryTotalCeiling
	}
	return p
}

// Do runs op, retrying while it fails with a rate/quota fault. Any other
// failure, and any retry-budget exhaustion, returns the original error.
func (p *RetryPolicy) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	var total time.Duration
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if fault.KindOf(lastErr) != fault.RateLimited {
			return lastErr
		}
		if attempt == p.maxAttempts-1 {
			break
		}

		wait := p.baseDelay * (1 << attempt)
		if suggested, ok := fault.SuggestedWaitOf(lastErr); ok {
			wait = suggested
		}
		if wait > p.attemptCeiling {
			p.logger.Warn().
				Str("op", label).
				Dur("wait", wait).
				Dur("ceiling", p.attemptCeiling).
				Msg("suggested wait above per-attempt ceiling, treating as quota exhaustion")
			return lastErr
		}
		if total+wait > p.totalCeiling {
			p.logger.Warn().
				Str("op", label).
				Dur("cumulative", total+wait).
				Dur("ceiling", p.totalCeiling).
				Msg("cumulative wait ceiling reached")
			return lastErr
		}
		total += wait

		p.logger.Debug().
			Str("op", label).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("rate limited, backing off")
		if err := p.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	p.logger.Warn().Str("op", label).Int("attempts", p.maxAttempts).Msg("retry attempts exhausted")
	return lastErr
}
