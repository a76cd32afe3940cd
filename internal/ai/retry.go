package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/iago/market-analysis-back/internal/logging"
)

const defaultBackoffCap = 30

type RetryPolicy struct {
	// Timeout bounds each attempt, not the whole call.
	Timeout     time.Duration
	MaxRetries  int
	BackoffUnit time.Duration
	// BackoffCap is the maximum number of units waited between attempts.
	BackoffCap int
}

// Backoff returns the wait after failed attempt n (1-based):
// min(2^n, cap) units.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	limit := p.BackoffCap
	if limit <= 0 {
		limit = defaultBackoffCap
	}
	units := limit
	if attempt < 31 {
		if exp := 1 << attempt; exp < limit {
			units = exp
		}
	}
	return time.Duration(units) * p.BackoffUnit
}

type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier runs one logical call with per-attempt timeouts, optional
// outbound pacing and exponential backoff between attempts.
type Retrier struct {
	api     string
	policy  RetryPolicy
	limiter *rate.Limiter
	sleep   SleepFunc
	logger  *logging.ContextLogger
}

func NewRetrier(api string, policy RetryPolicy, rps float64, logger *logging.ContextLogger) *Retrier {
	if policy.Timeout <= 0 {
		policy.Timeout = 120 * time.Second
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BackoffUnit <= 0 {
		policy.BackoffUnit = time.Second
	}
	if policy.BackoffCap <= 0 {
		policy.BackoffCap = defaultBackoffCap
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Retrier{
		api:     api,
		policy:  policy,
		limiter: limiter,
		sleep:   sleepContext,
		logger:  logger,
	}
}

// WithSleep replaces the wait between attempts.
func (r *Retrier) WithSleep(sleep SleepFunc) *Retrier {
	if sleep != nil {
		r.sleep = sleep
	}
	return r
}

func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Do calls fn up to MaxRetries+1 times. The last error is returned
// unchanged once attempts are exhausted or the error is not retryable.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	logger := logging.FromContext(ctx, r.logger).With("api_name", r.api)
	attempts := r.policy.MaxRetries + 1
	started := time.Now()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s rate limiter: %w", r.api, err)
			}
		}

		attemptStart := time.Now()
		err := r.attempt(ctx, fn)
		duration := time.Since(attemptStart)

		if err == nil {
			logger.Info("api call succeeded",
				"attempt", attempt,
				"max_attempts", attempts,
				"duration_ms", duration,
				"outcome", "success",
			)
			logger.Info("api call completed",
				"total_attempts", attempt,
				"total_duration_ms", time.Since(started),
			)
			return nil
		}
		lastErr = err

		retryable := isRetryable(err)
		logger.Warn("api call attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"duration_ms", duration,
			"outcome", outcome(err),
			"error", err,
			"retryable", retryable,
		)
		if !retryable || attempt == attempts {
			break
		}

		wait := r.policy.Backoff(attempt)
		logger.Info("retrying api call", "attempt", attempt, "backoff_ms", wait)
		if err := r.sleep(ctx, wait); err != nil {
			return lastErr
		}
	}

	logger.Error("api call failed",
		"total_duration_ms", time.Since(started),
		"error_type", ClassifyError(lastErr),
		"error", lastErr,
	)
	return lastErr
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()

	err := fn(attemptCtx)
	if err == nil {
		return nil
	}
	var callErr *CallError
	if errors.As(err, &callErr) {
		return err
	}
	return transportError(r.api, attemptCtx, err)
}

func outcome(err error) string {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return string(callErr.Kind)
	}
	return "error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
