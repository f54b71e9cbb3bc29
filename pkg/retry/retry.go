// Package retry provides exponential backoff with jitter.
// casino-hub retries only at startup (database connect, webhook registration);
// request paths fail fast and let the platform redeliver.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError stops a retry loop immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy describes one backoff schedule.
type Policy struct {
	// Attempts includes the first call.
	Attempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter spreads each delay by ±Jitter of itself (0.2 = ±20%).
	Jitter float64

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
}

// Delay returns the wait after the given failed attempt (1-based), before jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter * (rand.Float64()*2 - 1)
	if out := time.Duration(float64(d) + spread); out > 0 {
		return out
	}
	return 0
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier runs an operation under a Policy.
type Retrier struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier. Zero policy fields take the defaults.
func New(policy Policy) *Retrier {
	defaults := DefaultPolicy()
	if policy.Attempts <= 0 {
		policy.Attempts = defaults.Attempts
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = defaults.InitialDelay
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = max(defaults.MaxDelay, policy.InitialDelay)
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = defaults.Multiplier
	}
	return &Retrier{policy: policy, sleep: sleepCtx}
}

// Do calls op until it succeeds, returns a Permanent error, the attempts run
// out or ctx is done. The last operation error is returned in preference to
// the context error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return firstNonNil(lastErr, err)
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var p *PermanentError
		if errors.As(err, &p) {
			return p.Err
		}
		lastErr = err

		if attempt == r.policy.Attempts {
			break
		}
		delay := r.policy.jittered(r.policy.Delay(attempt))
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Startup presets
// ─────────────────────────────────────────────────────────────────────────────

// DatabaseConnectRetrier retries the initial database connection.
// Managed Postgres instances often need several seconds to accept connections
// after a cold deploy.
func DatabaseConnectRetrier(attempts int, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(Policy{
		Attempts:     attempts,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
		OnRetry:      onRetry,
	})
}

// WebhookRetrier retries webhook registration with the Bot API.
func WebhookRetrier(onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(Policy{
		Attempts:     4,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
		OnRetry:      onRetry,
	})
}
