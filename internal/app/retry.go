package app

import (
	"context"
	crand "crypto/rand"
	"time"
)

// RetryPolicy is the one backoff policy used for delivery: Attempts tries in
// total, waiting BaseDelay*2^n plus up to MaxJitter between them.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxJitter time.Duration
}

// maxAttempts bounds BaseDelay<<n well below time.Duration overflow.
const maxAttempts = 16

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, BaseDelay: 1500 * time.Millisecond, MaxJitter: 500 * time.Millisecond}
}

// normalized keeps jitter below the base delay so consecutive waits always grow.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Attempts > maxAttempts {
		p.Attempts = maxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	if p.MaxJitter >= p.BaseDelay {
		p.MaxJitter = p.BaseDelay - 1
	}
	return p
}

// Backoff returns the wait before retry number n (0-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	p = p.normalized()
	n = min(max(n, 0), maxAttempts-1)
	return p.BaseDelay<<n + jitter(p.MaxJitter)
}

// Sleeper waits for d and reports false if ctx ended first.
type Sleeper func(ctx context.Context, d time.Duration) bool

// SleepCtx waits for d or returns early if ctx is done.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return &permanentError{err: err} }

// Retry calls op until it returns nil or a Permanent error, or the policy runs
// out of attempts. It reports how many attempts ran and whether the last
// error was retryable (exhausted) rather than permanent.
func Retry(ctx context.Context, p RetryPolicy, sleep Sleeper, op func(attempt int) error) (attempts int, exhausted bool, err error) {
	p = p.normalized()
	if sleep == nil {
		sleep = SleepCtx
	}
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err = op(attempt)
		if err == nil {
			return attempt, false, nil
		}
		if pe, ok := err.(*permanentError); ok {
			return attempt, false, pe.err
		}
		if attempt == p.Attempts {
			return attempt, true, err
		}
		if !sleep(ctx, p.Backoff(attempt-1)) {
			return attempt, true, err
		}
	}
	return p.Attempts, true, err
}

// jitter returns a random duration in [0, max] using crypto/rand, which is
// safe to call from concurrent goroutines.
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [2]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0
	}
	f := float64(uint16(b[0])<<8|uint16(b[1])) / 65535.0
	return time.Duration(f * float64(max))
}

// between returns a random duration in [lo, hi].
func between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + jitter(hi-lo)
}
