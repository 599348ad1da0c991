// Package scheduler gates every network operation the sync engine makes
// against the hub. It enforces a per-second token bucket, a separate
// hourly ceiling, and a concurrency semaphore, and it absorbs transient
// failures with bounded exponential backoff. Callers receive either the
// operation's result or a categorized error; the scheduler never panics
// or aborts for flow control.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/logging"
)

// Operation is one opaque unit of network work, typically a closure over
// an HTTP call that writes its result into captured variables.
type Operation func(ctx context.Context) error

// Config holds the scheduler's rate and retry parameters.
type Config struct {
	RequestsPerSecond int
	RequestsPerHour   int
	MaxConcurrent     int
	RequestTimeout    time.Duration
	Retry             RetryPolicy
}

// Scheduler dispatches operations under rate and concurrency limits.
// Each run constructs its own instance; the rate counters are the only
// shared mutable state in the sync engine and live behind the mutex here,
// never in package-level variables.
type Scheduler struct {
	cfg Config
	sem chan struct{} // concurrency semaphore, FIFO under contention

	mu        sync.Mutex
	tokens    float64   // per-second bucket, continuously refilled
	refilled  time.Time // last refill instant, zero until the first grant
	hourStart time.Time
	hourCount int
	total     int64

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a scheduler with the given limits.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
		now: time.Now,
	}
}

// Do executes the operation under the scheduler's limits, retrying
// transient failures. It blocks until a concurrency slot and a rate
// token are available, or until ctx is canceled.
func (s *Scheduler) Do(ctx context.Context, op Operation) error {
	if ctx.Err() != nil {
		return errors.ErrCanceled
	}
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.ErrCanceled
	}
	defer func() { <-s.sem }()

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := s.waitToken(ctx); err != nil {
			return err
		}

		lastErr = s.run(ctx, op)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.ErrCanceled
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt >= s.cfg.Retry.MaxRetries {
			break
		}

		delay := s.cfg.Retry.Delay(attempt + 1)
		logging.Ctx(ctx).Debug().
			Err(lastErr).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying hub operation")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.ErrCanceled
		}
	}

	return &ExhaustedError{Attempts: s.cfg.Retry.MaxRetries + 1, Err: lastErr}
}

// ExhaustedError is returned when every retry of an operation failed.
// It keeps the category of the last failure so the caller can tell
// throttling from plain network trouble.
type ExhaustedError struct {
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ExhaustedError) Unwrap() error { return e.Err }

// AttemptCount returns how many attempts were made before giving up.
func (e *ExhaustedError) AttemptCount() int { return e.Attempts }

// Is implements errors.Is support
func (e *ExhaustedError) Is(target error) bool {
	return target == errors.ErrRetriesExhausted
}

// Category implements the failure taxonomy.
func (e *ExhaustedError) Category() errors.Category {
	if c := errors.Categorize(e.Err); c == errors.CategoryRateLimit {
		return c
	}
	return errors.CategoryNetwork
}

// run executes one attempt under the per-request timeout.
func (s *Scheduler) run(ctx context.Context, op Operation) error {
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	return op(ctx)
}

// waitToken blocks until both the per-second bucket and hourly ceiling
// admit another request, then records it. The bucket refills continuously
// at the configured rate and is capped at one token, so grants stay
// evenly paced and no one-second span, however placed, ever admits more
// than the per-second budget. Counter updates happen under the mutex so
// concurrent callers never overshoot.
func (s *Scheduler) waitToken(ctx context.Context) error {
	rps := float64(s.cfg.RequestsPerSecond)
	for {
		s.mu.Lock()
		now := s.now()

		if s.refilled.IsZero() {
			s.refilled = now
			s.tokens = 1
		}
		s.tokens += now.Sub(s.refilled).Seconds() * rps
		if s.tokens > 1 {
			s.tokens = 1
		}
		s.refilled = now

		if now.Sub(s.hourStart) >= time.Hour {
			s.hourStart = now
			s.hourCount = 0
		}

		if s.tokens >= 1 && s.hourCount < s.cfg.RequestsPerHour {
			s.tokens--
			s.hourCount++
			s.total++
			s.mu.Unlock()
			return nil
		}

		// Sleep until whichever limit is blocking us admits a request.
		var wait time.Duration
		if s.tokens < 1 {
			wait = time.Duration((1 - s.tokens) / rps * float64(time.Second))
		} else {
			wait = time.Hour - now.Sub(s.hourStart)
		}
		s.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return errors.ErrCanceled
		}
	}
}

// Total returns the number of requests dispatched so far.
func (s *Scheduler) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// retryable reports whether the scheduler should retry the error.
// Errors that know their own retryability decide; otherwise anything
// transient under the failure taxonomy is retried.
func retryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return errors.Categorize(err).Transient()
}
