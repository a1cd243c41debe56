package resilience

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"

	"github.com/sethvargo/go-retry"
)

// Policy controls how Execute retries an operation.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	IsRetryable       func(error) bool
}

// Result of an Execute call. Err is the last error when all attempts failed.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// Default policies, tuned per dependency class.
var (
	StorePolicy = Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2,
		MaxDelay:          10 * time.Second,
		IsRetryable:       domain.IsTransient,
	}
	NetworkPolicy = Policy{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          5 * time.Second,
		IsRetryable:       IsRetryableNetwork,
	}
	CriticalPolicy = Policy{
		MaxAttempts:       5,
		InitialDelay:      1500 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          30 * time.Second,
		IsRetryable: func(err error) bool {
			return !domain.IsBusiness(err) && !errors.Is(err, ErrCircuitOpen)
		},
	}
)

// backoff yields min(delay, max) and grows the delay by the multiplier.
// It stops after MaxAttempts-1 waits.
type backoff struct {
	mu      sync.Mutex
	next    time.Duration
	mult    float64
	max     time.Duration
	waits   int
	maxWait int
}

func newBackoff(p Policy) *backoff {
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &backoff{next: p.InitialDelay, mult: mult, max: p.MaxDelay, maxWait: attempts - 1}
}

func (b *backoff) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.waits >= b.maxWait {
		return 0, true
	}
	b.waits++

	d := b.next
	if b.max > 0 && d > b.max {
		d = b.max
	}
	grown := float64(b.next) * b.mult
	if grown > math.MaxInt64 {
		grown = math.MaxInt64
	}
	b.next = time.Duration(grown)
	return d, false
}

// Execute runs op until it succeeds, returns a non-retryable error, or runs
// out of attempts. Backoff sleeps are interrupted by ctx.
func Execute[T any](ctx context.Context, name string, p Policy, op func(context.Context) (T, error)) Result[T] {
	log := logger.With("component", "resilience", "operation", name)
	start := time.Now()

	var res Result[T]
	var last error

	err := retry.Do(ctx, newBackoff(p), func(ctx context.Context) error {
		res.Attempts++
		v, err := op(ctx)
		elapsed := time.Since(start)
		if err == nil {
			res.Value = v
			retryAttempts.WithLabelValues(name, "success").Inc()
			log.Debug("attempt succeeded", "attempt", res.Attempts, "elapsed", elapsed)
			return nil
		}
		last = err

		if p.IsRetryable != nil && p.IsRetryable(err) {
			retryAttempts.WithLabelValues(name, "retryable").Inc()
			log.Warn("attempt failed, will retry", "attempt", res.Attempts, "max_attempts", p.MaxAttempts, "elapsed", elapsed, "error", err)
			return retry.RetryableError(err)
		}

		retryAttempts.WithLabelValues(name, "fatal").Inc()
		log.Debug("attempt failed, not retryable", "attempt", res.Attempts, "elapsed", elapsed, "error", err)
		return err
	})

	res.Elapsed = time.Since(start)
	if err != nil {
		// retry.Do returns ctx.Err() when cancelled mid-backoff; keep the cause visible
		if last != nil && !errors.Is(err, last) {
			err = errors.Join(err, last)
		}
		res.Err = err
		if res.Attempts > 1 {
			log.Error("operation failed", "attempts", res.Attempts, "elapsed", res.Elapsed, "error", err)
		}
	}
	return res
}

// Do is Execute for operations without a value.
func Do(ctx context.Context, name string, p Policy, op func(context.Context) error) error {
	return Execute(ctx, name, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}).Err
}
