package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"
)

var ErrCircuitOpen = errors.New("circuit open")

// CircuitOpenError is returned while a breaker refuses calls.
type CircuitOpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %q open until %s", e.Name, e.RetryAt.Format(time.RFC3339))
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

type BreakerConfig struct {
	Name      string
	Threshold int
	Cooldown  time.Duration
	// Trips decides which errors count as dependency failures.
	// Defaults to everything that is not a business rejection.
	Trips func(error) bool
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time
	trial       bool
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.Trips == nil {
		cfg.Trips = func(err error) bool { return !domain.IsBusiness(err) }
	}
	b := &Breaker{cfg: cfg, now: time.Now}
	breakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))
	return b
}

func (b *Breaker) Name() string { return b.cfg.Name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Execute calls op unless the circuit is open. While open, fallback (if any)
// is served instead and receives the CircuitOpenError.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error, fallback func(context.Context, error) error) error {
	trial, err := b.admit()
	if err != nil {
		breakerRejected.WithLabelValues(b.cfg.Name).Inc()
		if fallback != nil {
			return fallback(ctx, err)
		}
		return err
	}

	opErr := op(ctx)
	b.record(opErr, trial)
	return opErr
}

func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		retryAt := b.openedAt.Add(b.cfg.Cooldown)
		if b.now().Before(retryAt) {
			return false, &CircuitOpenError{Name: b.cfg.Name, RetryAt: retryAt}
		}
		b.setState(StateHalfOpen)
		b.trial = true
		return true, nil
	case StateHalfOpen:
		// only one trial call at a time
		if b.trial {
			return false, &CircuitOpenError{Name: b.cfg.Name, RetryAt: b.now()}
		}
		b.trial = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(err error, trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trial = false
	}

	if err == nil || !b.cfg.Trips(err) {
		if b.state != StateClosed {
			logger.Info("circuit closed", "breaker", b.cfg.Name)
		}
		b.failures = 0
		b.setState(StateClosed)
		return
	}

	b.failures++
	b.lastFailure = b.now()

	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		if b.state != StateOpen {
			logger.Warn("circuit opened", "breaker", b.cfg.Name, "failures", b.failures, "cooldown", b.cfg.Cooldown, "error", err)
		}
		b.openedAt = b.lastFailure
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(s State) {
	b.state = s
	breakerState.WithLabelValues(b.cfg.Name).Set(float64(s))
}

// Guard runs operations through a breaker and a retry policy. Every retry
// attempt passes the breaker; an open circuit is never retried.
type Guard struct {
	Name    string
	Breaker *Breaker
	Policy  Policy
}

func NewGuard(name string, b *Breaker, p Policy) *Guard {
	inner := p.IsRetryable
	p.IsRetryable = func(err error) bool {
		if errors.Is(err, ErrCircuitOpen) {
			return false
		}
		return inner != nil && inner(err)
	}
	return &Guard{Name: name, Breaker: b, Policy: p}
}

func (g *Guard) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	return Do(ctx, g.Name+"."+op, g.Policy, func(ctx context.Context) error {
		return g.Breaker.Execute(ctx, fn, nil)
	})
}

// Call is Guard.Do for operations returning a value.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	res := Execute(ctx, g.Name+"."+op, g.Policy, func(ctx context.Context) (T, error) {
		var v T
		err := g.Breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			v, err = fn(ctx)
			return err
		}, nil)
		return v, err
	})
	return res.Value, res.Err
}
