package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mission_rewards/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: threshold, Cooldown: cooldown})
	b.now = clock.Now
	return b, clock
}

var errDown = errors.New("dependency down")

func failing(ctx context.Context) error { return errDown }
func ok(ctx context.Context) error      { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Execute(ctx, failing, nil), errDown)
		assert.Equal(t, StateClosed, b.State())
	}
	assert.ErrorIs(t, b.Execute(ctx, failing, nil), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(ctx context.Context) error { called = true; return nil }, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "dependency must not be called while open")
}

func TestBreakerServesFallbackWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	ctx := context.Background()
	_ = b.Execute(ctx, failing, nil)

	var seen error
	err := b.Execute(ctx, ok, func(ctx context.Context, err error) error {
		seen = err
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, seen, ErrCircuitOpen)
}

func TestBreakerHalfOpenCloses(t *testing.T) {
	b, clock := newTestBreaker(2, 30*time.Second)
	ctx := context.Background()
	_ = b.Execute(ctx, failing, nil)
	_ = b.Execute(ctx, failing, nil)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(31 * time.Second)
	require.NoError(t, b.Execute(ctx, ok, nil))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2, 30*time.Second)
	ctx := context.Background()
	_ = b.Execute(ctx, failing, nil)
	_ = b.Execute(ctx, failing, nil)

	clock.Advance(31 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, failing, nil), errDown)
	assert.Equal(t, StateOpen, b.State())

	// cooldown restarted from the trial failure
	clock.Advance(10 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, ok, nil), ErrCircuitOpen)
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	b, clock := newTestBreaker(1, time.Second)
	ctx := context.Background()
	_ = b.Execute(ctx, failing, nil)
	clock.Advance(2 * time.Second)

	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Execute(ctx, func(ctx context.Context) error {
			calls.Add(1)
			close(entered)
			<-release
			return nil
		}, nil)
	}()
	<-entered

	for i := 0; i < 5; i++ {
		err := b.Execute(ctx, func(ctx context.Context) error { calls.Add(1); return nil }, nil)
		assert.ErrorIs(t, err, ErrCircuitOpen)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresBusinessErrors(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = b.Execute(ctx, func(ctx context.Context) error { return domain.NotFound("user") }, nil)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestGuardDoesNotRetryOpenCircuit(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	g := NewGuard("store", b, fastPolicy(5))
	ctx := context.Background()

	calls := 0
	err := g.Do(ctx, "load", func(ctx context.Context) error {
		calls++
		return domain.Transient(errDown)
	})

	// first attempt trips the breaker, second is rejected and not retried
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestCallReturnsValue(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	g := NewGuard("store", b, fastPolicy(3))

	n := 0
	v, err := Call(context.Background(), g, "count", func(ctx context.Context) (int, error) {
		n++
		if n == 1 {
			return 0, domain.Transient(errDown)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
