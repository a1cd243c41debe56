// Package settlement delivers rewards. The token a Settler returns is an
// opaque confirmation stored on the reward; nothing verifies it on-chain.
package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"mission_rewards/internal/domain"

	"github.com/google/uuid"
)

// Settler settles one reward and returns a confirmation token.
type Settler interface {
	Settle(ctx context.Context, r *domain.Reward) (string, error)
}

// Simulated confirms every reward locally. FailureRate > 0 makes a share of
// settlements fail, which is handy in staging to exercise the failed path.
type Simulated struct {
	FailureRate float64
	Latency     time.Duration

	mu  sync.Mutex
	rnd *mrand.Rand
}

func NewSimulated(failureRate float64, latency time.Duration) *Simulated {
	return &Simulated{
		FailureRate: failureRate,
		Latency:     latency,
		rnd:         mrand.New(mrand.NewSource(time.Now().UnixNano())),
	}
}

var ErrSimulatedFailure = errors.New("simulated settlement failure")

func (s *Simulated) Settle(ctx context.Context, r *domain.Reward) (string, error) {
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	if s.FailureRate > 0 {
		s.mu.Lock()
		roll := s.rnd.Float64()
		s.mu.Unlock()
		if roll < s.FailureRate {
			return "", ErrSimulatedFailure
		}
	}

	switch r.Payout.Kind {
	case domain.PayoutCurrency:
		return "0x" + randomHex(32), nil
	case domain.PayoutPoints, domain.PayoutBadge:
		// off-chain payouts only need a receipt id
		return "local:" + uuid.NewString(), nil
	}
	return "", fmt.Errorf("unsupported payout kind %q", r.Payout.Kind)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}
