package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/resilience"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func currencyReward() *domain.Reward {
	return &domain.Reward{
		ID:     uuid.New(),
		Wallet: "0x00000000000000000000000000000000000000aa",
		Payout: domain.CurrencyPayout(domain.CurrencyUSDT, decimal.RequireFromString("2.5")),
		Status: domain.RewardProcessing,
	}
}

func testGuard(name string) *resilience.Guard {
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: name, Threshold: 5, Cooldown: time.Minute})
	return resilience.NewGuard("network", b, resilience.Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          5 * time.Millisecond,
		IsRetryable:       resilience.IsRetryableNetwork,
	})
}

func TestSimulatedSettle(t *testing.T) {
	s := NewSimulated(0, 0)

	tok, err := s.Settle(context.Background(), currencyReward())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok, "0x"))
	assert.Len(t, tok, 66)

	tok, err = s.Settle(context.Background(), &domain.Reward{Payout: domain.PointsPayout(5)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok, "local:"))
}

func TestSimulatedAlwaysFails(t *testing.T) {
	s := NewSimulated(1, 0)
	_, err := s.Settle(context.Background(), currencyReward())
	assert.ErrorIs(t, err, ErrSimulatedFailure)
}

func TestHTTPClientSettles(t *testing.T) {
	var got payoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payouts", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(payoutResponse{TxHash: "0xfeed", Status: "sent"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", time.Second, testGuard("net_ok"))
	r := currencyReward()
	tok, err := c.Settle(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", tok)
	assert.Equal(t, r.ID.String(), got.IdempotencyKey)
	assert.Equal(t, "USDT", got.Currency)
}

func TestHTTPClientRetries5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(payoutResponse{TxHash: "0xbeef"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second, testGuard("net_5xx"))
	tok, err := c.Settle(context.Background(), currencyReward())
	require.NoError(t, err)
	assert.Equal(t, "0xbeef", tok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second, testGuard("net_4xx"))
	_, err := c.Settle(context.Background(), currencyReward())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClientSettlesPointsLocally(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "", time.Second, testGuard("net_local"))
	tok, err := c.Settle(context.Background(), &domain.Reward{ID: uuid.New(), Payout: domain.BadgePayout("gold")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok, "local:"))
}
