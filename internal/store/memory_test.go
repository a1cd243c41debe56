package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/resilience"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "0x00000000000000000000000000000000000000aa"

func seedUser(t *testing.T, s *MemoryStore, pending string) {
	t.Helper()
	s.PutUser(&domain.User{Wallet: wallet, Level: 1, PendingRewards: decimal.RequireFromString(pending)})
}

func TestClaimPendingBalanceConcurrent(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "50")
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	amounts := make([]decimal.Decimal, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amounts[i], results[i] = s.ClaimPendingBalance(ctx, wallet, time.Now())
		}(i)
	}
	wg.Wait()

	okCount, nothing := 0, 0
	for i, err := range results {
		switch {
		case err == nil:
			okCount++
			assert.True(t, amounts[i].Equal(decimal.NewFromInt(50)))
		case errors.Is(err, domain.ErrNothingToClaim):
			nothing++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, nothing)

	u, err := s.GetUser(ctx, wallet)
	require.NoError(t, err)
	assert.True(t, u.PendingRewards.IsZero())
	assert.True(t, u.ClaimedRewards.Equal(decimal.NewFromInt(50)))
}

func TestTransitionRewardIsCompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	r := &domain.Reward{ID: uuid.New(), Wallet: wallet, Status: domain.RewardPending, Payout: domain.PointsPayout(10)}
	require.NoError(t, s.CreateReward(ctx, r))

	ok, err := s.TransitionReward(ctx, r.ID, domain.RewardPending, domain.RewardProcessing, domain.RewardUpdate{At: time.Now()})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionReward(ctx, r.ID, domain.RewardPending, domain.RewardProcessing, domain.RewardUpdate{At: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok, "second CAS from pending must lose")

	_, err = s.TransitionReward(ctx, r.ID, domain.RewardCompleted, domain.RewardPending, domain.RewardUpdate{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCompleteMissionOnlyOnce(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "0")
	ctx := context.Background()
	require.NoError(t, s.UpsertMission(ctx, &domain.Mission{ID: "m1", IsActive: true}))

	c := domain.Completion{
		Wallet:    wallet,
		MissionID: "m1",
		Progress:  domain.Progress{Current: 1, Required: 1, Percentage: 100},
		Delta:     domain.UserDelta{Points: 100, MissionsCompleted: 1},
		At:        time.Now(),
	}
	won, err := s.CompleteMission(ctx, c)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.CompleteMission(ctx, c)
	require.NoError(t, err)
	assert.False(t, won)

	u, _ := s.GetUser(ctx, wallet)
	assert.Equal(t, int64(100), u.TotalPoints)
	assert.Equal(t, 1, u.MissionsCompleted)

	m, _ := s.GetMission(ctx, "m1")
	assert.Equal(t, 1, m.CurrentCompletions)
}

func TestSaveProgressIsMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertMission(ctx, &domain.Mission{ID: "m1", IsActive: true}))
	_, created, err := s.Participate(ctx, &domain.UserMission{Wallet: wallet, MissionID: "m1", Status: domain.MissionInProgress})
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, s.SaveProgress(ctx, wallet, "m1", domain.Progress{Current: 3, Required: 5, Percentage: 60}, time.Now()))
	require.NoError(t, s.SaveProgress(ctx, wallet, "m1", domain.Progress{Current: 1, Required: 5, Percentage: 20}, time.Now()))

	um, err := s.GetUserMission(ctx, wallet, "m1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, um.Progress.Percentage)
}

func TestParticipateRespectsCap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertMission(ctx, &domain.Mission{ID: "capped", IsActive: true, MaxCompletions: 1}))
	seedUser(t, s, "0")

	_, err := s.CompleteMission(ctx, domain.Completion{Wallet: wallet, MissionID: "capped", At: time.Now()})
	require.NoError(t, err)

	_, _, err = s.Participate(ctx, &domain.UserMission{Wallet: "0xother", MissionID: "capped"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSaveBeamStateCAS(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	st, err := s.LoadBeamState(ctx)
	require.NoError(t, err)
	next := st.Clone()
	next.LastBeamAt = &now
	next.TotalBeams = 1

	ok, err := s.SaveBeamState(ctx, st.LastBeamAt, next)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SaveBeamState(ctx, st.LastBeamAt, next)
	require.NoError(t, err)
	assert.False(t, ok, "stale previous timestamp must be rejected")
}

func TestRanksReplaceClearsDropped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutUser(&domain.User{Wallet: "0xa", Rank: 1})
	s.PutUser(&domain.User{Wallet: "0xb", Rank: 2})

	require.NoError(t, s.ReplaceRanks(ctx, []domain.LeaderboardEntry{{Wallet: "0xb", Rank: 1}}))

	a, _ := s.GetUser(ctx, "0xa")
	b, _ := s.GetUser(ctx, "0xb")
	assert.Equal(t, 0, a.Rank)
	assert.Equal(t, 1, b.Rank)
}

type flakyStore struct {
	*MemoryStore
	fails int
	calls int
}

func (f *flakyStore) GetUser(ctx context.Context, w string) (*domain.User, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, domain.Transient(errors.New("conn reset"))
	}
	return f.MemoryStore.GetUser(ctx, w)
}

func TestGuardedRetriesTransientFailures(t *testing.T) {
	mem := NewMemoryStore()
	seedUser(t, mem, "1")
	flaky := &flakyStore{MemoryStore: mem, fails: 2}

	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "store_test", Threshold: 5, Cooldown: time.Second})
	g := resilience.NewGuard("store", b, resilience.Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          10 * time.Millisecond,
		IsRetryable:       domain.IsTransient,
	})
	s := NewGuarded(flaky, g)

	u, err := s.GetUser(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, wallet, u.Wallet)
	assert.Equal(t, 3, flaky.calls)

	_, err = s.GetUser(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 4, flaky.calls, "not found must not be retried")
}
