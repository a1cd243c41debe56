package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mission_rewards/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErr(t *testing.T) {
	assert.Nil(t, mapErr(nil, "x"))
	assert.ErrorIs(t, mapErr(pgx.ErrNoRows, "user"), domain.ErrNotFound)
	assert.ErrorIs(t, mapErr(fmt.Errorf("scan: %w", pgx.ErrNoRows), "user"), domain.ErrNotFound)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "23505"}, "reward"), domain.ErrConflict)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "23503"}, "reward"), domain.ErrNotFound)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "08006"}, "user"), domain.ErrTransient)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "40001"}, "user"), domain.ErrTransient)
	assert.False(t, domain.IsTransient(mapErr(&pgconn.PgError{Code: "42P01"}, "user")))
	assert.False(t, domain.IsTransient(mapErr(context.Canceled, "user")))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapErr(plain, "user"))
}

// ---- integration (skipped unless DATABASE_URL is set) ----

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	migDir := filepath.Join("..", "migrations")
	files, err := os.ReadDir(migDir)
	require.NoError(t, err)
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(migDir, f.Name()))
		require.NoError(t, err)
		_, err = db.Exec(context.Background(), string(b))
		require.NoError(t, err, "apply %s", f.Name())
	}
	return db
}

func testWallet() string {
	return fmt.Sprintf("0x%040x", time.Now().UnixNano())
}

func TestStore_MissionCompletionIsOnce(t *testing.T) {
	s := NewStore(testPool(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	wallet := testWallet()
	_, created, err := s.ConnectUser(ctx, wallet, domain.DefaultUsername(wallet), now)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = s.ConnectUser(ctx, wallet, "again", now)
	require.NoError(t, err)
	assert.False(t, created)

	m := &domain.Mission{
		ID:          "it_" + uuid.NewString()[:8],
		Title:       "integration",
		Category:    domain.CategorySpecial,
		Difficulty:  domain.DifficultyEasy,
		Requirement: domain.Requirement{Type: domain.ReqTrade, Target: 1},
		Reward:      domain.MissionReward{Points: 100, Currency: domain.CurrencyUSDT, Amount: decimal.NewFromInt(3)},
		StartDate:   now.Add(-time.Hour),
		IsActive:    true,
	}
	require.NoError(t, s.UpsertMission(ctx, m))

	mid := m.ID
	completion := func() domain.Completion {
		return domain.Completion{
			Wallet:    wallet,
			MissionID: m.ID,
			Progress:  domain.Progress{Current: 1, Required: 1, Percentage: 100},
			Snapshot:  domain.RewardSnapshot{Points: 100},
			Reward: &domain.Reward{
				ID: uuid.New(), Wallet: wallet, Source: domain.SourceMission,
				Payout:    domain.CurrencyPayout(domain.CurrencyUSDT, decimal.NewFromInt(3)),
				Status:    domain.RewardPending,
				MissionID: &mid,
				CreatedAt: now,
			},
			Delta: domain.UserDelta{Points: 100, MissionsCompleted: 1, TouchedAt: now},
			At:    now,
		}
	}

	won, err := s.CompleteMission(ctx, completion())
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.CompleteMission(ctx, completion())
	require.NoError(t, err)
	assert.False(t, won)

	u, err := s.GetUser(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.TotalPoints)
	assert.Equal(t, 1, u.MissionsCompleted)

	got, err := s.GetMission(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentCompletions)
}

func TestStore_ClaimPendingBalanceOnce(t *testing.T) {
	s := NewStore(testPool(t))
	ctx := context.Background()
	now := time.Now().UTC()

	wallet := testWallet()
	_, _, err := s.ConnectUser(ctx, wallet, "claimer", now)
	require.NoError(t, err)
	_, err = s.ApplyUserDelta(ctx, wallet, domain.UserDelta{PendingRewards: decimal.NewFromInt(50)})
	require.NoError(t, err)

	amount, err := s.ClaimPendingBalance(ctx, wallet, now)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(50)))

	_, err = s.ClaimPendingBalance(ctx, wallet, now)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestStore_BeamStateCAS(t *testing.T) {
	s := NewStore(testPool(t))
	ctx := context.Background()

	st, err := s.LoadBeamState(ctx)
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Microsecond)
	next := st.Clone()
	next.LastBeamAt = &at
	next.TotalBeams++

	ok, err := s.SaveBeamState(ctx, st.LastBeamAt, next)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SaveBeamState(ctx, st.LastBeamAt, next)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ConcurrentReplaceRanks(t *testing.T) {
	s := NewStore(testPool(t))
	ctx := context.Background()
	now := time.Now().UTC()

	base := time.Now().UnixNano()
	wallets := make([]string, 3)
	for i := range wallets {
		wallets[i] = fmt.Sprintf("0x%040x", base+int64(i))
	}
	for _, w := range wallets {
		_, _, err := s.ConnectUser(ctx, w, domain.DefaultUsername(w), now)
		require.NoError(t, err)
	}
	entries := make([]domain.LeaderboardEntry, len(wallets))
	for i, w := range wallets {
		entries[i] = domain.LeaderboardEntry{
			Wallet:       w,
			Rank:         i + 1,
			TotalPoints:  int64(300 - i*100),
			Level:        1,
			TotalRewards: decimal.Zero,
			UpdatedAt:    now,
		}
	}

	errs := make(chan error, 8)
	for i := 0; i < cap(errs); i++ {
		go func() { errs <- s.ReplaceRanks(ctx, entries) }()
	}
	for i := 0; i < cap(errs); i++ {
		assert.NoError(t, <-errs)
	}

	top, err := s.TopEntries(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, top, len(wallets))
}
