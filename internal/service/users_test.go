package service

import (
	"context"
	"strings"
	"testing"

	"mission_rewards/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUsers(f *fixture) *Users {
	u := NewUsers(f.store, f.ledger, f.missions, f.audit)
	u.now = fixedClock(t0)
	return u
}

func TestConnectCreatesOnce(t *testing.T) {
	f := newFixture(t, nil)
	users := newTestUsers(f)
	ctx := context.Background()

	u, created, err := users.Connect(ctx, "  0x00000000000000000000000000000000000000A1 ", "", "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, alice, u.Wallet)
	assert.Equal(t, "Explorer_000000", u.Username)
	assert.Equal(t, 1, u.Level)

	_, created, err = users.Connect(ctx, alice, "", "")
	require.NoError(t, err)
	assert.False(t, created)

	rewards, err := f.store.ListRewards(ctx, alice, domain.RewardFilter{})
	require.NoError(t, err)
	require.Len(t, rewards, 1, "welcome reward is created only on the first connect")
	assert.Equal(t, domain.SourceSpecial, rewards[0].Source)

	var connects int
	for _, a := range f.store.AuditLogs() {
		if a.Action == domain.AuditActionConnect {
			connects++
			assert.Equal(t, domain.AuditCategoryAuth, a.Category)
		}
	}
	assert.Equal(t, 2, connects)
}

func TestConnectRejectsMalformedWallet(t *testing.T) {
	f := newFixture(t, nil)
	users := newTestUsers(f)

	for _, w := range []string{"", "0x123", strings.Repeat("z", 42)} {
		_, _, err := users.Connect(context.Background(), w, "", "")
		assert.ErrorIs(t, err, domain.ErrValidation, w)
	}
}

func TestConnectAppliesReferral(t *testing.T) {
	f := newFixture(t, nil)
	users := newTestUsers(f)
	ctx := context.Background()

	_, _, err := users.Connect(ctx, bob, "", "")
	require.NoError(t, err)

	_, _, err = users.Connect(ctx, alice, bob, "")
	require.NoError(t, err)

	referrer := f.getUser(t, bob)
	assert.Equal(t, 1, referrer.Referrals)
	assert.Equal(t, int64(referralPoints), referrer.TotalPoints)

	invited := f.getUser(t, alice)
	require.NotNil(t, invited.ReferredBy)
	assert.Equal(t, bob, *invited.ReferredBy)

	rewards, err := f.store.ListRewards(ctx, bob, domain.RewardFilter{})
	require.NoError(t, err)
	var referral int
	for _, r := range rewards {
		if r.Source == domain.SourceReferral {
			referral++
			assert.True(t, r.Payout.Amount.Equal(referralAmount))
		}
	}
	assert.Equal(t, 1, referral)

	// self referral and unknown referrers never fail the connect
	_, created, err := users.Connect(ctx, carol, carol, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, f.getUser(t, carol).ReferredBy)
}

func TestRecordActivity(t *testing.T) {
	f := newFixture(t, nil)
	users := newTestUsers(f)
	ctx := context.Background()
	f.user(t, domain.User{Wallet: alice})

	u, err := users.RecordActivity(ctx, alice, ActivityInput{Kind: ActivityGameWon})
	require.NoError(t, err)
	assert.Equal(t, 1, u.GamesPlayed)
	assert.Equal(t, 1, u.GamesWon)
	assert.Equal(t, t0, u.LastActive)

	u, err = users.RecordActivity(ctx, alice, ActivityInput{Kind: ActivityTrade, Amount: decimal.RequireFromString("12.5")})
	require.NoError(t, err)
	assert.Equal(t, 1, u.TradeCount)
	assert.True(t, u.TradingVolume.Equal(decimal.RequireFromString("12.5")))

	u, err = users.RecordActivity(ctx, alice, ActivityInput{Kind: ActivitySocial, TwitterHandle: "ufo"})
	require.NoError(t, err)
	assert.Equal(t, "ufo", u.TwitterHandle)

	_, err = users.RecordActivity(ctx, alice, ActivityInput{Kind: ActivityTrade})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = users.RecordActivity(ctx, alice, ActivityInput{Kind: "dance"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = users.RecordActivity(ctx, bob, ActivityInput{Kind: ActivityGamePlayed})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordActivityCompletesOpenMissions(t *testing.T) {
	f := newFixture(t, nil)
	users := newTestUsers(f)
	ctx := context.Background()
	f.user(t, domain.User{Wallet: alice, GamesPlayed: 1})
	f.mission(t, playGames("play-2", 2, 75, 0))

	_, err := f.missions.Participate(ctx, alice, "play-2")
	require.NoError(t, err)

	u, err := users.RecordActivity(ctx, alice, ActivityInput{Kind: ActivityGamePlayed})
	require.NoError(t, err)
	assert.Equal(t, 1, u.MissionsCompleted)
	assert.Equal(t, int64(75), u.TotalPoints)

	um, err := f.store.GetUserMission(ctx, alice, "play-2")
	require.NoError(t, err)
	assert.Equal(t, domain.MissionCompleted, um.Status)
}
