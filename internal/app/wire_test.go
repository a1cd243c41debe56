package app

import (
	"context"
	"testing"
	"time"

	"mission_rewards/internal/config"
	"mission_rewards/internal/domain"
	"mission_rewards/internal/settlement"
	"mission_rewards/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://unused")
	t.Setenv("JWT_SECRET", "wire-test")
	t.Setenv("ORCHESTRATOR_BUDGET", "5s")
	t.Setenv("ORCHESTRATOR_MISSION_RESERVE", "100ms")
	t.Setenv("ORCHESTRATOR_SETTLE_RESERVE", "100ms")
	t.Setenv("ORCHESTRATOR_BEAM_RESERVE", "100ms")
	t.Setenv("ORCHESTRATOR_RANK_RESERVE", "100ms")
	t.Setenv("MISSION_SWEEP_BUDGET", "1s")
	t.Setenv("SETTLE_BUDGET", "1s")
	return config.Load()
}

func TestBuildRunsPipelineOnMemoryStore(t *testing.T) {
	cfg := testConfig(t)
	svc := Build(cfg, store.NewMemoryStore(), nil, nil)
	ctx := context.Background()

	u, created, err := svc.Users.Connect(ctx, "0x00000000000000000000000000000000000000a1", "", "")
	require.NoError(t, err)
	require.True(t, created)

	report := svc.Orchestrator.Run(ctx)
	require.Len(t, report.Jobs, 4)
	names := make([]string, 0, 4)
	for _, j := range report.Jobs {
		names = append(names, j.Name)
		assert.NotEqual(t, "failed", string(j.Status), j.Name)
	}
	assert.Equal(t, []string{"mission_sweep", "reward_settlement", "beam", "leaderboard_recompute"}, names)

	// the welcome reward was settled by the run
	summary, err := svc.Ledger.Summary(ctx, u.Wallet)
	require.NoError(t, err)
	assert.True(t, summary.Pending.IsPositive())

	rewards, err := svc.Ledger.ListRewards(ctx, u.Wallet, nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, rewards)
	assert.Equal(t, domain.RewardCompleted, rewards[0].Status)
}

func TestNewSettlerByMode(t *testing.T) {
	rc := config.ResilienceConfig{NetworkThreshold: 2, NetworkCooldown: time.Second}

	_, ok := newSettler(config.SettlementConfig{Mode: "simulated"}, rc).(*settlement.Simulated)
	assert.True(t, ok)

	s := newSettler(config.SettlementConfig{Mode: "http", URL: "http://127.0.0.1:1", Timeout: time.Second}, rc)
	client, ok := s.(*settlement.HTTPClient)
	require.True(t, ok)
	assert.NotNil(t, client.Fallback)
}
