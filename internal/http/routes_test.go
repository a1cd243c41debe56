package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mission_rewards/internal/config"
	"mission_rewards/internal/domain"
	"mission_rewards/internal/http/handlers"
	"mission_rewards/internal/http/middleware"
	"mission_rewards/internal/service"
	"mission_rewards/internal/settlement"
	"mission_rewards/internal/store"
	"mission_rewards/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice      = "0x00000000000000000000000000000000000000a1"
	bob        = "0x00000000000000000000000000000000000000b2"
	cronSecret = "cron-test-secret"
)

type stubRunner struct{ runs int }

func (r *stubRunner) Run(ctx context.Context) service.RunReport {
	r.runs++
	return service.RunReport{
		ExecutionID: uuid.New(),
		Jobs: []service.JobResult{
			{Name: "mission_sweep", Status: service.JobSuccess},
			{Name: "beam", Status: service.JobSkippedProbability},
		},
		SuccessRate: 0.5,
	}
}

type env struct {
	router  *gin.Engine
	store   *store.MemoryStore
	ledger  *service.Ledger
	board   *service.Leaderboard
	runner  *stubRunner
	missing []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("http-test-secret", time.Hour)
	middleware.InitRedisRateLimiter(nil)

	st := store.NewMemoryStore()
	audit := service.NewAuditService(st)
	hub := ws.NewHub()
	lcfg := config.LedgerConfig{
		SettleBatch:   25,
		PointsPerUnit: map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10)},
		MissionExpiry: 30 * 24 * time.Hour,
	}
	ledger := service.NewLedger(st, settlement.NewSimulated(0, 0), lcfg, audit, hub)
	missions := service.NewMissionTracker(st, lcfg.MissionExpiry, audit, hub)
	users := service.NewUsers(st, ledger, missions, audit)
	board := service.NewLeaderboard(st, nil, hub)

	e := &env{store: st, ledger: ledger, board: board, runner: &stubRunner{}}
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{
			APILimit: 1000, APIWindow: time.Minute,
			AuthLimit: 1000, AuthWindow: time.Minute,
			ClaimLimit: 1000, ClaimWindow: time.Minute,
		},
	}

	r := gin.New()
	RegisterRoutes(r, Deps{
		Handler: handlers.NewHandler(users, missions, ledger, board, e.runner, audit, cronSecret),
		Health:  handlers.NewHealthHandler(st, func() []string { return e.missing }, "test"),
		Hub:     hub,
	}, cfg)
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) connect(t *testing.T, wallet string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/connect", "", gin.H{"wallet": wallet})
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestConnectIssuesToken(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/auth/connect", "", gin.H{"wallet": alice})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Token string             `json:"token"`
		User  domain.UserSummary `json:"user"`
	}
	decode(t, w, &resp)
	assert.Equal(t, alice, resp.User.Wallet)
	assert.Equal(t, 1, resp.User.Level)

	wallet, err := service.ParseJWT(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, alice, wallet)

	w = e.do(t, http.MethodPost, "/api/v1/auth/connect", "", gin.H{"wallet": alice})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/auth/connect", "", gin.H{"wallet": "0x123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/auth/connect", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMeRequiresToken(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/v1/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/v1/me", "garbage", nil).Code)

	token := e.connect(t, alice)
	w := e.do(t, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me domain.UserSummary
	decode(t, w, &me)
	assert.Equal(t, alice, me.Wallet)
	assert.NotNil(t, me.Badges)
}

func TestMissionFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.UpsertMission(ctx, &domain.Mission{
		ID:          "play-1",
		Title:       "Play one game",
		Category:    domain.CategoryDaily,
		Difficulty:  domain.DifficultyEasy,
		Requirement: domain.Requirement{Type: domain.ReqPlayGames, Target: 1},
		Reward:      domain.MissionReward{Points: 100, Currency: domain.CurrencyUSDT, Amount: decimal.NewFromInt(2)},
		StartDate:   time.Now().Add(-time.Hour),
		IsActive:    true,
	}))
	token := e.connect(t, alice)

	w := e.do(t, http.MethodGet, "/api/v1/missions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "play-1")

	w = e.do(t, http.MethodPost, "/api/v1/missions/play-1/participate", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/v1/missions/nope/participate", token, nil).Code)

	w = e.do(t, http.MethodPost, "/api/v1/missions/play-1/complete", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "requirement not met yet")

	w = e.do(t, http.MethodPost, "/api/v1/me/activity", token, gin.H{"kind": "game_played"})
	require.Equal(t, http.StatusOK, w.Code)
	var act struct {
		User domain.UserSummary `json:"user"`
	}
	decode(t, w, &act)
	assert.Equal(t, int64(100), act.User.TotalPoints, "activity completes the open mission")
	assert.Equal(t, 1, act.User.MissionsCompleted)

	w = e.do(t, http.MethodPost, "/api/v1/missions/play-1/complete", token, gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/me/missions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(domain.MissionCompleted))

	w = e.do(t, http.MethodPost, "/api/v1/rewards/claim", token, gin.H{"mission_id": "play-1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/rewards/claim", token, gin.H{"mission_id": "play-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/me/activity", token, gin.H{"kind": "trade", "amount": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRewardClaimLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	token := e.connect(t, alice)

	w := e.do(t, http.MethodGet, "/api/v1/rewards", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Rewards []domain.Reward      `json:"rewards"`
		Summary domain.RewardSummary `json:"summary"`
	}
	decode(t, w, &list)
	require.Len(t, list.Rewards, 1, "welcome reward")
	welcome := list.Rewards[0]
	assert.Equal(t, domain.RewardPending, welcome.Status)

	// pending rewards are not claimable yet
	w = e.do(t, http.MethodPost, "/api/v1/rewards/claim", token, gin.H{"reward_id": welcome.ID.String()})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/rewards/claim", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "nothing to claim")

	_, err := e.ledger.SettlePending(ctx, 10, 5*time.Second)
	require.NoError(t, err)

	w = e.do(t, http.MethodPost, "/api/v1/rewards/claim", token, gin.H{"reward_id": welcome.ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var claim struct {
		Claimed domain.ClaimResult `json:"claimed"`
	}
	decode(t, w, &claim)
	assert.True(t, claim.Claimed.Amount.Equal(decimal.NewFromInt(5)))

	w = e.do(t, http.MethodPost, "/api/v1/rewards/claim", token, gin.H{"reward_id": welcome.ID.String()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/rewards/claim", token, gin.H{"reward_id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/rewards/claim", token, gin.H{"reward_id": welcome.ID.String(), "mission_id": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClaimExpiredRewardIsGone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	token := e.connect(t, alice)

	past := time.Now().Add(-time.Minute)
	r, err := e.ledger.Create(ctx, service.CreateRewardInput{
		Wallet:    alice,
		Source:    domain.SourceAirdrop,
		Payout:    domain.CurrencyPayout(domain.CurrencyUSDT, decimal.NewFromInt(3)),
		ExpiresAt: &past,
	})
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/v1/rewards/claim", token, gin.H{"reward_id": r.ID.String()})
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestLeaderboard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.PutUser(&domain.User{Wallet: alice, Username: "alice", TotalPoints: 500, Level: 2})
	e.store.PutUser(&domain.User{Wallet: bob, Username: "bob", TotalPoints: 900, Level: 3})
	_, err := e.board.Recompute(ctx)
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/api/v1/leaderboard?limit=10&wallet="+alice, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view domain.LeaderboardView
	decode(t, w, &view)
	require.Len(t, view.Entries, 2)
	assert.Equal(t, bob, view.Entries[0].Wallet)
	require.NotNil(t, view.UserRank)
	assert.Equal(t, 2, view.UserRank.Rank)
	assert.Equal(t, 2, view.Stats.TotalUsers)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/leaderboard?limit=abc", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/leaderboard?wallet=zzz", "", nil).Code)
}

func TestAdminOrchestratorRun(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/admin/orchestrator/run", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orchestrator/run", nil)
	req.Header.Set("X-Cron-Secret", cronSecret)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		PerJob      map[string]string `json:"per_job_status"`
		SuccessRate float64           `json:"success_rate"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "success", resp.PerJob["mission_sweep"])
	assert.Equal(t, "skipped_probability", resp.PerJob["beam"])
	assert.InDelta(t, 0.5, resp.SuccessRate, 1e-9)
	assert.Equal(t, 1, e.runner.runs)
}

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/readyz", "", nil).Code)

	e.missing = []string{"JWT_SECRET"}
	w := e.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "JWT_SECRET")

	w = e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")
}
