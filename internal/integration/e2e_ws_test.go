package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mission_rewards/internal/config"
	"mission_rewards/internal/domain"
	httpserver "mission_rewards/internal/http"
	"mission_rewards/internal/http/handlers"
	"mission_rewards/internal/repository"
	"mission_rewards/internal/resilience"
	"mission_rewards/internal/service"
	"mission_rewards/internal/settlement"
	"mission_rewards/internal/store"
	"mission_rewards/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyMigrationsToPool(t *testing.T, dbp *pgxpool.Pool) {
	t.Helper()
	migDir := filepath.Join("..", "migrations")
	files, err := os.ReadDir(migDir)
	require.NoError(t, err)
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(migDir, f.Name()))
		require.NoError(t, err)
		_, err = dbp.Exec(context.Background(), string(b))
		require.NoError(t, err, "apply migration %s", f.Name())
	}
}

func randomWallet() string {
	return "0x" + strings.ReplaceAll(uuid.NewString(), "-", "") + "00000000"
}

// Full stack against Postgres: HTTP connect, websocket session, activity that
// completes a mission, and the pushed mission_completed event.
func TestE2E_MissionCompletionPushesEvent(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	dbp, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer dbp.Close()
	applyMigrationsToPool(t, dbp)

	breaker := resilience.NewBreaker(resilience.BreakerConfig{Name: "store", Threshold: 5, Cooldown: time.Second})
	st := store.NewGuarded(repository.NewStore(dbp), resilience.NewGuard("store", breaker, resilience.StorePolicy))

	service.InitJWT("e2e-secret", time.Hour)
	hub := ws.NewHub()
	audit := service.NewAuditService(st)
	lcfg := config.LedgerConfig{
		SettleBatch:   25,
		PointsPerUnit: map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10)},
		MissionExpiry: 30 * 24 * time.Hour,
	}
	ledger := service.NewLedger(st, settlement.NewSimulated(0, 0), lcfg, audit, hub)
	missions := service.NewMissionTracker(st, lcfg.MissionExpiry, audit, hub)
	users := service.NewUsers(st, ledger, missions, audit)
	board := service.NewLeaderboard(st, nil, hub)

	missionID := "e2e-play-" + uuid.NewString()[:8]
	require.NoError(t, st.UpsertMission(ctx, &domain.Mission{
		ID:          missionID,
		Title:       "Play one game",
		Category:    domain.CategoryDaily,
		Difficulty:  domain.DifficultyEasy,
		Requirement: domain.Requirement{Type: domain.ReqPlayGames, Target: 1},
		Reward:      domain.MissionReward{Points: 50, Currency: domain.CurrencyUSDT, Amount: decimal.NewFromInt(1)},
		StartDate:   time.Now().Add(-time.Hour),
		IsActive:    true,
	}))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := &config.Config{RateLimit: config.RateLimitConfig{
		APILimit: 100, APIWindow: time.Minute,
		AuthLimit: 100, AuthWindow: time.Minute,
		ClaimLimit: 100, ClaimWindow: time.Minute,
	}}
	httpserver.RegisterRoutes(r, httpserver.Deps{
		Handler: handlers.NewHandler(users, missions, ledger, board, service.NewOrchestrator(time.Second, nil, audit), audit, ""),
		Health:  handlers.NewHealthHandler(st, nil, "e2e"),
		Hub:     hub,
	}, cfg)
	ts := httptest.NewServer(r)
	defer ts.Close()

	post := func(path, token string, body interface{}) *http.Response {
		b, _ := json.Marshal(body)
		req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(b))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return res
	}

	wallet := randomWallet()
	res := post("/api/v1/auth/connect", "", gin.H{"wallet": wallet})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&auth))
	res.Body.Close()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=" + auth.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	events := make(chan ws.Message, 16)
	go func() {
		defer close(events)
		for {
			var m ws.Message
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			events <- m
		}
	}()

	waitFor := func(typ string, tmo time.Duration) bool {
		deadline := time.After(tmo)
		for {
			select {
			case m, ok := <-events:
				if !ok {
					return false
				}
				if m.Type == typ {
					return true
				}
			case <-deadline:
				return false
			}
		}
	}
	require.True(t, waitFor(ws.MsgReady, 2*time.Second), "ready handshake")

	res = post("/api/v1/missions/"+missionID+"/participate", auth.Token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = post("/api/v1/me/activity", auth.Token, gin.H{"kind": "game_played"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	assert.True(t, waitFor(domain.EventMissionCompleted, 5*time.Second), "mission_completed pushed over ws")

	u, err := st.GetUser(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.TotalPoints)
	assert.Equal(t, 1, u.MissionsCompleted)
}
