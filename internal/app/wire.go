// Package app wires the store, services and jobs from configuration. Both the
// server and the one-shot CLIs build their object graph here.
package app

import (
	"mission_rewards/internal/cache"
	"mission_rewards/internal/config"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/resilience"
	"mission_rewards/internal/service"
	"mission_rewards/internal/settlement"
	"mission_rewards/internal/store"

	redis "github.com/redis/go-redis/v9"
)

type Services struct {
	Store        store.Store
	Audit        *service.AuditService
	Ledger       *service.Ledger
	Missions     *service.MissionTracker
	Users        *service.Users
	Leaderboard  *service.Leaderboard
	Beam         *service.Beam
	Orchestrator *service.Orchestrator
}

// Build wraps raw in the store guard and assembles the services. rdb may be
// nil; notify may be nil.
func Build(cfg *config.Config, raw store.Store, rdb *redis.Client, notify service.Notifier) *Services {
	storeBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:      "store",
		Threshold: cfg.Resilience.StoreThreshold,
		Cooldown:  cfg.Resilience.StoreCooldown,
	})
	st := store.NewGuarded(raw, resilience.NewGuard("store", storeBreaker, resilience.StorePolicy))

	audit := service.NewAuditService(st)
	ledger := service.NewLedger(st, newSettler(cfg.Settlement, cfg.Resilience), cfg.Ledger, audit, notify)
	missions := service.NewMissionTracker(st, cfg.Ledger.MissionExpiry, audit, notify)
	users := service.NewUsers(st, ledger, missions, audit)

	// a nil *LeaderboardCache in the interface would not compare equal to nil
	var lbCache service.LeaderboardCache
	if rdb != nil {
		lbCache = cache.NewLeaderboardCache(rdb, cfg.Redis.CacheTTL)
	}
	board := service.NewLeaderboard(st, lbCache, notify)
	beam := service.NewBeam(st, ledger, cfg.Beam, audit, notify)

	jobs := service.DefaultJobs(cfg.Orchestrator, cfg.Ledger, missions, ledger, beam, board)
	orch := service.NewOrchestrator(cfg.Orchestrator.Budget, jobs, audit)

	return &Services{
		Store:        st,
		Audit:        audit,
		Ledger:       ledger,
		Missions:     missions,
		Users:        users,
		Leaderboard:  board,
		Beam:         beam,
		Orchestrator: orch,
	}
}

func newSettler(cfg config.SettlementConfig, rc config.ResilienceConfig) settlement.Settler {
	if cfg.Mode != "http" {
		return settlement.NewSimulated(0, 0)
	}
	networkBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:      "settlement",
		Threshold: rc.NetworkThreshold,
		Cooldown:  rc.NetworkCooldown,
	})
	guard := resilience.NewGuard("settlement", networkBreaker, resilience.NetworkPolicy)
	logger.Info("settlement backend", "mode", "http", "url", cfg.URL)
	return settlement.NewHTTPClient(cfg.URL, cfg.APIKey, cfg.Timeout, guard)
}
