package handlers

import (
	"context"

	"mission_rewards/internal/service"
)

// OrchestratorRunner triggers one pipeline run.
type OrchestratorRunner interface {
	Run(ctx context.Context) service.RunReport
}

type Handler struct {
	Users        *service.Users
	Missions     *service.MissionTracker
	Ledger       *service.Ledger
	Leaderboard  *service.Leaderboard
	Orchestrator OrchestratorRunner
	AuditService *service.AuditService
	CronSecret   string
}

func NewHandler(users *service.Users, missions *service.MissionTracker, ledger *service.Ledger, board *service.Leaderboard, orch OrchestratorRunner, audit *service.AuditService, cronSecret string) *Handler {
	return &Handler{
		Users:        users,
		Missions:     missions,
		Ledger:       ledger,
		Leaderboard:  board,
		Orchestrator: orch,
		AuditService: audit,
		CronSecret:   cronSecret,
	}
}

// getWallet извлекает кошелёк из контекста Gin (кладёт middleware.JWT)
func getWallet(c interface{ Get(string) (any, bool) }) (string, bool) {
	v, ok := c.Get("wallet")
	if !ok {
		return "", false
	}
	wallet, ok := v.(string)
	return wallet, ok && wallet != ""
}
