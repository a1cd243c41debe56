package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"mission_rewards/internal/app"
	"mission_rewards/internal/cache"
	"mission_rewards/internal/config"
	"mission_rewards/internal/db"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/repository"
	"mission_rewards/internal/service"
)

// One manual pipeline run. The JSON report goes to stdout, logs to stderr.
// Exit codes: 0 ok, 2 a job failed, 3 a job was skipped for lack of budget.
func main() {
	os.Exit(run())
}

func run() int {
	budget := flag.Duration("budget", 0, "override ORCHESTRATOR_BUDGET")
	flag.Parse()

	cfg := config.Load()
	logger.InitWriter(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogJSON)
	if cfg.Database.URL == "" {
		logger.Error("DATABASE_URL not set")
		return 1
	}
	if *budget > 0 {
		cfg.Orchestrator.Budget = *budget
	}

	pool := db.Connect(cfg.Database.URL)
	defer pool.Close()

	rdb := cache.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if rdb != nil {
		defer rdb.Close()
	}

	svc := app.Build(cfg, repository.NewStore(pool), rdb, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report := svc.Orchestrator.Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to encode report", "error", err)
		return 1
	}
	return exitCode(report)
}

// skipped_probability is a normal outcome and never affects the code.
func exitCode(report service.RunReport) int {
	switch {
	case report.Count(service.JobFailed) > 0:
		return 2
	case report.Count(service.JobSkippedTimeout) > 0:
		return 3
	}
	return 0
}
