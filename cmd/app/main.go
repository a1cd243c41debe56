package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mission_rewards/internal/app"
	"mission_rewards/internal/cache"
	"mission_rewards/internal/config"
	"mission_rewards/internal/db"
	httpServer "mission_rewards/internal/http"
	"mission_rewards/internal/http/handlers"
	"mission_rewards/internal/http/middleware"
	"mission_rewards/internal/jobs"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/repository"
	"mission_rewards/internal/service"
	"mission_rewards/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.LogLevel, cfg.Server.LogJSON)
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	service.InitJWT(cfg.JWT.Secret, cfg.JWT.TTL)

	dbPool := db.Connect(cfg.Database.URL)
	defer dbPool.Close()

	rdb := cache.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if rdb != nil {
		defer rdb.Close()
	}
	middleware.InitRedisRateLimiter(rdb)

	hub := ws.NewHub()
	svc := app.Build(cfg, repository.NewStore(dbPool), rdb, hub)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.Server.AllowedOrigin == "" || origin == cfg.Server.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Cron-Secret")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Handler: handlers.NewHandler(svc.Users, svc.Missions, svc.Ledger, svc.Leaderboard, svc.Orchestrator, svc.Audit, cfg.Server.CronSecret),
		Health:  handlers.NewHealthHandler(svc.Store, cfg.MissingRequired, cfg.Server.Version),
		Hub:     hub,
	}, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sched *jobs.Scheduler
	if cfg.Orchestrator.Enabled {
		s, err := jobs.Start(ctx, cfg.Orchestrator.Interval, svc.Orchestrator)
		if err != nil {
			logger.Fatal("failed to start scheduler", "error", err)
		}
		sched = s
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.Server.Port, "env", cfg.Server.Env, "version", cfg.Server.Version, "redis", rdb != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	if sched != nil {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
