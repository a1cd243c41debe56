package http

import (
	"mission_rewards/internal/config"
	"mission_rewards/internal/http/handlers"
	"mission_rewards/internal/http/middleware"
	"mission_rewards/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router needs from main.
type Deps struct {
	Handler *handlers.Handler
	Health  *handlers.HealthHandler
	Hub     *ws.Hub
}

func RegisterRoutes(r *gin.Engine, deps Deps, cfg *config.Config) {
	rl := cfg.RateLimit
	h := deps.Handler

	r.Use(middleware.RequestLogger(), middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", deps.Health.Health)
	r.GET("/healthz", deps.Health.Liveness)
	r.GET("/readyz", deps.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(rl.APILimit, rl.APIWindow))

	v1.POST("/auth/connect", middleware.RedisRateLimit(rl.AuthLimit, rl.AuthWindow), h.Connect)

	v1.GET("/me", middleware.JWT(), h.Me)
	v1.POST("/me/activity", middleware.JWT(), h.RecordActivity)
	v1.GET("/me/missions", middleware.JWT(), h.MyMissions)

	v1.GET("/missions", h.ListMissions)
	missions := v1.Group("/missions/:id", middleware.JWT())
	{
		missions.POST("/participate", h.Participate)
		missions.POST("/complete", middleware.WalletRateLimit("complete", rl.ClaimLimit, rl.ClaimWindow), h.CompleteMission)
	}

	rewards := v1.Group("/rewards", middleware.JWT())
	{
		rewards.GET("", h.ListRewards)
		rewards.POST("/claim", middleware.WalletRateLimit("claim", rl.ClaimLimit, rl.ClaimWindow), h.ClaimRewards)
	}

	v1.GET("/leaderboard", h.GetLeaderboard)

	// cron secret, not JWT
	v1.POST("/admin/orchestrator/run", h.RunOrchestrator)

	r.GET("/ws", ws.HandleWS(deps.Hub, cfg.Server.AllowedOrigin))
}
