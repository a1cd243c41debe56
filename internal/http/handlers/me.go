package handlers

import (
	"net/http"

	"mission_rewards/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Me(c *gin.Context) {
	wallet, ok := getWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.Users.Get(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, user.Summary())
}

// RecordActivity bumps the caller's counters and re-evaluates open missions.
func (h *Handler) RecordActivity(c *gin.Context) {
	wallet, ok := getWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var in service.ActivityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	user, err := h.Users.RecordActivity(c.Request.Context(), wallet, in)
	if err != nil {
		respondError(c, "activity", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user.Summary(),
		"counters": gin.H{
			"games_played":   user.GamesPlayed,
			"games_won":      user.GamesWon,
			"trade_count":    user.TradeCount,
			"trading_volume": user.TradingVolume,
			"referrals":      user.Referrals,
		},
	})
}
