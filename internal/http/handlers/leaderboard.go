package handlers

import (
	"net/http"
	"strconv"

	"mission_rewards/internal/domain"

	"github.com/gin-gonic/gin"
)

// GetLeaderboard returns the top entries, global stats and, when ?wallet= is
// given, that wallet's own entry.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	wallet := ""
	if v := c.Query("wallet"); v != "" {
		w, err := domain.NormalizeWallet(v)
		if err != nil {
			respondError(c, "leaderboard", err)
			return
		}
		wallet = w
	}

	view, err := h.Leaderboard.Get(c.Request.Context(), limit, wallet)
	if err != nil {
		respondError(c, "leaderboard", err)
		return
	}
	c.JSON(http.StatusOK, view)
}
