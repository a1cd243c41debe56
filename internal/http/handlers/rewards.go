package handlers

import (
	"net/http"
	"strconv"

	"mission_rewards/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ClaimRequest struct {
	RewardID  string `json:"reward_id"`
	MissionID string `json:"mission_id"`
}

// ClaimRewards claims one reward, acknowledges one mission, or sweeps the
// whole pending balance when the body names neither.
func (h *Handler) ClaimRewards(c *gin.Context) {
	wallet, ok := getWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ClaimRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}
	}
	if req.RewardID != "" && req.MissionID != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reward_id and mission_id are mutually exclusive"})
		return
	}

	ctx := c.Request.Context()
	var (
		res *domain.ClaimResult
		err error
	)
	switch {
	case req.MissionID != "":
		res, err = h.Ledger.ClaimMission(ctx, wallet, req.MissionID)
	case req.RewardID != "":
		id, perr := uuid.Parse(req.RewardID)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reward_id"})
			return
		}
		res, err = h.Ledger.Claim(ctx, wallet, &id)
	default:
		res, err = h.Ledger.Claim(ctx, wallet, nil)
	}
	if err != nil {
		respondError(c, "claim", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"claimed": res})
}

// ListRewards returns the caller's rewards plus balances.
func (h *Handler) ListRewards(c *gin.Context) {
	wallet, ok := getWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var status *domain.RewardStatus
	if s := c.Query("status"); s != "" {
		st := domain.RewardStatus(s)
		status = &st
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	ctx := c.Request.Context()
	rewards, err := h.Ledger.ListRewards(ctx, wallet, status, limit)
	if err != nil {
		respondError(c, "list rewards", err)
		return
	}
	summary, err := h.Ledger.Summary(ctx, wallet)
	if err != nil {
		respondError(c, "reward summary", err)
		return
	}
	if rewards == nil {
		rewards = []*domain.Reward{}
	}

	c.JSON(http.StatusOK, gin.H{
		"rewards": rewards,
		"summary": summary,
	})
}
