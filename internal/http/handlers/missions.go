package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListMissions returns the public mission catalog.
func (h *Handler) ListMissions(c *gin.Context) {
	missions, err := h.Missions.ListMissions(c.Request.Context())
	if err != nil {
		respondError(c, "list missions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"missions": missions})
}

// MyMissions returns the catalog joined with the caller's progress.
func (h *Handler) MyMissions(c *gin.Context) {
	wallet, ok := getWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	missions, err := h.Missions.ListForWallet(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, "my missions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"missions": missions})
}

func (h *Handler) Participate(c *gin.Context) {
	wallet, ok := getWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	um, err := h.Missions.Participate(c.Request.Context(), wallet, c.Param("id"))
	if err != nil {
		respondError(c, "participate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mission": um})
}

type CompleteRequest struct {
	Proof string `json:"proof"`
}

// CompleteMission verifies the requirement and grants the mission rewards.
func (h *Handler) CompleteMission(c *gin.Context) {
	wallet, ok := getWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CompleteRequest
	// тело необязательно: count-миссии завершаются без proof
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}
	}

	res, err := h.Missions.Complete(c.Request.Context(), wallet, c.Param("id"), req.Proof)
	if err != nil {
		respondError(c, "complete mission", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rewards": res.Rewards,
		"reward":  res.Reward,
		"user":    res.User,
	})
}
