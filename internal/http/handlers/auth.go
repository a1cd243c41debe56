package handlers

import (
	"net/http"

	"mission_rewards/internal/service"

	"github.com/gin-gonic/gin"
)

type ConnectRequest struct {
	Wallet string `json:"wallet" binding:"required"`
	Ref    string `json:"ref"`
}

// Connect creates the user on first sight and issues a session token.
func (h *Handler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet is required"})
		return
	}

	user, created, err := h.Users.Connect(c.Request.Context(), req.Wallet, req.Ref, c.ClientIP())
	if err != nil {
		respondError(c, "connect", err)
		return
	}

	token, err := service.GenerateJWT(user.Wallet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"token":   token,
		"user":    user.Summary(),
		"created": created,
	})
}
