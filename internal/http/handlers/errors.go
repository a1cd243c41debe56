package handlers

import (
	"errors"
	"net/http"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/resilience"

	"github.com/gin-gonic/gin"
)

// StatusFor maps a service error onto an HTTP status and a client message.
func StatusFor(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""

	// retryable by the client, never by us
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable, "try again later"

	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNothingToClaim):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone, err.Error()

	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondError(c *gin.Context, op string, err error) {
	status, msg := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "op", op, "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
