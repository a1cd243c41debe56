package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/resilience"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.Validation("bad wallet"), http.StatusBadRequest},
		{"not found", domain.NotFound("mission"), http.StatusNotFound},
		{"nothing to claim", domain.ErrNothingToClaim, http.StatusNotFound},
		{"conflict", domain.Conflict("already completed"), http.StatusConflict},
		{"expired", fmt.Errorf("claim: %w", domain.ErrExpired), http.StatusGone},
		{"transient", domain.Transient(context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"circuit open", fmt.Errorf("store: %w", resilience.ErrCircuitOpen), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := StatusFor(tt.err)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestStatusForHidesInternals(t *testing.T) {
	_, msg := StatusFor(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal error", msg)

	_, msg = StatusFor(domain.Transient(errors.New("dial tcp 10.0.0.3:5432")))
	assert.Equal(t, "try again later", msg)
}
