package repository

import (
	"context"
	"encoding/json"

	"mission_rewards/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// AppendAudit inserts a new audit log entry
func (r *AuditRepository) AppendAudit(ctx context.Context, log *domain.AuditLog) error {
	detailsJSON, err := json.Marshal(log.Details)
	if err != nil || log.Details == nil {
		detailsJSON = []byte("{}")
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO audit_logs (wallet, action, category, details, ip)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, log.Wallet, log.Action, log.Category, detailsJSON, log.IP).Scan(&log.ID, &log.CreatedAt)
	return mapErr(err, "audit log")
}
