package service

import (
	"context"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/store"
)

// AuditService handles audit logging. Failures are logged and swallowed:
// the audit trail never blocks a reward or mission transition.
type AuditService struct {
	repo store.AuditStore
}

// NewAuditService creates a new audit service
func NewAuditService(repo store.AuditStore) *AuditService {
	return &AuditService{repo: repo}
}

// Log creates a new audit log entry
func (s *AuditService) Log(ctx context.Context, wallet, action, category string, details map[string]interface{}) {
	s.LogWithRequest(ctx, wallet, action, category, "", details)
}

// LogWithRequest creates an audit log with the caller IP
func (s *AuditService) LogWithRequest(ctx context.Context, wallet, action, category, ip string, details map[string]interface{}) {
	if s == nil || s.repo == nil {
		return
	}
	log := &domain.AuditLog{
		Wallet:   wallet,
		Action:   action,
		Category: category,
		Details:  details,
		IP:       ip,
	}

	// detached from request cancellation, the entry should still land
	if err := s.repo.AppendAudit(context.WithoutCancel(ctx), log); err != nil {
		logger.Error("failed to create audit log", "error", err, "action", action, "wallet", wallet)
	}
}

// LogReward logs a reward lifecycle transition
func (s *AuditService) LogReward(ctx context.Context, r *domain.Reward, action string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["reward_id"] = r.ID.String()
	details["source"] = r.Source
	details["kind"] = r.Payout.Kind
	if r.Payout.Kind == domain.PayoutCurrency {
		details["currency"] = r.Payout.Currency
		details["amount"] = r.Payout.Amount.String()
	}
	if r.MissionID != nil {
		details["mission_id"] = *r.MissionID
	}

	s.Log(ctx, r.Wallet, action, domain.AuditCategoryReward, details)
}

// LogMission logs a mission action
func (s *AuditService) LogMission(ctx context.Context, wallet, missionID, action string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["mission_id"] = missionID

	s.Log(ctx, wallet, action, domain.AuditCategoryMission, details)
}
