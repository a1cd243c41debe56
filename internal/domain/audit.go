package domain

import "time"

// AuditLog represents an audit log entry for tracking important actions
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	Wallet    string                 `db:"wallet" json:"wallet,omitempty"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	IP        string                 `db:"ip" json:"ip,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Audit action categories
const (
	AuditCategoryAuth    = "auth"
	AuditCategoryMission = "mission"
	AuditCategoryReward  = "reward"
	AuditCategoryBeam    = "beam"
	AuditCategoryJobs    = "jobs"
)

// Audit actions
const (
	AuditActionConnect  = "wallet_connect"
	AuditActionReferral = "referral_applied"

	AuditActionParticipate     = "mission_participate"
	AuditActionMissionComplete = "mission_complete"
	AuditActionMissionClaim    = "mission_claim"

	AuditActionRewardCreate = "reward_create"
	AuditActionRewardSettle = "reward_settle"
	AuditActionRewardFail   = "reward_fail"
	AuditActionRewardExpire = "reward_expire"
	AuditActionRewardClaim  = "reward_claim"
	AuditActionClaimAll     = "claim_all"

	AuditActionBeamFired = "beam_fired"

	AuditActionOrchestratorRun    = "orchestrator_run"
	AuditActionOrchestratorManual = "orchestrator_manual_trigger"
)
