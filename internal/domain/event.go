package domain

import "time"

// Event types pushed to connected wallets
const (
	EventMissionProgress  = "mission_progress"
	EventMissionCompleted = "mission_completed"
	EventRewardCreated    = "reward_created"
	EventRewardSettled    = "reward_settled"
	EventRewardFailed     = "reward_failed"
	EventRewardClaimed    = "reward_claimed"
	EventBeamed           = "beamed"
	EventRankChanged      = "rank_changed"
)

// Event is a wallet-scoped notification.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}
