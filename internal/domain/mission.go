package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MissionCategory - категория миссии
type MissionCategory string

const (
	CategoryDaily     MissionCategory = "daily"
	CategoryWeekly    MissionCategory = "weekly"
	CategorySpecial   MissionCategory = "special"
	CategoryEpic      MissionCategory = "epic"
	CategorySocial    MissionCategory = "social"
	CategoryTrading   MissionCategory = "trading"
	CategoryCommunity MissionCategory = "community"
)

type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyMedium    Difficulty = "medium"
	DifficultyHard      Difficulty = "hard"
	DifficultyLegendary Difficulty = "legendary"
)

// RequirementType - что нужно сделать, чтобы выполнить миссию
type RequirementType string

const (
	// count-based
	ReqPlayGames         RequirementType = "play_games"
	ReqWinGames          RequirementType = "win_games"
	ReqTrade             RequirementType = "trade"
	ReqTradeVolume       RequirementType = "trade_volume"
	ReqReferral          RequirementType = "referral"
	ReqMissionsCompleted RequirementType = "missions_completed"

	// duration-held
	ReqHoldTokens RequirementType = "hold_tokens"

	// boolean
	ReqSocialLink RequirementType = "social_link"
	ReqFollow     RequirementType = "follow"
	ReqJoin       RequirementType = "join"
	ReqShare      RequirementType = "share"
	ReqCheckin    RequirementType = "checkin"
)

// RequirementShape groups requirement types by how progress is computed.
type RequirementShape int

const (
	ShapeUnknown RequirementShape = iota
	ShapeCount
	ShapeDuration
	ShapeBoolean
)

func (t RequirementType) Shape() RequirementShape {
	switch t {
	case ReqPlayGames, ReqWinGames, ReqTrade, ReqTradeVolume, ReqReferral, ReqMissionsCompleted:
		return ShapeCount
	case ReqHoldTokens:
		return ShapeDuration
	case ReqSocialLink, ReqFollow, ReqJoin, ReqShare, ReqCheckin:
		return ShapeBoolean
	}
	return ShapeUnknown
}

// NeedsProof reports whether completeMission must carry a proof (a post
// link, an invite handle) for this requirement.
func (t RequirementType) NeedsProof() bool {
	switch t {
	case ReqFollow, ReqJoin, ReqShare:
		return true
	}
	return false
}

type Requirement struct {
	Type           RequirementType `json:"type"`
	Target         float64         `json:"target"`
	TimeLimitHours float64         `json:"time_limit_hours,omitempty"`
}

// MissionReward is the payout descriptor of a mission template.
type MissionReward struct {
	Points   int64           `json:"points"`
	Currency Currency        `json:"currency,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Badge    string          `json:"badge,omitempty"`
}

func (r MissionReward) HasCurrency() bool {
	return r.Currency != "" && r.Amount.IsPositive()
}

// Mission - шаблон миссии
type Mission struct {
	ID                 string          `db:"id" json:"id"`
	Title              string          `db:"title" json:"title"`
	Description        string          `db:"description" json:"description"`
	Category           MissionCategory `db:"category" json:"category"`
	Difficulty         Difficulty      `db:"difficulty" json:"difficulty"`
	Requirement        Requirement     `db:"requirement" json:"requirement"`
	Reward             MissionReward   `db:"reward" json:"reward"`
	StartDate          time.Time       `db:"start_date" json:"start_date"`
	EndDate            *time.Time      `db:"end_date" json:"end_date,omitempty"`
	Participants       int             `db:"participants" json:"participants"`
	CurrentCompletions int             `db:"current_completions" json:"current_completions"`
	MaxCompletions     int             `db:"max_completions" json:"max_completions"`
	IsActive           bool            `db:"is_active" json:"is_active"`
	SortOrder          int             `db:"sort_order" json:"sort_order"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Available checks the active flag and the activity window.
func (m *Mission) Available(now time.Time) bool {
	if !m.IsActive {
		return false
	}
	if now.Before(m.StartDate) {
		return false
	}
	if m.EndDate != nil && now.After(*m.EndDate) {
		return false
	}
	return true
}

// CapReached is true once maxCompletions (when > 0) has been hit.
func (m *Mission) CapReached() bool {
	return m.MaxCompletions > 0 && m.CurrentCompletions >= m.MaxCompletions
}

// UserMissionStatus - статус прохождения миссии
type UserMissionStatus string

const (
	MissionNotStarted UserMissionStatus = "not_started"
	MissionInProgress UserMissionStatus = "in_progress"
	MissionCompleted  UserMissionStatus = "completed"
	MissionClaimed    UserMissionStatus = "claimed"
)

// Done is true for completed and claimed.
func (s UserMissionStatus) Done() bool {
	return s == MissionCompleted || s == MissionClaimed
}

type Progress struct {
	Current    float64 `json:"current"`
	Required   float64 `json:"required"`
	Percentage float64 `json:"percentage"`
}

// RewardSnapshot records what a completion granted.
type RewardSnapshot struct {
	Points   int64           `json:"points"`
	Currency Currency        `json:"currency,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Badge    string          `json:"badge,omitempty"`
}

// UserMission - прогресс пользователя по миссии, уникален по (wallet, mission_id)
type UserMission struct {
	Wallet         string            `db:"wallet" json:"wallet"`
	MissionID      string            `db:"mission_id" json:"mission_id"`
	Status         UserMissionStatus `db:"status" json:"status"`
	Progress       Progress          `db:"progress" json:"progress"`
	StartedAt      time.Time         `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	ClaimedAt      *time.Time        `db:"claimed_at" json:"claimed_at,omitempty"`
	RewardsClaimed *RewardSnapshot   `db:"rewards_claimed" json:"rewards_claimed,omitempty"`
	LastEvaluated  *time.Time        `db:"last_evaluated" json:"last_evaluated,omitempty"`
}

// UserMissionWithDetails - прогресс вместе с шаблоном (для API ответов)
type UserMissionWithDetails struct {
	Mission  Mission      `json:"mission"`
	Progress *UserMission `json:"progress,omitempty"`
}

// Completion is the unit of work the store applies atomically when a
// mission flips to completed. Reward may be nil for points-only missions.
type Completion struct {
	Wallet    string
	MissionID string
	Progress  Progress
	Snapshot  RewardSnapshot
	Reward    *Reward
	Delta     UserDelta
	At        time.Time
}
