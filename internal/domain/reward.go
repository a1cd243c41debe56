package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency of a currency payout.
type Currency string

const (
	CurrencyUSDT Currency = "USDT"
	CurrencyUFO  Currency = "UFO"
)

// RewardSource - откуда пришла награда
type RewardSource string

const (
	SourceMission  RewardSource = "mission"
	SourceAirdrop  RewardSource = "airdrop"
	SourceReferral RewardSource = "referral"
	SourceGame     RewardSource = "game"
	SourceSpecial  RewardSource = "special"
)

func (s RewardSource) Valid() bool {
	switch s {
	case SourceMission, SourceAirdrop, SourceReferral, SourceGame, SourceSpecial:
		return true
	}
	return false
}

// PayoutKind tags the Payout variant.
type PayoutKind string

const (
	PayoutPoints   PayoutKind = "points"
	PayoutCurrency PayoutKind = "currency"
	PayoutBadge    PayoutKind = "badge"
)

// Payout is a tagged variant: points use Amount as a point count,
// currency uses Currency+Amount, badge uses Badge.
type Payout struct {
	Kind     PayoutKind      `json:"kind"`
	Currency Currency        `json:"currency,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Badge    string          `json:"badge,omitempty"`
}

func PointsPayout(points int64) Payout {
	return Payout{Kind: PayoutPoints, Amount: decimal.NewFromInt(points)}
}

func CurrencyPayout(c Currency, amount decimal.Decimal) Payout {
	return Payout{Kind: PayoutCurrency, Currency: c, Amount: amount}
}

func BadgePayout(badge string) Payout {
	return Payout{Kind: PayoutBadge, Badge: badge}
}

func (p Payout) Validate() error {
	switch p.Kind {
	case PayoutPoints:
		if !p.Amount.IsPositive() || !p.Amount.Equal(p.Amount.Truncate(0)) {
			return Validation("points payout must be a positive integer")
		}
	case PayoutCurrency:
		if p.Currency == "" {
			return Validation("currency payout needs a currency")
		}
		if !p.Amount.IsPositive() {
			return Validation("currency payout amount must be positive")
		}
	case PayoutBadge:
		if p.Badge == "" {
			return Validation("badge payout needs a badge")
		}
	default:
		return Validation(fmt.Sprintf("unknown payout kind %q", p.Kind))
	}
	return nil
}

// RewardStatus - статус награды
type RewardStatus string

const (
	RewardPending    RewardStatus = "pending"
	RewardProcessing RewardStatus = "processing"
	RewardCompleted  RewardStatus = "completed"
	RewardFailed     RewardStatus = "failed"
	RewardExpired    RewardStatus = "expired"
)

// Terminal states never transition again.
func (s RewardStatus) Terminal() bool {
	return s == RewardCompleted || s == RewardFailed || s == RewardExpired
}

// CanTransition encodes pending → processing → completed|failed and pending → expired.
func (s RewardStatus) CanTransition(to RewardStatus) bool {
	switch s {
	case RewardPending:
		return to == RewardProcessing || to == RewardExpired
	case RewardProcessing:
		return to == RewardCompleted || to == RewardFailed
	}
	return false
}

type Reward struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	Wallet          string       `db:"wallet" json:"wallet"`
	Source          RewardSource `db:"source" json:"source"`
	Payout          Payout       `db:"payout" json:"payout"`
	Status          RewardStatus `db:"status" json:"status"`
	MissionID       *string      `db:"mission_id" json:"mission_id,omitempty"`
	Description     string       `db:"description" json:"description"`
	ScheduledFor    *time.Time   `db:"scheduled_for" json:"scheduled_for,omitempty"`
	ExpiresAt       *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	SettlementToken string       `db:"settlement_token" json:"settlement_token,omitempty"`
	Error           string       `db:"error" json:"error,omitempty"`
	ProcessedAt     *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ClaimedAt       *time.Time   `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// ExpiredAt reports whether expiresAt has passed at now.
func (r *Reward) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// Due is true once scheduledFor (if any) has arrived.
func (r *Reward) Due(now time.Time) bool {
	return r.ScheduledFor == nil || !r.ScheduledFor.After(now)
}

// Claimable is a settled currency reward that has not been claimed.
func (r *Reward) Claimable() bool {
	return r.Status == RewardCompleted && r.ClaimedAt == nil && r.Payout.Kind == PayoutCurrency
}

// RewardUpdate carries the fields written alongside a status transition.
type RewardUpdate struct {
	SettlementToken string
	Error           string
	ProcessedAt     *time.Time
	At              time.Time
}

// ClaimResult is returned by claimRewards.
type ClaimResult struct {
	Amount   decimal.Decimal `json:"amount"`
	RewardID *uuid.UUID      `json:"reward_id,omitempty"`
	Mission  *RewardSnapshot `json:"mission,omitempty"`
	User     *UserSummary    `json:"user,omitempty"`
}

// RewardSummary - сводка по наградам пользователя
type RewardSummary struct {
	Pending         decimal.Decimal `json:"pending"`
	Claimed         decimal.Decimal `json:"claimed"`
	Total           decimal.Decimal `json:"total"`
	PendingMissions int             `json:"pending_missions"`
}

// RewardFilter narrows wallet reward listings.
type RewardFilter struct {
	Status *RewardStatus
	Limit  int
}
