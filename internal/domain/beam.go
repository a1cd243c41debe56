package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BeamState is the singleton cooldown/statistics record of the airdrop cycle.
type BeamState struct {
	LastBeamAt       *time.Time                   `db:"last_beam_at" json:"last_beam_at,omitempty"`
	TotalBeams       int64                        `db:"total_beams" json:"total_beams"`
	TotalRecipients  int64                        `db:"total_recipients" json:"total_recipients"`
	TotalBeamAmount  decimal.Decimal              `db:"total_beam_amount" json:"total_beam_amount"`
	AmountByCurrency map[Currency]decimal.Decimal `db:"amount_by_currency" json:"amount_by_currency"`
	UpdatedAt        time.Time                    `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers can build the next state without
// touching the one they compare against.
func (s BeamState) Clone() BeamState {
	out := s
	if s.LastBeamAt != nil {
		t := *s.LastBeamAt
		out.LastBeamAt = &t
	}
	out.AmountByCurrency = make(map[Currency]decimal.Decimal, len(s.AmountByCurrency))
	for k, v := range s.AmountByCurrency {
		out.AmountByCurrency[k] = v
	}
	return out
}

type BeamStatus string

const (
	BeamFired      BeamStatus = "beamed"
	BeamRecharging BeamStatus = "recharging"
	BeamNoEligible BeamStatus = "no_eligible_users"
)

// BeamRecipient is one selected wallet.
type BeamRecipient struct {
	Wallet       string          `json:"wallet"`
	Weight       float64         `json:"weight"`
	Currency     Currency        `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	RewardID     string          `json:"reward_id,omitempty"`
	ScheduledFor time.Time       `json:"scheduled_for"`
}

// BeamOutcome is the result of one beam run.
type BeamOutcome struct {
	Status       BeamStatus      `json:"status"`
	NextBeamAt   *time.Time      `json:"next_beam_at,omitempty"`
	Eligible     int             `json:"eligible"`
	Recipients   []BeamRecipient `json:"recipients,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	FailedWrites int             `json:"failed_writes,omitempty"`
}
