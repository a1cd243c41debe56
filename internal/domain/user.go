package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PointsPerLevel - сколько очков нужно на один уровень
const PointsPerLevel = 1000

var walletRe = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

type User struct {
	Wallet             string          `db:"wallet" json:"wallet"`
	Username           string          `db:"username" json:"username"`
	TotalPoints        int64           `db:"total_points" json:"total_points"`
	Level              int             `db:"level" json:"level"`
	Rank               int             `db:"rank" json:"rank"`
	Badges             []Badge         `db:"badges" json:"badges"`
	MissionsCompleted  int             `db:"missions_completed" json:"missions_completed"`
	PendingRewards     decimal.Decimal `db:"pending_rewards" json:"pending_rewards"`
	ClaimedRewards     decimal.Decimal `db:"claimed_rewards" json:"claimed_rewards"`
	TotalRewardsEarned decimal.Decimal `db:"total_rewards_earned" json:"total_rewards_earned"`

	// activity counters, read by mission requirements and the beam weights
	GamesPlayed   int             `db:"games_played" json:"games_played"`
	GamesWon      int             `db:"games_won" json:"games_won"`
	TradeCount    int             `db:"trade_count" json:"trade_count"`
	TradingVolume decimal.Decimal `db:"trading_volume" json:"trading_volume"`
	Referrals     int             `db:"referrals" json:"referrals"`
	ReferredBy    *string         `db:"referred_by" json:"referred_by,omitempty"`

	TwitterHandle string `db:"twitter_handle" json:"twitter_handle,omitempty"`
	DiscordID     string `db:"discord_id" json:"discord_id,omitempty"`
	TelegramID    string `db:"telegram_id" json:"telegram_id,omitempty"`

	LastActive time.Time `db:"last_active" json:"last_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Badge is a single earned badge. Badges are append-only.
type Badge struct {
	Name     string    `json:"name"`
	Rarity   string    `json:"rarity,omitempty"`
	Source   string    `json:"source,omitempty"`
	EarnedAt time.Time `json:"earned_at"`
}

// LevelForPoints returns floor(points/1000)+1.
func LevelForPoints(points int64) int {
	if points < 0 {
		return 1
	}
	return int(points/PointsPerLevel) + 1
}

// NormalizeWallet lowercases and validates an EVM style address.
func NormalizeWallet(wallet string) (string, error) {
	w := strings.ToLower(strings.TrimSpace(wallet))
	if w == "" {
		return "", Validation("wallet address is required")
	}
	if !walletRe.MatchString(w) {
		return "", Validation("wallet address is malformed")
	}
	return w, nil
}

// DefaultUsername builds the display name for a freshly connected wallet.
func DefaultUsername(wallet string) string {
	if len(wallet) > 8 {
		return "Explorer_" + wallet[2:8]
	}
	return "Explorer_" + wallet
}

func (u *User) HasBadge(name string) bool {
	for _, b := range u.Badges {
		if b.Name == name {
			return true
		}
	}
	return false
}

// WinRate is gamesWon/max(gamesPlayed,1).
func (u *User) WinRate() float64 {
	played := u.GamesPlayed
	if played < 1 {
		played = 1
	}
	return float64(u.GamesWon) / float64(played)
}

// SocialLinks counts linked twitter/discord accounts.
func (u *User) SocialLinks() int {
	n := 0
	if u.TwitterHandle != "" {
		n++
	}
	if u.DiscordID != "" {
		n++
	}
	return n
}

// UserDelta is an atomic increment applied to one user record.
// Zero fields are no-ops; Level is always recomputed from the resulting points.
type UserDelta struct {
	Points             int64
	MissionsCompleted  int
	PendingRewards     decimal.Decimal
	TotalRewardsEarned decimal.Decimal
	GamesPlayed        int
	GamesWon           int
	TradeCount         int
	TradingVolume      decimal.Decimal
	Referrals          int
	Badge              *Badge
	TwitterHandle      string
	DiscordID          string
	TelegramID         string
	TouchedAt          time.Time
}

// Apply mutates u in memory. Stores that cannot express the delta in one
// statement apply it under their own lock.
func (d UserDelta) Apply(u *User) {
	u.TotalPoints += d.Points
	u.Level = LevelForPoints(u.TotalPoints)
	u.MissionsCompleted += d.MissionsCompleted
	u.PendingRewards = u.PendingRewards.Add(d.PendingRewards)
	u.TotalRewardsEarned = u.TotalRewardsEarned.Add(d.TotalRewardsEarned)
	u.GamesPlayed += d.GamesPlayed
	u.GamesWon += d.GamesWon
	u.TradeCount += d.TradeCount
	u.TradingVolume = u.TradingVolume.Add(d.TradingVolume)
	u.Referrals += d.Referrals
	if d.Badge != nil {
		u.Badges = append(u.Badges, *d.Badge)
	}
	if d.TwitterHandle != "" {
		u.TwitterHandle = d.TwitterHandle
	}
	if d.DiscordID != "" {
		u.DiscordID = d.DiscordID
	}
	if d.TelegramID != "" {
		u.TelegramID = d.TelegramID
	}
	if !d.TouchedAt.IsZero() {
		u.LastActive = d.TouchedAt
		u.UpdatedAt = d.TouchedAt
	}
}

// UserSummary is what connectWallet and /me return.
type UserSummary struct {
	Wallet             string          `json:"wallet"`
	Username           string          `json:"username"`
	TotalPoints        int64           `json:"total_points"`
	Level              int             `json:"level"`
	Rank               int             `json:"rank"`
	Badges             []Badge         `json:"badges"`
	MissionsCompleted  int             `json:"missions_completed"`
	TotalRewardsEarned decimal.Decimal `json:"total_rewards_earned"`
	PendingRewards     decimal.Decimal `json:"pending_rewards"`
	ClaimedRewards     decimal.Decimal `json:"claimed_rewards"`
	JoinedAt           time.Time       `json:"joined_at"`
}

func (u *User) Summary() UserSummary {
	badges := u.Badges
	if badges == nil {
		badges = []Badge{}
	}
	return UserSummary{
		Wallet:             u.Wallet,
		Username:           u.Username,
		TotalPoints:        u.TotalPoints,
		Level:              u.Level,
		Rank:               u.Rank,
		Badges:             badges,
		MissionsCompleted:  u.MissionsCompleted,
		TotalRewardsEarned: u.TotalRewardsEarned,
		PendingRewards:     u.PendingRewards,
		ClaimedRewards:     u.ClaimedRewards,
		JoinedAt:           u.CreatedAt,
	}
}

// UserFilter narrows user listings.
type UserFilter struct {
	MinPoints   int64
	ActiveSince time.Time
}
