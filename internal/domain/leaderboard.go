package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LeaderboardEntry is a rebuildable projection of User.
type LeaderboardEntry struct {
	Wallet            string          `db:"wallet" json:"wallet"`
	Username          string          `db:"username" json:"username"`
	Rank              int             `db:"rank" json:"rank"`
	TotalPoints       int64           `db:"total_points" json:"total_points"`
	Level             int             `db:"level" json:"level"`
	MissionsCompleted int             `db:"missions_completed" json:"missions_completed"`
	Badges            []string        `db:"badges" json:"badges"`
	TotalRewards      decimal.Decimal `db:"total_rewards" json:"total_rewards"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

type LeaderboardStats struct {
	TotalUsers             int     `json:"total_users"`
	TotalPointsDistributed int64   `json:"total_points_distributed"`
	TotalMissionsCompleted int64   `json:"total_missions_completed"`
	AverageLevel           float64 `json:"average_level"`
}

// LeaderboardView is the getLeaderboard response.
type LeaderboardView struct {
	Entries  []LeaderboardEntry `json:"entries"`
	UserRank *LeaderboardEntry  `json:"user_rank,omitempty"`
	Stats    LeaderboardStats   `json:"stats"`
}

// SortForRanking orders users by points desc, missions desc, wallet asc.
func SortForRanking(users []*User) {
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.MissionsCompleted != b.MissionsCompleted {
			return a.MissionsCompleted > b.MissionsCompleted
		}
		return a.Wallet < b.Wallet
	})
}

// EntryFromUser projects a user into a leaderboard row with the given rank.
func EntryFromUser(u *User, rank int, now time.Time) LeaderboardEntry {
	badges := make([]string, 0, len(u.Badges))
	for _, b := range u.Badges {
		badges = append(badges, b.Name)
	}
	return LeaderboardEntry{
		Wallet:            u.Wallet,
		Username:          u.Username,
		Rank:              rank,
		TotalPoints:       u.TotalPoints,
		Level:             LevelForPoints(u.TotalPoints),
		MissionsCompleted: u.MissionsCompleted,
		Badges:            badges,
		TotalRewards:      u.TotalRewardsEarned,
		UpdatedAt:         now,
	}
}
