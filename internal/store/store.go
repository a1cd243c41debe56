// Package store defines the persistence contract used by the services.
// Every mutation that can race between concurrent orchestrator runs is a
// conditional update; implementations must keep that guarantee.
package store

import (
	"context"
	"time"

	"mission_rewards/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UserStore interface {
	GetUser(ctx context.Context, wallet string) (*domain.User, error)
	// ConnectUser creates the user on first sight and touches last_active.
	// created is true only for the call that inserted the row.
	ConnectUser(ctx context.Context, wallet, username string, now time.Time) (u *domain.User, created bool, err error)
	// SetReferrer links referrer once; ErrConflict when already linked.
	SetReferrer(ctx context.Context, wallet, referrer string) error
	ApplyUserDelta(ctx context.Context, wallet string, d domain.UserDelta) (*domain.User, error)
	// ClaimPendingBalance zeroes pending_rewards and adds it to
	// claimed_rewards when it is positive, stamping claimed_at on the
	// wallet's settled currency rewards. ErrNothingToClaim otherwise.
	ClaimPendingBalance(ctx context.Context, wallet string, now time.Time) (decimal.Decimal, error)
	ListUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error)
}

type MissionStore interface {
	GetMission(ctx context.Context, id string) (*domain.Mission, error)
	ListMissions(ctx context.Context, activeOnly bool) ([]*domain.Mission, error)
	UpsertMission(ctx context.Context, m *domain.Mission) error
}

type UserMissionStore interface {
	GetUserMission(ctx context.Context, wallet, missionID string) (*domain.UserMission, error)
	ListUserMissions(ctx context.Context, wallet string) ([]*domain.UserMission, error)
	// Participate inserts an in_progress row and bumps mission participants.
	// An existing row is returned with created=false. ErrConflict when the
	// mission's completion cap is reached.
	Participate(ctx context.Context, um *domain.UserMission) (row *domain.UserMission, created bool, err error)
	// SaveProgress stores progress without ever lowering the percentage.
	SaveProgress(ctx context.Context, wallet, missionID string, p domain.Progress, now time.Time) error
	// CompleteMission applies a completion atomically: the status flip is
	// the idempotency key and only the winner applies the side effects.
	CompleteMission(ctx context.Context, c domain.Completion) (won bool, err error)
	// ClaimUserMission moves completed → claimed. ErrNotFound otherwise.
	ClaimUserMission(ctx context.Context, wallet, missionID string, now time.Time) (*domain.UserMission, error)
	// ListStaleUserMissions returns unfinished rows not evaluated since before.
	ListStaleUserMissions(ctx context.Context, before time.Time, limit int) ([]*domain.UserMission, error)
	CountUserMissions(ctx context.Context) (map[domain.UserMissionStatus]int, error)
}

type RewardStore interface {
	CreateReward(ctx context.Context, r *domain.Reward) error
	GetReward(ctx context.Context, id uuid.UUID) (*domain.Reward, error)
	// ListDueRewards returns pending, unexpired, due rewards, oldest first.
	ListDueRewards(ctx context.Context, now time.Time, limit int) ([]*domain.Reward, error)
	// ExpireRewards moves pending rewards past expires_at to expired.
	ExpireRewards(ctx context.Context, now time.Time) (int, error)
	// TransitionReward is a compare-and-set on status. ok=false when
	// another writer moved the reward first.
	TransitionReward(ctx context.Context, id uuid.UUID, from, to domain.RewardStatus, u domain.RewardUpdate) (ok bool, err error)
	// CreditReward flips processing → completed and credits the user in
	// one unit of work.
	CreditReward(ctx context.Context, id uuid.UUID, u domain.RewardUpdate, delta domain.UserDelta) (ok bool, err error)
	// ClaimReward stamps claimed_at on a settled reward of wallet and moves
	// its amount from pending to claimed. ErrNotFound when not claimable.
	ClaimReward(ctx context.Context, id uuid.UUID, wallet string, now time.Time) (*domain.Reward, error)
	ListRewards(ctx context.Context, wallet string, f domain.RewardFilter) ([]*domain.Reward, error)
	// RecentAirdropWallets lists wallets with a pending or completed
	// airdrop created at or after since.
	RecentAirdropWallets(ctx context.Context, since time.Time) (map[string]bool, error)
	CountRewards(ctx context.Context) (map[domain.RewardStatus]int, error)
}

type LeaderboardStore interface {
	// ReplaceRanks writes users.rank and the leaderboard projection in one pass.
	ReplaceRanks(ctx context.Context, entries []domain.LeaderboardEntry) error
	TopEntries(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	Entry(ctx context.Context, wallet string) (*domain.LeaderboardEntry, error)
	LeaderboardStats(ctx context.Context) (domain.LeaderboardStats, error)
}

type BeamStore interface {
	LoadBeamState(ctx context.Context) (*domain.BeamState, error)
	// SaveBeamState writes next only if last_beam_at still equals prev.
	SaveBeamState(ctx context.Context, prev *time.Time, next domain.BeamState) (ok bool, err error)
}

type AuditStore interface {
	AppendAudit(ctx context.Context, a *domain.AuditLog) error
}

// Store aggregates all record stores.
type Store interface {
	UserStore
	MissionStore
	UserMissionStore
	RewardStore
	LeaderboardStore
	BeamStore
	AuditStore
	Ping(ctx context.Context) error
}
