package store

import (
	"context"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/resilience"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Guarded routes every call of the wrapped Store through a breaker and
// retry policy. Only transient errors are retried.
type Guarded struct {
	next  Store
	guard *resilience.Guard
}

func NewGuarded(next Store, guard *resilience.Guard) *Guarded {
	return &Guarded{next: next, guard: guard}
}

var _ Store = (*Guarded)(nil)

func call[T any](ctx context.Context, g *Guarded, op string, fn func(context.Context) (T, error)) (T, error) {
	return resilience.Call(ctx, g.guard, op, fn)
}

func (g *Guarded) Ping(ctx context.Context) error {
	// health probes must see the raw state, not a retried one
	return g.next.Ping(ctx)
}

func (g *Guarded) GetUser(ctx context.Context, wallet string) (*domain.User, error) {
	return call(ctx, g, "get_user", func(ctx context.Context) (*domain.User, error) {
		return g.next.GetUser(ctx, wallet)
	})
}

func (g *Guarded) ConnectUser(ctx context.Context, wallet, username string, now time.Time) (*domain.User, bool, error) {
	var created bool
	u, err := call(ctx, g, "connect_user", func(ctx context.Context) (*domain.User, error) {
		u, c, err := g.next.ConnectUser(ctx, wallet, username, now)
		created = c
		return u, err
	})
	return u, created, err
}

func (g *Guarded) SetReferrer(ctx context.Context, wallet, referrer string) error {
	return g.guard.Do(ctx, "set_referrer", func(ctx context.Context) error {
		return g.next.SetReferrer(ctx, wallet, referrer)
	})
}

func (g *Guarded) ApplyUserDelta(ctx context.Context, wallet string, d domain.UserDelta) (*domain.User, error) {
	return call(ctx, g, "apply_user_delta", func(ctx context.Context) (*domain.User, error) {
		return g.next.ApplyUserDelta(ctx, wallet, d)
	})
}

func (g *Guarded) ClaimPendingBalance(ctx context.Context, wallet string, now time.Time) (decimal.Decimal, error) {
	return call(ctx, g, "claim_pending_balance", func(ctx context.Context) (decimal.Decimal, error) {
		return g.next.ClaimPendingBalance(ctx, wallet, now)
	})
}

func (g *Guarded) ListUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error) {
	return call(ctx, g, "list_users", func(ctx context.Context) ([]*domain.User, error) {
		return g.next.ListUsers(ctx, f)
	})
}

func (g *Guarded) GetMission(ctx context.Context, id string) (*domain.Mission, error) {
	return call(ctx, g, "get_mission", func(ctx context.Context) (*domain.Mission, error) {
		return g.next.GetMission(ctx, id)
	})
}

func (g *Guarded) ListMissions(ctx context.Context, activeOnly bool) ([]*domain.Mission, error) {
	return call(ctx, g, "list_missions", func(ctx context.Context) ([]*domain.Mission, error) {
		return g.next.ListMissions(ctx, activeOnly)
	})
}

func (g *Guarded) UpsertMission(ctx context.Context, m *domain.Mission) error {
	return g.guard.Do(ctx, "upsert_mission", func(ctx context.Context) error {
		return g.next.UpsertMission(ctx, m)
	})
}

func (g *Guarded) GetUserMission(ctx context.Context, wallet, missionID string) (*domain.UserMission, error) {
	return call(ctx, g, "get_user_mission", func(ctx context.Context) (*domain.UserMission, error) {
		return g.next.GetUserMission(ctx, wallet, missionID)
	})
}

func (g *Guarded) ListUserMissions(ctx context.Context, wallet string) ([]*domain.UserMission, error) {
	return call(ctx, g, "list_user_missions", func(ctx context.Context) ([]*domain.UserMission, error) {
		return g.next.ListUserMissions(ctx, wallet)
	})
}

func (g *Guarded) Participate(ctx context.Context, um *domain.UserMission) (*domain.UserMission, bool, error) {
	var created bool
	row, err := call(ctx, g, "participate", func(ctx context.Context) (*domain.UserMission, error) {
		r, c, err := g.next.Participate(ctx, um)
		created = c
		return r, err
	})
	return row, created, err
}

func (g *Guarded) SaveProgress(ctx context.Context, wallet, missionID string, p domain.Progress, now time.Time) error {
	return g.guard.Do(ctx, "save_progress", func(ctx context.Context) error {
		return g.next.SaveProgress(ctx, wallet, missionID, p, now)
	})
}

func (g *Guarded) CompleteMission(ctx context.Context, c domain.Completion) (bool, error) {
	return call(ctx, g, "complete_mission", func(ctx context.Context) (bool, error) {
		return g.next.CompleteMission(ctx, c)
	})
}

func (g *Guarded) ClaimUserMission(ctx context.Context, wallet, missionID string, now time.Time) (*domain.UserMission, error) {
	return call(ctx, g, "claim_user_mission", func(ctx context.Context) (*domain.UserMission, error) {
		return g.next.ClaimUserMission(ctx, wallet, missionID, now)
	})
}

func (g *Guarded) ListStaleUserMissions(ctx context.Context, before time.Time, limit int) ([]*domain.UserMission, error) {
	return call(ctx, g, "list_stale_user_missions", func(ctx context.Context) ([]*domain.UserMission, error) {
		return g.next.ListStaleUserMissions(ctx, before, limit)
	})
}

func (g *Guarded) CountUserMissions(ctx context.Context) (map[domain.UserMissionStatus]int, error) {
	return call(ctx, g, "count_user_missions", func(ctx context.Context) (map[domain.UserMissionStatus]int, error) {
		return g.next.CountUserMissions(ctx)
	})
}

func (g *Guarded) CreateReward(ctx context.Context, r *domain.Reward) error {
	return g.guard.Do(ctx, "create_reward", func(ctx context.Context) error {
		return g.next.CreateReward(ctx, r)
	})
}

func (g *Guarded) GetReward(ctx context.Context, id uuid.UUID) (*domain.Reward, error) {
	return call(ctx, g, "get_reward", func(ctx context.Context) (*domain.Reward, error) {
		return g.next.GetReward(ctx, id)
	})
}

func (g *Guarded) ListDueRewards(ctx context.Context, now time.Time, limit int) ([]*domain.Reward, error) {
	return call(ctx, g, "list_due_rewards", func(ctx context.Context) ([]*domain.Reward, error) {
		return g.next.ListDueRewards(ctx, now, limit)
	})
}

func (g *Guarded) ExpireRewards(ctx context.Context, now time.Time) (int, error) {
	return call(ctx, g, "expire_rewards", func(ctx context.Context) (int, error) {
		return g.next.ExpireRewards(ctx, now)
	})
}

func (g *Guarded) TransitionReward(ctx context.Context, id uuid.UUID, from, to domain.RewardStatus, u domain.RewardUpdate) (bool, error) {
	return call(ctx, g, "transition_reward", func(ctx context.Context) (bool, error) {
		return g.next.TransitionReward(ctx, id, from, to, u)
	})
}

func (g *Guarded) CreditReward(ctx context.Context, id uuid.UUID, u domain.RewardUpdate, delta domain.UserDelta) (bool, error) {
	return call(ctx, g, "credit_reward", func(ctx context.Context) (bool, error) {
		return g.next.CreditReward(ctx, id, u, delta)
	})
}

func (g *Guarded) ClaimReward(ctx context.Context, id uuid.UUID, wallet string, now time.Time) (*domain.Reward, error) {
	return call(ctx, g, "claim_reward", func(ctx context.Context) (*domain.Reward, error) {
		return g.next.ClaimReward(ctx, id, wallet, now)
	})
}

func (g *Guarded) ListRewards(ctx context.Context, wallet string, f domain.RewardFilter) ([]*domain.Reward, error) {
	return call(ctx, g, "list_rewards", func(ctx context.Context) ([]*domain.Reward, error) {
		return g.next.ListRewards(ctx, wallet, f)
	})
}

func (g *Guarded) RecentAirdropWallets(ctx context.Context, since time.Time) (map[string]bool, error) {
	return call(ctx, g, "recent_airdrop_wallets", func(ctx context.Context) (map[string]bool, error) {
		return g.next.RecentAirdropWallets(ctx, since)
	})
}

func (g *Guarded) CountRewards(ctx context.Context) (map[domain.RewardStatus]int, error) {
	return call(ctx, g, "count_rewards", func(ctx context.Context) (map[domain.RewardStatus]int, error) {
		return g.next.CountRewards(ctx)
	})
}

func (g *Guarded) ReplaceRanks(ctx context.Context, entries []domain.LeaderboardEntry) error {
	return g.guard.Do(ctx, "replace_ranks", func(ctx context.Context) error {
		return g.next.ReplaceRanks(ctx, entries)
	})
}

func (g *Guarded) TopEntries(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return call(ctx, g, "top_entries", func(ctx context.Context) ([]domain.LeaderboardEntry, error) {
		return g.next.TopEntries(ctx, limit)
	})
}

func (g *Guarded) Entry(ctx context.Context, wallet string) (*domain.LeaderboardEntry, error) {
	return call(ctx, g, "leaderboard_entry", func(ctx context.Context) (*domain.LeaderboardEntry, error) {
		return g.next.Entry(ctx, wallet)
	})
}

func (g *Guarded) LeaderboardStats(ctx context.Context) (domain.LeaderboardStats, error) {
	return call(ctx, g, "leaderboard_stats", func(ctx context.Context) (domain.LeaderboardStats, error) {
		return g.next.LeaderboardStats(ctx)
	})
}

func (g *Guarded) LoadBeamState(ctx context.Context) (*domain.BeamState, error) {
	return call(ctx, g, "load_beam_state", func(ctx context.Context) (*domain.BeamState, error) {
		return g.next.LoadBeamState(ctx)
	})
}

func (g *Guarded) SaveBeamState(ctx context.Context, prev *time.Time, next domain.BeamState) (bool, error) {
	return call(ctx, g, "save_beam_state", func(ctx context.Context) (bool, error) {
		return g.next.SaveBeamState(ctx, prev, next)
	})
}

func (g *Guarded) AppendAudit(ctx context.Context, a *domain.AuditLog) error {
	return g.guard.Do(ctx, "append_audit", func(ctx context.Context) error {
		return g.next.AppendAudit(ctx, a)
	})
}
