package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/store"
)

const (
	DefaultLeaderboardLimit = 100
	MaxLeaderboardLimit     = 500
)

// LeaderboardCache stores rendered top-N views. A nil cache disables caching.
type LeaderboardCache interface {
	GetView(ctx context.Context, limit int) (*domain.LeaderboardView, bool)
	SetView(ctx context.Context, limit int, v *domain.LeaderboardView)
	Invalidate(ctx context.Context)
}

type RecomputeSummary struct {
	Ranked   int `json:"ranked"`
	Promoted int `json:"promoted"`
}

// Leaderboard rebuilds and serves the ranking projection.
type Leaderboard struct {
	store  store.Store
	cache  LeaderboardCache
	notify Notifier
	now    func() time.Time
	log    *slog.Logger
}

func NewLeaderboard(st store.Store, cache LeaderboardCache, notify Notifier) *Leaderboard {
	return &Leaderboard{
		store:  st,
		cache:  cache,
		notify: orNop(notify),
		now:    time.Now,
		log:    logger.Component("leaderboard"),
	}
}

// Recompute ranks every user with points, ordered by points, then missions,
// then wallet, and writes the projection in one pass.
func (l *Leaderboard) Recompute(ctx context.Context) (RecomputeSummary, error) {
	var sum RecomputeSummary

	users, err := l.store.ListUsers(ctx, domain.UserFilter{MinPoints: 1})
	if err != nil {
		return sum, fmt.Errorf("list users: %w", err)
	}
	domain.SortForRanking(users)

	now := l.now()
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for i, u := range users {
		rank := i + 1
		entries = append(entries, domain.EntryFromUser(u, rank, now))
		if u.Rank == 0 || rank < u.Rank {
			sum.Promoted++
		}
	}

	if err := l.store.ReplaceRanks(ctx, entries); err != nil {
		return sum, fmt.Errorf("replace ranks: %w", err)
	}
	sum.Ranked = len(entries)

	if l.cache != nil {
		l.cache.Invalidate(ctx)
	}

	for i, u := range users {
		if u.Rank != entries[i].Rank {
			l.notify.Publish(u.Wallet, event(domain.EventRankChanged, map[string]interface{}{
				"previous": u.Rank,
				"rank":     entries[i].Rank,
			}, now))
		}
	}

	l.log.Info("leaderboard recomputed", "ranked", sum.Ranked, "promoted", sum.Promoted)
	return sum, nil
}

// Get returns the top entries, the caller's position and the global stats.
// A wallet without a leaderboard row gets an entry built from the user
// record with rank 0.
func (l *Leaderboard) Get(ctx context.Context, limit int, wallet string) (*domain.LeaderboardView, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	view, err := l.top(ctx, limit)
	if err != nil {
		return nil, err
	}
	if wallet == "" {
		return view, nil
	}

	out := *view
	entry, err := l.store.Entry(ctx, wallet)
	switch {
	case err == nil:
		out.UserRank = entry
	case errors.Is(err, domain.ErrNotFound):
		u, uerr := l.store.GetUser(ctx, wallet)
		if uerr != nil {
			if errors.Is(uerr, domain.ErrNotFound) {
				return &out, nil
			}
			return nil, uerr
		}
		e := domain.EntryFromUser(u, 0, l.now())
		out.UserRank = &e
	default:
		return nil, err
	}
	return &out, nil
}

func (l *Leaderboard) top(ctx context.Context, limit int) (*domain.LeaderboardView, error) {
	if l.cache != nil {
		if v, ok := l.cache.GetView(ctx, limit); ok {
			return v, nil
		}
	}

	entries, err := l.store.TopEntries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top entries: %w", err)
	}
	stats, err := l.store.LeaderboardStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("leaderboard stats: %w", err)
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	v := &domain.LeaderboardView{Entries: entries, Stats: stats}

	if l.cache != nil {
		l.cache.SetView(ctx, limit, v)
	}
	return v, nil
}
