package repository

import (
	"context"
	"encoding/json"

	"mission_rewards/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leaderboardColumns = `wallet, username, rank, total_points, level, missions_completed, badges, total_rewards, updated_at`

// LeaderboardRepository stores the ranked projection of users
type LeaderboardRepository struct {
	db *pgxpool.Pool
}

func NewLeaderboardRepository(db *pgxpool.Pool) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

func scanEntry(row pgx.Row) (*domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	var badges []byte
	if err := row.Scan(
		&e.Wallet,
		&e.Username,
		&e.Rank,
		&e.TotalPoints,
		&e.Level,
		&e.MissionsCompleted,
		&badges,
		&e.TotalRewards,
		&e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(badges, &e.Badges); err != nil {
		return nil, err
	}
	return &e, nil
}

// ReplaceRanks swaps the whole projection in one transaction. Readers see
// either the previous ranking or the new one.
func (r *LeaderboardRepository) ReplaceRanks(ctx context.Context, entries []domain.LeaderboardEntry) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		// concurrent recomputes queue here; readers are not blocked
		if _, err := tx.Exec(ctx, `LOCK TABLE leaderboard IN EXCLUSIVE MODE`); err != nil {
			return mapErr(err, "leaderboard")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM leaderboard`); err != nil {
			return mapErr(err, "leaderboard")
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			badges := e.Badges
			if badges == nil {
				badges = []string{}
			}
			b, err := json.Marshal(badges)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO leaderboard (`+leaderboardColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				e.Wallet, e.Username, e.Rank, e.TotalPoints, e.Level, e.MissionsCompleted, b, e.TotalRewards, e.UpdatedAt,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return mapErr(err, "leaderboard")
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE users u SET rank = l.rank
			FROM leaderboard l
			WHERE u.wallet = l.wallet AND u.rank <> l.rank`); err != nil {
			return mapErr(err, "users")
		}
		_, err := tx.Exec(ctx, `
			UPDATE users SET rank = 0
			WHERE rank <> 0 AND wallet NOT IN (SELECT wallet FROM leaderboard)`)
		return mapErr(err, "users")
	})
}

func (r *LeaderboardRepository) TopEntries(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+leaderboardColumns+` FROM leaderboard ORDER BY rank LIMIT NULLIF($1::int, 0)`, limit)
	if err != nil {
		return nil, mapErr(err, "leaderboard")
	}
	defer rows.Close()

	out := []domain.LeaderboardEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, mapErr(rows.Err(), "leaderboard")
}

func (r *LeaderboardRepository) Entry(ctx context.Context, wallet string) (*domain.LeaderboardEntry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+leaderboardColumns+` FROM leaderboard WHERE wallet = $1`, wallet))
	if err != nil {
		return nil, mapErr(err, "leaderboard entry")
	}
	return e, nil
}

func (r *LeaderboardRepository) LeaderboardStats(ctx context.Context) (domain.LeaderboardStats, error) {
	var st domain.LeaderboardStats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_points), 0)::bigint,
		       COALESCE(SUM(missions_completed), 0)::bigint,
		       COALESCE(AVG(GREATEST(total_points, 0) / 1000 + 1), 0)::float8
		FROM users`,
	).Scan(&st.TotalUsers, &st.TotalPointsDistributed, &st.TotalMissionsCompleted, &st.AverageLevel)
	return st, mapErr(err, "users")
}
