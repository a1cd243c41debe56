package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mission_rewards/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const userColumns = `wallet, username, total_points, level, rank, badges, missions_completed,
	pending_rewards, claimed_rewards, total_rewards_earned,
	games_played, games_won, trade_count, trading_volume, referrals, referred_by,
	twitter_handle, discord_id, telegram_id, last_active, created_at, updated_at`

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row, extra ...any) (*domain.User, error) {
	var u domain.User
	var badges []byte
	dest := []any{
		&u.Wallet,
		&u.Username,
		&u.TotalPoints,
		&u.Level,
		&u.Rank,
		&badges,
		&u.MissionsCompleted,
		&u.PendingRewards,
		&u.ClaimedRewards,
		&u.TotalRewardsEarned,
		&u.GamesPlayed,
		&u.GamesWon,
		&u.TradeCount,
		&u.TradingVolume,
		&u.Referrals,
		&u.ReferredBy,
		&u.TwitterHandle,
		&u.DiscordID,
		&u.TelegramID,
		&u.LastActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(badges) > 0 {
		if err := json.Unmarshal(badges, &u.Badges); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (r *UserRepository) GetUser(ctx context.Context, wallet string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE wallet = $1`, wallet))
	if err != nil {
		return nil, mapErr(err, "user")
	}
	return u, nil
}

// ConnectUser upserts the wallet; xmax = 0 only for a freshly inserted row.
func (r *UserRepository) ConnectUser(ctx context.Context, wallet, username string, now time.Time) (*domain.User, bool, error) {
	var created bool
	u, err := scanUser(r.db.QueryRow(ctx, `
		INSERT INTO users (wallet, username, level, last_active, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $3, $3)
		ON CONFLICT (wallet) DO UPDATE
		SET last_active = EXCLUDED.last_active, updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns+`, (xmax = 0)`,
		wallet, username, now,
	), &created)
	if err != nil {
		return nil, false, mapErr(err, "user")
	}
	return u, created, nil
}

func (r *UserRepository) SetReferrer(ctx context.Context, wallet, referrer string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET referred_by = $2, updated_at = now()
		 WHERE wallet = $1 AND referred_by IS NULL`,
		wallet, referrer,
	)
	if err != nil {
		return mapErr(err, "user")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetUser(ctx, wallet); err != nil {
		return err
	}
	return domain.Conflict("referrer already set")
}

// userDeltaSQL increments every counter in one statement. Level follows
// the new point total, badges are appended, empty social ids are kept.
const userDeltaSQL = `
	UPDATE users SET
		total_points         = total_points + $2,
		level                = GREATEST(total_points + $2, 0) / 1000 + 1,
		missions_completed   = missions_completed + $3,
		pending_rewards      = pending_rewards + $4,
		total_rewards_earned = total_rewards_earned + $5,
		games_played         = games_played + $6,
		games_won            = games_won + $7,
		trade_count          = trade_count + $8,
		trading_volume       = trading_volume + $9,
		referrals            = referrals + $10,
		badges               = CASE WHEN $11::jsonb IS NULL THEN badges ELSE badges || $11::jsonb END,
		twitter_handle       = COALESCE(NULLIF($12, ''), twitter_handle),
		discord_id           = COALESCE(NULLIF($13, ''), discord_id),
		telegram_id          = COALESCE(NULLIF($14, ''), telegram_id),
		last_active          = COALESCE($15, last_active),
		updated_at           = COALESCE($15, now())
	WHERE wallet = $1`

func userDeltaArgs(wallet string, d domain.UserDelta) ([]any, error) {
	var badge []byte
	if d.Badge != nil {
		b, err := json.Marshal([]domain.Badge{*d.Badge})
		if err != nil {
			return nil, err
		}
		badge = b
	}
	var touched *time.Time
	if !d.TouchedAt.IsZero() {
		t := d.TouchedAt
		touched = &t
	}
	return []any{
		wallet,
		d.Points,
		d.MissionsCompleted,
		d.PendingRewards,
		d.TotalRewardsEarned,
		d.GamesPlayed,
		d.GamesWon,
		d.TradeCount,
		d.TradingVolume,
		d.Referrals,
		badge,
		d.TwitterHandle,
		d.DiscordID,
		d.TelegramID,
		touched,
	}, nil
}

// applyUserDelta runs the delta on q; ErrNotFound when the wallet is unknown.
func applyUserDelta(ctx context.Context, q querier, wallet string, d domain.UserDelta) error {
	args, err := userDeltaArgs(wallet, d)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, userDeltaSQL, args...)
	if err != nil {
		return mapErr(err, "user")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("user")
	}
	return nil
}

func (r *UserRepository) ApplyUserDelta(ctx context.Context, wallet string, d domain.UserDelta) (*domain.User, error) {
	args, err := userDeltaArgs(wallet, d)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(r.db.QueryRow(ctx, userDeltaSQL+` RETURNING `+userColumns, args...))
	if err != nil {
		return nil, mapErr(err, "user")
	}
	return u, nil
}

func (r *UserRepository) ClaimPendingBalance(ctx context.Context, wallet string, now time.Time) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			WITH prev AS (
				SELECT wallet, pending_rewards FROM users
				WHERE wallet = $1 AND pending_rewards > 0
				FOR UPDATE
			)
			UPDATE users u
			SET claimed_rewards = u.claimed_rewards + prev.pending_rewards,
			    pending_rewards = 0,
			    updated_at = $2
			FROM prev
			WHERE u.wallet = prev.wallet
			RETURNING prev.pending_rewards`,
			wallet, now,
		).Scan(&amount)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE wallet = $1)`, wallet).Scan(&exists); err != nil {
				return mapErr(err, "user")
			}
			if !exists {
				return domain.NotFound("user")
			}
			return domain.ErrNothingToClaim
		}
		if err != nil {
			return mapErr(err, "user")
		}

		_, err = tx.Exec(ctx, `
			UPDATE rewards SET claimed_at = $2, updated_at = $2
			WHERE wallet = $1 AND status = 'completed' AND payout_kind = 'currency' AND claimed_at IS NULL`,
			wallet, now,
		)
		return mapErr(err, "reward")
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (r *UserRepository) ListUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error) {
	var since *time.Time
	if !f.ActiveSince.IsZero() {
		since = &f.ActiveSince
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE total_points >= $1 AND ($2::timestamptz IS NULL OR last_active >= $2)
		ORDER BY wallet`,
		f.MinPoints, since,
	)
	if err != nil {
		return nil, mapErr(err, "users")
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, mapErr(rows.Err(), "users")
}
