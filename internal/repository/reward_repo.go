package repository

import (
	"context"
	"errors"
	"time"

	"mission_rewards/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const rewardColumns = `id, wallet, source, payout_kind, currency, amount, badge, status,
	mission_id, description, scheduled_for, expires_at, settlement_token, error,
	processed_at, claimed_at, created_at, updated_at`

// RewardRepository handles the reward ledger
type RewardRepository struct {
	db *pgxpool.Pool
}

func NewRewardRepository(db *pgxpool.Pool) *RewardRepository {
	return &RewardRepository{db: db}
}

func scanReward(row pgx.Row) (*domain.Reward, error) {
	var rw domain.Reward
	if err := row.Scan(
		&rw.ID,
		&rw.Wallet,
		&rw.Source,
		&rw.Payout.Kind,
		&rw.Payout.Currency,
		&rw.Payout.Amount,
		&rw.Payout.Badge,
		&rw.Status,
		&rw.MissionID,
		&rw.Description,
		&rw.ScheduledFor,
		&rw.ExpiresAt,
		&rw.SettlementToken,
		&rw.Error,
		&rw.ProcessedAt,
		&rw.ClaimedAt,
		&rw.CreatedAt,
		&rw.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rw, nil
}

func collectRewards(rows pgx.Rows) ([]*domain.Reward, error) {
	defer rows.Close()
	var out []*domain.Reward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rw)
	}
	return out, mapErr(rows.Err(), "rewards")
}

func insertReward(ctx context.Context, q querier, rw *domain.Reward) error {
	_, err := q.Exec(ctx, `
		INSERT INTO rewards (id, wallet, source, payout_kind, currency, amount, badge, status,
			mission_id, description, scheduled_for, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		rw.ID, rw.Wallet, rw.Source, rw.Payout.Kind, rw.Payout.Currency, rw.Payout.Amount, rw.Payout.Badge,
		rw.Status, rw.MissionID, rw.Description, rw.ScheduledFor, rw.ExpiresAt, rw.CreatedAt,
	)
	return mapErr(err, "reward")
}

func (r *RewardRepository) CreateReward(ctx context.Context, rw *domain.Reward) error {
	return insertReward(ctx, r.db, rw)
}

func (r *RewardRepository) GetReward(ctx context.Context, id uuid.UUID) (*domain.Reward, error) {
	rw, err := scanReward(r.db.QueryRow(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "reward")
	}
	return rw, nil
}

func (r *RewardRepository) ListDueRewards(ctx context.Context, now time.Time, limit int) ([]*domain.Reward, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+rewardColumns+`
		FROM rewards
		WHERE status = 'pending'
		  AND (expires_at IS NULL OR expires_at >= $1)
		  AND (scheduled_for IS NULL OR scheduled_for <= $1)
		ORDER BY created_at, id
		LIMIT NULLIF($2::int, 0)`,
		now, limit,
	)
	if err != nil {
		return nil, mapErr(err, "rewards")
	}
	return collectRewards(rows)
}

func (r *RewardRepository) ExpireRewards(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE rewards SET status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, mapErr(err, "rewards")
	}
	return int(tag.RowsAffected()), nil
}

const rewardTransitionSQL = `
	UPDATE rewards SET
		status           = $3,
		settlement_token = COALESCE(NULLIF($4, ''), settlement_token),
		error            = COALESCE(NULLIF($5, ''), error),
		processed_at     = COALESCE($6, processed_at),
		updated_at       = $7
	WHERE id = $1 AND status = $2`

func transitionReward(ctx context.Context, q querier, id uuid.UUID, from, to domain.RewardStatus, u domain.RewardUpdate) (bool, error) {
	tag, err := q.Exec(ctx, rewardTransitionSQL, id, from, to, u.SettlementToken, u.Error, u.ProcessedAt, u.At)
	if err != nil {
		return false, mapErr(err, "reward")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rewards WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, mapErr(err, "reward")
	}
	if !exists {
		return false, domain.NotFound("reward")
	}
	return false, nil
}

func (r *RewardRepository) TransitionReward(ctx context.Context, id uuid.UUID, from, to domain.RewardStatus, u domain.RewardUpdate) (bool, error) {
	if !from.CanTransition(to) {
		return false, domain.Validation("illegal reward transition " + string(from) + " -> " + string(to))
	}
	return transitionReward(ctx, r.db, id, from, to, u)
}

func (r *RewardRepository) CreditReward(ctx context.Context, id uuid.UUID, u domain.RewardUpdate, delta domain.UserDelta) (bool, error) {
	ok := false
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var wallet string
		err := tx.QueryRow(ctx, rewardTransitionSQL+` RETURNING wallet`,
			id, domain.RewardProcessing, domain.RewardCompleted,
			u.SettlementToken, u.Error, u.ProcessedAt, u.At,
		).Scan(&wallet)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rewards WHERE id = $1)`, id).Scan(&exists); err != nil {
				return mapErr(err, "reward")
			}
			if !exists {
				return domain.NotFound("reward")
			}
			return nil
		}
		if err != nil {
			return mapErr(err, "reward")
		}
		if err := applyUserDelta(ctx, tx, wallet, delta); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ClaimReward moves min(amount, pending balance) from pending to claimed;
// the balance may already have been swept by a claim-all.
func (r *RewardRepository) ClaimReward(ctx context.Context, id uuid.UUID, wallet string, now time.Time) (*domain.Reward, error) {
	var out *domain.Reward
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		rw, err := scanReward(tx.QueryRow(ctx,
			`SELECT `+rewardColumns+` FROM rewards WHERE id = $1 AND wallet = $2 FOR UPDATE`, id, wallet))
		if err != nil {
			return mapErr(err, "claimable reward")
		}
		if !rw.Claimable() {
			return domain.NotFound("claimable reward")
		}

		var pending decimal.Decimal
		if err := tx.QueryRow(ctx,
			`SELECT pending_rewards FROM users WHERE wallet = $1 FOR UPDATE`, wallet,
		).Scan(&pending); err != nil {
			return mapErr(err, "user")
		}
		amount := rw.Payout.Amount
		if pending.LessThan(amount) {
			amount = pending
		}

		if _, err := tx.Exec(ctx, `
			UPDATE users
			SET pending_rewards = pending_rewards - $2, claimed_rewards = claimed_rewards + $2, updated_at = $3
			WHERE wallet = $1`,
			wallet, amount, now,
		); err != nil {
			return mapErr(err, "user")
		}
		if _, err := tx.Exec(ctx,
			`UPDATE rewards SET claimed_at = $2, updated_at = $2 WHERE id = $1`, id, now,
		); err != nil {
			return mapErr(err, "reward")
		}

		t := now
		rw.ClaimedAt = &t
		rw.UpdatedAt = now
		rw.Payout.Amount = amount
		out = rw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RewardRepository) ListRewards(ctx context.Context, wallet string, f domain.RewardFilter) ([]*domain.Reward, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+rewardColumns+`
		FROM rewards
		WHERE wallet = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT NULLIF($3::int, 0)`,
		wallet, status, f.Limit,
	)
	if err != nil {
		return nil, mapErr(err, "rewards")
	}
	return collectRewards(rows)
}

func (r *RewardRepository) RecentAirdropWallets(ctx context.Context, since time.Time) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT wallet FROM rewards
		WHERE source = 'airdrop' AND created_at >= $1
		  AND status IN ('pending', 'processing', 'completed')`,
		since,
	)
	if err != nil {
		return nil, mapErr(err, "rewards")
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out[w] = true
	}
	return out, mapErr(rows.Err(), "rewards")
}

func (r *RewardRepository) CountRewards(ctx context.Context) (map[domain.RewardStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM rewards GROUP BY status`)
	if err != nil {
		return nil, mapErr(err, "rewards")
	}
	defer rows.Close()

	out := map[domain.RewardStatus]int{}
	for rows.Next() {
		var s domain.RewardStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, mapErr(rows.Err(), "rewards")
}
