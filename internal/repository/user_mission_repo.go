package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mission_rewards/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userMissionColumns = `wallet, mission_id, status, progress, started_at,
	completed_at, claimed_at, rewards_claimed, last_evaluated`

// UserMissionRepository stores per-wallet mission progress
type UserMissionRepository struct {
	db *pgxpool.Pool
}

func NewUserMissionRepository(db *pgxpool.Pool) *UserMissionRepository {
	return &UserMissionRepository{db: db}
}

func scanUserMission(row pgx.Row) (*domain.UserMission, error) {
	var um domain.UserMission
	var progress, snapshot []byte
	if err := row.Scan(
		&um.Wallet,
		&um.MissionID,
		&um.Status,
		&progress,
		&um.StartedAt,
		&um.CompletedAt,
		&um.ClaimedAt,
		&snapshot,
		&um.LastEvaluated,
	); err != nil {
		return nil, err
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &um.Progress); err != nil {
			return nil, err
		}
	}
	if len(snapshot) > 0 && string(snapshot) != "null" {
		um.RewardsClaimed = &domain.RewardSnapshot{}
		if err := json.Unmarshal(snapshot, um.RewardsClaimed); err != nil {
			return nil, err
		}
	}
	return &um, nil
}

func (r *UserMissionRepository) GetUserMission(ctx context.Context, wallet, missionID string) (*domain.UserMission, error) {
	um, err := scanUserMission(r.db.QueryRow(ctx,
		`SELECT `+userMissionColumns+` FROM user_missions WHERE wallet = $1 AND mission_id = $2`,
		wallet, missionID,
	))
	if err != nil {
		return nil, mapErr(err, "user mission")
	}
	return um, nil
}

func (r *UserMissionRepository) ListUserMissions(ctx context.Context, wallet string) ([]*domain.UserMission, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userMissionColumns+` FROM user_missions WHERE wallet = $1 ORDER BY mission_id`,
		wallet,
	)
	if err != nil {
		return nil, mapErr(err, "user missions")
	}
	return collectUserMissions(rows)
}

func collectUserMissions(rows pgx.Rows) ([]*domain.UserMission, error) {
	defer rows.Close()
	var out []*domain.UserMission
	for rows.Next() {
		um, err := scanUserMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, um)
	}
	return out, mapErr(rows.Err(), "user missions")
}

// lockMission takes the mission row lock. Participate and CompleteMission
// both take it first, which serializes cap checks and completions.
func lockMission(ctx context.Context, tx pgx.Tx, id string) (completions, capacity int, err error) {
	err = tx.QueryRow(ctx,
		`SELECT current_completions, max_completions FROM missions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&completions, &capacity)
	return completions, capacity, mapErr(err, "mission")
}

func (r *UserMissionRepository) Participate(ctx context.Context, um *domain.UserMission) (*domain.UserMission, bool, error) {
	var (
		row     *domain.UserMission
		created bool
	)
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		completions, capacity, err := lockMission(ctx, tx, um.MissionID)
		if err != nil {
			return err
		}

		existing, err := scanUserMission(tx.QueryRow(ctx,
			`SELECT `+userMissionColumns+` FROM user_missions WHERE wallet = $1 AND mission_id = $2`,
			um.Wallet, um.MissionID,
		))
		if err == nil {
			row = existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return mapErr(err, "user mission")
		}

		if capacity > 0 && completions >= capacity {
			return domain.Conflict("mission completion cap reached")
		}

		progress, err := json.Marshal(um.Progress)
		if err != nil {
			return err
		}
		row, err = scanUserMission(tx.QueryRow(ctx, `
			INSERT INTO user_missions (wallet, mission_id, status, progress, started_at, last_evaluated)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+userMissionColumns,
			um.Wallet, um.MissionID, um.Status, progress, um.StartedAt, um.LastEvaluated,
		))
		if err != nil {
			return mapErr(err, "user mission")
		}
		created = true

		_, err = tx.Exec(ctx, `UPDATE missions SET participants = participants + 1, updated_at = now() WHERE id = $1`, um.MissionID)
		return mapErr(err, "mission")
	})
	if err != nil {
		return nil, false, err
	}
	return row, created, nil
}

// SaveProgress never lowers the stored percentage and never touches a
// claimed row's progress.
func (r *UserMissionRepository) SaveProgress(ctx context.Context, wallet, missionID string, p domain.Progress, now time.Time) error {
	progress, err := json.Marshal(p)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE user_missions SET
			progress = CASE
				WHEN $3::float8 > COALESCE((progress->>'percentage')::float8, 0) AND status <> 'claimed'
				THEN $4::jsonb ELSE progress END,
			status = CASE
				WHEN status = 'not_started' AND $3::float8 > 0 THEN 'in_progress' ELSE status END,
			last_evaluated = $5
		WHERE wallet = $1 AND mission_id = $2`,
		wallet, missionID, p.Percentage, progress, now,
	)
	if err != nil {
		return mapErr(err, "user mission")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("user mission")
	}
	return nil
}

// CompleteMission flips the user mission to completed and applies the
// user credit, the completion counter and the pending reward in one
// transaction. Only the caller that performs the flip gets won=true.
func (r *UserMissionRepository) CompleteMission(ctx context.Context, c domain.Completion) (bool, error) {
	won := false
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, _, err := lockMission(ctx, tx, c.MissionID); err != nil {
			return err
		}

		var status domain.UserMissionStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM user_missions WHERE wallet = $1 AND mission_id = $2 FOR UPDATE`,
			c.Wallet, c.MissionID,
		).Scan(&status)
		exists := err == nil
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return mapErr(err, "user mission")
		}
		if exists && status.Done() {
			return nil
		}

		progress, err := json.Marshal(c.Progress)
		if err != nil {
			return err
		}
		snapshot, err := json.Marshal(c.Snapshot)
		if err != nil {
			return err
		}

		if exists {
			_, err = tx.Exec(ctx, `
				UPDATE user_missions
				SET status = 'completed', progress = $3, completed_at = $4, last_evaluated = $4, rewards_claimed = $5
				WHERE wallet = $1 AND mission_id = $2`,
				c.Wallet, c.MissionID, progress, c.At, snapshot,
			)
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO user_missions (wallet, mission_id, status, progress, started_at, completed_at, last_evaluated, rewards_claimed)
				VALUES ($1, $2, 'completed', $3, $4, $4, $4, $5)`,
				c.Wallet, c.MissionID, progress, c.At, snapshot,
			)
		}
		if err != nil {
			return mapErr(err, "user mission")
		}

		if err := applyUserDelta(ctx, tx, c.Wallet, c.Delta); err != nil {
			return err
		}

		participants := 0
		if !exists {
			participants = 1
		}
		if _, err := tx.Exec(ctx, `
			UPDATE missions
			SET current_completions = current_completions + 1, participants = participants + $2, updated_at = now()
			WHERE id = $1`,
			c.MissionID, participants,
		); err != nil {
			return mapErr(err, "mission")
		}

		if c.Reward != nil {
			if err := insertReward(ctx, tx, c.Reward); err != nil {
				return err
			}
		}
		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (r *UserMissionRepository) ClaimUserMission(ctx context.Context, wallet, missionID string, now time.Time) (*domain.UserMission, error) {
	um, err := scanUserMission(r.db.QueryRow(ctx, `
		UPDATE user_missions SET status = 'claimed', claimed_at = $3
		WHERE wallet = $1 AND mission_id = $2 AND status = 'completed'
		RETURNING `+userMissionColumns,
		wallet, missionID, now,
	))
	if err != nil {
		return nil, mapErr(err, "completed mission")
	}
	return um, nil
}

func (r *UserMissionRepository) ListStaleUserMissions(ctx context.Context, before time.Time, limit int) ([]*domain.UserMission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userMissionColumns+`
		FROM user_missions
		WHERE status IN ('not_started', 'in_progress')
		  AND (last_evaluated IS NULL OR last_evaluated < $1)
		ORDER BY last_evaluated NULLS FIRST
		LIMIT NULLIF($2::int, 0)`,
		before, limit,
	)
	if err != nil {
		return nil, mapErr(err, "user missions")
	}
	return collectUserMissions(rows)
}

func (r *UserMissionRepository) CountUserMissions(ctx context.Context) (map[domain.UserMissionStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM user_missions GROUP BY status`)
	if err != nil {
		return nil, mapErr(err, "user missions")
	}
	defer rows.Close()

	out := map[domain.UserMissionStatus]int{}
	for rows.Next() {
		var s domain.UserMissionStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, mapErr(rows.Err(), "user missions")
}
