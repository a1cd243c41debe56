package repository

import (
	"context"
	"errors"
	"net"
	"strings"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so helpers can run
// inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres implementation of store.Store, composed from the
// per-table repositories.
type Store struct {
	*UserRepository
	*MissionRepository
	*UserMissionRepository
	*RewardRepository
	*LeaderboardRepository
	*BeamRepository
	*AuditRepository

	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		UserRepository:        NewUserRepository(db),
		MissionRepository:     NewMissionRepository(db),
		UserMissionRepository: NewUserMissionRepository(db),
		RewardRepository:      NewRewardRepository(db),
		LeaderboardRepository: NewLeaderboardRepository(db),
		BeamRepository:        NewBeamRepository(db),
		AuditRepository:       NewAuditRepository(db),
		db:                    db,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.db.Ping(ctx), "database")
}

// mapErr translates driver errors into domain errors. Connection loss,
// serialization failures and timeouts become transient so the store guard
// retries them; everything else is passed through.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound(what)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return domain.Conflict(what + " already exists")
		case pgErr.Code == "23503":
			return domain.NotFound(pgErr.ConstraintName)
		case pgErr.Code == "23514":
			return domain.Validation(pgErr.ConstraintName)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01", // deadlock_detected
			pgErr.Code == "53300", // too_many_connections
			pgErr.Code == "57P01": // admin_shutdown
			return domain.Transient(err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return domain.Transient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.Transient(err)
	}
	return err
}

func inTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db, fn)
}
