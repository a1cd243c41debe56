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

// BeamRepository keeps the singleton airdrop state row (id = 1)
type BeamRepository struct {
	db *pgxpool.Pool
}

func NewBeamRepository(db *pgxpool.Pool) *BeamRepository {
	return &BeamRepository{db: db}
}

func (r *BeamRepository) LoadBeamState(ctx context.Context) (*domain.BeamState, error) {
	st := domain.BeamState{AmountByCurrency: map[domain.Currency]decimal.Decimal{}}
	var byCurrency []byte
	err := r.db.QueryRow(ctx, `
		SELECT last_beam_at, total_beams, total_recipients, total_beam_amount, amount_by_currency, updated_at
		FROM beam_state WHERE id = 1`,
	).Scan(&st.LastBeamAt, &st.TotalBeams, &st.TotalRecipients, &st.TotalBeamAmount, &byCurrency, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &st, nil
	}
	if err != nil {
		return nil, mapErr(err, "beam state")
	}
	if len(byCurrency) > 0 {
		if err := json.Unmarshal(byCurrency, &st.AmountByCurrency); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

// SaveBeamState is a compare-and-set on last_beam_at. The first save also
// creates the row when the migration seed is missing.
func (r *BeamRepository) SaveBeamState(ctx context.Context, prev *time.Time, next domain.BeamState) (bool, error) {
	byCurrency, err := json.Marshal(next.AmountByCurrency)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE beam_state SET
			last_beam_at       = $2,
			total_beams        = $3,
			total_recipients   = $4,
			total_beam_amount  = $5,
			amount_by_currency = $6,
			updated_at         = $7
		WHERE id = 1 AND last_beam_at IS NOT DISTINCT FROM $1`,
		prev, next.LastBeamAt, next.TotalBeams, next.TotalRecipients, next.TotalBeamAmount, byCurrency, next.UpdatedAt,
	)
	if err != nil {
		return false, mapErr(err, "beam state")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if prev != nil {
		return false, nil
	}

	tag, err = r.db.Exec(ctx, `
		INSERT INTO beam_state (id, last_beam_at, total_beams, total_recipients, total_beam_amount, amount_by_currency, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		next.LastBeamAt, next.TotalBeams, next.TotalRecipients, next.TotalBeamAmount, byCurrency, next.UpdatedAt,
	)
	if err != nil {
		return false, mapErr(err, "beam state")
	}
	return tag.RowsAffected() == 1, nil
}
