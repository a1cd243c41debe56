package repository

import (
	"context"
	"encoding/json"

	"mission_rewards/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const missionColumns = `id, title, description, category, difficulty, requirement, reward,
	start_date, end_date, participants, current_completions, max_completions,
	is_active, sort_order, created_at, updated_at`

// MissionRepository handles the mission catalog
type MissionRepository struct {
	db *pgxpool.Pool
}

func NewMissionRepository(db *pgxpool.Pool) *MissionRepository {
	return &MissionRepository{db: db}
}

func scanMission(row pgx.Row) (*domain.Mission, error) {
	var m domain.Mission
	var req, reward []byte
	if err := row.Scan(
		&m.ID,
		&m.Title,
		&m.Description,
		&m.Category,
		&m.Difficulty,
		&req,
		&reward,
		&m.StartDate,
		&m.EndDate,
		&m.Participants,
		&m.CurrentCompletions,
		&m.MaxCompletions,
		&m.IsActive,
		&m.SortOrder,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(req, &m.Requirement); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reward, &m.Reward); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MissionRepository) GetMission(ctx context.Context, id string) (*domain.Mission, error) {
	m, err := scanMission(r.db.QueryRow(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "mission")
	}
	return m, nil
}

func (r *MissionRepository) ListMissions(ctx context.Context, activeOnly bool) ([]*domain.Mission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+missionColumns+`
		FROM missions
		WHERE ($1 = FALSE OR is_active)
		ORDER BY sort_order, id`,
		activeOnly,
	)
	if err != nil {
		return nil, mapErr(err, "missions")
	}
	defer rows.Close()

	var out []*domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, mapErr(rows.Err(), "missions")
}

// UpsertMission writes the catalog fields. participants and
// current_completions belong to the pipeline and are read back, not written.
func (r *MissionRepository) UpsertMission(ctx context.Context, m *domain.Mission) error {
	req, err := json.Marshal(m.Requirement)
	if err != nil {
		return err
	}
	reward, err := json.Marshal(m.Reward)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO missions (id, title, description, category, difficulty, requirement, reward,
			start_date, end_date, max_completions, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title           = EXCLUDED.title,
			description     = EXCLUDED.description,
			category        = EXCLUDED.category,
			difficulty      = EXCLUDED.difficulty,
			requirement     = EXCLUDED.requirement,
			reward          = EXCLUDED.reward,
			start_date      = EXCLUDED.start_date,
			end_date        = EXCLUDED.end_date,
			max_completions = EXCLUDED.max_completions,
			is_active       = EXCLUDED.is_active,
			sort_order      = EXCLUDED.sort_order,
			updated_at      = now()
		RETURNING participants, current_completions, created_at, updated_at`,
		m.ID, m.Title, m.Description, m.Category, m.Difficulty, req, reward,
		m.StartDate, m.EndDate, m.MaxCompletions, m.IsActive, m.SortOrder,
	).Scan(&m.Participants, &m.CurrentCompletions, &m.CreatedAt, &m.UpdatedAt)
	return mapErr(err, "mission")
}
