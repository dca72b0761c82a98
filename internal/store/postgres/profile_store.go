package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdtonline/repricer/internal/domain"
)

// ProfileStore implements domain.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new ProfileStore backed by the given connection
// pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

const profileColumns = `
	id, name, frequency_minutes, undercut_percent, min_margin_percent,
	max_daily_change_percent, step_up_type, step_up_value, step_up_interval_hours`

func scanProfile(row pgx.Row) (domain.RepricingProfile, error) {
	var p domain.RepricingProfile
	var stepUpType *string
	err := row.Scan(
		&p.ID, &p.Name, &p.FrequencyMinutes, &p.UndercutPercent, &p.MinMarginPercent,
		&p.MaxDailyChangePercent, &stepUpType, &p.StepUpValue, &p.StepUpIntervalHours,
	)
	if err != nil {
		return domain.RepricingProfile{}, err
	}
	if stepUpType != nil {
		t := domain.StepUpType(*stepUpType)
		p.StepUpType = &t
	}
	return p, nil
}

// GetByID returns one profile. Returns domain.ErrNotFound when absent.
func (s *ProfileStore) GetByID(ctx context.Context, id int64) (domain.RepricingProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM repricing_profiles WHERE id = $1`

	p, err := scanProfile(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RepricingProfile{}, domain.ErrNotFound
		}
		return domain.RepricingProfile{}, fmt.Errorf("postgres: get profile %d: %w", id, err)
	}
	return p, nil
}

// List returns all profiles ordered by name.
func (s *ProfileStore) List(ctx context.Context) ([]domain.RepricingProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM repricing_profiles ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.RepricingProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Create inserts a new profile and returns its id.
func (s *ProfileStore) Create(ctx context.Context, p domain.RepricingProfile) (int64, error) {
	const query = `
		INSERT INTO repricing_profiles (
			name, frequency_minutes, undercut_percent, min_margin_percent,
			max_daily_change_percent, step_up_type, step_up_value, step_up_interval_hours
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		p.Name, p.FrequencyMinutes, p.UndercutPercent, p.MinMarginPercent,
		p.MaxDailyChangePercent, stepUpTypeArg(p.StepUpType), p.StepUpValue, p.StepUpIntervalHours,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create profile %s: %w", p.Name, err)
	}
	return id, nil
}

// Update replaces all policy fields of an existing profile.
func (s *ProfileStore) Update(ctx context.Context, p domain.RepricingProfile) error {
	const query = `
		UPDATE repricing_profiles SET
			name = $2,
			frequency_minutes = $3,
			undercut_percent = $4,
			min_margin_percent = $5,
			max_daily_change_percent = $6,
			step_up_type = $7,
			step_up_value = $8,
			step_up_interval_hours = $9
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Name, p.FrequencyMinutes, p.UndercutPercent, p.MinMarginPercent,
		p.MaxDailyChangePercent, stepUpTypeArg(p.StepUpType), p.StepUpValue, p.StepUpIntervalHours,
	)
	if err != nil {
		return fmt.Errorf("postgres: update profile %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a profile. SKUs referencing it fall back to the default
// policy via ON DELETE SET NULL.
func (s *ProfileStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM repricing_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete profile %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func stepUpTypeArg(t *domain.StepUpType) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

// Compile-time interface check.
var _ domain.ProfileStore = (*ProfileStore)(nil)
