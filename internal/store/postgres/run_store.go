package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdtonline/repricer/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Create persists a freshly started run.
func (s *RunStore) Create(ctx context.Context, run domain.RepricingRun) error {
	const query = `
		INSERT INTO repricing_runs (id, marketplace_id, started_at, status, processed, updated, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.MarketplaceID, run.StartedAt, run.Status,
		run.Processed, run.Updated, run.Errors,
	)
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", run.ID, err)
	}
	return nil
}

// Finalize stamps the run's end state and counters.
func (s *RunStore) Finalize(ctx context.Context, run domain.RepricingRun) error {
	const query = `
		UPDATE repricing_runs SET
			completed_at = $2,
			status = $3,
			processed = $4,
			updated = $5,
			errors = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		run.ID, run.CompletedAt, run.Status, run.Processed, run.Updated, run.Errors,
	)
	if err != nil {
		return fmt.Errorf("postgres: finalize run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns runs ordered newest first.
func (s *RunStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.RepricingRun, error) {
	query := `
		SELECT id, marketplace_id, started_at, completed_at, status, processed, updated, errors
		FROM repricing_runs
		ORDER BY started_at DESC`
	args := []any{}
	argIdx := 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RepricingRun
	for rows.Next() {
		var r domain.RepricingRun
		err := rows.Scan(
			&r.ID, &r.MarketplaceID, &r.StartedAt, &r.CompletedAt,
			&r.Status, &r.Processed, &r.Updated, &r.Errors,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Compile-time interface check.
var _ domain.RunStore = (*RunStore)(nil)
