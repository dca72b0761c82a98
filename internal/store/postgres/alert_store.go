package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdtonline/repricer/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Create inserts a new alert row. The metadata map is stored as JSONB.
func (s *AlertStore) Create(ctx context.Context, alert domain.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	metadataJSON, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal alert metadata: %w", err)
	}

	const query = `
		INSERT INTO alerts (created_at, message, severity, metadata)
		VALUES ($1, $2, $3, $4)`

	_, err = s.pool.Exec(ctx, query, alert.CreatedAt, alert.Message, alert.Severity, metadataJSON)
	if err != nil {
		return fmt.Errorf("postgres: create alert: %w", err)
	}
	return nil
}

// ListRecent returns alerts ordered newest first.
func (s *AlertStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Alert, error) {
	query := `
		SELECT id, created_at, message, severity, metadata, acknowledged
		FROM alerts
		ORDER BY created_at DESC`
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
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var metadataJSON []byte
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.Message, &a.Severity, &metadataJSON, &a.Acknowledged); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &a.Metadata)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Acknowledge marks one alert as acknowledged.
func (s *AlertStore) Acknowledge(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: acknowledge alert %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.AlertStore = (*AlertStore)(nil)
