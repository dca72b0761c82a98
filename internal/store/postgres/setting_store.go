package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdtonline/repricer/internal/domain"
)

// SettingStore implements domain.SettingStore using PostgreSQL.
type SettingStore struct {
	pool *pgxpool.Pool
}

// NewSettingStore creates a new SettingStore backed by the given connection
// pool.
func NewSettingStore(pool *pgxpool.Pool) *SettingStore {
	return &SettingStore{pool: pool}
}

// Get returns one setting. Returns domain.ErrNotFound when the key has never
// been set.
func (s *SettingStore) Get(ctx context.Context, key string) (domain.SystemSetting, error) {
	const query = `SELECT key, value, updated_at FROM system_settings WHERE key = $1`

	var setting domain.SystemSetting
	err := s.pool.QueryRow(ctx, query, key).Scan(&setting.Key, &setting.Value, &setting.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SystemSetting{}, domain.ErrNotFound
		}
		return domain.SystemSetting{}, fmt.Errorf("postgres: get setting %s: %w", key, err)
	}
	return setting, nil
}

// Set upserts one setting.
func (s *SettingStore) Set(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres: set setting %s: %w", key, err)
	}
	return nil
}

// List returns all settings ordered by key.
func (s *SettingStore) List(ctx context.Context) ([]domain.SystemSetting, error) {
	const query = `SELECT key, value, updated_at FROM system_settings ORDER BY key`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settings: %w", err)
	}
	defer rows.Close()

	var settings []domain.SystemSetting
	for rows.Next() {
		var setting domain.SystemSetting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan setting: %w", err)
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// Compile-time interface check.
var _ domain.SettingStore = (*SettingStore)(nil)
