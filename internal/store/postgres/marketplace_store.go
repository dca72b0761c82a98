package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdtonline/repricer/internal/domain"
)

// MarketplaceStore implements domain.MarketplaceStore using PostgreSQL.
type MarketplaceStore struct {
	pool *pgxpool.Pool
}

// NewMarketplaceStore creates a new MarketplaceStore backed by the given
// connection pool.
func NewMarketplaceStore(pool *pgxpool.Pool) *MarketplaceStore {
	return &MarketplaceStore{pool: pool}
}

// GetByCode returns the marketplace with the given short code. Returns
// domain.ErrNotFound when no marketplace matches.
func (s *MarketplaceStore) GetByCode(ctx context.Context, code string) (domain.Marketplace, error) {
	const query = `
		SELECT id, code, name, external_id
		FROM marketplaces
		WHERE code = $1`

	var m domain.Marketplace
	err := s.pool.QueryRow(ctx, query, code).Scan(&m.ID, &m.Code, &m.Name, &m.ExternalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Marketplace{}, domain.ErrNotFound
		}
		return domain.Marketplace{}, fmt.Errorf("postgres: get marketplace %s: %w", code, err)
	}
	return m, nil
}

// List returns all registered marketplaces ordered by code.
func (s *MarketplaceStore) List(ctx context.Context) ([]domain.Marketplace, error) {
	const query = `SELECT id, code, name, external_id FROM marketplaces ORDER BY code`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list marketplaces: %w", err)
	}
	defer rows.Close()

	var markets []domain.Marketplace
	for rows.Next() {
		var m domain.Marketplace
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &m.ExternalID); err != nil {
			return nil, fmt.Errorf("postgres: scan marketplace: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Ensure inserts the marketplace if its code is not yet registered. Existing
// rows are left untouched; marketplace edits are an explicit admin action.
func (s *MarketplaceStore) Ensure(ctx context.Context, m domain.Marketplace) error {
	const query = `
		INSERT INTO marketplaces (code, name, external_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, m.Code, m.Name, m.ExternalID); err != nil {
		return fmt.Errorf("postgres: ensure marketplace %s: %w", m.Code, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketplaceStore = (*MarketplaceStore)(nil)
