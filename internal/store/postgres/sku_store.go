package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdtonline/repricer/internal/domain"
)

// SkuStore implements domain.SkuStore using PostgreSQL.
type SkuStore struct {
	pool *pgxpool.Pool
}

// NewSkuStore creates a new SkuStore backed by the given connection pool.
func NewSkuStore(pool *pgxpool.Pool) *SkuStore {
	return &SkuStore{pool: pool}
}

const skuColumns = `
	id, sku, asin, marketplace_id, min_price, min_business_price,
	last_floor_sync, hold_buy_box, last_price, last_business_price,
	last_price_update, profile_id`

func scanSku(row pgx.Row) (domain.Sku, error) {
	var s domain.Sku
	err := row.Scan(
		&s.ID, &s.SkuCode, &s.ASIN, &s.MarketplaceID, &s.MinPrice, &s.MinBusinessPrice,
		&s.LastFloorSync, &s.HoldBuyBox, &s.LastPrice, &s.LastBusinessPrice,
		&s.LastPriceUpdate, &s.ProfileID,
	)
	return s, err
}

// ListByMarketplace returns all SKUs of a marketplace, optionally restricted
// to one profile.
func (s *SkuStore) ListByMarketplace(ctx context.Context, marketplaceID int64, profileID *int64) ([]domain.Sku, error) {
	query := `SELECT ` + skuColumns + ` FROM skus WHERE marketplace_id = $1`
	args := []any{marketplaceID}
	if profileID != nil {
		query += ` AND profile_id = $2`
		args = append(args, *profileID)
	}
	query += ` ORDER BY sku`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list skus for marketplace %d: %w", marketplaceID, err)
	}
	defer rows.Close()

	var skus []domain.Sku
	for rows.Next() {
		sku, err := scanSku(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan sku: %w", err)
		}
		skus = append(skus, sku)
	}
	return skus, rows.Err()
}

// GetBySkuCode returns one SKU by its code within a marketplace. Returns
// domain.ErrNotFound when absent.
func (s *SkuStore) GetBySkuCode(ctx context.Context, marketplaceID int64, skuCode string) (domain.Sku, error) {
	query := `SELECT ` + skuColumns + ` FROM skus WHERE marketplace_id = $1 AND sku = $2`

	sku, err := scanSku(s.pool.QueryRow(ctx, query, marketplaceID, skuCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sku{}, domain.ErrNotFound
		}
		return domain.Sku{}, fmt.Errorf("postgres: get sku %s: %w", skuCode, err)
	}
	return sku, nil
}

// ProfileCadences returns the distinct (profile, cadence) pairs currently
// assigned to the marketplace's SKUs.
func (s *SkuStore) ProfileCadences(ctx context.Context, marketplaceID int64) ([]domain.ProfileCadence, error) {
	const query = `
		SELECT DISTINCT p.id, p.frequency_minutes
		FROM skus s
		JOIN repricing_profiles p ON p.id = s.profile_id
		WHERE s.marketplace_id = $1`

	rows, err := s.pool.Query(ctx, query, marketplaceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: profile cadences for marketplace %d: %w", marketplaceID, err)
	}
	defer rows.Close()

	var cadences []domain.ProfileCadence
	for rows.Next() {
		var c domain.ProfileCadence
		if err := rows.Scan(&c.ProfileID, &c.FrequencyMinutes); err != nil {
			return nil, fmt.Errorf("postgres: scan profile cadence: %w", err)
		}
		cadences = append(cadences, c)
	}
	return cadences, rows.Err()
}

// CountUnprofiled returns how many SKUs of the marketplace carry no profile.
func (s *SkuStore) CountUnprofiled(ctx context.Context, marketplaceID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM skus WHERE marketplace_id = $1 AND profile_id IS NULL`

	var count int64
	if err := s.pool.QueryRow(ctx, query, marketplaceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count unprofiled skus for marketplace %d: %w", marketplaceID, err)
	}
	return count, nil
}

// ApplyPriceChange updates the SKU's last submitted prices and appends the
// audit event in one transaction, so a SKU's last price never moves without
// its price event.
func (s *SkuStore) ApplyPriceChange(ctx context.Context, skuID int64, update domain.SkuPriceUpdate, event domain.PriceEvent) error {
	contextJSON, err := json.Marshal(event.Context)
	if err != nil {
		return fmt.Errorf("postgres: marshal event context: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin price change for sku %d: %w", skuID, err)
	}
	defer tx.Rollback(ctx)

	const updateQuery = `
		UPDATE skus SET
			last_price = $2,
			last_business_price = $3,
			last_price_update = $4
		WHERE id = $1`

	tag, err := tx.Exec(ctx, updateQuery, skuID, update.Price, update.BusinessPrice, update.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update sku %d price: %w", skuID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	const eventQuery = `
		INSERT INTO price_events (
			sku_id, created_at, old_price, new_price,
			old_business_price, new_business_price, reason, context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, eventQuery,
		event.SkuID, event.CreatedAt, event.OldPrice, event.NewPrice,
		event.OldBusinessPrice, event.NewBusinessPrice, event.Reason, contextJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: append price event for sku %d: %w", skuID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit price change for sku %d: %w", skuID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SkuStore = (*SkuStore)(nil)
