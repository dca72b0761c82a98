package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdtonline/repricer/internal/domain"
)

// TestDataStore implements domain.TestDataStore using PostgreSQL. Uploaded
// datasets replace any prior upload for the same marketplace; simulated runs
// read floors and offers from here instead of the live feed and API.
type TestDataStore struct {
	pool *pgxpool.Pool
}

// NewTestDataStore creates a new TestDataStore backed by the given
// connection pool.
func NewTestDataStore(pool *pgxpool.Pool) *TestDataStore {
	return &TestDataStore{pool: pool}
}

// ReplaceFloors swaps the uploaded floor prices for a marketplace.
func (s *TestDataStore) ReplaceFloors(ctx context.Context, marketplaceCode string, records []domain.FloorPriceRecord) error {
	code := strings.ToUpper(marketplaceCode)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace test floors: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM test_floor_prices WHERE marketplace_code = $1`, code); err != nil {
		return fmt.Errorf("postgres: clear test floors for %s: %w", code, err)
	}

	const insert = `
		INSERT INTO test_floor_prices (marketplace_code, sku, asin, min_price, min_business_price)
		VALUES ($1, $2, $3, $4, $5)`
	for _, r := range records {
		if _, err := tx.Exec(ctx, insert, code, r.SkuCode, r.ASIN, r.MinPrice, r.MinBusinessPrice); err != nil {
			return fmt.Errorf("postgres: insert test floor %s: %w", r.SkuCode, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit test floors for %s: %w", code, err)
	}
	return nil
}

// ReplaceOffers swaps the uploaded competitor offers for a marketplace.
func (s *TestDataStore) ReplaceOffers(ctx context.Context, marketplaceCode string, offers map[string][]domain.CompetitorOffer) error {
	code := strings.ToUpper(marketplaceCode)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace test offers: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM test_competitor_offers WHERE marketplace_code = $1`, code); err != nil {
		return fmt.Errorf("postgres: clear test offers for %s: %w", code, err)
	}

	const insert = `
		INSERT INTO test_competitor_offers (marketplace_code, asin, seller_id, price, is_buy_box, fulfillment_type)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for asin, list := range offers {
		for _, o := range list {
			if _, err := tx.Exec(ctx, insert, code, asin, o.SellerID, o.Price, o.IsBuyBox, o.FulfillmentType); err != nil {
				return fmt.Errorf("postgres: insert test offer %s: %w", asin, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit test offers for %s: %w", code, err)
	}
	return nil
}

// LoadFloors returns uploaded floor prices keyed by SKU code.
func (s *TestDataStore) LoadFloors(ctx context.Context, marketplaceCode string) (map[string]domain.FloorPriceRecord, error) {
	const query = `
		SELECT sku, asin, min_price, min_business_price
		FROM test_floor_prices
		WHERE marketplace_code = $1`

	rows, err := s.pool.Query(ctx, query, strings.ToUpper(marketplaceCode))
	if err != nil {
		return nil, fmt.Errorf("postgres: load test floors for %s: %w", marketplaceCode, err)
	}
	defer rows.Close()

	floors := make(map[string]domain.FloorPriceRecord)
	for rows.Next() {
		var r domain.FloorPriceRecord
		if err := rows.Scan(&r.SkuCode, &r.ASIN, &r.MinPrice, &r.MinBusinessPrice); err != nil {
			return nil, fmt.Errorf("postgres: scan test floor: %w", err)
		}
		floors[r.SkuCode] = r
	}
	return floors, rows.Err()
}

// LoadOffers returns uploaded competitor offers keyed by ASIN.
func (s *TestDataStore) LoadOffers(ctx context.Context, marketplaceCode string) (map[string][]domain.CompetitorOffer, error) {
	const query = `
		SELECT asin, seller_id, price, is_buy_box, fulfillment_type
		FROM test_competitor_offers
		WHERE marketplace_code = $1`

	rows, err := s.pool.Query(ctx, query, strings.ToUpper(marketplaceCode))
	if err != nil {
		return nil, fmt.Errorf("postgres: load test offers for %s: %w", marketplaceCode, err)
	}
	defer rows.Close()

	offers := make(map[string][]domain.CompetitorOffer)
	for rows.Next() {
		var asin string
		var o domain.CompetitorOffer
		if err := rows.Scan(&asin, &o.SellerID, &o.Price, &o.IsBuyBox, &o.FulfillmentType); err != nil {
			return nil, fmt.Errorf("postgres: scan test offer: %w", err)
		}
		offers[asin] = append(offers[asin], o)
	}
	return offers, rows.Err()
}

// Compile-time interface check.
var _ domain.TestDataStore = (*TestDataStore)(nil)
