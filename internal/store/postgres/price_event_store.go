package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdtonline/repricer/internal/domain"
)

// PriceEventStore implements domain.PriceEventStore using PostgreSQL. The
// table is append-only; events are never mutated after creation.
type PriceEventStore struct {
	pool *pgxpool.Pool
}

// NewPriceEventStore creates a new PriceEventStore backed by the given
// connection pool.
func NewPriceEventStore(pool *pgxpool.Pool) *PriceEventStore {
	return &PriceEventStore{pool: pool}
}

// Append inserts a new price event. The context map is stored as JSONB.
func (s *PriceEventStore) Append(ctx context.Context, event domain.PriceEvent) error {
	contextJSON, err := json.Marshal(event.Context)
	if err != nil {
		return fmt.Errorf("postgres: marshal event context: %w", err)
	}

	const query = `
		INSERT INTO price_events (
			sku_id, created_at, old_price, new_price,
			old_business_price, new_business_price, reason, context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, query,
		event.SkuID, event.CreatedAt, event.OldPrice, event.NewPrice,
		event.OldBusinessPrice, event.NewBusinessPrice, event.Reason, contextJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: append price event for sku %d: %w", event.SkuID, err)
	}
	return nil
}

// ListRecent returns price events ordered newest first.
func (s *PriceEventStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.PriceEvent, error) {
	return s.list(ctx, `SELECT `+eventColumns+` FROM price_events`, nil, opts)
}

// ListBySku returns price events for one SKU ordered newest first.
func (s *PriceEventStore) ListBySku(ctx context.Context, skuID int64, opts domain.ListOpts) ([]domain.PriceEvent, error) {
	return s.list(ctx, `SELECT `+eventColumns+` FROM price_events WHERE sku_id = $1`, []any{skuID}, opts)
}

const eventColumns = `
	id, sku_id, created_at, old_price, new_price,
	old_business_price, new_business_price, reason, context`

func (s *PriceEventStore) list(ctx context.Context, query string, args []any, opts domain.ListOpts) ([]domain.PriceEvent, error) {
	query += ` ORDER BY created_at DESC`
	argIdx := len(args) + 1
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
		return nil, fmt.Errorf("postgres: list price events: %w", err)
	}
	defer rows.Close()

	var events []domain.PriceEvent
	for rows.Next() {
		var e domain.PriceEvent
		var contextJSON []byte
		err := rows.Scan(
			&e.ID, &e.SkuID, &e.CreatedAt, &e.OldPrice, &e.NewPrice,
			&e.OldBusinessPrice, &e.NewBusinessPrice, &e.Reason, &contextJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan price event: %w", err)
		}
		if len(contextJSON) > 0 {
			_ = json.Unmarshal(contextJSON, &e.Context)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Compile-time interface check.
var _ domain.PriceEventStore = (*PriceEventStore)(nil)
