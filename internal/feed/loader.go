package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sdtonline/repricer/internal/domain"
)

// Loader parses floor-price feeds from a Source and validates their
// freshness against a staleness threshold.
type Loader struct {
	source     Source
	staleAfter time.Duration
	logger     *slog.Logger

	// now is the clock used for freshness checks; overridable in tests.
	now func() time.Time
}

// NewLoader creates a Loader reading from the given source. Feeds older than
// staleAfter are reported as stale by IsFresh.
func NewLoader(source Source, staleAfter time.Duration, logger *slog.Logger) *Loader {
	return &Loader{
		source:     source,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "feed")),
		now:        time.Now,
	}
}

// IsFresh reports whether the marketplace's feed exists and was modified
// within the staleness threshold. A missing feed is not fresh.
func (l *Loader) IsFresh(ctx context.Context, marketplaceCode string) bool {
	body, modTime, err := l.source.Open(ctx, marketplaceCode)
	if err != nil {
		l.logger.WarnContext(ctx, "feed missing",
			slog.String("marketplace", marketplaceCode),
			slog.String("error", err.Error()),
		)
		return false
	}
	defer body.Close()

	fresh := l.now().Sub(modTime) < l.staleAfter
	if !fresh {
		l.logger.WarnContext(ctx, "feed stale",
			slog.String("marketplace", marketplaceCode),
			slog.Time("last_modified", modTime),
		)
	}
	return fresh
}

// Load parses the marketplace's feed into floor price records. It returns an
// error wrapping domain.ErrNotFound when the feed file is absent. Rows
// missing a SKU, ASIN, or minimum price are skipped.
func (l *Loader) Load(ctx context.Context, marketplaceCode string) ([]domain.FloorPriceRecord, error) {
	body, _, err := l.source.Open(ctx, marketplaceCode)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return parseFloorCSV(body)
}

// Feed column headers. MIN_BUSINESS_PRICE is optional.
const (
	colSku              = "SKU"
	colAsin             = "ASIN"
	colMinPrice         = "MIN_PRICE"
	colMinBusinessPrice = "MIN_BUSINESS_PRICE"
)

// parseFloorCSV reads a floor-price CSV with a header row. Required columns
// are SKU, ASIN, and MIN_PRICE.
func parseFloorCSV(r io.Reader) ([]domain.FloorPriceRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("feed: csv is missing headers")
		}
		return nil, fmt.Errorf("feed: read csv header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, required := range []string{colSku, colAsin, colMinPrice} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("feed: csv is missing column %s", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []domain.FloorPriceRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read csv row: %w", err)
		}

		sku := field(row, colSku)
		asin := field(row, colAsin)
		if sku == "" || asin == "" {
			continue
		}

		minPrice, err := strconv.ParseFloat(field(row, colMinPrice), 64)
		if err != nil {
			continue
		}

		record := domain.FloorPriceRecord{
			SkuCode:  sku,
			ASIN:     asin,
			MinPrice: minPrice,
		}
		if raw := field(row, colMinBusinessPrice); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				record.MinBusinessPrice = &v
			}
		}
		records = append(records, record)
	}

	return records, nil
}
