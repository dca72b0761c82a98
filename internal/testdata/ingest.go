// Package testdata ingests operator-uploaded floor-price and competitor
// datasets. Simulated repricing runs read from these instead of the real
// feed and marketplace API.
package testdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sdtonline/repricer/internal/domain"
)

// Upload column headers. Offer uploads accept optional buy-box and
// fulfillment columns.
const (
	colSku              = "SKU"
	colAsin             = "ASIN"
	colMinPrice         = "MIN_PRICE"
	colMinBusinessPrice = "MIN_BUSINESS_PRICE"
	colSellerID         = "SELLER_ID"
	colPrice            = "PRICE"
	colIsBuyBox         = "IS_BUY_BOX"
	colFulfillment      = "FULFILLMENT_TYPE"
)

// Ingester parses uploaded CSV datasets and replaces the stored test data
// for a marketplace.
type Ingester struct {
	store  domain.TestDataStore
	logger *slog.Logger
}

// NewIngester creates an Ingester writing through the given store.
func NewIngester(store domain.TestDataStore, logger *slog.Logger) *Ingester {
	return &Ingester{
		store:  store,
		logger: logger.With(slog.String("component", "testdata")),
	}
}

// IngestFloors replaces the marketplace's test floor prices with the rows in
// the CSV. Required columns are SKU, ASIN, and MIN_PRICE. It returns the
// number of rows stored.
func (g *Ingester) IngestFloors(ctx context.Context, marketplaceCode string, r io.Reader) (int, error) {
	rows, idx, err := readCSV(r, colSku, colAsin, colMinPrice)
	if err != nil {
		return 0, err
	}

	var records []domain.FloorPriceRecord
	for _, row := range rows {
		sku := idx.field(row, colSku)
		asin := idx.field(row, colAsin)
		if sku == "" || asin == "" {
			continue
		}
		minPrice, err := strconv.ParseFloat(idx.field(row, colMinPrice), 64)
		if err != nil {
			continue
		}

		record := domain.FloorPriceRecord{
			SkuCode:  sku,
			ASIN:     asin,
			MinPrice: minPrice,
		}
		if raw := idx.field(row, colMinBusinessPrice); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				record.MinBusinessPrice = &v
			}
		}
		records = append(records, record)
	}

	if err := g.store.ReplaceFloors(ctx, marketplaceCode, records); err != nil {
		return 0, fmt.Errorf("testdata: replace floors: %w", err)
	}
	g.logger.Info("test floors replaced",
		slog.String("marketplace", marketplaceCode),
		slog.Int("rows", len(records)))
	return len(records), nil
}

// IngestOffers replaces the marketplace's test competitor offers with the
// rows in the CSV. Required columns are ASIN, SELLER_ID, and PRICE. It
// returns the number of rows stored.
func (g *Ingester) IngestOffers(ctx context.Context, marketplaceCode string, r io.Reader) (int, error) {
	rows, idx, err := readCSV(r, colAsin, colSellerID, colPrice)
	if err != nil {
		return 0, err
	}

	offers := map[string][]domain.CompetitorOffer{}
	count := 0
	for _, row := range rows {
		asin := idx.field(row, colAsin)
		sellerID := idx.field(row, colSellerID)
		if asin == "" || sellerID == "" {
			continue
		}
		price, err := strconv.ParseFloat(idx.field(row, colPrice), 64)
		if err != nil {
			continue
		}

		offer := domain.CompetitorOffer{
			SellerID:        sellerID,
			Price:           price,
			FulfillmentType: idx.field(row, colFulfillment),
		}
		switch strings.ToLower(idx.field(row, colIsBuyBox)) {
		case "1", "true", "yes":
			offer.IsBuyBox = true
		}
		offers[asin] = append(offers[asin], offer)
		count++
	}

	if err := g.store.ReplaceOffers(ctx, marketplaceCode, offers); err != nil {
		return 0, fmt.Errorf("testdata: replace offers: %w", err)
	}
	g.logger.Info("test offers replaced",
		slog.String("marketplace", marketplaceCode),
		slog.Int("rows", count))
	return count, nil
}

// columnIndex maps uppercased header names to their positions.
type columnIndex map[string]int

func (idx columnIndex) field(row []string, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// readCSV reads the whole CSV, validates the required columns, and returns
// the data rows with the header index.
func readCSV(r io.Reader, required ...string) ([][]string, columnIndex, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("testdata: csv is missing headers")
		}
		return nil, nil, fmt.Errorf("testdata: read csv header: %w", err)
	}

	idx := make(columnIndex, len(header))
	for i, name := range header {
		idx[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, nil, fmt.Errorf("testdata: csv is missing column %s", name)
		}
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("testdata: read csv row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, idx, nil
}
