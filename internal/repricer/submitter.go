package repricer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sdtonline/repricer/internal/domain"
	"github.com/sdtonline/repricer/internal/platform/spapi"
)

// PricingAPI is the slice of the marketplace API the orchestrator needs.
type PricingAPI interface {
	GetCompetitivePricing(ctx context.Context, marketplaceExternalID string, asins []string) (map[string][]domain.CompetitorOffer, error)
	SubmitPriceUpdate(ctx context.Context, marketplaceExternalID, skuCode string, price float64, businessPrice *float64) (spapi.SubmissionReceipt, error)
}

// Submitter applies one pricing decision to a SKU. It reports whether the
// SKU's price actually changed.
type Submitter interface {
	Apply(ctx context.Context, marketplace domain.Marketplace, sku domain.Sku, comp domain.PriceComputation, now time.Time) (bool, error)
}

// liveSubmitter pushes the price to the marketplace API and records the
// change on the SKU and in the audit trail atomically.
type liveSubmitter struct {
	api    PricingAPI
	skus   domain.SkuStore
	logger *slog.Logger
}

var _ Submitter = (*liveSubmitter)(nil)

func (s *liveSubmitter) Apply(ctx context.Context, marketplace domain.Marketplace, sku domain.Sku, comp domain.PriceComputation, now time.Time) (bool, error) {
	if sku.LastPrice != nil && *sku.LastPrice == comp.Price {
		return false, nil
	}

	receipt, err := s.api.SubmitPriceUpdate(ctx, marketplace.ExternalID, sku.SkuCode, comp.Price, comp.BusinessPrice)
	if err != nil {
		return false, fmt.Errorf("repricer: submit price for %s: %w", sku.SkuCode, err)
	}

	payload := decisionPayload(comp.Context)
	payload["submission_id"] = receipt.SubmissionID

	event := domain.PriceEvent{
		SkuID:            sku.ID,
		CreatedAt:        now,
		OldPrice:         sku.LastPrice,
		NewPrice:         comp.Price,
		OldBusinessPrice: sku.LastBusinessPrice,
		NewBusinessPrice: comp.BusinessPrice,
		Reason:           domain.ReasonRepricer,
		Context:          payload,
	}
	update := domain.SkuPriceUpdate{
		Price:         comp.Price,
		BusinessPrice: comp.BusinessPrice,
		UpdatedAt:     now,
	}
	if err := s.skus.ApplyPriceChange(ctx, sku.ID, update, event); err != nil {
		// The marketplace already accepted the price; surface the recording
		// failure loudly but do not roll anything back.
		s.logger.Error("price submitted but not recorded",
			slog.String("sku", sku.SkuCode),
			slog.String("error", err.Error()))
		return true, fmt.Errorf("repricer: record price change for %s: %w", sku.SkuCode, err)
	}
	return true, nil
}

// simulatedSubmitter records what a live run would have done without
// touching the marketplace or the SKU's stored prices.
type simulatedSubmitter struct {
	events domain.PriceEventStore
	logger *slog.Logger
}

var _ Submitter = (*simulatedSubmitter)(nil)

func (s *simulatedSubmitter) Apply(ctx context.Context, marketplace domain.Marketplace, sku domain.Sku, comp domain.PriceComputation, now time.Time) (bool, error) {
	event := domain.PriceEvent{
		SkuID:            sku.ID,
		CreatedAt:        now,
		OldPrice:         sku.LastPrice,
		NewPrice:         comp.Price,
		OldBusinessPrice: sku.LastBusinessPrice,
		NewBusinessPrice: comp.BusinessPrice,
		Reason:           domain.ReasonRepricerTest,
		Context:          decisionPayload(comp.Context),
	}
	if err := s.events.Append(ctx, event); err != nil {
		return false, fmt.Errorf("repricer: record simulated price for %s: %w", sku.SkuCode, err)
	}
	return sku.LastPrice == nil || *sku.LastPrice != comp.Price, nil
}

// decisionPayload flattens the decision context into the generic map shape
// stored on price events.
func decisionPayload(dctx domain.DecisionContext) map[string]any {
	raw, err := json.Marshal(dctx)
	if err != nil {
		return map[string]any{}
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}
