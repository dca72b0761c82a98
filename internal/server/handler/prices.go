package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sdtonline/repricer/internal/domain"
	"github.com/sdtonline/repricer/internal/platform/spapi"
)

// maxFeedBytes caps the size of an uploaded bulk feed document.
const maxFeedBytes = 32 << 20

// MarketAPI is the slice of the marketplace API the price endpoints need.
type MarketAPI interface {
	SubmitPriceUpdate(ctx context.Context, marketplaceExternalID, skuCode string, price float64, businessPrice *float64) (spapi.SubmissionReceipt, error)
	SubmitBulkFeed(ctx context.Context, marketplaceExternalID string, document []byte) (spapi.FeedReceipt, error)
}

// PriceHandler serves manual price updates and bulk feed uploads.
type PriceHandler struct {
	marketplaces domain.MarketplaceStore
	skus         domain.SkuStore
	api          MarketAPI
	archive      domain.BlobWriter
	logger       *slog.Logger
}

// NewPriceHandler creates a PriceHandler. archive may be nil; bulk feed
// documents are then submitted without being archived.
func NewPriceHandler(marketplaces domain.MarketplaceStore, skus domain.SkuStore, api MarketAPI, archive domain.BlobWriter, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		marketplaces: marketplaces,
		skus:         skus,
		api:          api,
		archive:      archive,
		logger:       logger,
	}
}

// SetPrice submits a manual price for one SKU and records the change with a
// "manual" audit event.
// POST /api/marketplaces/{marketplace}/skus/{sku}/price
func (h *PriceHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Price         float64  `json:"price"`
		BusinessPrice *float64 `json:"business_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Price <= 0 {
		writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}

	marketplace, err := h.marketplaces.GetByCode(r.Context(), r.PathValue("marketplace"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown marketplace")
		return
	}
	sku, err := h.skus.GetBySkuCode(r.Context(), marketplace.ID, r.PathValue("sku"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown sku")
			return
		}
		h.logger.ErrorContext(r.Context(), "get sku", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load sku")
		return
	}

	receipt, err := h.api.SubmitPriceUpdate(r.Context(), marketplace.ExternalID, sku.SkuCode, body.Price, body.BusinessPrice)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "manual price submit", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "price submission failed")
		return
	}

	now := time.Now().UTC()
	event := domain.PriceEvent{
		SkuID:            sku.ID,
		CreatedAt:        now,
		OldPrice:         sku.LastPrice,
		NewPrice:         body.Price,
		OldBusinessPrice: sku.LastBusinessPrice,
		NewBusinessPrice: body.BusinessPrice,
		Reason:           domain.ReasonManual,
		Context:          map[string]any{"submission_id": receipt.SubmissionID},
	}
	update := domain.SkuPriceUpdate{
		Price:         body.Price,
		BusinessPrice: body.BusinessPrice,
		UpdatedAt:     now,
	}
	if err := h.skus.ApplyPriceChange(r.Context(), sku.ID, update, event); err != nil {
		h.logger.ErrorContext(r.Context(), "record manual price", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "price submitted but not recorded")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sku":           sku.SkuCode,
		"price":         body.Price,
		"submission_id": receipt.SubmissionID,
	})
}

// SubmitBulkFeed submits an uploaded price feed document to the marketplace
// and archives a copy to object storage.
// POST /api/marketplaces/{marketplace}/feeds
func (h *PriceHandler) SubmitBulkFeed(w http.ResponseWriter, r *http.Request) {
	marketplace, err := h.marketplaces.GetByCode(r.Context(), r.PathValue("marketplace"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown marketplace")
		return
	}

	document, err := io.ReadAll(io.LimitReader(r.Body, maxFeedBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read feed document")
		return
	}
	if len(document) == 0 {
		writeError(w, http.StatusBadRequest, "feed document is empty")
		return
	}

	receipt, err := h.api.SubmitBulkFeed(r.Context(), marketplace.ExternalID, document)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "bulk feed submit", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "feed submission failed")
		return
	}

	if h.archive != nil {
		key := fmt.Sprintf("feeds/%s/%s.txt", marketplace.Code, time.Now().UTC().Format("20060102T150405"))
		if err := h.archive.Put(r.Context(), key, bytes.NewReader(document), "text/plain"); err != nil {
			h.logger.WarnContext(r.Context(), "feed archive failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"feed_document_id": receipt.FeedDocumentID,
		"status":           receipt.Status,
	})
}
