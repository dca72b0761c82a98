package handler

import (
	"log/slog"
	"net/http"

	"github.com/sdtonline/repricer/internal/domain"
)

// EventHandler serves the price-event audit trail.
type EventHandler struct {
	events domain.PriceEventStore
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events domain.PriceEventStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// ListEvents returns recent price events, newest first.
// GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListSkuEvents returns the price history of one SKU.
// GET /api/skus/{id}/events
func (h *EventHandler) ListSkuEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sku id")
		return
	}

	events, err := h.events.ListBySku(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list sku events", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
