package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sdtonline/repricer/internal/domain"
)

// AlertHandler serves operator alerts.
type AlertHandler struct {
	alerts domain.AlertStore
	logger *slog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(alerts domain.AlertStore, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: logger}
}

// ListAlerts returns recent alerts, newest first.
// GET /api/alerts
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list alerts", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// AcknowledgeAlert marks one alert as acknowledged.
// POST /api/alerts/{id}/ack
func (h *AlertHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	if err := h.alerts.Acknowledge(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "acknowledge alert", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": id})
}
