package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sdtonline/repricer/internal/domain"
)

// SettingHandler serves system settings, including the test-mode switch.
type SettingHandler struct {
	settings domain.SettingStore
	logger   *slog.Logger
}

// NewSettingHandler creates a SettingHandler.
func NewSettingHandler(settings domain.SettingStore, logger *slog.Logger) *SettingHandler {
	return &SettingHandler{settings: settings, logger: logger}
}

// ListSettings returns all system settings.
// GET /api/settings
func (h *SettingHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list settings", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

// SetSetting creates or replaces one setting value.
// PUT /api/settings/{key}
func (h *SettingHandler) SetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "setting key is required")
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.settings.Set(r.Context(), key, body.Value); err != nil {
		h.logger.ErrorContext(r.Context(), "set setting", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to set setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}
