package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sdtonline/repricer/internal/domain"
)

// ProfileHandler serves repricing-profile CRUD.
type ProfileHandler struct {
	profiles domain.ProfileStore
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles domain.ProfileStore, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// profilePayload is the request body for creating or updating a profile.
type profilePayload struct {
	Name                  string             `json:"name"`
	FrequencyMinutes      int                `json:"frequency_minutes"`
	UndercutPercent       *float64           `json:"undercut_percent"`
	MinMarginPercent      *float64           `json:"min_margin_percent"`
	MaxDailyChangePercent *float64           `json:"max_daily_change_percent"`
	StepUpType            *domain.StepUpType `json:"step_up_type"`
	StepUpValue           *float64           `json:"step_up_value"`
	StepUpIntervalHours   *float64           `json:"step_up_interval_hours"`
}

func (p profilePayload) validate() string {
	if p.Name == "" {
		return "name is required"
	}
	if p.FrequencyMinutes < 1 {
		return "frequency_minutes must be at least 1"
	}
	if p.StepUpType != nil && *p.StepUpType != domain.StepUpPercentage && *p.StepUpType != domain.StepUpAbsolute {
		return "step_up_type must be percentage or absolute"
	}
	return ""
}

func (p profilePayload) toDomain(id int64) domain.RepricingProfile {
	return domain.RepricingProfile{
		ID:                    id,
		Name:                  p.Name,
		FrequencyMinutes:      p.FrequencyMinutes,
		UndercutPercent:       p.UndercutPercent,
		MinMarginPercent:      p.MinMarginPercent,
		MaxDailyChangePercent: p.MaxDailyChangePercent,
		StepUpType:            p.StepUpType,
		StepUpValue:           p.StepUpValue,
		StepUpIntervalHours:   p.StepUpIntervalHours,
	}
}

// ListProfiles returns all repricing profiles.
// GET /api/profiles
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list profiles", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

// GetProfile returns one profile by id.
// GET /api/profiles/{id}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	profile, err := h.profiles.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get profile", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// CreateProfile creates a new repricing profile.
// POST /api/profiles
func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var payload profilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := payload.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	id, err := h.profiles.Create(r.Context(), payload.toDomain(0))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create profile", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create profile")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdateProfile replaces an existing profile.
// PUT /api/profiles/{id}
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	var payload profilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := payload.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.profiles.Update(r.Context(), payload.toDomain(id)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "update profile", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

// DeleteProfile removes a profile; SKUs that referenced it fall back to the
// default policy.
// DELETE /api/profiles/{id}
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	if err := h.profiles.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "delete profile", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
