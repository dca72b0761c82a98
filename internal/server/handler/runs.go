package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sdtonline/repricer/internal/domain"
	"github.com/sdtonline/repricer/internal/repricer"
	"github.com/sdtonline/repricer/internal/scheduler"
)

// RunTrigger is the slice of the scheduler the run endpoints need.
type RunTrigger interface {
	Trigger(req scheduler.Request) error
	Snapshot() map[string]scheduler.Entry
}

// RunHandler serves run telemetry and manual run triggers.
type RunHandler struct {
	runs   domain.RunStore
	sched  RunTrigger
	logger *slog.Logger
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(runs domain.RunStore, sched RunTrigger, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, sched: sched, logger: logger}
}

// ListRuns returns recent repricing runs, newest first.
// GET /api/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list runs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// TriggerRun enqueues a manual repricing run. The run is executed by the
// scheduler worker; this endpoint only queues it.
// POST /api/runs/trigger
func (h *RunHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Marketplace string `json:"marketplace"`
		ProfileID   *int64 `json:"profile_id"`
		TestMode    *bool  `json:"test_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Marketplace == "" {
		writeError(w, http.StatusBadRequest, "marketplace is required")
		return
	}

	err := h.sched.Trigger(scheduler.Request{
		Source: "manual",
		Options: repricer.RunOptions{
			MarketplaceCode:  body.Marketplace,
			ProfileID:        body.ProfileID,
			TestModeOverride: body.TestMode,
		},
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "accepted",
		"marketplace": body.Marketplace,
	})
}

// SchedulerSnapshot returns the scheduler's per-key last-run state.
// GET /api/scheduler
func (h *RunHandler) SchedulerSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedule": h.sched.Snapshot()})
}
