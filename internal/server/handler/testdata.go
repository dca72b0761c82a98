package handler

import (
	"log/slog"
	"net/http"

	"github.com/sdtonline/repricer/internal/testdata"
)

// TestDataHandler serves CSV uploads of test floor prices and competitor
// offers.
type TestDataHandler struct {
	ingester *testdata.Ingester
	logger   *slog.Logger
}

// NewTestDataHandler creates a TestDataHandler.
func NewTestDataHandler(ingester *testdata.Ingester, logger *slog.Logger) *TestDataHandler {
	return &TestDataHandler{ingester: ingester, logger: logger}
}

// UploadFloors replaces the marketplace's test floor prices with the CSV in
// the request body.
// POST /api/testdata/{marketplace}/floors
func (h *TestDataHandler) UploadFloors(w http.ResponseWriter, r *http.Request) {
	marketplace := r.PathValue("marketplace")
	rows, err := h.ingester.IngestFloors(r.Context(), marketplace, r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"marketplace": marketplace,
		"rows":        rows,
	})
}

// UploadOffers replaces the marketplace's test competitor offers with the
// CSV in the request body.
// POST /api/testdata/{marketplace}/offers
func (h *TestDataHandler) UploadOffers(w http.ResponseWriter, r *http.Request) {
	marketplace := r.PathValue("marketplace")
	rows, err := h.ingester.IngestOffers(r.Context(), marketplace, r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"marketplace": marketplace,
		"rows":        rows,
	})
}
