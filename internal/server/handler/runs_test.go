package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sdtonline/repricer/internal/domain"
	"github.com/sdtonline/repricer/internal/scheduler"
)

type fakeTrigger struct {
	requests []scheduler.Request
	err      error
}

func (f *fakeTrigger) Trigger(req scheduler.Request) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeTrigger) Snapshot() map[string]scheduler.Entry {
	return map[string]scheduler.Entry{}
}

type fakeRunStore struct {
	runs []domain.RepricingRun
}

func (f *fakeRunStore) Create(context.Context, domain.RepricingRun) error   { return nil }
func (f *fakeRunStore) Finalize(context.Context, domain.RepricingRun) error { return nil }
func (f *fakeRunStore) ListRecent(context.Context, domain.ListOpts) ([]domain.RepricingRun, error) {
	return f.runs, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTriggerRun(t *testing.T) {
	trigger := &fakeTrigger{}
	h := NewRunHandler(&fakeRunStore{}, trigger, discardLogger())

	body := `{"marketplace":"DE","profile_id":7,"test_mode":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/runs/trigger", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.TriggerRun(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(trigger.requests) != 1 {
		t.Fatalf("triggered = %d requests, want 1", len(trigger.requests))
	}
	opts := trigger.requests[0].Options
	if opts.MarketplaceCode != "DE" {
		t.Fatalf("marketplace = %q", opts.MarketplaceCode)
	}
	if opts.ProfileID == nil || *opts.ProfileID != 7 {
		t.Fatalf("profile id = %v, want 7", opts.ProfileID)
	}
	if opts.TestModeOverride == nil || !*opts.TestModeOverride {
		t.Fatalf("test mode override = %v, want true", opts.TestModeOverride)
	}
}

func TestTriggerRunRequiresMarketplace(t *testing.T) {
	trigger := &fakeTrigger{}
	h := NewRunHandler(&fakeRunStore{}, trigger, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/runs/trigger", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.TriggerRun(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(trigger.requests) != 0 {
		t.Fatalf("triggered = %d requests, want 0", len(trigger.requests))
	}
}

func TestTriggerRunQueueFull(t *testing.T) {
	trigger := &fakeTrigger{err: fmt.Errorf("scheduler: queue full")}
	h := NewRunHandler(&fakeRunStore{}, trigger, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/runs/trigger", strings.NewReader(`{"marketplace":"DE"}`))
	rec := httptest.NewRecorder()

	h.TriggerRun(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	store := &fakeRunStore{runs: []domain.RepricingRun{
		{ID: "run-1", Status: domain.RunCompleted, Processed: 3},
	}}
	h := NewRunHandler(store, &fakeTrigger{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=10", nil)
	rec := httptest.NewRecorder()

	h.ListRuns(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "run-1") {
		t.Fatalf("body = %s, want the run id", rec.Body.String())
	}
}
