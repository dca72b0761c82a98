package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sdtonline/repricer/internal/domain"
	"github.com/sdtonline/repricer/internal/repricer"
)

type fakeRunner struct {
	results map[string]domain.RunResult
	err     error
	calls   []repricer.RunOptions
}

func (f *fakeRunner) Run(_ context.Context, opts repricer.RunOptions) (domain.RunResult, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return domain.RunResult{}, f.err
	}
	result, ok := f.results[opts.MarketplaceCode]
	if !ok {
		result = domain.RunResult{Marketplace: opts.MarketplaceCode, ProfileID: opts.ProfileID}
	}
	return result, nil
}

type fakeMarketplaceStore struct {
	marketplaces []domain.Marketplace
	listCalls    atomic.Int32
}

func (f *fakeMarketplaceStore) GetByCode(_ context.Context, code string) (domain.Marketplace, error) {
	for _, m := range f.marketplaces {
		if m.Code == code {
			return m, nil
		}
	}
	return domain.Marketplace{}, domain.ErrNotFound
}

func (f *fakeMarketplaceStore) List(context.Context) ([]domain.Marketplace, error) {
	f.listCalls.Add(1)
	return f.marketplaces, nil
}

func (f *fakeMarketplaceStore) Ensure(context.Context, domain.Marketplace) error { return nil }

type fakeSkuStore struct {
	cadences   map[int64][]domain.ProfileCadence
	unprofiled map[int64]int64
}

func (f *fakeSkuStore) ListByMarketplace(context.Context, int64, *int64) ([]domain.Sku, error) {
	return nil, nil
}

func (f *fakeSkuStore) GetBySkuCode(context.Context, int64, string) (domain.Sku, error) {
	return domain.Sku{}, domain.ErrNotFound
}

func (f *fakeSkuStore) ProfileCadences(_ context.Context, marketplaceID int64) ([]domain.ProfileCadence, error) {
	return f.cadences[marketplaceID], nil
}

func (f *fakeSkuStore) CountUnprofiled(_ context.Context, marketplaceID int64) (int64, error) {
	return f.unprofiled[marketplaceID], nil
}

func (f *fakeSkuStore) ApplyPriceChange(context.Context, int64, domain.SkuPriceUpdate, domain.PriceEvent) error {
	return nil
}

func newTestScheduler(runner Runner, marketplaces *fakeMarketplaceStore, skus *fakeSkuStore) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Tick: time.Minute, QueueSize: 16}, runner, marketplaces, skus, nil, logger)
}

func drainQueue(s *Scheduler) []Request {
	var out []Request
	for {
		select {
		case req := <-s.queue:
			out = append(out, req)
		default:
			return out
		}
	}
}

func TestSweepEnqueuesOnlyElapsedCadences(t *testing.T) {
	marketplaces := &fakeMarketplaceStore{marketplaces: []domain.Marketplace{
		{ID: 1, Code: "DE", ExternalID: "A1PA6795UKMFR9"},
	}}
	skus := &fakeSkuStore{
		cadences: map[int64][]domain.ProfileCadence{
			1: {
				{ProfileID: 1, FrequencyMinutes: 15},
				{ProfileID: 2, FrequencyMinutes: 120},
			},
		},
		unprofiled: map[int64]int64{},
	}

	s := newTestScheduler(&fakeRunner{}, marketplaces, skus)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// The 15-minute profile ran just now; the 120-minute profile ran 121
	// minutes ago.
	s.lastRun[runKey("DE", ptr(int64(1)))] = now
	s.lastRun[runKey("DE", ptr(int64(2)))] = now.Add(-121 * time.Minute)

	s.sweep(context.Background())

	queued := drainQueue(s)
	if len(queued) != 1 {
		t.Fatalf("queued = %d requests, want 1", len(queued))
	}
	opts := queued[0].Options
	if opts.MarketplaceCode != "DE" || opts.ProfileID == nil || *opts.ProfileID != 2 {
		t.Fatalf("queued options = %+v, want DE profile 2", opts)
	}
	if queued[0].Source != "scheduled" {
		t.Fatalf("source = %q, want scheduled", queued[0].Source)
	}
}

func TestSweepNeverRunKeysAreDue(t *testing.T) {
	marketplaces := &fakeMarketplaceStore{marketplaces: []domain.Marketplace{
		{ID: 1, Code: "FR", ExternalID: "A13V1IB3VIYZZH"},
	}}
	skus := &fakeSkuStore{
		cadences:   map[int64][]domain.ProfileCadence{1: {{ProfileID: 3, FrequencyMinutes: 60}}},
		unprofiled: map[int64]int64{1: 12},
	}

	s := newTestScheduler(&fakeRunner{}, marketplaces, skus)
	s.sweep(context.Background())

	queued := drainQueue(s)
	if len(queued) != 2 {
		t.Fatalf("queued = %d requests, want profile run and full run", len(queued))
	}
}

func TestSweepUnprofiledGatedByTick(t *testing.T) {
	marketplaces := &fakeMarketplaceStore{marketplaces: []domain.Marketplace{
		{ID: 1, Code: "NL", ExternalID: "A1805IZSGTT6HS"},
	}}
	skus := &fakeSkuStore{
		cadences:   map[int64][]domain.ProfileCadence{},
		unprofiled: map[int64]int64{1: 5},
	}

	s := newTestScheduler(&fakeRunner{}, marketplaces, skus)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// Ran half a tick ago: not due yet.
	s.lastRun[runKey("NL", nil)] = now.Add(-30 * time.Second)
	s.sweep(context.Background())
	if queued := drainQueue(s); len(queued) != 0 {
		t.Fatalf("queued = %d requests, want 0 inside the tick interval", len(queued))
	}

	// A full tick elapsed: due.
	s.lastRun[runKey("NL", nil)] = now.Add(-time.Minute)
	s.sweep(context.Background())
	if queued := drainQueue(s); len(queued) != 1 {
		t.Fatalf("queued = %d requests, want 1 after the tick interval", len(queued))
	}
}

func TestTriggerIsNonBlockingAndBounded(t *testing.T) {
	s := newTestScheduler(&fakeRunner{}, &fakeMarketplaceStore{}, &fakeSkuStore{})

	for i := 0; i < 16; i++ {
		if err := s.Trigger(Request{Options: repricer.RunOptions{MarketplaceCode: "DE"}}); err != nil {
			t.Fatalf("Trigger %d: %v", i, err)
		}
	}
	if err := s.Trigger(Request{Options: repricer.RunOptions{MarketplaceCode: "DE"}}); err == nil {
		t.Fatal("Trigger on a full queue should fail, not block")
	}

	queued := drainQueue(s)
	if len(queued) != 16 {
		t.Fatalf("queued = %d, want 16 in FIFO order", len(queued))
	}
	if queued[0].Source != "manual" {
		t.Fatalf("source = %q, want manual default", queued[0].Source)
	}
}

func TestExecuteStampsProfileKeysAfterFullRun(t *testing.T) {
	runner := &fakeRunner{results: map[string]domain.RunResult{
		"DE": {
			Marketplace:       "DE",
			Processed:         10,
			Updated:           4,
			ProfilesProcessed: []int64{1, 2},
		},
	}}
	s := newTestScheduler(runner, &fakeMarketplaceStore{}, &fakeSkuStore{})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.execute(context.Background(), Request{Options: repricer.RunOptions{MarketplaceCode: "DE"}, Source: "scheduled"})

	snapshot := s.Snapshot()
	for _, key := range []string{runKey("DE", nil), runKey("DE", ptr(int64(1))), runKey("DE", ptr(int64(2)))} {
		entry, ok := snapshot[key]
		if !ok {
			t.Fatalf("snapshot missing key %s", key)
		}
		if !entry.LastRun.Equal(now) {
			t.Fatalf("last run for %s = %v, want %v", key, entry.LastRun, now)
		}
	}
	full := snapshot[runKey("DE", nil)]
	if full.LastResult == nil || full.LastResult.Updated != 4 {
		t.Fatalf("full-run result = %+v, want updated 4", full.LastResult)
	}
}

func TestExecuteStampsKeyOnFailure(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("boom")}
	s := newTestScheduler(runner, &fakeMarketplaceStore{}, &fakeSkuStore{})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.execute(context.Background(), Request{Options: repricer.RunOptions{MarketplaceCode: "DE"}})

	entry, ok := s.Snapshot()[runKey("DE", nil)]
	if !ok {
		t.Fatal("failed run should still stamp its key")
	}
	if entry.LastResult != nil {
		t.Fatalf("failed run recorded a result: %+v", entry.LastResult)
	}
	if !entry.LastRun.Equal(now) {
		t.Fatalf("last run = %v, want %v", entry.LastRun, now)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := newTestScheduler(&fakeRunner{}, &fakeMarketplaceStore{}, &fakeSkuStore{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func TestSweepWaitsForIdleTickAfterRequests(t *testing.T) {
	marketplaces := &fakeMarketplaceStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{Tick: 250 * time.Millisecond, QueueSize: 16},
		&fakeRunner{}, marketplaces, &fakeSkuStore{}, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Keep requests arriving well inside the tick interval; the sweep must
	// not fire while the queue never sits idle for a full tick.
	deadline := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(deadline) {
		_ = s.Trigger(Request{Options: repricer.RunOptions{MarketplaceCode: "DE"}})
		time.Sleep(25 * time.Millisecond)
	}
	if n := marketplaces.listCalls.Load(); n != 0 {
		t.Fatalf("sweep ran %d times during a steady stream of requests, want 0", n)
	}

	// Once the queue goes quiet the next tick sweeps as usual.
	time.Sleep(400 * time.Millisecond)
	cancel()
	<-done
	if marketplaces.listCalls.Load() == 0 {
		t.Fatal("sweep never ran after the queue went idle")
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (r *blockingRunner) Run(ctx context.Context, opts repricer.RunOptions) (domain.RunResult, error) {
	close(r.started)
	<-r.release
	r.ctxErr = ctx.Err()
	return domain.RunResult{Marketplace: opts.MarketplaceCode, Updated: 1}, nil
}

func TestRunFinishesInFlightRunOnCancel(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s := newTestScheduler(runner, &fakeMarketplaceStore{}, &fakeSkuStore{})

	if err := s.Trigger(Request{Options: repricer.RunOptions{MarketplaceCode: "DE"}}); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run never started")
	}

	// Cancel while the run is mid-flight, then let it finish.
	cancel()
	close(runner.release)

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after the in-flight run finished")
	}

	if runner.ctxErr != nil {
		t.Fatalf("in-flight run saw cancellation: %v", runner.ctxErr)
	}
	entry, ok := s.Snapshot()[runKey("DE", nil)]
	if !ok || entry.LastResult == nil || entry.LastResult.Updated != 1 {
		t.Fatalf("in-flight run did not record its result: %+v", entry)
	}
}

func ptr[T any](v T) *T { return &v }
