package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sdtonline/repricer/internal/domain"
	"github.com/sdtonline/repricer/internal/repricer"
)

// Runner executes one repricing run. Satisfied by repricer.Orchestrator.
type Runner interface {
	Run(ctx context.Context, opts repricer.RunOptions) (domain.RunResult, error)
}

// Request is one queued run request. Manual triggers and sweep-scheduled
// runs flow through the same queue and are served in order.
type Request struct {
	Options repricer.RunOptions
	Source  string // "manual" or "scheduled"
}

// Entry is one slot of the scheduler's observability snapshot.
type Entry struct {
	LastRun    time.Time         `json:"last_run"`
	LastResult *domain.RunResult `json:"last_result,omitempty"`
}

// Config holds the scheduler's sweep interval and queue depth.
type Config struct {
	Tick      time.Duration
	QueueSize int
}

// Scheduler owns the run cadence. A single worker drains a buffered request
// queue, so runs never overlap; a periodic sweep enqueues a scheduled run
// for every (marketplace, profile cadence) pair whose interval has elapsed.
// Marketplaces with unprofiled SKUs get a full run gated by the sweep tick
// itself.
type Scheduler struct {
	runner       Runner
	marketplaces domain.MarketplaceStore
	skus         domain.SkuStore
	snapshots    domain.RunSnapshotCache
	tick         time.Duration
	queue        chan Request
	logger       *slog.Logger

	now func() time.Time

	mu         sync.Mutex
	lastRun    map[string]time.Time
	lastResult map[string]domain.RunResult
}

// New creates a scheduler. snapshots may be nil when no shared cache is
// configured; last-run state then lives only in process memory.
func New(cfg Config, runner Runner, marketplaces domain.MarketplaceStore, skus domain.SkuStore, snapshots domain.RunSnapshotCache, logger *slog.Logger) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	return &Scheduler{
		runner:       runner,
		marketplaces: marketplaces,
		skus:         skus,
		snapshots:    snapshots,
		tick:         cfg.Tick,
		queue:        make(chan Request, cfg.QueueSize),
		logger:       logger.With(slog.String("component", "scheduler")),
		now:          time.Now,
		lastRun:      map[string]time.Time{},
		lastResult:   map[string]domain.RunResult{},
	}
}

// Trigger enqueues a run request without blocking and without executing
// inline. It fails when the queue is full.
func (s *Scheduler) Trigger(req Request) error {
	if req.Source == "" {
		req.Source = "manual"
	}
	select {
	case s.queue <- req:
		return nil
	default:
		return fmt.Errorf("scheduler: queue full, dropped run for %s", req.Options.MarketplaceCode)
	}
}

// Run drives the scheduler loop until the context is cancelled. A run in
// flight when cancellation arrives finishes first.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", slog.Duration("tick", s.tick))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case req := <-s.queue:
			// A run already picked up finishes even when shutdown arrives;
			// cancellation is only observed at the top of the loop.
			s.execute(context.WithoutCancel(ctx), req)
			// The queue must sit idle for a full tick before the next sweep.
			ticker.Reset(s.tick)
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Snapshot returns a copy of the per-key last-run state for reporting.
func (s *Scheduler) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]Entry, len(s.lastRun))
	for key, at := range s.lastRun {
		entry := Entry{LastRun: at}
		if result, ok := s.lastResult[key]; ok {
			r := result
			entry.LastResult = &r
		}
		snapshot[key] = entry
	}
	return snapshot
}

// sweep enqueues every run whose cadence has elapsed.
func (s *Scheduler) sweep(ctx context.Context) {
	marketplaces, err := s.marketplaces.List(ctx)
	if err != nil {
		s.logger.Error("sweep: list marketplaces", slog.String("error", err.Error()))
		return
	}

	now := s.now()
	for _, m := range marketplaces {
		cadences, err := s.skus.ProfileCadences(ctx, m.ID)
		if err != nil {
			s.logger.Error("sweep: profile cadences",
				slog.String("marketplace", m.Code),
				slog.String("error", err.Error()))
			continue
		}

		for _, c := range cadences {
			interval := time.Duration(c.FrequencyMinutes) * time.Minute
			if interval <= 0 {
				continue
			}
			profileID := c.ProfileID
			if !s.due(runKey(m.Code, &profileID), now, interval) {
				continue
			}
			s.enqueueScheduled(repricer.RunOptions{
				MarketplaceCode: m.Code,
				ProfileID:       &profileID,
			})
		}

		unprofiled, err := s.skus.CountUnprofiled(ctx, m.ID)
		if err != nil {
			s.logger.Error("sweep: count unprofiled",
				slog.String("marketplace", m.Code),
				slog.String("error", err.Error()))
			continue
		}
		if unprofiled == 0 {
			continue
		}
		if s.due(runKey(m.Code, nil), now, s.tick) {
			s.enqueueScheduled(repricer.RunOptions{MarketplaceCode: m.Code})
		}
	}
}

func (s *Scheduler) enqueueScheduled(opts repricer.RunOptions) {
	if err := s.Trigger(Request{Options: opts, Source: "scheduled"}); err != nil {
		s.logger.Warn("sweep: enqueue failed", slog.String("error", err.Error()))
	}
}

// due reports whether the interval has elapsed since the key's last run.
// A key that never ran is always due.
func (s *Scheduler) due(key string, now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastRun[key]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}

func (s *Scheduler) execute(ctx context.Context, req Request) {
	key := runKey(req.Options.MarketplaceCode, req.Options.ProfileID)

	result, err := s.runner.Run(ctx, req.Options)
	completedAt := s.now()
	if err != nil {
		s.logger.Error("run failed",
			slog.String("key", key),
			slog.String("source", req.Source),
			slog.String("error", err.Error()))
		// Stamp the key anyway so a persistently failing run does not get
		// retried on every sweep.
		s.record(ctx, key, completedAt, nil)
		return
	}

	s.record(ctx, key, completedAt, &result)

	// A full run covers every profile it touched; stamp those keys so the
	// sweep does not immediately schedule them again.
	if req.Options.ProfileID == nil {
		for _, profileID := range result.ProfilesProcessed {
			pid := profileID
			s.record(ctx, runKey(req.Options.MarketplaceCode, &pid), completedAt, nil)
		}
	}
}

// record stamps the key's last-run time, stores its result when given, and
// mirrors both into the shared snapshot cache best-effort.
func (s *Scheduler) record(ctx context.Context, key string, at time.Time, result *domain.RunResult) {
	s.mu.Lock()
	s.lastRun[key] = at
	if result != nil {
		s.lastResult[key] = *result
	}
	s.mu.Unlock()

	if s.snapshots == nil || result == nil {
		return
	}
	if err := s.snapshots.SetLastRun(ctx, key, at, *result); err != nil {
		s.logger.Warn("snapshot cache update failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

func runKey(code string, profileID *int64) string {
	if profileID == nil {
		return code
	}
	return fmt.Sprintf("%s:profile:%d", code, *profileID)
}
