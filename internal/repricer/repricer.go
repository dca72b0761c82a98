package repricer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sdtonline/repricer/internal/domain"
)

// runLockTTL bounds how long a crashed run can keep its marketplace locked.
const runLockTTL = 30 * time.Minute

// FloorSource supplies floor prices for live runs.
type FloorSource interface {
	IsFresh(ctx context.Context, marketplaceCode string) bool
	Load(ctx context.Context, marketplaceCode string) ([]domain.FloorPriceRecord, error)
}

// Alerter raises operator alerts. Implementations must never block the run.
type Alerter interface {
	Alert(ctx context.Context, severity domain.AlertSeverity, message string, metadata map[string]any)
}

// Config holds the orchestrator's batch sizing and its fallback behaviour.
type Config struct {
	BatchSize     int
	Concurrency   int
	TestMode      bool
	DefaultPolicy Policy
}

// RunOptions selects what a single run covers.
type RunOptions struct {
	MarketplaceCode string
	// ProfileID restricts the run to SKUs assigned to one profile. Nil
	// means all SKUs on the marketplace.
	ProfileID *int64
	// TestModeOverride forces the run into (or out of) test mode,
	// bypassing the system setting and the configured default.
	TestModeOverride *bool
}

// Params collects the orchestrator's collaborators.
type Params struct {
	Config       Config
	Marketplaces domain.MarketplaceStore
	Skus         domain.SkuStore
	Profiles     domain.ProfileStore
	Runs         domain.RunStore
	Events       domain.PriceEventStore
	Settings     domain.SettingStore
	TestData     domain.TestDataStore
	Feeds        FloorSource
	API          PricingAPI
	Alerts       Alerter
	Locks        domain.LockManager
	Logger       *slog.Logger
}

// Orchestrator drives complete repricing runs: it loads the SKUs and floor
// prices for a marketplace, fetches competitor offers in concurrent batches,
// prices every SKU through the strategy, and applies the results through a
// live or simulated submitter.
type Orchestrator struct {
	cfg          Config
	marketplaces domain.MarketplaceStore
	skus         domain.SkuStore
	profiles     domain.ProfileStore
	runs         domain.RunStore
	settings     domain.SettingStore
	testdata     domain.TestDataStore
	feeds        FloorSource
	api          PricingAPI
	alerts       Alerter
	locks        domain.LockManager
	live         Submitter
	simulated    Submitter
	logger       *slog.Logger

	now func() time.Time
}

// NewOrchestrator wires a run orchestrator from its collaborators. Locks may
// be nil when no shared cache is configured.
func NewOrchestrator(p Params) *Orchestrator {
	if p.Config.BatchSize < 1 {
		p.Config.BatchSize = 1
	}
	if p.Config.Concurrency < 1 {
		p.Config.Concurrency = 1
	}
	logger := p.Logger.With(slog.String("component", "repricer"))
	return &Orchestrator{
		cfg:          p.Config,
		marketplaces: p.Marketplaces,
		skus:         p.Skus,
		profiles:     p.Profiles,
		runs:         p.Runs,
		settings:     p.Settings,
		testdata:     p.TestData,
		feeds:        p.Feeds,
		api:          p.API,
		alerts:       p.Alerts,
		locks:        p.Locks,
		live:         &liveSubmitter{api: p.API, skus: p.Skus, logger: logger},
		simulated:    &simulatedSubmitter{events: p.Events, logger: logger},
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes one repricing run and returns its summary. The returned
// result is valid even when the run ends early; the error explains why it
// did.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (domain.RunResult, error) {
	result := domain.RunResult{Marketplace: opts.MarketplaceCode, ProfileID: opts.ProfileID}

	marketplace, err := o.marketplaces.GetByCode(ctx, opts.MarketplaceCode)
	if err != nil {
		o.logger.Error("unknown marketplace", slog.String("marketplace", opts.MarketplaceCode))
		return result, fmt.Errorf("repricer: marketplace %s: %w", opts.MarketplaceCode, err)
	}

	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, "run:"+marketplace.Code, runLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				o.logger.Warn("run already in progress", slog.String("marketplace", marketplace.Code))
			}
			return result, fmt.Errorf("repricer: acquire run lock: %w", err)
		}
		defer unlock()
	}

	testMode := o.resolveTestMode(ctx, opts)
	startedAt := o.now()

	run := domain.RepricingRun{
		ID:            uuid.NewString(),
		MarketplaceID: marketplace.ID,
		StartedAt:     startedAt,
		Status:        domain.RunRunning,
	}
	if testMode {
		run.Status = domain.RunTestRunning
	}
	if err := o.runs.Create(ctx, run); err != nil {
		return result, fmt.Errorf("repricer: create run: %w", err)
	}

	o.logger.Info("run started",
		slog.String("run_id", run.ID),
		slog.String("marketplace", marketplace.Code),
		slog.Bool("test_mode", testMode),
		slog.Any("profile_id", opts.ProfileID))

	skus, err := o.skus.ListByMarketplace(ctx, marketplace.ID, opts.ProfileID)
	if err != nil {
		o.finalize(ctx, run, domain.RunBlocked, result)
		return result, fmt.Errorf("repricer: list skus: %w", err)
	}
	if len(skus) == 0 {
		o.finalize(ctx, run, domain.RunEmpty, result)
		return result, nil
	}

	floors, err := o.loadFloors(ctx, marketplace, testMode)
	if err != nil {
		o.finalize(ctx, run, domain.RunBlocked, result)
		return result, err
	}

	var testOffers map[string][]domain.CompetitorOffer
	if testMode {
		testOffers, err = o.testdata.LoadOffers(ctx, marketplace.Code)
		if err != nil {
			o.finalize(ctx, run, domain.RunBlocked, result)
			return result, fmt.Errorf("repricer: load test offers: %w", err)
		}
	}

	submitter := o.live
	if testMode {
		submitter = o.simulated
	}

	policies := map[int64]Policy{}
	profilesSeen := map[int64]struct{}{}

	batches := batchSkus(skus, o.cfg.BatchSize)
	windowSize := o.cfg.Concurrency
	for start := 0; start < len(batches); start += windowSize {
		if err := ctx.Err(); err != nil {
			o.finalize(ctx, run, domain.RunBlocked, result)
			return result, err
		}

		end := start + windowSize
		if end > len(batches) {
			end = len(batches)
		}
		window := batches[start:end]

		offers := testOffers
		var failed []bool
		if !testMode {
			offers, failed = o.fetchWindowOffers(ctx, marketplace, window)
		}

		for bi, batch := range window {
			if failed != nil && failed[bi] {
				// Offers for this batch never arrived; pricing without
				// competitor data would only churn.
				result.Processed += len(batch)
				result.Errors += len(batch)
				continue
			}
			for _, sku := range batch {
				result.Processed++

				floor, ok := floors[sku.SkuCode]
				if !ok {
					result.Errors++
					o.alert(ctx, domain.SeverityWarning, "no floor price for SKU", map[string]any{
						"marketplace": marketplace.Code,
						"sku":         sku.SkuCode,
						"run_id":      run.ID,
					})
					continue
				}

				policy := o.resolvePolicy(ctx, policies, sku.ProfileID)
				if sku.ProfileID != nil {
					profilesSeen[*sku.ProfileID] = struct{}{}
				}

				comp := Decide(sku, floor, offers[sku.ASIN], policy, o.now())
				updated, err := submitter.Apply(ctx, marketplace, sku, comp, o.now())
				if err != nil {
					result.Errors++
					o.logger.Error("price update failed",
						slog.String("sku", sku.SkuCode),
						slog.String("error", err.Error()))
					continue
				}
				if updated {
					result.Updated++
				}
			}
		}
	}

	if opts.ProfileID == nil {
		for id := range profilesSeen {
			result.ProfilesProcessed = append(result.ProfilesProcessed, id)
		}
	}

	finalStatus := domain.RunCompleted
	if testMode {
		finalStatus = domain.RunTestCompleted
	}
	o.finalize(ctx, run, finalStatus, result)

	o.logger.Info("run finished",
		slog.String("run_id", run.ID),
		slog.String("marketplace", marketplace.Code),
		slog.String("status", string(finalStatus)),
		slog.Int("processed", result.Processed),
		slog.Int("updated", result.Updated),
		slog.Int("errors", result.Errors),
		slog.Duration("elapsed", o.now().Sub(startedAt)))
	return result, nil
}

// loadFloors returns the floor price per SKU code, from the uploaded test
// dataset in test mode or the floor price feed otherwise. A missing feed
// blocks the run; a stale one only raises a warning.
func (o *Orchestrator) loadFloors(ctx context.Context, marketplace domain.Marketplace, testMode bool) (map[string]domain.FloorPriceRecord, error) {
	if testMode {
		floors, err := o.testdata.LoadFloors(ctx, marketplace.Code)
		if err != nil {
			return nil, fmt.Errorf("repricer: load test floors: %w", err)
		}
		if len(floors) == 0 {
			o.alert(ctx, domain.SeverityCritical, "no test floor data uploaded", map[string]any{
				"marketplace": marketplace.Code,
			})
			return nil, fmt.Errorf("repricer: no test floor data for %s: %w", marketplace.Code, domain.ErrNotFound)
		}
		return floors, nil
	}

	if !o.feeds.IsFresh(ctx, marketplace.Code) {
		o.alert(ctx, domain.SeverityWarning, "floor price feed is stale", map[string]any{
			"marketplace": marketplace.Code,
		})
	}

	records, err := o.feeds.Load(ctx, marketplace.Code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			o.alert(ctx, domain.SeverityCritical, "floor price feed is missing", map[string]any{
				"marketplace": marketplace.Code,
			})
		}
		return nil, fmt.Errorf("repricer: load floor prices: %w", err)
	}

	floors := make(map[string]domain.FloorPriceRecord, len(records))
	for _, r := range records {
		floors[r.SkuCode] = r
	}
	return floors, nil
}

// fetchWindowOffers fetches competitor offers for every batch in the window
// concurrently and merges them into one map keyed by ASIN. The second return
// marks the batches whose fetch failed.
func (o *Orchestrator) fetchWindowOffers(ctx context.Context, marketplace domain.Marketplace, window [][]domain.Sku) (map[string][]domain.CompetitorOffer, []bool) {
	var mu sync.Mutex
	merged := map[string][]domain.CompetitorOffer{}
	failed := make([]bool, len(window))

	g, gctx := errgroup.WithContext(ctx)
	for bi, batch := range window {
		asins := make([]string, 0, len(batch))
		seen := map[string]struct{}{}
		for _, sku := range batch {
			if _, ok := seen[sku.ASIN]; ok {
				continue
			}
			seen[sku.ASIN] = struct{}{}
			asins = append(asins, sku.ASIN)
		}
		g.Go(func() error {
			offers, err := o.api.GetCompetitivePricing(gctx, marketplace.ExternalID, asins)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[bi] = true
				o.logger.Error("competitive pricing fetch failed",
					slog.String("marketplace", marketplace.Code),
					slog.Int("asins", len(asins)),
					slog.String("error", err.Error()))
				return nil
			}
			for asin, batchOffers := range offers {
				merged[asin] = batchOffers
			}
			return nil
		})
	}
	_ = g.Wait()
	return merged, failed
}

// resolvePolicy returns the effective policy for a SKU, caching resolved
// profiles for the duration of a run. An unknown profile falls back to the
// default policy.
func (o *Orchestrator) resolvePolicy(ctx context.Context, cache map[int64]Policy, profileID *int64) Policy {
	if profileID == nil {
		return o.cfg.DefaultPolicy
	}
	if policy, ok := cache[*profileID]; ok {
		return policy
	}

	policy := o.cfg.DefaultPolicy
	profile, err := o.profiles.GetByID(ctx, *profileID)
	if err != nil {
		o.logger.Warn("profile lookup failed, using default policy",
			slog.Int64("profile_id", *profileID),
			slog.String("error", err.Error()))
	} else {
		policy = policy.Resolve(&profile)
	}
	cache[*profileID] = policy
	return policy
}

// resolveTestMode layers the per-run override over the system setting over
// the configured default.
func (o *Orchestrator) resolveTestMode(ctx context.Context, opts RunOptions) bool {
	if opts.TestModeOverride != nil {
		return *opts.TestModeOverride
	}
	setting, err := o.settings.Get(ctx, domain.SettingTestMode)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("test mode setting lookup failed", slog.String("error", err.Error()))
		}
		return o.cfg.TestMode
	}
	return setting.Truthy()
}

func (o *Orchestrator) finalize(ctx context.Context, run domain.RepricingRun, status domain.RunStatus, result domain.RunResult) {
	completedAt := o.now()
	run.CompletedAt = &completedAt
	run.Status = status
	run.Processed = result.Processed
	run.Updated = result.Updated
	run.Errors = result.Errors
	if err := o.runs.Finalize(ctx, run); err != nil {
		o.logger.Error("finalize run failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) alert(ctx context.Context, severity domain.AlertSeverity, message string, metadata map[string]any) {
	if o.alerts == nil {
		return
	}
	o.alerts.Alert(ctx, severity, message, metadata)
}

// batchSkus splits the SKU list into contiguous batches of at most size.
func batchSkus(skus []domain.Sku, size int) [][]domain.Sku {
	batches := make([][]domain.Sku, 0, (len(skus)+size-1)/size)
	for start := 0; start < len(skus); start += size {
		end := start + size
		if end > len(skus) {
			end = len(skus)
		}
		batches = append(batches, skus[start:end])
	}
	return batches
}
