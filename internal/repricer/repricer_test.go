package repricer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sdtonline/repricer/internal/domain"
	"github.com/sdtonline/repricer/internal/platform/spapi"
)

// --- fakes ---

type fakeMarketplaceStore struct {
	byCode map[string]domain.Marketplace
}

func (f *fakeMarketplaceStore) GetByCode(_ context.Context, code string) (domain.Marketplace, error) {
	m, ok := f.byCode[code]
	if !ok {
		return domain.Marketplace{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarketplaceStore) List(context.Context) ([]domain.Marketplace, error) {
	var out []domain.Marketplace
	for _, m := range f.byCode {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMarketplaceStore) Ensure(context.Context, domain.Marketplace) error { return nil }

type appliedChange struct {
	skuID  int64
	update domain.SkuPriceUpdate
	event  domain.PriceEvent
}

type fakeSkuStore struct {
	skus    []domain.Sku
	applied []appliedChange
}

func (f *fakeSkuStore) ListByMarketplace(_ context.Context, marketplaceID int64, profileID *int64) ([]domain.Sku, error) {
	var out []domain.Sku
	for _, s := range f.skus {
		if s.MarketplaceID != marketplaceID {
			continue
		}
		if profileID != nil && (s.ProfileID == nil || *s.ProfileID != *profileID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSkuStore) GetBySkuCode(_ context.Context, marketplaceID int64, skuCode string) (domain.Sku, error) {
	for _, s := range f.skus {
		if s.MarketplaceID == marketplaceID && s.SkuCode == skuCode {
			return s, nil
		}
	}
	return domain.Sku{}, domain.ErrNotFound
}

func (f *fakeSkuStore) ProfileCadences(context.Context, int64) ([]domain.ProfileCadence, error) {
	return nil, nil
}

func (f *fakeSkuStore) CountUnprofiled(context.Context, int64) (int64, error) { return 0, nil }

func (f *fakeSkuStore) ApplyPriceChange(_ context.Context, skuID int64, update domain.SkuPriceUpdate, event domain.PriceEvent) error {
	f.applied = append(f.applied, appliedChange{skuID: skuID, update: update, event: event})
	return nil
}

type fakeProfileStore struct {
	profiles map[int64]domain.RepricingProfile
	lookups  int
}

func (f *fakeProfileStore) GetByID(_ context.Context, id int64) (domain.RepricingProfile, error) {
	f.lookups++
	p, ok := f.profiles[id]
	if !ok {
		return domain.RepricingProfile{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfileStore) List(context.Context) ([]domain.RepricingProfile, error) {
	return nil, nil
}
func (f *fakeProfileStore) Create(context.Context, domain.RepricingProfile) (int64, error) {
	return 0, nil
}
func (f *fakeProfileStore) Update(context.Context, domain.RepricingProfile) error { return nil }
func (f *fakeProfileStore) Delete(context.Context, int64) error                   { return nil }

type fakeRunStore struct {
	created   []domain.RepricingRun
	finalized []domain.RepricingRun
}

func (f *fakeRunStore) Create(_ context.Context, run domain.RepricingRun) error {
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRunStore) Finalize(_ context.Context, run domain.RepricingRun) error {
	f.finalized = append(f.finalized, run)
	return nil
}

func (f *fakeRunStore) ListRecent(context.Context, domain.ListOpts) ([]domain.RepricingRun, error) {
	return nil, nil
}

type fakeEventStore struct {
	events []domain.PriceEvent
}

func (f *fakeEventStore) Append(_ context.Context, event domain.PriceEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventStore) ListRecent(context.Context, domain.ListOpts) ([]domain.PriceEvent, error) {
	return nil, nil
}

func (f *fakeEventStore) ListBySku(context.Context, int64, domain.ListOpts) ([]domain.PriceEvent, error) {
	return nil, nil
}

type fakeSettingStore struct {
	values map[string]string
}

func (f *fakeSettingStore) Get(_ context.Context, key string) (domain.SystemSetting, error) {
	v, ok := f.values[key]
	if !ok {
		return domain.SystemSetting{}, domain.ErrNotFound
	}
	return domain.SystemSetting{Key: key, Value: v}, nil
}

func (f *fakeSettingStore) Set(_ context.Context, key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	return nil
}

func (f *fakeSettingStore) List(context.Context) ([]domain.SystemSetting, error) { return nil, nil }

type fakeTestDataStore struct {
	floors map[string]domain.FloorPriceRecord
	offers map[string][]domain.CompetitorOffer
}

func (f *fakeTestDataStore) ReplaceFloors(context.Context, string, []domain.FloorPriceRecord) error {
	return nil
}

func (f *fakeTestDataStore) ReplaceOffers(context.Context, string, map[string][]domain.CompetitorOffer) error {
	return nil
}

func (f *fakeTestDataStore) LoadFloors(context.Context, string) (map[string]domain.FloorPriceRecord, error) {
	return f.floors, nil
}

func (f *fakeTestDataStore) LoadOffers(context.Context, string) (map[string][]domain.CompetitorOffer, error) {
	return f.offers, nil
}

type fakeFeed struct {
	records []domain.FloorPriceRecord
	fresh   bool
	loadErr error
}

func (f *fakeFeed) IsFresh(context.Context, string) bool { return f.fresh }

func (f *fakeFeed) Load(context.Context, string) ([]domain.FloorPriceRecord, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.records, nil
}

type submission struct {
	skuCode string
	price   float64
}

type fakeAPI struct {
	offers      map[string][]domain.CompetitorOffer
	fetchErr    error
	submissions []submission
}

func (f *fakeAPI) GetCompetitivePricing(_ context.Context, _ string, asins []string) (map[string][]domain.CompetitorOffer, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := map[string][]domain.CompetitorOffer{}
	for _, asin := range asins {
		if offers, ok := f.offers[asin]; ok {
			out[asin] = offers
		}
	}
	return out, nil
}

func (f *fakeAPI) SubmitPriceUpdate(_ context.Context, _ string, skuCode string, price float64, _ *float64) (spapi.SubmissionReceipt, error) {
	f.submissions = append(f.submissions, submission{skuCode: skuCode, price: price})
	return spapi.SubmissionReceipt{SubmissionID: fmt.Sprintf("sub-%d", len(f.submissions)), Status: "ACCEPTED"}, nil
}

type recordedAlert struct {
	severity domain.AlertSeverity
	message  string
}

type fakeAlerter struct {
	alerts []recordedAlert
}

func (f *fakeAlerter) Alert(_ context.Context, severity domain.AlertSeverity, message string, _ map[string]any) {
	f.alerts = append(f.alerts, recordedAlert{severity: severity, message: message})
}

// --- harness ---

type harness struct {
	marketplaces *fakeMarketplaceStore
	skus         *fakeSkuStore
	profiles     *fakeProfileStore
	runs         *fakeRunStore
	events       *fakeEventStore
	settings     *fakeSettingStore
	testdata     *fakeTestDataStore
	feed         *fakeFeed
	api          *fakeAPI
	alerter      *fakeAlerter
	orch         *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		marketplaces: &fakeMarketplaceStore{byCode: map[string]domain.Marketplace{
			"DE": {ID: 1, Code: "DE", Name: "DE", ExternalID: "A1PA6795UKMFR9"},
		}},
		skus:     &fakeSkuStore{},
		profiles: &fakeProfileStore{profiles: map[int64]domain.RepricingProfile{}},
		runs:     &fakeRunStore{},
		events:   &fakeEventStore{},
		settings: &fakeSettingStore{},
		testdata: &fakeTestDataStore{},
		feed:     &fakeFeed{fresh: true},
		api:      &fakeAPI{offers: map[string][]domain.CompetitorOffer{}},
		alerter:  &fakeAlerter{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.orch = NewOrchestrator(Params{
		Config: Config{
			BatchSize:     2,
			Concurrency:   2,
			DefaultPolicy: defaultTestPolicy(),
		},
		Marketplaces: h.marketplaces,
		Skus:         h.skus,
		Profiles:     h.profiles,
		Runs:         h.runs,
		Events:       h.events,
		Settings:     h.settings,
		TestData:     h.testdata,
		Feeds:        h.feed,
		API:          h.api,
		Alerts:       h.alerter,
		Logger:       logger,
	})
	return h
}

func testSku(id int64, code, asin string, lastPrice float64) domain.Sku {
	updated := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	return domain.Sku{
		ID:              id,
		SkuCode:         code,
		ASIN:            asin,
		MarketplaceID:   1,
		MinPrice:        1,
		LastPrice:       fp(lastPrice),
		LastPriceUpdate: &updated,
	}
}

// --- tests ---

func TestRunRepricesAndSkipsSkusWithoutFloors(t *testing.T) {
	h := newHarness()
	h.skus.skus = []domain.Sku{
		testSku(1, "SKU-A", "ASIN-A", 15),
		testSku(2, "SKU-B", "ASIN-B", 20),
		testSku(3, "SKU-C", "ASIN-C", 25),
	}
	// No floor for SKU-C.
	h.feed.records = []domain.FloorPriceRecord{
		{SkuCode: "SKU-A", ASIN: "ASIN-A", MinPrice: 10},
		{SkuCode: "SKU-B", ASIN: "ASIN-B", MinPrice: 10},
	}
	h.api.offers = map[string][]domain.CompetitorOffer{
		"ASIN-A": {{SellerID: "X", Price: 14.50}},
		"ASIN-B": {{SellerID: "X", Price: 19.00}},
	}

	result, err := h.orch.Run(context.Background(), RunOptions{MarketplaceCode: "DE"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Processed != 3 {
		t.Fatalf("processed = %d, want 3", result.Processed)
	}
	if result.Errors != 1 {
		t.Fatalf("errors = %d, want 1 for the missing floor", result.Errors)
	}
	if result.Updated != 2 {
		t.Fatalf("updated = %d, want 2", result.Updated)
	}

	if len(h.api.submissions) != 2 {
		t.Fatalf("submissions = %d, want 2", len(h.api.submissions))
	}
	if len(h.skus.applied) != 2 {
		t.Fatalf("applied changes = %d, want 2", len(h.skus.applied))
	}
	for _, a := range h.skus.applied {
		if a.event.Reason != domain.ReasonRepricer {
			t.Fatalf("event reason = %q, want %q", a.event.Reason, domain.ReasonRepricer)
		}
	}

	if len(h.alerter.alerts) != 1 || h.alerter.alerts[0].severity != domain.SeverityWarning {
		t.Fatalf("alerts = %+v, want one warning for the missing floor", h.alerter.alerts)
	}

	if len(h.runs.finalized) != 1 || h.runs.finalized[0].Status != domain.RunCompleted {
		t.Fatalf("finalized = %+v, want one completed run", h.runs.finalized)
	}
	if h.runs.finalized[0].Processed != 3 || h.runs.finalized[0].Errors != 1 {
		t.Fatalf("run counters = %+v, want processed 3 errors 1", h.runs.finalized[0])
	}
}

func TestRunTestModeNeverTouchesSkus(t *testing.T) {
	h := newHarness()
	h.settings.values = map[string]string{domain.SettingTestMode: "true"}
	h.skus.skus = []domain.Sku{testSku(1, "SKU-A", "ASIN-A", 15)}
	h.testdata.floors = map[string]domain.FloorPriceRecord{
		"SKU-A": {SkuCode: "SKU-A", ASIN: "ASIN-A", MinPrice: 10},
	}
	h.testdata.offers = map[string][]domain.CompetitorOffer{
		"ASIN-A": {{SellerID: "X", Price: 14.50}},
	}

	result, err := h.orch.Run(context.Background(), RunOptions{MarketplaceCode: "DE"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(h.skus.applied) != 0 {
		t.Fatalf("test mode applied %d sku changes, want 0", len(h.skus.applied))
	}
	if len(h.api.submissions) != 0 {
		t.Fatalf("test mode submitted %d prices, want 0", len(h.api.submissions))
	}
	if len(h.events.events) != 1 {
		t.Fatalf("events = %d, want 1 simulated event", len(h.events.events))
	}
	event := h.events.events[0]
	if event.Reason != domain.ReasonRepricerTest {
		t.Fatalf("event reason = %q, want %q", event.Reason, domain.ReasonRepricerTest)
	}
	if event.OldPrice == nil || *event.OldPrice != 15 {
		t.Fatalf("event old price = %v, want 15", event.OldPrice)
	}
	if result.Updated != 1 {
		t.Fatalf("updated = %d, want 1", result.Updated)
	}
	if len(h.runs.finalized) != 1 || h.runs.finalized[0].Status != domain.RunTestCompleted {
		t.Fatalf("finalized = %+v, want one test-completed run", h.runs.finalized)
	}
}

func TestRunTestModeOverrideBeatsSetting(t *testing.T) {
	h := newHarness()
	h.settings.values = map[string]string{domain.SettingTestMode: "true"}
	h.skus.skus = []domain.Sku{testSku(1, "SKU-A", "ASIN-A", 15)}
	h.feed.records = []domain.FloorPriceRecord{{SkuCode: "SKU-A", ASIN: "ASIN-A", MinPrice: 10}}
	h.api.offers = map[string][]domain.CompetitorOffer{
		"ASIN-A": {{SellerID: "X", Price: 14.50}},
	}

	live := false
	_, err := h.orch.Run(context.Background(), RunOptions{MarketplaceCode: "DE", TestModeOverride: &live})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(h.api.submissions) != 1 {
		t.Fatalf("submissions = %d, want 1 live submission despite the setting", len(h.api.submissions))
	}
}

func TestRunEmptyMarketplace(t *testing.T) {
	h := newHarness()

	result, err := h.orch.Run(context.Background(), RunOptions{MarketplaceCode: "DE"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Processed != 0 || result.Updated != 0 || result.Errors != 0 {
		t.Fatalf("result = %+v, want all-zero counters", result)
	}
	if len(h.runs.finalized) != 1 || h.runs.finalized[0].Status != domain.RunEmpty {
		t.Fatalf("finalized = %+v, want one empty run", h.runs.finalized)
	}
}

func TestRunBlockedWhenFeedMissing(t *testing.T) {
	h := newHarness()
	h.skus.skus = []domain.Sku{testSku(1, "SKU-A", "ASIN-A", 15)}
	h.feed.fresh = false
	h.feed.loadErr = fmt.Errorf("feed: open: %w", domain.ErrNotFound)

	_, err := h.orch.Run(context.Background(), RunOptions{MarketplaceCode: "DE"})
	if err == nil {
		t.Fatal("Run: want error for a missing feed")
	}

	if len(h.runs.finalized) != 1 || h.runs.finalized[0].Status != domain.RunBlocked {
		t.Fatalf("finalized = %+v, want one blocked run", h.runs.finalized)
	}

	var critical bool
	for _, a := range h.alerter.alerts {
		if a.severity == domain.SeverityCritical {
			critical = true
		}
	}
	if !critical {
		t.Fatalf("alerts = %+v, want a critical alert", h.alerter.alerts)
	}
}

func TestRunStaleFeedWarnsButContinues(t *testing.T) {
	h := newHarness()
	h.skus.skus = []domain.Sku{testSku(1, "SKU-A", "ASIN-A", 15)}
	h.feed.fresh = false
	h.feed.records = []domain.FloorPriceRecord{{SkuCode: "SKU-A", ASIN: "ASIN-A", MinPrice: 10}}

	result, err := h.orch.Run(context.Background(), RunOptions{MarketplaceCode: "DE"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Processed != 1 {
		t.Fatalf("processed = %d, want 1", result.Processed)
	}
	if len(h.alerter.alerts) != 1 || h.alerter.alerts[0].severity != domain.SeverityWarning {
		t.Fatalf("alerts = %+v, want one staleness warning", h.alerter.alerts)
	}
	if len(h.runs.finalized) != 1 || h.runs.finalized[0].Status != domain.RunCompleted {
		t.Fatalf("finalized = %+v, want one completed run", h.runs.finalized)
	}
}

func TestRunUnknownMarketplace(t *testing.T) {
	h := newHarness()

	_, err := h.orch.Run(context.Background(), RunOptions{MarketplaceCode: "XX"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Run error = %v, want ErrNotFound", err)
	}
	if len(h.runs.created) != 0 {
		t.Fatalf("created %d runs for an unknown marketplace, want 0", len(h.runs.created))
	}
}

func TestRunSkipsUnchangedPrices(t *testing.T) {
	h := newHarness()
	h.skus.skus = []domain.Sku{testSku(1, "SKU-A", "ASIN-A", 15)}
	h.feed.records = []domain.FloorPriceRecord{{SkuCode: "SKU-A", ASIN: "ASIN-A", MinPrice: 10}}
	// No competitors: the candidate stays at the last price.

	result, err := h.orch.Run(context.Background(), RunOptions{MarketplaceCode: "DE"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Updated != 0 {
		t.Fatalf("updated = %d, want 0 for an unchanged price", result.Updated)
	}
	if len(h.api.submissions) != 0 {
		t.Fatalf("submissions = %d, want 0", len(h.api.submissions))
	}
}

func TestRunResolvesProfilePolicyOnce(t *testing.T) {
	h := newHarness()
	profileID := int64(7)
	undercut := 2.0
	h.profiles.profiles[profileID] = domain.RepricingProfile{
		ID:               profileID,
		Name:             "aggressive",
		FrequencyMinutes: 15,
		UndercutPercent:  &undercut,
	}

	skuA := testSku(1, "SKU-A", "ASIN-A", 15)
	skuA.ProfileID = &profileID
	skuB := testSku(2, "SKU-B", "ASIN-B", 15)
	skuB.ProfileID = &profileID
	h.skus.skus = []domain.Sku{skuA, skuB}

	h.feed.records = []domain.FloorPriceRecord{
		{SkuCode: "SKU-A", ASIN: "ASIN-A", MinPrice: 5},
		{SkuCode: "SKU-B", ASIN: "ASIN-B", MinPrice: 5},
	}
	h.api.offers = map[string][]domain.CompetitorOffer{
		"ASIN-A": {{SellerID: "X", Price: 14.00}},
		"ASIN-B": {{SellerID: "X", Price: 14.00}},
	}

	result, err := h.orch.Run(context.Background(), RunOptions{MarketplaceCode: "DE"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if h.profiles.lookups != 1 {
		t.Fatalf("profile lookups = %d, want 1 (cached per run)", h.profiles.lookups)
	}
	if len(result.ProfilesProcessed) != 1 || result.ProfilesProcessed[0] != profileID {
		t.Fatalf("profiles processed = %v, want [%d]", result.ProfilesProcessed, profileID)
	}
	// The profile's 2% undercut applies: 14 * 0.98.
	want := 14.0 * 0.98
	for _, sub := range h.api.submissions {
		if !almostEqual(sub.price, want) {
			t.Fatalf("submitted price = %v, want %v", sub.price, want)
		}
	}
}
