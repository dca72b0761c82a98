package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketplaceStore persists marketplace definitions.
type MarketplaceStore interface {
	GetByCode(ctx context.Context, code string) (Marketplace, error)
	List(ctx context.Context) ([]Marketplace, error)
	Ensure(ctx context.Context, m Marketplace) error
}

// ProfileStore persists repricing profiles.
type ProfileStore interface {
	GetByID(ctx context.Context, id int64) (RepricingProfile, error)
	List(ctx context.Context) ([]RepricingProfile, error)
	Create(ctx context.Context, p RepricingProfile) (int64, error)
	Update(ctx context.Context, p RepricingProfile) error
	Delete(ctx context.Context, id int64) error
}

// ProfileCadence is one distinct (profile, cadence) pair currently assigned
// to a marketplace's SKUs; the scheduler sweeps over these.
type ProfileCadence struct {
	ProfileID        int64
	FrequencyMinutes int
}

// SkuPriceUpdate carries the new last-submitted prices written onto a SKU
// together with its audit event.
type SkuPriceUpdate struct {
	Price         float64
	BusinessPrice *float64
	UpdatedAt     time.Time
}

// SkuStore persists SKUs and their last-submitted prices.
type SkuStore interface {
	ListByMarketplace(ctx context.Context, marketplaceID int64, profileID *int64) ([]Sku, error)
	GetBySkuCode(ctx context.Context, marketplaceID int64, skuCode string) (Sku, error)
	ProfileCadences(ctx context.Context, marketplaceID int64) ([]ProfileCadence, error)
	CountUnprofiled(ctx context.Context, marketplaceID int64) (int64, error)
	// ApplyPriceChange updates the SKU's last prices and appends the price
	// event in a single transaction.
	ApplyPriceChange(ctx context.Context, skuID int64, update SkuPriceUpdate, event PriceEvent) error
}

// PriceEventStore appends and reads the price audit trail.
type PriceEventStore interface {
	Append(ctx context.Context, event PriceEvent) error
	ListRecent(ctx context.Context, opts ListOpts) ([]PriceEvent, error)
	ListBySku(ctx context.Context, skuID int64, opts ListOpts) ([]PriceEvent, error)
}

// RunStore persists repricing run telemetry.
type RunStore interface {
	Create(ctx context.Context, run RepricingRun) error
	Finalize(ctx context.Context, run RepricingRun) error
	ListRecent(ctx context.Context, opts ListOpts) ([]RepricingRun, error)
}

// AlertStore persists operator alerts.
type AlertStore interface {
	Create(ctx context.Context, alert Alert) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Alert, error)
	Acknowledge(ctx context.Context, id int64) error
}

// SettingStore persists system-wide key/value settings.
type SettingStore interface {
	Get(ctx context.Context, key string) (SystemSetting, error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) ([]SystemSetting, error)
}

// TestDataStore persists uploaded floor-price and competitor datasets used by
// simulated (test-mode) runs.
type TestDataStore interface {
	ReplaceFloors(ctx context.Context, marketplaceCode string, records []FloorPriceRecord) error
	ReplaceOffers(ctx context.Context, marketplaceCode string, offers map[string][]CompetitorOffer) error
	LoadFloors(ctx context.Context, marketplaceCode string) (map[string]FloorPriceRecord, error)
	LoadOffers(ctx context.Context, marketplaceCode string) (map[string][]CompetitorOffer, error)
}
