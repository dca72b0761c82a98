package domain

import "time"

// Sku is one listing on one marketplace. The pair (SkuCode, MarketplaceID) is
// unique. Prices are in the marketplace's local currency.
type Sku struct {
	ID                int64
	SkuCode           string
	ASIN              string
	MarketplaceID     int64
	MinPrice          float64
	MinBusinessPrice  *float64
	LastFloorSync     *time.Time
	HoldBuyBox        bool
	LastPrice         *float64
	LastBusinessPrice *float64
	LastPriceUpdate   *time.Time
	ProfileID         *int64
}
