package domain

// Marketplace is one selling region, identified by a short code (e.g. "DE")
// and carrying the external marketplace identifier used by the pricing API.
type Marketplace struct {
	ID         int64
	Code       string
	Name       string
	ExternalID string
}
