package domain

import "time"

// Event reasons recorded on price events.
const (
	ReasonRepricer     = "repricer"
	ReasonRepricerTest = "repricer-test"
	ReasonManual       = "manual"
)

// PriceEvent is one append-only audit record of a price change (or a
// simulated change in test mode). Context holds the serialized decision
// context plus any submission receipt; it is never interpreted after write.
type PriceEvent struct {
	ID               int64
	SkuID            int64
	CreatedAt        time.Time
	OldPrice         *float64
	NewPrice         float64
	OldBusinessPrice *float64
	NewBusinessPrice *float64
	Reason           string
	Context          map[string]any
}
