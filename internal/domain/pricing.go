package domain

// CompetitorOffer is one competing listing for an ASIN, fetched per run from
// the marketplace API (or from uploaded test data). Offers are ephemeral and
// only persisted embedded in a price event's audit context.
type CompetitorOffer struct {
	SellerID        string  `json:"seller_id"`
	Price           float64 `json:"price"`
	IsBuyBox        bool    `json:"is_buy_box"`
	FulfillmentType string  `json:"fulfillment_type"`
}

// FloorPriceRecord is the externally supplied minimum price for a SKU. A SKU
// without a floor record is skipped by the orchestrator.
type FloorPriceRecord struct {
	SkuCode          string
	ASIN             string
	MinPrice         float64
	MinBusinessPrice *float64
}

// StepUpContext records the step-up parameters that were in effect for one
// pricing decision.
type StepUpContext struct {
	Type          StepUpType `json:"type"`
	Value         float64    `json:"value"`
	IntervalHours float64    `json:"interval_hours"`
}

// DecisionContext is the structured audit trail of a single pricing decision.
// It is serialized opaquely into the price event that records the decision.
type DecisionContext struct {
	CompetitorCount  int           `json:"competitor_count"`
	HoldBuyBox       bool          `json:"hold_buy_box"`
	UndercutPercent  float64       `json:"undercut_percent"`
	StepUp           StepUpContext `json:"step_up"`
	StepUpCandidate  *float64      `json:"step_up_candidate"`
	TargetCompetitor *float64      `json:"target_competitor,omitempty"`
}

// PriceComputation is the result of one pricing decision: the price to
// submit, the optional business price, and the decision context for audit.
type PriceComputation struct {
	Price         float64
	BusinessPrice *float64
	Context       DecisionContext
}
