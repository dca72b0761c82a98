package domain

// StepUpType selects how the step-up drift is computed while a SKU holds the
// buy box.
type StepUpType string

const (
	StepUpPercentage StepUpType = "percentage"
	StepUpAbsolute   StepUpType = "absolute"
)

// RepricingProfile is a named, reusable bundle of pricing-policy parameters
// assignable to SKUs. Any nil field falls back to the system default policy
// when the profile is resolved for a run.
type RepricingProfile struct {
	ID                    int64
	Name                  string
	FrequencyMinutes      int
	UndercutPercent       *float64
	MinMarginPercent      *float64
	MaxDailyChangePercent *float64
	StepUpType            *StepUpType
	StepUpValue           *float64
	StepUpIntervalHours   *float64
}
