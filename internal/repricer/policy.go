package repricer

import "github.com/sdtonline/repricer/internal/domain"

// Policy is a fully resolved set of pricing parameters for one SKU. It is
// built by layering a repricing profile's overrides on top of the system
// default policy; every field always carries a usable value.
type Policy struct {
	UndercutPercent       float64
	MinMarginPercent      float64
	MaxDailyChangePercent float64
	StepUpType            domain.StepUpType
	StepUpValue           float64
	StepUpIntervalHours   float64
}

// Resolve returns a copy of the policy with the profile's non-nil fields
// applied over it. A nil profile returns the policy unchanged.
func (p Policy) Resolve(profile *domain.RepricingProfile) Policy {
	if profile == nil {
		return p
	}
	if profile.UndercutPercent != nil {
		p.UndercutPercent = *profile.UndercutPercent
	}
	if profile.MinMarginPercent != nil {
		p.MinMarginPercent = *profile.MinMarginPercent
	}
	if profile.MaxDailyChangePercent != nil {
		p.MaxDailyChangePercent = *profile.MaxDailyChangePercent
	}
	if profile.StepUpType != nil {
		p.StepUpType = *profile.StepUpType
	}
	if profile.StepUpValue != nil {
		p.StepUpValue = *profile.StepUpValue
	}
	if profile.StepUpIntervalHours != nil {
		p.StepUpIntervalHours = *profile.StepUpIntervalHours
	}
	return p
}
