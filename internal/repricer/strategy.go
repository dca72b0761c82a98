package repricer

import (
	"time"

	"github.com/sdtonline/repricer/internal/domain"
)

// Decide computes the price to submit for one SKU from the current
// competitive landscape and the resolved policy. The decision is pure: it
// touches no stores, and the caller supplies the clock.
//
// The candidate price moves through a fixed sequence of adjustments:
//
//  1. Start from the last submitted price, or the floor price when the SKU
//     has never been priced.
//  2. Buy-box holders drift upward (step-up); everyone else undercuts the
//     cheapest competing offer that does not hold the buy box.
//  3. The result is clamped against the feed floor, the margin uplift, the
//     SKU's own minimum, and finally the daily change band around the last
//     price.
func Decide(sku domain.Sku, floor domain.FloorPriceRecord, offers []domain.CompetitorOffer, policy Policy, now time.Time) domain.PriceComputation {
	dctx := domain.DecisionContext{
		CompetitorCount: len(offers),
		HoldBuyBox:      sku.HoldBuyBox,
		UndercutPercent: policy.UndercutPercent,
		StepUp: domain.StepUpContext{
			Type:          policy.StepUpType,
			Value:         policy.StepUpValue,
			IntervalHours: policy.StepUpIntervalHours,
		},
	}

	candidate := floor.MinPrice
	if sku.LastPrice != nil {
		candidate = *sku.LastPrice
	}

	if sku.HoldBuyBox {
		// Step up only once the configured interval has elapsed since the
		// last price change; a fresh win keeps its winning price.
		if sku.LastPrice != nil && sku.LastPriceUpdate != nil {
			interval := time.Duration(policy.StepUpIntervalHours * float64(time.Hour))
			if now.Sub(*sku.LastPriceUpdate) >= interval {
				stepUp := *sku.LastPrice
				switch policy.StepUpType {
				case domain.StepUpAbsolute:
					stepUp += policy.StepUpValue
				default:
					stepUp *= 1 + policy.StepUpValue/100
				}
				dctx.StepUpCandidate = &stepUp
				if stepUp > candidate {
					candidate = stepUp
				}
			}
		}
	} else {
		var target *float64
		for i := range offers {
			if offers[i].IsBuyBox {
				continue
			}
			if target == nil || offers[i].Price < *target {
				target = &offers[i].Price
			}
		}
		if target != nil {
			undercut := policy.UndercutPercent / 100
			if undercut < 0 {
				undercut = 0
			}
			if undercut > 1 {
				undercut = 1
			}
			candidate = *target * (1 - undercut)
			dctx.TargetCompetitor = target
		}
	}

	if candidate < floor.MinPrice {
		candidate = floor.MinPrice
	}
	if policy.MinMarginPercent > 0 {
		if withMargin := floor.MinPrice * (1 + policy.MinMarginPercent/100); candidate < withMargin {
			candidate = withMargin
		}
	}
	if candidate < sku.MinPrice {
		candidate = sku.MinPrice
	}

	if sku.LastPrice != nil {
		band := 1 + policy.MaxDailyChangePercent/100
		if lower := *sku.LastPrice / band; candidate < lower {
			candidate = lower
		}
		if upper := *sku.LastPrice * band; candidate > upper {
			candidate = upper
		}
	}

	comp := domain.PriceComputation{
		Price:   candidate,
		Context: dctx,
	}
	if floor.MinBusinessPrice != nil {
		business := candidate
		if *floor.MinBusinessPrice > business {
			business = *floor.MinBusinessPrice
		}
		comp.BusinessPrice = &business
	}
	return comp
}
