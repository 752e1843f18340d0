package billing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// GST - Per-component tax breakdown
// =============================================================================

type GSTBreakdown struct {
	CGSTAmount decimal.Decimal
	SGSTAmount decimal.Decimal
	IGSTAmount decimal.Decimal
	Total      decimal.Decimal
}

// ComputeGST applies cfg to base. Each component is rounded half-up to
// 2 places on its own; Total is the exact sum of the rounded components.
func ComputeGST(base decimal.Decimal, cfg GSTConfig) GSTBreakdown {
	if !cfg.IsApplicable {
		return GSTBreakdown{
			CGSTAmount: decimal.Zero,
			SGSTAmount: decimal.Zero,
			IGSTAmount: decimal.Zero,
			Total:      decimal.Zero,
		}
	}
	b := GSTBreakdown{
		CGSTAmount: generic.Round2(generic.Percent(base, cfg.CGSTPct)),
		SGSTAmount: generic.Round2(generic.Percent(base, cfg.SGSTPct)),
		IGSTAmount: generic.Round2(generic.Percent(base, cfg.IGSTPct)),
	}
	b.Total = generic.Sum(b.CGSTAmount, b.SGSTAmount, b.IGSTAmount)
	return b
}
