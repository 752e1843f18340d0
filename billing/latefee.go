/*
latefee.go - Late payment accrual

PURPOSE:
  Decides whether a late-payment charge applies to a bill on a given
  evaluation date, and how much it is.

RULE:
  No charge accrues while evaluationDate <= dueDate + GracePeriodDays.
  The first overdue day is the day after grace ends. From then on the
  charge is re-derived per compounding period started:

    n = Compounding.PeriodsStarted(firstOverdueDay, evaluationDate)

    fixed      -> ChargeValue * n
    percentage -> base * ((1 + ChargeValue/100)^n - 1)

  For n = 1 these are exactly ChargeValue and base * ChargeValue / 100.

IDEMPOTENCE:
  The amount is a pure function of (due, evaluation date, config, base).
  Re-evaluating on the same date yields the same amount; nothing is
  accumulated between calls, so there is no double accrual.

SEE ALSO:
  - generic/accrual.go: PeriodsStarted
  - assembler.go: Adds the late fee to the bill total
*/
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// factorPlaces bounds the digits carried while compounding.
const factorPlaces int32 = 12

// LateFee is the accrual outcome. Periods and GraceEnds are kept for audit.
type LateFee struct {
	Applicable bool
	Periods    int
	GraceEnds  generic.TimePoint
	Amount     decimal.Decimal
}

// LateFeeAccrual is stateless; the zero value is ready to use.
type LateFeeAccrual struct{}

func (LateFeeAccrual) Evaluate(due, at generic.TimePoint, cfg LatePaymentConfig, base decimal.Decimal) (LateFee, error) {
	none := LateFee{Amount: decimal.Zero}
	if !cfg.IsApplicable {
		return none, nil
	}
	if err := cfg.Validate(); err != nil {
		return none, err
	}
	if due.IsZero() {
		return none, invalid("due_date", "required for late fee evaluation")
	}
	if at.IsZero() {
		return none, invalid("evaluation_date", "required for late fee evaluation")
	}

	graceEnds := due.AddDays(cfg.GracePeriodDays)
	none.GraceEnds = graceEnds
	if at.BeforeOrEqual(graceEnds) {
		return none, nil
	}

	n := cfg.Compounding.PeriodsStarted(graceEnds.AddDays(1), at)

	var amount decimal.Decimal
	switch cfg.ChargeType {
	case LateFeeFixed:
		amount = cfg.ChargeValue.Mul(decimal.NewFromInt(int64(n)))
	case LateFeePercentage:
		rate := cfg.ChargeValue.Div(decimal.NewFromInt(100))
		amount = base.Mul(compound(rate, n).Sub(decimal.NewFromInt(1)))
	}

	return LateFee{
		Applicable: true,
		Periods:    n,
		GraceEnds:  graceEnds,
		Amount:     generic.Round2(amount),
	}, nil
}

// compound returns (1 + rate)^n.
func compound(rate decimal.Decimal, n int) decimal.Decimal {
	step := decimal.NewFromInt(1).Add(rate)
	factor := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		factor = factor.Mul(step).Round(factorPlaces)
	}
	return factor
}
