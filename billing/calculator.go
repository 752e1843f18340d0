package billing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// CHARGE CALCULATOR - Base amount from a calculation spec and usage
// =============================================================================

// UsageInput carries the per-bill inputs. Unset fields are invalid
// NullDecimals.
type UsageInput struct {
	UnitUsage    decimal.NullDecimal
	CustomAmount decimal.NullDecimal
}

// Usage builds a UsageInput with unit usage set.
func Usage(units decimal.Decimal) UsageInput {
	return UsageInput{UnitUsage: decimal.NewNullDecimal(units)}
}

// ChargeOutcome is the computed amount plus the usage actually applied.
type ChargeOutcome struct {
	Amount          decimal.Decimal
	UnitUsage       decimal.Decimal
	CalculationType CalculationType
}

// ChargeCalculator is stateless; the zero value is ready to use.
type ChargeCalculator struct{}

func NewChargeCalculator() *ChargeCalculator { return &ChargeCalculator{} }

// Compute returns the non-negative amount for spec, rounded to 2 places.
//
//   - fixed:    FixedAmount, usage forced to 1
//   - per_unit: unitUsage * PerUnitRate
//   - formula:  Formula with unitUsage and rate (PerUnitRate) bound
//   - custom:   the caller-supplied CustomAmount
func (c *ChargeCalculator) Compute(spec ChargeSpec, in UsageInput) (ChargeOutcome, error) {
	out := ChargeOutcome{CalculationType: spec.CalculationType}

	var amount decimal.Decimal
	switch spec.CalculationType {
	case CalcFixed:
		amount = spec.FixedAmount
		out.UnitUsage = decimal.NewFromInt(1)

	case CalcPerUnit:
		units, err := requireUsage(in)
		if err != nil {
			return ChargeOutcome{}, err
		}
		amount = units.Mul(spec.PerUnitRate)
		out.UnitUsage = units

	case CalcFormula:
		units, err := requireUsage(in)
		if err != nil {
			return ChargeOutcome{}, err
		}
		amount, err = EvalFormula(spec.Formula, map[string]decimal.Decimal{
			VarUnitUsage: units,
			VarRate:      spec.PerUnitRate,
		})
		if err != nil {
			return ChargeOutcome{}, err
		}
		out.UnitUsage = units

	case CalcCustom:
		if !in.CustomAmount.Valid {
			return ChargeOutcome{}, &UnsupportedCalculationTypeError{
				Type:   CalcCustom,
				Reason: "cannot be computed automatically; a pre-computed amount is required",
			}
		}
		amount = in.CustomAmount.Decimal
		if in.UnitUsage.Valid {
			out.UnitUsage = in.UnitUsage.Decimal
		}

	default:
		return ChargeOutcome{}, invalid("calculation_type", "unknown calculation type %q", spec.CalculationType)
	}

	if amount.IsNegative() {
		return ChargeOutcome{}, invalid("amount", "computed amount %s is negative", amount)
	}
	out.Amount = generic.Round2(amount)
	return out, nil
}

func requireUsage(in UsageInput) (decimal.Decimal, error) {
	if !in.UnitUsage.Valid {
		return decimal.Zero, invalid("unit_usage", "required")
	}
	if in.UnitUsage.Decimal.IsNegative() {
		return decimal.Zero, invalid("unit_usage", "must be >= 0")
	}
	return in.UnitUsage.Decimal, nil
}

// ParseUsage converts transport-layer text into a unit usage.
func ParseUsage(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, invalid("unit_usage", "required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("unit_usage", "%q is not a number", s)
	}
	if d.IsNegative() {
		return decimal.Zero, invalid("unit_usage", "must be >= 0")
	}
	return d, nil
}
