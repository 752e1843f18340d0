/*
Package factory provides JSON to Go bill head conversion.

PURPOSE:
  Converts JSON bill head definitions into billing.BillHeadSpec values
  and back. Committee members configure recurring charges (water,
  clubhouse fee, maintenance) through the admin UI or a YAML seed file;
  the factory turns those documents into validated specs.

JSON SCHEMA:
  {
    "id": "water-a",
    "code": "WTR",
    "name": "Water",
    "category": "utility",
    "calculation_type": "per_unit",
    "per_unit_rate": "12.50",
    "gst": {"is_applicable": true, "cgst_pct": "9", "sgst_pct": "9"},
    "late_payment": {
      "is_applicable": true,
      "grace_period_days": 5,
      "charge_type": "percentage",
      "charge_value": "2",
      "compounding": "monthly"
    },
    "due_days": 10
  }

  Amounts accept JSON numbers or strings. Strings are preferred: they
  survive the round trip without float rounding.

VALIDATION:
  Every parsed spec goes through BillHeadSpec.Validate, so a GST rate
  above its legal ceiling or a formula that does not parse is rejected
  here, at configuration time, and never reaches a bill.

DEFAULTS:
  - late_payment.compounding: monthly
  - late_payment.charge_type: fixed

SEE ALSO:
  - billing/types.go: BillHeadSpec
  - config/config.go: YAML seeding of bill heads
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type BillHeadJSON struct {
	ID              string           `json:"id" yaml:"id"`
	Code            string           `json:"code" yaml:"code"`
	Name            string           `json:"name" yaml:"name"`
	Category        string           `json:"category" yaml:"category"`
	UsageLabel      string           `json:"usage_label,omitempty" yaml:"usage_label,omitempty"`
	CalculationType string           `json:"calculation_type" yaml:"calculation_type"`
	FixedAmount     *decimal.Decimal `json:"fixed_amount,omitempty" yaml:"fixed_amount,omitempty"`
	PerUnitRate     *decimal.Decimal `json:"per_unit_rate,omitempty" yaml:"per_unit_rate,omitempty"`
	Formula         string           `json:"formula,omitempty" yaml:"formula,omitempty"`
	GST             *GSTJSON         `json:"gst,omitempty" yaml:"gst,omitempty"`
	LatePayment     *LatePaymentJSON `json:"late_payment,omitempty" yaml:"late_payment,omitempty"`
	DueDays         int              `json:"due_days,omitempty" yaml:"due_days,omitempty"`
}

type GSTJSON struct {
	IsApplicable bool             `json:"is_applicable" yaml:"is_applicable"`
	CGSTPct      *decimal.Decimal `json:"cgst_pct,omitempty" yaml:"cgst_pct,omitempty"`
	SGSTPct      *decimal.Decimal `json:"sgst_pct,omitempty" yaml:"sgst_pct,omitempty"`
	IGSTPct      *decimal.Decimal `json:"igst_pct,omitempty" yaml:"igst_pct,omitempty"`
}

type LatePaymentJSON struct {
	IsApplicable    bool             `json:"is_applicable" yaml:"is_applicable"`
	GracePeriodDays int              `json:"grace_period_days,omitempty" yaml:"grace_period_days,omitempty"`
	ChargeType      string           `json:"charge_type,omitempty" yaml:"charge_type,omitempty"`
	ChargeValue     *decimal.Decimal `json:"charge_value,omitempty" yaml:"charge_value,omitempty"`
	Compounding     string           `json:"compounding,omitempty" yaml:"compounding,omitempty"`
}

// ChargeJSON is an additional charge attached to a bill request.
type ChargeJSON struct {
	ID              string           `json:"id"`
	ChargeType      string           `json:"charge_type"`
	CalculationType string           `json:"calculation_type"`
	FixedAmount     *decimal.Decimal `json:"fixed_amount,omitempty"`
	PerUnitRate     *decimal.Decimal `json:"per_unit_rate,omitempty"`
	Formula         string           `json:"formula,omitempty"`
	UnitUsage       *decimal.Decimal `json:"unit_usage,omitempty"`
	CustomAmount    *decimal.Decimal `json:"custom_amount,omitempty"`
}

// =============================================================================
// BILL HEAD FACTORY
// =============================================================================

type BillHeadFactory struct{}

func NewBillHeadFactory() *BillHeadFactory {
	return &BillHeadFactory{}
}

// ParseBillHead parses and validates a JSON bill head.
func (f *BillHeadFactory) ParseBillHead(data []byte) (billing.BillHeadSpec, error) {
	var bj BillHeadJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return billing.BillHeadSpec{}, &billing.ValidationError{Field: "body", Reason: fmt.Sprintf("malformed bill head JSON: %v", err)}
	}
	return f.FromJSON(bj)
}

// FromJSON converts and validates.
func (f *BillHeadFactory) FromJSON(bj BillHeadJSON) (billing.BillHeadSpec, error) {
	spec := billing.BillHeadSpec{
		ID:         bj.ID,
		Code:       bj.Code,
		Name:       bj.Name,
		Category:   bj.Category,
		UsageLabel: bj.UsageLabel,
		ChargeSpec: billing.ChargeSpec{
			CalculationType: billing.CalculationType(bj.CalculationType),
			FixedAmount:     orZero(bj.FixedAmount),
			PerUnitRate:     orZero(bj.PerUnitRate),
			Formula:         bj.Formula,
		},
		DueDays: bj.DueDays,
	}

	if bj.GST != nil {
		spec.GST = billing.GSTConfig{
			IsApplicable: bj.GST.IsApplicable,
			CGSTPct:      orZero(bj.GST.CGSTPct),
			SGSTPct:      orZero(bj.GST.SGSTPct),
			IGSTPct:      orZero(bj.GST.IGSTPct),
		}
	}

	if lp := bj.LatePayment; lp != nil {
		spec.LatePayment = billing.LatePaymentConfig{
			IsApplicable:    lp.IsApplicable,
			GracePeriodDays: lp.GracePeriodDays,
			ChargeType:      parseLateFeeType(lp.ChargeType),
			ChargeValue:     orZero(lp.ChargeValue),
			Compounding:     parseCompounding(lp.Compounding),
		}
	}

	if err := spec.Validate(); err != nil {
		return billing.BillHeadSpec{}, err
	}

	// Unknown categories are registered with default labels
	if _, ok := generic.LookupCategory(spec.Category); !ok {
		generic.RegisterCategory(generic.GetOrCreateCategory(spec.Category))
	}
	return spec, nil
}

// ToJSON converts a spec back to its JSON form.
func (f *BillHeadFactory) ToJSON(spec billing.BillHeadSpec) BillHeadJSON {
	bj := BillHeadJSON{
		ID:              spec.ID,
		Code:            spec.Code,
		Name:            spec.Name,
		Category:        spec.Category,
		UsageLabel:      spec.UsageLabel,
		CalculationType: string(spec.CalculationType),
		Formula:         spec.Formula,
		DueDays:         spec.DueDays,
	}
	switch spec.CalculationType {
	case billing.CalcFixed:
		bj.FixedAmount = ptr(spec.FixedAmount)
	case billing.CalcPerUnit, billing.CalcFormula:
		bj.PerUnitRate = ptr(spec.PerUnitRate)
	}

	if spec.GST != (billing.GSTConfig{}) {
		bj.GST = &GSTJSON{
			IsApplicable: spec.GST.IsApplicable,
			CGSTPct:      ptr(spec.GST.CGSTPct),
			SGSTPct:      ptr(spec.GST.SGSTPct),
			IGSTPct:      ptr(spec.GST.IGSTPct),
		}
	}

	if lp := spec.LatePayment; lp.IsApplicable {
		bj.LatePayment = &LatePaymentJSON{
			IsApplicable:    true,
			GracePeriodDays: lp.GracePeriodDays,
			ChargeType:      string(lp.ChargeType),
			ChargeValue:     ptr(lp.ChargeValue),
			Compounding:     string(lp.Compounding),
		}
	}
	return bj
}

// MarshalBillHead renders a spec as JSON.
func (f *BillHeadFactory) MarshalBillHead(spec billing.BillHeadSpec) ([]byte, error) {
	return json.Marshal(f.ToJSON(spec))
}

// =============================================================================
// ADDITIONAL CHARGES
// =============================================================================

// ParseCharge converts a JSON charge into its spec and usage input.
func (f *BillHeadFactory) ParseCharge(cj ChargeJSON) (billing.AdditionalChargeSpec, billing.UsageInput, error) {
	spec := billing.AdditionalChargeSpec{
		ID:         cj.ID,
		ChargeType: billing.ChargeType(cj.ChargeType),
		ChargeSpec: billing.ChargeSpec{
			CalculationType: billing.CalculationType(cj.CalculationType),
			FixedAmount:     orZero(cj.FixedAmount),
			PerUnitRate:     orZero(cj.PerUnitRate),
			Formula:         cj.Formula,
		},
	}
	if spec.ID == "" {
		return spec, billing.UsageInput{}, &billing.ValidationError{Field: "charges.id", Reason: "required"}
	}
	if err := spec.ChargeSpec.Validate(); err != nil {
		return spec, billing.UsageInput{}, err
	}

	var in billing.UsageInput
	if cj.UnitUsage != nil {
		in.UnitUsage = decimal.NewNullDecimal(*cj.UnitUsage)
	}
	if cj.CustomAmount != nil {
		in.CustomAmount = decimal.NewNullDecimal(*cj.CustomAmount)
	}
	return spec, in, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseLateFeeType(s string) billing.LateFeeType {
	if s == "" {
		return billing.LateFeeFixed
	}
	return billing.LateFeeType(s)
}

func parseCompounding(s string) generic.AccrualFrequency {
	if s == "" {
		return generic.FreqMonthly
	}
	return generic.AccrualFrequency(s)
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
