// Package billing implements bill computation for a residential society:
// charge calculation, GST, late payment accrual, additional charges, bill
// assembly, bulk generation and the ledger postings of bills and payments.
//
// The engine is parameterised by bill category (utility, amenity,
// maintenance, ...). Category differences are configuration carried by
// generic.Category, never separate control flow.
package billing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// CALCULATION TYPES
// =============================================================================

type CalculationType string

const (
	CalcFixed   CalculationType = "fixed"
	CalcPerUnit CalculationType = "per_unit"
	CalcFormula CalculationType = "formula"
	CalcCustom  CalculationType = "custom"
)

func (c CalculationType) Valid() bool {
	switch c {
	case CalcFixed, CalcPerUnit, CalcFormula, CalcCustom:
		return true
	}
	return false
}

// NeedsUsage reports whether the type is computed from unit usage.
func (c CalculationType) NeedsUsage() bool {
	return c == CalcPerUnit || c == CalcFormula
}

// ChargeType is the closed label set for additional charges.
type ChargeType string

const (
	ChargeWater       ChargeType = "water"
	ChargeElectricity ChargeType = "electricity"
	ChargeGas         ChargeType = "gas"
	ChargeParking     ChargeType = "parking"
	ChargeClubhouse   ChargeType = "clubhouse"
	ChargeMaintenance ChargeType = "maintenance"
	ChargeSinkingFund ChargeType = "sinking_fund"
	ChargeRepairFund  ChargeType = "repair_fund"
	ChargePenalty     ChargeType = "penalty"
	ChargeOther       ChargeType = "other"
)

var chargeTypes = map[ChargeType]bool{
	ChargeWater: true, ChargeElectricity: true, ChargeGas: true, ChargeParking: true,
	ChargeClubhouse: true, ChargeMaintenance: true, ChargeSinkingFund: true,
	ChargeRepairFund: true, ChargePenalty: true, ChargeOther: true,
}

func (c ChargeType) Valid() bool { return chargeTypes[c] }

// =============================================================================
// CHARGE SPEC - How one amount is computed
// =============================================================================

// ChargeSpec is the computation part of a bill head or additional charge.
type ChargeSpec struct {
	CalculationType CalculationType
	FixedAmount     decimal.Decimal
	PerUnitRate     decimal.Decimal
	Formula         string // over unitUsage and rate
}

func (s ChargeSpec) Validate() error {
	if !s.CalculationType.Valid() {
		return invalid("calculation_type", "unknown calculation type %q", s.CalculationType)
	}
	switch s.CalculationType {
	case CalcFixed:
		if s.FixedAmount.IsNegative() {
			return invalid("fixed_amount", "must be >= 0")
		}
	case CalcPerUnit:
		if s.PerUnitRate.IsNegative() {
			return invalid("per_unit_rate", "must be >= 0")
		}
	case CalcFormula:
		if strings.TrimSpace(s.Formula) == "" {
			return invalid("formula", "required for formula calculation")
		}
		if s.PerUnitRate.IsNegative() {
			return invalid("per_unit_rate", "must be >= 0")
		}
		if _, err := ParseFormula(s.Formula); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// GST CONFIG
// =============================================================================

// Legal ceilings for each GST component, in percent.
var (
	MaxCGSTPct = decimal.NewFromInt(14)
	MaxSGSTPct = decimal.NewFromInt(14)
	MaxIGSTPct = decimal.NewFromInt(28)
)

type GSTConfig struct {
	IsApplicable bool
	CGSTPct      decimal.Decimal
	SGSTPct      decimal.Decimal
	IGSTPct      decimal.Decimal
}

// Validate rejects percentages outside their legal range. Values are
// never clamped later at calculation time.
func (g GSTConfig) Validate() error {
	checks := []struct {
		field string
		pct   decimal.Decimal
		max   decimal.Decimal
	}{
		{"gst.cgst_pct", g.CGSTPct, MaxCGSTPct},
		{"gst.sgst_pct", g.SGSTPct, MaxSGSTPct},
		{"gst.igst_pct", g.IGSTPct, MaxIGSTPct},
	}
	for _, c := range checks {
		if c.pct.IsNegative() {
			return invalid(c.field, "must be >= 0")
		}
		if c.pct.GreaterThan(c.max) {
			return invalid(c.field, "%s%% exceeds legal ceiling of %s%%", c.pct, c.max)
		}
	}
	return nil
}

// =============================================================================
// LATE PAYMENT CONFIG
// =============================================================================

type LateFeeType string

const (
	LateFeeFixed      LateFeeType = "fixed"
	LateFeePercentage LateFeeType = "percentage"
)

type LatePaymentConfig struct {
	IsApplicable    bool
	GracePeriodDays int
	ChargeType      LateFeeType
	ChargeValue     decimal.Decimal
	Compounding     generic.AccrualFrequency
}

func (c LatePaymentConfig) Validate() error {
	if c.GracePeriodDays < 0 {
		return invalid("late_payment.grace_period_days", "must be >= 0")
	}
	if c.ChargeValue.IsNegative() {
		return invalid("late_payment.charge_value", "must be >= 0")
	}
	if !c.IsApplicable {
		return nil
	}
	if c.ChargeType != LateFeeFixed && c.ChargeType != LateFeePercentage {
		return invalid("late_payment.charge_type", "unknown charge type %q", c.ChargeType)
	}
	if !c.Compounding.Valid() {
		return invalid("late_payment.compounding", "unknown frequency %q", c.Compounding)
	}
	return nil
}

// =============================================================================
// BILL HEAD SPEC - Configured recurring charge
// =============================================================================

// BillHeadSpec configures one recurring charge ("Water", "Clubhouse Fee").
// Code and Name are copied onto every bill generated from it.
type BillHeadSpec struct {
	ID         string
	Code       string
	Name       string
	Category   string
	UsageLabel string // overrides the category label when set

	ChargeSpec

	GST         GSTConfig
	LatePayment LatePaymentConfig
	DueDays     int
}

// Validate runs every configuration-time check.
func (s BillHeadSpec) Validate() error {
	if strings.TrimSpace(s.Code) == "" {
		return invalid("code", "required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return invalid("name", "required")
	}
	if strings.TrimSpace(s.Category) == "" {
		return invalid("category", "required")
	}
	if s.DueDays < 0 {
		return invalid("due_days", "must be >= 0")
	}
	if err := s.ChargeSpec.Validate(); err != nil {
		return err
	}
	if err := s.GST.Validate(); err != nil {
		return err
	}
	return s.LatePayment.Validate()
}

// Label returns the usage label, falling back to the category's.
func (s BillHeadSpec) Label() string {
	if s.UsageLabel != "" {
		return s.UsageLabel
	}
	return generic.GetOrCreateCategory(s.Category).UsageLabel
}

// DueDate returns the default due date for a bill issued on issue.
func (s BillHeadSpec) DueDate(issue generic.TimePoint) generic.TimePoint {
	days := s.DueDays
	if days == 0 {
		days = generic.GetOrCreateCategory(s.Category).DefaultDueDays
	}
	return issue.AddDays(days)
}

// AdditionalChargeSpec is a supplementary charge source.
type AdditionalChargeSpec struct {
	ID         string
	ChargeType ChargeType
	ChargeSpec
}
