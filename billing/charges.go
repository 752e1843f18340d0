package billing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// ADDITIONAL CHARGES
// =============================================================================

// AdditionalCharge is one supplementary line item on a bill.
type AdditionalCharge struct {
	SourceSpecID    string
	ChargeType      ChargeType
	Amount          decimal.Decimal
	UnitUsage       decimal.Decimal
	CalculationType CalculationType
}

// NewAdditionalCharge computes a charge from its source spec.
func NewAdditionalCharge(calc *ChargeCalculator, spec AdditionalChargeSpec, in UsageInput) (AdditionalCharge, error) {
	if !spec.ChargeType.Valid() {
		return AdditionalCharge{}, invalid("charge_type", "unknown charge type %q", spec.ChargeType)
	}
	out, err := calc.Compute(spec.ChargeSpec, in)
	if err != nil {
		return AdditionalCharge{}, err
	}
	return AdditionalCharge{
		SourceSpecID:    spec.ID,
		ChargeType:      spec.ChargeType,
		Amount:          out.Amount,
		UnitUsage:       out.UnitUsage,
		CalculationType: spec.CalculationType,
	}, nil
}

// ChargeSet is an ordered collection of additional charges with at most
// one charge per SourceSpecID. The zero value is an empty set.
//
// Total is recomputed on every call; nothing is cached.
type ChargeSet struct {
	charges []AdditionalCharge
}

func NewChargeSet(charges ...AdditionalCharge) (*ChargeSet, error) {
	s := &ChargeSet{}
	for _, c := range charges {
		if err := s.Add(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends c. Returns DuplicateChargeError and leaves the set unchanged
// if a charge from the same source is already present.
func (s *ChargeSet) Add(c AdditionalCharge) error {
	if strings.TrimSpace(c.SourceSpecID) == "" {
		return invalid("source_spec_id", "required")
	}
	if !c.ChargeType.Valid() {
		return invalid("charge_type", "unknown charge type %q", c.ChargeType)
	}
	if c.Amount.IsNegative() {
		return invalid("amount", "must be >= 0")
	}
	if s.Contains(c.SourceSpecID) {
		return &DuplicateChargeError{SourceSpecID: c.SourceSpecID}
	}
	s.charges = append(s.charges, c)
	return nil
}

// Remove deletes the charge at index, keeping the order of the rest.
func (s *ChargeSet) Remove(index int) error {
	if index < 0 || index >= len(s.charges) {
		return invalid("index", "%d out of range [0, %d)", index, len(s.charges))
	}
	s.charges = append(s.charges[:index:index], s.charges[index+1:]...)
	return nil
}

func (s *ChargeSet) Contains(sourceSpecID string) bool {
	for _, c := range s.charges {
		if c.SourceSpecID == sourceSpecID {
			return true
		}
	}
	return false
}

func (s *ChargeSet) Total() decimal.Decimal {
	total := decimal.Zero
	for _, c := range s.charges {
		total = total.Add(c.Amount)
	}
	return generic.Round2(total)
}

func (s *ChargeSet) Len() int { return len(s.charges) }

// Charges returns a copy of the charges in insertion order.
func (s *ChargeSet) Charges() []AdditionalCharge {
	return append([]AdditionalCharge(nil), s.charges...)
}
