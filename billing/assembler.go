/*
assembler.go - Bill calculation for one resident

PURPOSE:
  Composes base amount, GST, late fee and additional charges into one
  CalculationResult and asserts the bill invariant before returning it:

    TotalAmount == BaseAmount + GST.Total + AdditionalChargesTotal + LateFeeAmount

PIPELINE:
  1. ChargeCalculator  -> BaseAmount
  2. ComputeGST        -> GST breakdown on BaseAmount
  3. LateFeeAccrual    -> late fee on BaseAmount at the evaluation date
  4. ChargeSet.Total   -> AdditionalChargesTotal
  5. Verify

DRAFT:
  A Draft holds the inputs of a bill being prepared together with an
  optional result. Every input mutation clears the result; only a
  successful Calculate populates it; Finalize refuses to build a Bill
  without one. A bill can therefore never be submitted with a total that
  was not computed against its current inputs.

SEE ALSO:
  - bulk.go: Runs the assembler once per resident
  - bill.go: Bill built by Draft.Finalize
*/
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// CALCULATION RESULT
// =============================================================================

type CalculationResult struct {
	BaseAmount             decimal.Decimal
	UnitUsage              decimal.Decimal
	GST                    GSTBreakdown
	Charges                []AdditionalCharge
	AdditionalChargesTotal decimal.Decimal
	LateFee                LateFee
	LateFeeAmount          decimal.Decimal
	TotalAmount            decimal.Decimal
}

// Verify checks the total invariant and the GST sum.
func (r CalculationResult) Verify() error {
	gst := generic.Sum(r.GST.CGSTAmount, r.GST.SGSTAmount, r.GST.IGSTAmount)
	if !gst.Equal(r.GST.Total) {
		return fmt.Errorf("gst total %s != component sum %s", r.GST.Total, gst)
	}
	want := generic.Sum(r.BaseAmount, r.GST.Total, r.AdditionalChargesTotal, r.LateFeeAmount)
	if !want.Equal(r.TotalAmount) {
		return fmt.Errorf("total %s != base + gst + charges + late fee (%s)", r.TotalAmount, want)
	}
	return nil
}

// =============================================================================
// BILL ASSEMBLER
// =============================================================================

type AssemblyInput struct {
	Spec    BillHeadSpec
	Usage   UsageInput
	Charges []AdditionalCharge

	IssueDate generic.TimePoint
	DueDate   generic.TimePoint

	// EvaluationDate drives late fee accrual. Defaults to IssueDate.
	EvaluationDate generic.TimePoint
}

type BillAssembler struct {
	Calculator *ChargeCalculator
	LateFees   LateFeeAccrual
}

func NewBillAssembler() *BillAssembler {
	return &BillAssembler{Calculator: NewChargeCalculator()}
}

// Assemble computes the result. It is pure: identical input gives an
// identical result.
func (a *BillAssembler) Assemble(in AssemblyInput) (CalculationResult, error) {
	if err := missingInputs(in); err != nil {
		return CalculationResult{}, err
	}
	if in.DueDate.Before(in.IssueDate) {
		return CalculationResult{}, invalid("due_date", "before issue date")
	}

	base, err := a.Calculator.Compute(in.Spec.ChargeSpec, in.Usage)
	if err != nil {
		return CalculationResult{}, err
	}

	gst := ComputeGST(base.Amount, in.Spec.GST)

	at := in.EvaluationDate
	if at.IsZero() {
		at = in.IssueDate
	}
	late, err := a.LateFees.Evaluate(in.DueDate, at, in.Spec.LatePayment, base.Amount)
	if err != nil {
		return CalculationResult{}, err
	}

	charges, err := NewChargeSet(in.Charges...)
	if err != nil {
		return CalculationResult{}, err
	}
	chargesTotal := charges.Total()

	r := CalculationResult{
		BaseAmount:             base.Amount,
		UnitUsage:              base.UnitUsage,
		GST:                    gst,
		Charges:                charges.Charges(),
		AdditionalChargesTotal: chargesTotal,
		LateFee:                late,
		LateFeeAmount:          late.Amount,
		TotalAmount:            generic.Sum(base.Amount, gst.Total, chargesTotal, late.Amount),
	}
	if err := r.Verify(); err != nil {
		return CalculationResult{}, err
	}
	return r, nil
}

func missingInputs(in AssemblyInput) error {
	var missing []string
	switch in.Spec.CalculationType {
	case CalcPerUnit, CalcFormula:
		if !in.Usage.UnitUsage.Valid {
			missing = append(missing, "unit_usage")
		}
	case CalcCustom:
		if !in.Usage.CustomAmount.Valid {
			missing = append(missing, "custom_amount")
		}
	}
	if in.IssueDate.IsZero() {
		missing = append(missing, "issue_date")
	}
	if in.DueDate.IsZero() {
		missing = append(missing, "due_date")
	}
	if len(missing) > 0 {
		return &IncompleteCalculationError{Missing: missing}
	}
	return nil
}

// =============================================================================
// DRAFT - Bill inputs plus an optional, always-current calculation
// =============================================================================

type Draft struct {
	assembler *BillAssembler
	spec      BillHeadSpec
	usage     UsageInput
	charges   ChargeSet
	issue     generic.TimePoint
	due       generic.TimePoint
	evalAt    generic.TimePoint

	result *CalculationResult
}

func NewDraft(a *BillAssembler, spec BillHeadSpec) *Draft {
	if a == nil {
		a = NewBillAssembler()
	}
	return &Draft{assembler: a, spec: spec}
}

func (d *Draft) SetUnitUsage(units decimal.Decimal) {
	d.usage.UnitUsage = decimal.NewNullDecimal(units)
	d.result = nil
}

func (d *Draft) SetCustomAmount(amount decimal.Decimal) {
	d.usage.CustomAmount = decimal.NewNullDecimal(amount)
	d.result = nil
}

func (d *Draft) SetDates(issue, due generic.TimePoint) {
	d.issue, d.due = issue, due
	d.result = nil
}

func (d *Draft) SetEvaluationDate(at generic.TimePoint) {
	d.evalAt = at
	d.result = nil
}

// AddCharge adds a charge. A rejected charge leaves the draft untouched.
func (d *Draft) AddCharge(c AdditionalCharge) error {
	if err := d.charges.Add(c); err != nil {
		return err
	}
	d.result = nil
	return nil
}

func (d *Draft) RemoveCharge(index int) error {
	if err := d.charges.Remove(index); err != nil {
		return err
	}
	d.result = nil
	return nil
}

func (d *Draft) Charges() []AdditionalCharge { return d.charges.Charges() }

// Calculate runs the assembler against the current inputs.
func (d *Draft) Calculate() (CalculationResult, error) {
	d.result = nil
	r, err := d.assembler.Assemble(d.input())
	if err != nil {
		return CalculationResult{}, err
	}
	d.result = &r
	return r, nil
}

// Result returns the current calculation, if one exists.
func (d *Draft) Result() (CalculationResult, bool) {
	if d.result == nil {
		return CalculationResult{}, false
	}
	return *d.result, true
}

// Finalize builds the bill from the current calculation.
func (d *Draft) Finalize(id BillIdentity) (*Bill, error) {
	if d.result == nil {
		return nil, &IncompleteCalculationError{}
	}
	return NewBill(d.spec, id, *d.result, d.issue, d.due), nil
}

func (d *Draft) input() AssemblyInput {
	return AssemblyInput{
		Spec:           d.spec,
		Usage:          d.usage,
		Charges:        d.charges.Charges(),
		IssueDate:      d.issue,
		DueDate:        d.due,
		EvaluationDate: d.evalAt,
	}
}
