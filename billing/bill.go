package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// BILL
// =============================================================================

type BillStatus string

const (
	StatusPending       BillStatus = "pending"
	StatusPaid          BillStatus = "paid"
	StatusPartiallyPaid BillStatus = "partially_paid"
	StatusOverdue       BillStatus = "overdue"
)

// Bill is one resident's bill for one cycle. It is never deleted; it
// changes only through recorded payments and status transitions.
type Bill struct {
	ID         string
	BillNumber string
	Category   string

	// Snapshot of the bill head at generation time
	HeadID   string
	HeadCode string
	HeadName string

	ResidentID   string
	ResidentName string
	Block        string
	Flat         string

	Calculation CalculationResult
	Status      BillStatus
	IssueDate   generic.TimePoint
	DueDate     generic.TimePoint
	Payments    []Payment // append-only
	CreatedAt   time.Time
}

// BillIdentity is the per-resident part of a bill.
type BillIdentity struct {
	ID         string // generated when empty
	BillNumber string // assigned by the store when empty
	Resident   Resident
}

type Payment struct {
	ID        string
	BillID    string
	Amount    decimal.Decimal
	PaidAt    generic.TimePoint
	Method    string // cash, cheque, upi, bank_transfer
	Reference string
}

func NewBill(spec BillHeadSpec, id BillIdentity, calc CalculationResult, issue, due generic.TimePoint) *Bill {
	billID := id.ID
	if billID == "" {
		billID = uuid.NewString()
	}
	b := &Bill{
		ID:           billID,
		BillNumber:   id.BillNumber,
		Category:     spec.Category,
		HeadID:       spec.ID,
		HeadCode:     spec.Code,
		HeadName:     spec.Name,
		ResidentID:   id.Resident.ID,
		ResidentName: id.Resident.Name,
		Block:        id.Resident.Block,
		Flat:         id.Resident.Flat,
		Calculation:  calc,
		Status:       StatusPending,
		IssueDate:    issue,
		DueDate:      due,
		CreatedAt:    time.Now().UTC(),
	}
	// Nothing to collect: settled from the start
	if !b.Outstanding().IsPositive() {
		b.Status = StatusPaid
	}
	return b
}

func (b *Bill) Total() decimal.Decimal { return b.Calculation.TotalAmount }

func (b *Bill) AmountPaid() decimal.Decimal {
	paid := decimal.Zero
	for _, p := range b.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

func (b *Bill) Outstanding() decimal.Decimal {
	return b.Total().Sub(b.AmountPaid())
}

// RecordPayment appends p and moves the status forward. Overpayment and
// payments against a settled bill are rejected.
func (b *Bill) RecordPayment(p Payment) error {
	if b.Status == StatusPaid {
		return invalid("bill", "bill %s is already paid", b.BillNumber)
	}
	if !p.Amount.IsPositive() {
		return invalid("amount", "must be > 0")
	}
	if p.PaidAt.IsZero() {
		return invalid("paid_at", "required")
	}
	if p.Amount.GreaterThan(b.Outstanding()) {
		return invalid("amount", "%s exceeds outstanding %s", p.Amount, b.Outstanding())
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.BillID = b.ID
	b.Payments = append(b.Payments, p)

	switch {
	case b.Outstanding().IsZero():
		b.Status = StatusPaid
	case b.Status != StatusOverdue:
		b.Status = StatusPartiallyPaid
	}
	return nil
}

// MarkOverdue flips an unsettled bill to overdue once at is past the due
// date. Returns true when the status changed.
func (b *Bill) MarkOverdue(at generic.TimePoint) bool {
	if b.Status == StatusPaid || b.Status == StatusOverdue {
		return false
	}
	if !b.Outstanding().IsPositive() {
		return false
	}
	if !at.After(b.DueDate) {
		return false
	}
	b.Status = StatusOverdue
	return true
}

// =============================================================================
// BILL NUMBERING
// =============================================================================

// BillNumberPrefix returns "<HEADCODE>-<YYYYMM>".
func BillNumberPrefix(headCode string, issue generic.TimePoint) string {
	return fmt.Sprintf("%s-%04d%02d", strings.ToUpper(headCode), issue.Year(), int(issue.Month()))
}

// FormatBillNumber returns "<HEADCODE>-<YYYYMM>-<seq>", e.g. WTR-202610-0007.
func FormatBillNumber(headCode string, issue generic.TimePoint, seq int) string {
	return fmt.Sprintf("%s-%04d", BillNumberPrefix(headCode, issue), seq)
}
