/*
Package generic provides the category-agnostic primitives of the billing engine.

PURPOSE:
  Whether a society bills water usage, clubhouse fees or monthly maintenance,
  the same primitives describe money, dates, ledger vouchers and balances.
  Domain packages (billing, reconcile) build on these types and never on
  each other's storage details.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal arithmetic rounded to 2 places (half-up)
  - Voucher: an immutable accounting transaction recorded in ONE ledger leg
  - Posting: a typed (debit/credit) line inside a voucher, tagged with a Role
  - LedgerID: which leg (income or receivable) a voucher belongs to

DESIGN PRINCIPLES:
  1. Immutability: Vouchers are never modified, only reversed by new vouchers
  2. Precision: decimal.Decimal everywhere, never float64 for money
  3. Type Safety: distinct types for ledger ids, voucher numbers and categories
  4. Structure over prose: postings carry a Role set at write time

USAGE:
  v := generic.Voucher{
      Ledger:        generic.LedgerIncome,
      Category:      "utility",
      VoucherNumber: "V100",
      VoucherType:   generic.VoucherSales,
      Postings: []generic.Posting{{
          Type: generic.Credit, Amount: generic.Round2(amount),
          Role: generic.RoleBillIncome, Description: "Bill for utility",
      }},
  }

SEE ALSO:
  - balance.go: Side-tagged balances
  - ledger.go: Append-only voucher ledger
  - category.go: Bill category registry
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - decimal helpers (2 decimal places, round half-up)
// =============================================================================

// MoneyPlaces is the number of decimal places money is rounded to.
const MoneyPlaces int32 = 2

var hundred = decimal.NewFromInt(100)

// Round2 rounds to 2 decimal places. decimal.Round rounds half away from
// zero, which is half-up for the non-negative amounts billed here.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percent returns base * pct / 100 without rounding.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type VoucherID string
type VoucherNumber string

// LedgerID names one leg of a bill's double-entry representation.
type LedgerID string

const (
	LedgerIncome     LedgerID = "income"
	LedgerReceivable LedgerID = "receivable"
)

func (l LedgerID) Valid() bool {
	return l == LedgerIncome || l == LedgerReceivable
}

// =============================================================================
// VOUCHER - Atomic accounting transaction in one ledger leg
// =============================================================================

type VoucherType string

const (
	VoucherReceipt    VoucherType = "Receipt"
	VoucherPayment    VoucherType = "Payment"
	VoucherJournal    VoucherType = "Journal"
	VoucherContra     VoucherType = "Contra"
	VoucherSales      VoucherType = "Sales"
	VoucherPurchase   VoucherType = "Purchase"
	VoucherCreditNote VoucherType = "Credit Note"
	VoucherDebitNote  VoucherType = "Debit Note"
)

var voucherTypes = map[VoucherType]bool{
	VoucherReceipt: true, VoucherPayment: true, VoucherJournal: true, VoucherContra: true,
	VoucherSales: true, VoucherPurchase: true, VoucherCreditNote: true, VoucherDebitNote: true,
}

func (t VoucherType) Valid() bool { return voucherTypes[t] }

// PostingType is the side a posting hits.
type PostingType string

const (
	Debit  PostingType = "debit"
	Credit PostingType = "credit"
)

// PostingRole tags what a posting represents. It is set by the writer so
// that readers never have to infer it from the description text.
type PostingRole string

const (
	RoleNone            PostingRole = ""
	RoleBillIncome      PostingRole = "bill_income"
	RoleTotalReceivable PostingRole = "total_receivable"
	RoleTaxPayable      PostingRole = "tax_payable"
	RolePaymentReceived PostingRole = "payment_received"
)

type Posting struct {
	Type        PostingType
	Amount      decimal.Decimal
	Description string
	Role        PostingRole
}

// Voucher is an append-only record in one ledger. The same VoucherNumber is
// shared by the income and receivable legs of one bill event.
type Voucher struct {
	ID            VoucherID
	Ledger        LedgerID
	Category      string
	VoucherNumber VoucherNumber
	VoucherDate   TimePoint
	VoucherType   VoucherType
	Reference     string // bill number, payment reference
	Narration     string
	Postings      []Posting
	CreatedAt     TimePoint
}

// Totals returns the summed debit and credit postings.
func (v Voucher) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, p := range v.Postings {
		switch p.Type {
		case Debit:
			debit = debit.Add(p.Amount)
		case Credit:
			credit = credit.Add(p.Amount)
		}
	}
	return debit, credit
}

// PostingByRole returns the first posting of the given type carrying role.
func (v Voucher) PostingByRole(t PostingType, role PostingRole) (Posting, bool) {
	for _, p := range v.Postings {
		if p.Type == t && p.Role == role {
			return p, true
		}
	}
	return Posting{}, false
}

// Validate checks structural invariants before a voucher is appended.
func (v Voucher) Validate() error {
	if v.VoucherNumber == "" {
		return &VoucherError{Field: "voucher_number", Reason: "required"}
	}
	if !v.Ledger.Valid() {
		return &VoucherError{Field: "ledger", Reason: "unknown ledger " + string(v.Ledger)}
	}
	if !v.VoucherType.Valid() {
		return &VoucherError{Field: "voucher_type", Reason: "unknown voucher type " + string(v.VoucherType)}
	}
	if v.VoucherDate.IsZero() {
		return &VoucherError{Field: "voucher_date", Reason: "required"}
	}
	if len(v.Postings) == 0 {
		return &VoucherError{Field: "postings", Reason: "at least one posting required"}
	}
	for _, p := range v.Postings {
		if p.Type != Debit && p.Type != Credit {
			return &VoucherError{Field: "postings", Reason: "unknown posting type " + string(p.Type)}
		}
		if p.Amount.IsNegative() {
			return &VoucherError{Field: "postings", Reason: "negative amount"}
		}
	}
	return nil
}
