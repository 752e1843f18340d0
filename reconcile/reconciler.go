/*
Package reconcile merges the two ledger legs of a bill category into one
chronological statement.

PURPOSE:
  Every bill is written twice: a credit in the income leg and a debit in
  the receivable leg, both under the bill number as voucher number. The
  legs are recorded independently, so a report has to join them back
  together and show where they disagree.

ALGORITHM:
  1. Key every voucher of either leg by voucher number (create-or-update)
  2. Pick the figure each leg contributes:
       income leg     -> credit postings tagged bill_income
       receivable leg -> debit postings tagged total_receivable
     Untagged postings fall back to their description
     ("Bill for ..." / "Total Receivable").
  3. Sort by voucher date, then voucher number
  4. Opening = given opening + net of merged vouchers dated before the range
  5. Running balance carried row by row as {Amount, Side}
  6. Closing = balance after the last row

COLUMNS:
  Debit  = receivable figure
  Credit = income figure
  A voucher found in only one leg is still rendered; the other column is
  blank (not zero) and MissingLeg names the absent leg.

SEE ALSO:
  - service.go: Fetches both legs in parallel
  - export.go: CSV / XLSX / PDF renderings of Table()
*/
package reconcile

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// Description markers for postings written before roles existed.
const (
	legacyIncomeMarker     = "Bill for"
	legacyReceivableMarker = "Total Receivable"
)

type ReconcileInput struct {
	Category   string
	Period     generic.Period
	Opening    generic.Balance
	Income     []generic.Voucher
	Receivable []generic.Voucher
}

// Row is one merged voucher.
type Row struct {
	Date          generic.TimePoint
	VoucherNumber generic.VoucherNumber
	VoucherType   generic.VoucherType
	Reference     string
	Narration     string
	Debit         decimal.NullDecimal // receivable leg
	Credit        decimal.NullDecimal // income leg
	Balance       generic.Balance
	MissingLeg    generic.LedgerID // empty when both legs contributed
}

type Statement struct {
	Category string
	Period   generic.Period
	Opening  generic.Balance
	Closing  generic.Balance
	Rows     []Row

	// Vouchers in range that carried no bill figure in either leg
	// (payment receipts, unrelated journals).
	Skipped int
}

// Reconciler is stateless and pure.
type Reconciler struct{}

type merged struct {
	row          Row
	incomeSeen   bool
	receivedSeen bool
}

func (Reconciler) Reconcile(in ReconcileInput) (*Statement, error) {
	if err := in.Period.Validate(); err != nil {
		return nil, err
	}

	byNumber := make(map[generic.VoucherNumber]*merged)
	upsert := func(v generic.Voucher) *merged {
		m, ok := byNumber[v.VoucherNumber]
		if !ok {
			m = &merged{row: Row{
				Date:          v.VoucherDate,
				VoucherNumber: v.VoucherNumber,
				VoucherType:   v.VoucherType,
				Reference:     v.Reference,
				Narration:     v.Narration,
			}}
			byNumber[v.VoucherNumber] = m
			return m
		}
		if v.VoucherDate.Before(m.row.Date) {
			m.row.Date = v.VoucherDate
		}
		if m.row.Reference == "" {
			m.row.Reference = v.Reference
		}
		if m.row.Narration == "" {
			m.row.Narration = v.Narration
		}
		return m
	}

	for _, v := range in.Income {
		m := upsert(v)
		m.incomeSeen = true
		if amount, ok := IncomeFigure(v); ok {
			m.row.Credit = addNull(m.row.Credit, amount)
		}
	}
	for _, v := range in.Receivable {
		m := upsert(v)
		m.receivedSeen = true
		if amount, ok := ReceivableFigure(v); ok {
			m.row.Debit = addNull(m.row.Debit, amount)
		}
	}

	st := &Statement{Category: in.Category, Period: in.Period}
	opening := in.Opening
	if opening.Side == "" {
		opening = generic.NewBalance(opening.Amount, generic.SideDebit)
	}

	var rows []Row
	for _, m := range byNumber {
		r := m.row
		if !r.Debit.Valid && !r.Credit.Valid {
			if in.Period.Contains(r.Date) {
				st.Skipped++
			}
			continue
		}
		switch {
		case r.Date.Before(in.Period.Start):
			opening = opening.Apply(orZero(r.Debit), orZero(r.Credit))
			continue
		case r.Date.After(in.Period.End):
			continue
		}
		if !r.Debit.Valid {
			r.MissingLeg = generic.LedgerReceivable
		} else if !r.Credit.Valid {
			r.MissingLeg = generic.LedgerIncome
		}
		rows = append(rows, r)
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].VoucherNumber < rows[j].VoucherNumber
	})

	balance := opening
	for i := range rows {
		balance = balance.Apply(orZero(rows[i].Debit), orZero(rows[i].Credit))
		rows[i].Balance = balance
	}

	st.Opening = opening
	st.Closing = balance
	st.Rows = rows
	return st, nil
}

// IncomeFigure returns the bill charge credited by an income-leg voucher.
// Tax payable credits are not part of it, tagged or not, so the credit
// column stops short of the receivable by the bill's GST.
func IncomeFigure(v generic.Voucher) (decimal.Decimal, bool) {
	return figure(v, generic.Credit, []generic.PostingRole{generic.RoleBillIncome}, legacyIncomeMarker)
}

// ReceivableFigure returns the amount debited by a receivable-leg voucher.
func ReceivableFigure(v generic.Voucher) (decimal.Decimal, bool) {
	return figure(v, generic.Debit, []generic.PostingRole{generic.RoleTotalReceivable}, legacyReceivableMarker)
}

// figure sums postings of type t carrying one of roles. Only when the
// voucher has no tagged postings at all does it fall back to matching
// the description marker.
func figure(v generic.Voucher, t generic.PostingType, roles []generic.PostingRole, marker string) (decimal.Decimal, bool) {
	total := decimal.Zero
	found, tagged := false, false
	for _, p := range v.Postings {
		if p.Role != generic.RoleNone {
			tagged = true
		}
		if p.Type != t {
			continue
		}
		for _, r := range roles {
			if p.Role == r {
				total = total.Add(p.Amount)
				found = true
			}
		}
	}
	if found || tagged {
		return total, found
	}

	for _, p := range v.Postings {
		if p.Type == t && strings.Contains(p.Description, marker) {
			total = total.Add(p.Amount)
			found = true
		}
	}
	return total, found
}

func addNull(n decimal.NullDecimal, d decimal.Decimal) decimal.NullDecimal {
	if !n.Valid {
		return decimal.NewNullDecimal(d)
	}
	return decimal.NewNullDecimal(n.Decimal.Add(d))
}

func orZero(n decimal.NullDecimal) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Decimal
}
