package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// Header is the column order of every statement export.
var Header = []string{"Date", "Voucher", "Type", "Reference", "Narration", "Debit", "Credit", "Balance"}

const (
	openingLabel = "Opening Balance"
	closingLabel = "Closing Balance"
)

// Table flattens the statement into string rows matching Header: an
// opening line, one line per merged voucher, and a closing line. Blank
// legs stay empty strings.
func (s *Statement) Table() [][]string {
	out := make([][]string, 0, len(s.Rows)+2)
	out = append(out, summaryLine(s.Period.Start, openingLabel, s.Opening))
	for _, r := range s.Rows {
		out = append(out, []string{
			r.Date.String(),
			string(r.VoucherNumber),
			string(r.VoucherType),
			r.Reference,
			r.Narration,
			cell(r.Debit),
			cell(r.Credit),
			r.Balance.String(),
		})
	}
	out = append(out, summaryLine(s.Period.End, closingLabel, s.Closing))
	return out
}

// Totals sums the debit and credit columns.
func (s *Statement) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, r := range s.Rows {
		debit = debit.Add(orZero(r.Debit))
		credit = credit.Add(orZero(r.Credit))
	}
	return debit, credit
}

func summaryLine(date generic.TimePoint, label string, b generic.Balance) []string {
	return []string{date.String(), "", "", "", label, "", "", b.String()}
}

func cell(n decimal.NullDecimal) string {
	if !n.Valid {
		return ""
	}
	return n.Decimal.StringFixed(generic.MoneyPlaces)
}
