package billing

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// LEDGER POSTING - Bills and payments as vouchers
// =============================================================================

// BillVouchers returns the two legs of a bill, sharing the bill number as
// voucher number:
//
//	income:     Cr bill_income (total - GST), Cr tax_payable (GST, if any)
//	receivable: Dr total_receivable (total)
//
// Every posting carries its Role; descriptions are for humans only.
func BillVouchers(b *Bill) ([]generic.Voucher, error) {
	if b.BillNumber == "" {
		return nil, invalid("bill_number", "required before posting")
	}
	calc := b.Calculation
	number := generic.VoucherNumber(b.BillNumber)
	narration := fmt.Sprintf("%s for %s/%s (%s)", b.HeadName, b.Block, b.Flat, b.ResidentName)

	income := []generic.Posting{{
		Type:        generic.Credit,
		Amount:      calc.TotalAmount.Sub(calc.GST.Total),
		Description: "Bill for " + b.Category + ": " + b.HeadName,
		Role:        generic.RoleBillIncome,
	}}
	if calc.GST.Total.IsPositive() {
		income = append(income, generic.Posting{
			Type:        generic.Credit,
			Amount:      calc.GST.Total,
			Description: "GST payable",
			Role:        generic.RoleTaxPayable,
		})
	}

	receivable := []generic.Posting{{
		Type:        generic.Debit,
		Amount:      calc.TotalAmount,
		Description: "Total Receivable",
		Role:        generic.RoleTotalReceivable,
	}}

	leg := func(ledger generic.LedgerID, postings []generic.Posting) generic.Voucher {
		return generic.Voucher{
			ID:            generic.VoucherID(uuid.NewString()),
			Ledger:        ledger,
			Category:      b.Category,
			VoucherNumber: number,
			VoucherDate:   b.IssueDate,
			VoucherType:   generic.VoucherSales,
			Reference:     b.BillNumber,
			Narration:     narration,
			Postings:      postings,
			CreatedAt:     generic.Today(),
		}
	}
	return []generic.Voucher{
		leg(generic.LedgerIncome, income),
		leg(generic.LedgerReceivable, receivable),
	}, nil
}

// ReceiptVoucherNumber numbers the seq-th payment (1-based) of a bill.
func ReceiptVoucherNumber(billNumber string, seq int) generic.VoucherNumber {
	return generic.VoucherNumber(fmt.Sprintf("RCPT-%s-%d", billNumber, seq))
}

// ReceiptVoucher records a payment against the receivable leg only.
func ReceiptVoucher(b *Bill, p Payment, seq int) generic.Voucher {
	ref := p.Reference
	if ref == "" {
		ref = b.BillNumber
	}
	return generic.Voucher{
		ID:            generic.VoucherID(uuid.NewString()),
		Ledger:        generic.LedgerReceivable,
		Category:      b.Category,
		VoucherNumber: ReceiptVoucherNumber(b.BillNumber, seq),
		VoucherDate:   p.PaidAt,
		VoucherType:   generic.VoucherReceipt,
		Reference:     ref,
		Narration:     fmt.Sprintf("Payment received for %s via %s", b.BillNumber, p.Method),
		Postings: []generic.Posting{{
			Type:        generic.Credit,
			Amount:      p.Amount,
			Description: "Payment received",
			Role:        generic.RolePaymentReceived,
		}},
		CreatedAt: generic.Today(),
	}
}
