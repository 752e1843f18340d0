package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/reconcile"
	"github.com/warp/billing-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func oct(day int) generic.TimePoint { return generic.NewTimePoint(2026, time.October, day) }

func waterSpec() billing.BillHeadSpec {
	return billing.BillHeadSpec{
		ID:       "water-a",
		Code:     "WTR",
		Name:     "Water",
		Category: "utility",
		ChargeSpec: billing.ChargeSpec{
			CalculationType: billing.CalcPerUnit,
			PerUnitRate:     dec("12.5"),
		},
		GST: billing.GSTConfig{IsApplicable: true, CGSTPct: dec("9"), SGSTPct: dec("9")},
	}
}

// waterBill is 80 units at 12.50 with 9% + 9% GST: 1000 + 180 = 1180.
func waterBill(t *testing.T, r billing.Resident) *billing.Bill {
	t.Helper()
	spec := waterSpec()
	calc, err := billing.NewBillAssembler().Assemble(billing.AssemblyInput{
		Spec:      spec,
		Usage:     billing.Usage(dec("80")),
		IssueDate: oct(1),
		DueDate:   oct(10),
	})
	require.NoError(t, err)
	return billing.NewBill(spec, billing.BillIdentity{Resident: r}, calc, oct(1), oct(10))
}

func resident(id, flat string) billing.Resident {
	return billing.Resident{ID: id, Name: "Resident " + id, Block: "A", Flat: flat, Floor: 1}
}

func voucher(ledger generic.LedgerID, number string, date generic.TimePoint) generic.Voucher {
	return generic.Voucher{
		ID:            generic.VoucherID(string(ledger) + "-" + number),
		Ledger:        ledger,
		Category:      "utility",
		VoucherNumber: generic.VoucherNumber(number),
		VoucherDate:   date,
		VoucherType:   generic.VoucherJournal,
		Postings: []generic.Posting{
			{Type: generic.Debit, Amount: dec("10"), Description: "x"},
			{Type: generic.Credit, Amount: dec("10"), Description: "y"},
		},
	}
}

// =============================================================================
// VOUCHERS
// =============================================================================

func TestVouchers_AppendAndLoadWithPostings(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Append(ctx, voucher(generic.LedgerIncome, "V2", oct(9))))
	require.NoError(t, s.Append(ctx, voucher(generic.LedgerIncome, "V1", oct(3))))

	vs, err := s.Load(ctx, generic.LedgerIncome, "utility")

	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, generic.VoucherNumber("V1"), vs[0].VoucherNumber)
	assert.True(t, vs[0].VoucherDate.Equal(oct(3)))
	require.Len(t, vs[0].Postings, 2)
	assert.Equal(t, generic.Debit, vs[0].Postings[0].Type)
	assert.Equal(t, "10", vs[0].Postings[0].Amount.String())
}

func TestVouchers_NumberUniquePerLedger(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	// GIVEN: V100 in the income leg
	require.NoError(t, s.Append(ctx, voucher(generic.LedgerIncome, "V100", oct(5))))

	// WHEN: V100 goes to the receivable leg, then again to income
	errOther := s.Append(ctx, voucher(generic.LedgerReceivable, "V100", oct(5)))
	dup := voucher(generic.LedgerIncome, "V100", oct(5))
	dup.ID = "another-id"
	errSame := s.Append(ctx, dup)

	// THEN
	assert.NoError(t, errOther)
	assert.ErrorIs(t, errSame, generic.ErrDuplicateVoucher)
}

func TestVouchers_AppendBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Append(ctx, voucher(generic.LedgerIncome, "V2", oct(2))))

	clash := voucher(generic.LedgerIncome, "V2", oct(2))
	clash.ID = "clash"
	err := s.AppendBatch(ctx, []generic.Voucher{voucher(generic.LedgerIncome, "V1", oct(1)), clash})

	require.ErrorIs(t, err, generic.ErrDuplicateVoucher)
	exists, err := s.Exists(ctx, generic.LedgerIncome, "V1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVouchers_LoadRange(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i, d := range []int{1, 10, 20} {
		require.NoError(t, s.Append(ctx, voucher(generic.LedgerReceivable, string(rune('A'+i)), oct(d))))
	}

	vs, err := s.LoadRange(ctx, generic.LedgerReceivable, "utility", oct(5), oct(20))
	require.NoError(t, err)
	assert.Len(t, vs, 2)

	all, err := s.LoadLeg(ctx, generic.LedgerReceivable, "utility", generic.TimePoint{}, oct(10))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.Append(ctx, voucher(generic.LedgerIncome, "V1", oct(1))); err != nil {
			return err
		}
		exists, err := tx.Exists(ctx, generic.LedgerIncome, "V1")
		require.NoError(t, err)
		assert.True(t, exists, "visible inside the transaction")
		return boom
	})

	assert.ErrorIs(t, err, boom)
	vs, err := s.Load(ctx, generic.LedgerIncome, "utility")
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestLedgerOverSQLite_BalanceAt(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	l := generic.NewLedger(s)

	v := voucher(generic.LedgerReceivable, "V1", oct(1))
	v.Postings = []generic.Posting{{Type: generic.Debit, Amount: dec("1180"), Role: generic.RoleTotalReceivable}}
	require.NoError(t, l.Append(ctx, v))

	b, err := l.BalanceAt(ctx, generic.LedgerReceivable, "utility", oct(31))
	require.NoError(t, err)
	assert.Equal(t, "1180.00 Dr", b.String())
}

// =============================================================================
// BILL HEADS AND RESIDENTS
// =============================================================================

func TestBillHeads_SaveGetList(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	saved, err := s.SaveBillHead(ctx, waterSpec())
	require.NoError(t, err)

	got, err := s.GetBillHead(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "WTR", got.Code)
	assert.True(t, got.PerUnitRate.Equal(dec("12.5")))
	assert.True(t, got.GST.CGSTPct.Equal(dec("9")))

	heads, err := s.ListBillHeads(ctx, "utility")
	require.NoError(t, err)
	assert.Len(t, heads, 1)

	none, err := s.ListBillHeads(ctx, "amenity")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBillHeads_RejectsInvalidGST(t *testing.T) {
	spec := waterSpec()
	spec.GST.CGSTPct = dec("15")

	_, err := newStore(t).SaveBillHead(context.Background(), spec)

	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestBillHeads_NotFound(t *testing.T) {
	_, err := newStore(t).GetBillHead(context.Background(), "missing")

	assert.ErrorIs(t, err, generic.ErrBillHeadNotFound)
}

func TestResidents_SaveAndList(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.SaveResident(ctx, billing.Resident{Name: "B", Block: "B", Flat: "201", Floor: 2})
	require.NoError(t, err)
	a, err := s.SaveResident(ctx, billing.Resident{Name: "A", Block: "A", Flat: "101", Floor: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	roster, err := s.ListResidents(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "A", roster[0].Block)

	_, err = s.SaveResident(ctx, billing.Resident{})
	assert.ErrorIs(t, err, billing.ErrValidation)
}

// =============================================================================
// BILLS
// =============================================================================

func TestCreateBill_AssignsNumberAndPostsBothLegs(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first := waterBill(t, resident("r1", "101"))
	second := waterBill(t, resident("r2", "102"))
	require.NoError(t, s.CreateBill(ctx, first))
	require.NoError(t, s.CreateBill(ctx, second))

	assert.Equal(t, "WTR-202610-0001", first.BillNumber)
	assert.Equal(t, "WTR-202610-0002", second.BillNumber)

	income, err := s.Load(ctx, generic.LedgerIncome, "utility")
	require.NoError(t, err)
	receivable, err := s.Load(ctx, generic.LedgerReceivable, "utility")
	require.NoError(t, err)
	require.Len(t, income, 2)
	require.Len(t, receivable, 2)
	assert.Equal(t, generic.VoucherNumber(first.BillNumber), income[0].VoucherNumber)

	got, err := s.GetBill(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "1180.00", got.Total().StringFixed(2))
	assert.Equal(t, "90.00", got.Calculation.GST.CGSTAmount.StringFixed(2))
	assert.Equal(t, billing.StatusPending, got.Status)
	assert.True(t, got.DueDate.Equal(oct(10)))
}

func TestCreateBill_DuplicateNumberRejected(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a := waterBill(t, resident("r1", "101"))
	a.BillNumber = "WTR-202610-0042"
	require.NoError(t, s.CreateBill(ctx, a))

	b := waterBill(t, resident("r2", "102"))
	b.BillNumber = "WTR-202610-0042"
	err := s.CreateBill(ctx, b)

	assert.ErrorIs(t, err, generic.ErrDuplicateVoucher)
	_, err = s.GetBill(ctx, b.ID)
	assert.ErrorIs(t, err, generic.ErrBillNotFound)
}

func TestSubmitBatch_PartitionsItems(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	taken := waterBill(t, resident("r0", "100"))
	taken.BillNumber = "WTR-202610-0099"
	require.NoError(t, s.CreateBill(ctx, taken))

	// GIVEN: a batch whose second bill reuses an existing number
	ok1 := waterBill(t, resident("r1", "101"))
	clash := waterBill(t, resident("r2", "102"))
	clash.BillNumber = "WTR-202610-0099"
	ok2 := waterBill(t, resident("r3", "103"))

	// WHEN
	res, err := s.SubmitBatch(ctx, []*billing.Bill{ok1, clash, ok2})

	// THEN: the clash is an item failure, the rest commit
	require.NoError(t, err)
	assert.Equal(t, []string{ok1.ID, ok2.ID}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "r2", res.Failed[0].ResidentID)

	bills, err := s.ListBills(ctx, sqlite.BillFilter{Category: "utility"})
	require.NoError(t, err)
	assert.Len(t, bills, 3)
	assert.NotEqual(t, ok1.BillNumber, ok2.BillNumber)
}

func TestSubmitBatch_DrivesBulkRun(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	roster := []billing.Resident{resident("r1", "101"), resident("r2", "102"), resident("r3", "103")}
	batcher := billing.NewBulkBatcher(s, nil)
	batcher.BatchSize = 2

	res, err := batcher.Run(ctx, billing.BulkRequest{
		Spec:      waterSpec(),
		Usage:     billing.Usage(dec("80")),
		IssueDate: oct(1),
		DueDate:   oct(10),
	}, roster, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, res.SuccessCount)
	assert.False(t, res.HasWarnings())

	vs, err := s.Load(ctx, generic.LedgerReceivable, "utility")
	require.NoError(t, err)
	assert.Len(t, vs, 3)
}

// =============================================================================
// PAYMENTS, OVERDUE, STATEMENT
// =============================================================================

func TestRecordPayment_PostsReceipt(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	b := waterBill(t, resident("r1", "101"))
	require.NoError(t, s.CreateBill(ctx, b))

	// WHEN: two payments settle the bill
	got, err := s.RecordPayment(ctx, b.ID, billing.Payment{Amount: dec("500"), PaidAt: oct(5), Method: "upi"})
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPartiallyPaid, got.Status)

	got, err = s.RecordPayment(ctx, b.ID, billing.Payment{Amount: dec("680"), PaidAt: oct(8), Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, got.Status)

	// THEN: payments and status are persisted, receipts are in the receivable leg
	reloaded, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, reloaded.Status)
	require.Len(t, reloaded.Payments, 2)
	assert.True(t, reloaded.Outstanding().IsZero())

	exists, err := s.Exists(ctx, generic.LedgerReceivable, billing.ReceiptVoucherNumber(b.BillNumber, 2))
	require.NoError(t, err)
	assert.True(t, exists)

	bal, err := generic.NewLedger(s).BalanceAt(ctx, generic.LedgerReceivable, "utility", oct(31))
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestRecordPayment_Overpayment(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	b := waterBill(t, resident("r1", "101"))
	require.NoError(t, s.CreateBill(ctx, b))

	_, err := s.RecordPayment(ctx, b.ID, billing.Payment{Amount: dec("2000"), PaidAt: oct(5)})

	assert.ErrorIs(t, err, billing.ErrValidation)
	reloaded, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Payments)
}

func TestRecordPayment_UnknownBill(t *testing.T) {
	_, err := newStore(t).RecordPayment(context.Background(), "nope", billing.Payment{Amount: dec("1"), PaidAt: oct(1)})

	assert.ErrorIs(t, err, generic.ErrBillNotFound)
}

func TestMarkOverdue(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	unpaid := waterBill(t, resident("r1", "101"))
	paid := waterBill(t, resident("r2", "102"))
	require.NoError(t, s.CreateBill(ctx, unpaid))
	require.NoError(t, s.CreateBill(ctx, paid))
	_, err := s.RecordPayment(ctx, paid.ID, billing.Payment{Amount: dec("1180"), PaidAt: oct(9)})
	require.NoError(t, err)

	// Due date itself is not overdue
	changed, err := s.MarkOverdue(ctx, oct(10))
	require.NoError(t, err)
	assert.Empty(t, changed)

	changed, err = s.MarkOverdue(ctx, oct(11))
	require.NoError(t, err)
	assert.Equal(t, []string{unpaid.BillNumber}, changed)

	overdue, err := s.ListBills(ctx, sqlite.BillFilter{Status: billing.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, unpaid.ID, overdue[0].ID)
}

func TestStatementFromStore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	b := waterBill(t, resident("r1", "101"))
	require.NoError(t, s.CreateBill(ctx, b))
	_, err := s.RecordPayment(ctx, b.ID, billing.Payment{Amount: dec("1180"), PaidAt: oct(5)})
	require.NoError(t, err)

	st, err := reconcile.NewService(s, nil).Statement(ctx, "utility",
		generic.Period{Start: oct(1), End: oct(31)}, generic.ZeroBalance())

	require.NoError(t, err)
	require.Len(t, st.Rows, 1)
	assert.Equal(t, generic.VoucherNumber(b.BillNumber), st.Rows[0].VoucherNumber)
	assert.Equal(t, "1180.00", st.Rows[0].Debit.Decimal.StringFixed(2))
	assert.Equal(t, "1000.00", st.Rows[0].Credit.Decimal.StringFixed(2))
	assert.Equal(t, 1, st.Skipped, "receipt")
	assert.Equal(t, "180.00 Dr", st.Closing.String())
}
