package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger() generic.Ledger {
	return generic.NewLedger(store.NewMemory())
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func billVoucher(ledger generic.LedgerID, number string, day int, amount string) generic.Voucher {
	v := generic.Voucher{
		ID:            generic.VoucherID(string(ledger) + "-" + number),
		Ledger:        ledger,
		Category:      "utility",
		VoucherNumber: generic.VoucherNumber(number),
		VoucherDate:   generic.NewTimePoint(2026, time.October, day),
		VoucherType:   generic.VoucherSales,
	}
	if ledger == generic.LedgerIncome {
		v.Postings = []generic.Posting{{Type: generic.Credit, Amount: d(amount), Role: generic.RoleBillIncome}}
	} else {
		v.Postings = []generic.Posting{{Type: generic.Debit, Amount: d(amount), Role: generic.RoleTotalReceivable}}
	}
	return v
}

// =============================================================================
// LEDGER TESTS
// =============================================================================

func TestLedger_SameNumberAllowedAcrossLegs(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()

	// GIVEN: V100 in the income leg
	if err := ledger.Append(ctx, billVoucher(generic.LedgerIncome, "V100", 1, "1180")); err != nil {
		t.Fatalf("append income: %v", err)
	}

	// WHEN: the receivable leg uses the same number
	err := ledger.Append(ctx, billVoucher(generic.LedgerReceivable, "V100", 1, "1180"))

	// THEN: accepted
	if err != nil {
		t.Errorf("expected receivable leg to share voucher number, got %v", err)
	}
}

func TestLedger_DuplicateNumberInSameLegRejected(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()

	if err := ledger.Append(ctx, billVoucher(generic.LedgerIncome, "V100", 1, "100")); err != nil {
		t.Fatalf("append: %v", err)
	}

	err := ledger.Append(ctx, billVoucher(generic.LedgerIncome, "V100", 2, "200"))
	if !errors.Is(err, generic.ErrDuplicateVoucher) {
		t.Errorf("expected ErrDuplicateVoucher, got %v", err)
	}

	vs, _ := ledger.Vouchers(ctx, generic.LedgerIncome, "utility")
	if len(vs) != 1 {
		t.Errorf("expected 1 voucher, got %d", len(vs))
	}
}

func TestLedger_AppendBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()

	batch := []generic.Voucher{
		billVoucher(generic.LedgerIncome, "V1", 1, "100"),
		billVoucher(generic.LedgerIncome, "V1", 2, "100"),
	}
	if err := ledger.AppendBatch(ctx, batch); !errors.Is(err, generic.ErrDuplicateVoucher) {
		t.Fatalf("expected duplicate inside batch to be rejected, got %v", err)
	}

	vs, _ := ledger.Vouchers(ctx, generic.LedgerIncome, "utility")
	if len(vs) != 0 {
		t.Errorf("expected nothing written, got %d vouchers", len(vs))
	}
}

func TestLedger_AppendBatchRunsInsideTransaction(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewTxMemory())

	if err := ledger.AppendBatch(ctx, []generic.Voucher{
		billVoucher(generic.LedgerIncome, "V1", 1, "100"),
		billVoucher(generic.LedgerReceivable, "V1", 1, "100"),
	}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}

	// V2 is new but V1 already exists: nothing from this batch may land
	err := ledger.AppendBatch(ctx, []generic.Voucher{
		billVoucher(generic.LedgerIncome, "V2", 2, "50"),
		billVoucher(generic.LedgerIncome, "V1", 2, "50"),
	})
	if !errors.Is(err, generic.ErrDuplicateVoucher) {
		t.Fatalf("expected duplicate voucher, got %v", err)
	}

	vs, _ := ledger.Vouchers(ctx, generic.LedgerIncome, "utility")
	if len(vs) != 1 {
		t.Errorf("expected only V1 in income, got %d vouchers", len(vs))
	}
}

func TestLedger_InvalidVoucherRejected(t *testing.T) {
	v := billVoucher(generic.LedgerIncome, "V1", 1, "100")
	v.VoucherType = "Invoice"

	err := newTestLedger().Append(context.Background(), v)

	var ve *generic.VoucherError
	if !errors.As(err, &ve) || ve.Field != "voucher_type" {
		t.Errorf("expected voucher_type VoucherError, got %v", err)
	}
	if !generic.IsClientError(err) {
		t.Error("invalid voucher should be a client error")
	}
}

func TestLedger_BalanceAt(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()

	for _, v := range []generic.Voucher{
		billVoucher(generic.LedgerIncome, "V1", 5, "1000"),
		billVoucher(generic.LedgerIncome, "V2", 20, "500"),
	} {
		if err := ledger.Append(ctx, v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := ledger.BalanceAt(ctx, generic.LedgerIncome, "utility", generic.NewTimePoint(2026, time.October, 10))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	want := generic.NewBalance(d("1000"), generic.SideCredit)
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestLedger_VouchersInRangeRejectsInvertedPeriod(t *testing.T) {
	p := generic.Period{
		Start: generic.NewTimePoint(2026, time.October, 31),
		End:   generic.NewTimePoint(2026, time.October, 1),
	}
	_, err := newTestLedger().VouchersInRange(context.Background(), generic.LedgerIncome, "utility", p)
	if !errors.Is(err, generic.ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()

	err := s.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.Append(ctx, billVoucher(generic.LedgerIncome, "V1", 1, "100")); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	exists, _ := s.Exists(ctx, generic.LedgerIncome, "V1")
	if exists {
		t.Error("voucher should have been rolled back")
	}
}
