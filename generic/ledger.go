/*
ledger.go - Append-only voucher log

PURPOSE:
  The Ledger is the immutable source of truth for every bill and payment
  event. Each event is written as vouchers into two legs (income and
  receivable) sharing one voucher number. Balances are always derived by
  replaying vouchers; there is no stored balance that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. UNIQUE PER LEG: a voucher number appears at most once per ledger.
  3. VALID: every voucher passes Voucher.Validate before it is stored.

CORRECTIONS:
  Mistakes are corrected with Credit Note / Debit Note vouchers; the
  original stays in place.

EXAMPLE FLOW:
  1. Water bill issued:  income  V100 Cr 1180 (bill_income)
                         recv    V100 Dr 1180 (total_receivable)
  2. Resident pays 1180: recv    R100 Cr 1180 (payment_received)

SEE ALSO:
  - store.go: Low-level persistence interface
  - reconcile/reconciler.go: Merges the two legs into one statement
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only voucher log
// =============================================================================

type Ledger interface {
	// Append adds a voucher. Fails if the number already exists in its ledger.
	Append(ctx context.Context, v Voucher) error

	// AppendBatch adds multiple vouchers atomically.
	// Used to post both legs of a bill together.
	AppendBatch(ctx context.Context, vs []Voucher) error

	// Vouchers returns all vouchers for ledger+category, chronologically.
	Vouchers(ctx context.Context, ledger LedgerID, category string) ([]Voucher, error)

	// VouchersInRange returns vouchers dated in the period.
	VouchersInRange(ctx context.Context, ledger LedgerID, category string, p Period) ([]Voucher, error)

	// BalanceAt folds every voucher dated on or before at.
	BalanceAt(ctx context.Context, ledger LedgerID, category string, at TimePoint) (Balance, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, v Voucher) error {
	if err := l.check(ctx, v); err != nil {
		return err
	}
	return l.Store.Append(ctx, v)
}

// AppendBatch checks and writes all vouchers. When the store supports
// transactions the existence checks and the write share one transaction,
// so a concurrent writer cannot claim a number in between.
func (l *DefaultLedger) AppendBatch(ctx context.Context, vs []Voucher) error {
	if tx, ok := l.Store.(TxStore); ok {
		return tx.WithTx(ctx, func(s Store) error {
			return (&DefaultLedger{Store: s}).appendChecked(ctx, vs)
		})
	}
	return l.appendChecked(ctx, vs)
}

func (l *DefaultLedger) appendChecked(ctx context.Context, vs []Voucher) error {
	// Check everything first, including collisions inside the batch itself
	seen := make(map[LedgerID]map[VoucherNumber]bool)
	for _, v := range vs {
		if err := l.check(ctx, v); err != nil {
			return err
		}
		if seen[v.Ledger] == nil {
			seen[v.Ledger] = make(map[VoucherNumber]bool)
		}
		if seen[v.Ledger][v.VoucherNumber] {
			return &DuplicateVoucherError{Ledger: v.Ledger, VoucherNumber: v.VoucherNumber}
		}
		seen[v.Ledger][v.VoucherNumber] = true
	}
	return l.Store.AppendBatch(ctx, vs)
}

func (l *DefaultLedger) check(ctx context.Context, v Voucher) error {
	if err := v.Validate(); err != nil {
		return err
	}
	exists, err := l.Store.Exists(ctx, v.Ledger, v.VoucherNumber)
	if err != nil {
		return err
	}
	if exists {
		return &DuplicateVoucherError{Ledger: v.Ledger, VoucherNumber: v.VoucherNumber}
	}
	return nil
}

func (l *DefaultLedger) Vouchers(ctx context.Context, ledger LedgerID, category string) ([]Voucher, error) {
	return l.Store.Load(ctx, ledger, category)
}

func (l *DefaultLedger) VouchersInRange(ctx context.Context, ledger LedgerID, category string, p Period) ([]Voucher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return l.Store.LoadRange(ctx, ledger, category, p.Start, p.End)
}

func (l *DefaultLedger) BalanceAt(ctx context.Context, ledger LedgerID, category string, at TimePoint) (Balance, error) {
	vs, err := l.Store.Load(ctx, ledger, category)
	if err != nil {
		return Balance{}, err
	}

	balance := ZeroBalance()
	for _, v := range vs {
		if v.VoucherDate.After(at) {
			break
		}
		debit, credit := v.Totals()
		balance = balance.Apply(debit, credit)
	}
	return balance, nil
}
