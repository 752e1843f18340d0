/*
store.go - Persistence interface for vouchers

PURPOSE:
  Defines the interface between the ledger logic and the database.
  The Store handles persistence while maintaining append-only semantics.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Core voucher persistence (append, load, exists)
  TxStore: Transactional operations (both legs of a bill in one commit)

APPEND-ONLY CONTRACT:
  - Append(): Single voucher write
  - AppendBatch(): Atomic multi-voucher write
  - NO Update() or Delete() methods exist

UNIQUENESS:
  A voucher number is unique per ledger. The income and receivable legs
  of one bill deliberately share the number; that is the join key the
  reconciler relies on.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for voucher persistence (append-only)
// =============================================================================

// Store handles persistence of vouchers.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete.
type Store interface {
	// Append persists a voucher. Returns ErrDuplicateVoucher if the number
	// already exists in the voucher's ledger.
	Append(ctx context.Context, v Voucher) error

	// AppendBatch persists multiple vouchers atomically.
	AppendBatch(ctx context.Context, vs []Voucher) error

	// Load returns all vouchers for ledger+category, ordered by VoucherDate.
	Load(ctx context.Context, ledger LedgerID, category string) ([]Voucher, error)

	// LoadRange returns vouchers dated in [from, to].
	LoadRange(ctx context.Context, ledger LedgerID, category string, from, to TimePoint) ([]Voucher, error)

	// Exists checks whether a voucher number is already used in ledger.
	Exists(ctx context.Context, ledger LedgerID, number VoucherNumber) (bool, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
