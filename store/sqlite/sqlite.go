/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence the billing engine needs using SQLite. In
  production the same patterns apply to PostgreSQL, with only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  generic.Store / TxStore:  Voucher persistence (both ledger legs)
  reconcile.LegSource:      Leg reads for ledger statements
  billing.BatchSubmitter:   Bulk bill submission with per-item results

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE on vouchers, postings or bill_payments
  - Bills change only through payments and status transitions
  - Corrections via Credit Note / Debit Note vouchers only

KEY TABLES:
  vouchers:      One row per voucher per ledger leg
  postings:      Debit/credit lines of a voucher, with their role
  bill_heads:    Bill head configuration (JSON, via factory)
  residents:     Resident roster
  bills:         Issued bills with their calculation snapshot
  bill_payments: Payments recorded against bills

INDEXES:
  - idx_vouchers_ledger_number: Voucher number unique per ledger (the
    income and receivable legs of one bill share the number)
  - idx_vouchers_ledger_category_date: Leg reads (hot path)
  - idx_bills_number: Bill number uniqueness

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - bills.go: Bill heads, residents, bills and payments
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/billing-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	-- Vouchers (append-only, one row per ledger leg)
	CREATE TABLE IF NOT EXISTS vouchers (
		id TEXT PRIMARY KEY,
		ledger TEXT NOT NULL,
		category TEXT NOT NULL,
		voucher_number TEXT NOT NULL,
		voucher_date TEXT NOT NULL,
		voucher_type TEXT NOT NULL,
		reference TEXT,
		narration TEXT,
		created_at TEXT NOT NULL
	);

	-- A voucher number is unique per ledger, shared across legs
	CREATE UNIQUE INDEX IF NOT EXISTS idx_vouchers_ledger_number
		ON vouchers(ledger, voucher_number);

	-- Leg reads for statements (hot path)
	CREATE INDEX IF NOT EXISTS idx_vouchers_ledger_category_date
		ON vouchers(ledger, category, voucher_date);

	CREATE TABLE IF NOT EXISTS postings (
		voucher_id TEXT NOT NULL REFERENCES vouchers(id),
		seq INTEGER NOT NULL,
		posting_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		role TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (voucher_id, seq)
	);

	-- Bill heads (configuration, JSON via factory)
	CREATE TABLE IF NOT EXISTS bill_heads (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bill_heads_category
		ON bill_heads(category);

	-- Residents
	CREATE TABLE IF NOT EXISTS residents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		block TEXT NOT NULL DEFAULT '',
		flat TEXT NOT NULL DEFAULT '',
		floor INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_residents_block_floor
		ON residents(block, floor);

	-- Bills
	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		bill_number TEXT NOT NULL,
		category TEXT NOT NULL,
		head_id TEXT,
		head_code TEXT NOT NULL,
		head_name TEXT NOT NULL,
		resident_id TEXT NOT NULL,
		resident_name TEXT,
		block TEXT,
		flat TEXT,
		status TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		calculation_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_number
		ON bills(bill_number);
	CREATE INDEX IF NOT EXISTS idx_bills_resident
		ON bills(resident_id);
	CREATE INDEX IF NOT EXISTS idx_bills_status_due
		ON bills(status, due_date);

	-- Payments (append-only)
	CREATE TABLE IF NOT EXISTS bill_payments (
		id TEXT PRIMARY KEY,
		bill_id TEXT NOT NULL REFERENCES bills(id),
		seq INTEGER NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		method TEXT,
		reference TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(bill_id, seq)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// VOUCHER STORE (generic.Store interface)
// =============================================================================

// Append adds a voucher to its ledger.
func (s *Store) Append(ctx context.Context, v generic.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := appendVoucher(ctx, sqlTx, v); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// AppendBatch adds multiple vouchers atomically.
func (s *Store) AppendBatch(ctx context.Context, vs []generic.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, v := range vs {
		if err := appendVoucher(ctx, sqlTx, v); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func appendVoucher(ctx context.Context, db queryer, v generic.Voucher) error {
	if v.ID == "" {
		return &generic.VoucherError{Field: "id", Reason: "required"}
	}
	created := v.CreatedAt
	if created.IsZero() {
		created = generic.Today()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO vouchers
		(id, ledger, category, voucher_number, voucher_date, voucher_type, reference, narration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.ID,
		v.Ledger,
		v.Category,
		v.VoucherNumber,
		v.VoucherDate.String(),
		v.VoucherType,
		nullString(v.Reference),
		nullString(v.Narration),
		created.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &generic.DuplicateVoucherError{Ledger: v.Ledger, VoucherNumber: v.VoucherNumber}
		}
		return fmt.Errorf("failed to append voucher: %w", err)
	}

	for i, p := range v.Postings {
		_, err := db.ExecContext(ctx, `
			INSERT INTO postings (voucher_id, seq, posting_type, amount, description, role)
			VALUES (?, ?, ?, ?, ?, ?)
		`, v.ID, i, p.Type, p.Amount.String(), nullString(p.Description), p.Role)
		if err != nil {
			return fmt.Errorf("failed to append posting %d of %s: %w", i, v.VoucherNumber, err)
		}
	}
	return nil
}

// Load returns all vouchers for ledger+category, ordered by date.
func (s *Store) Load(ctx context.Context, ledger generic.LedgerID, category string) ([]generic.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadVouchers(ctx, s.db, ledger, category, "", "")
}

// LoadRange returns vouchers dated in [from, to].
func (s *Store) LoadRange(ctx context.Context, ledger generic.LedgerID, category string, from, to generic.TimePoint) ([]generic.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadVouchers(ctx, s.db, ledger, category, from.String(), to.String())
}

// LoadLeg implements reconcile.LegSource. A zero from means all history.
func (s *Store) LoadLeg(ctx context.Context, ledger generic.LedgerID, category string, from, to generic.TimePoint) ([]generic.Voucher, error) {
	return s.LoadRange(ctx, ledger, category, from, to)
}

// Exists checks whether a voucher number is used in ledger.
func (s *Store) Exists(ctx context.Context, ledger generic.LedgerID, number generic.VoucherNumber) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return voucherExists(ctx, s.db, ledger, number)
}

func voucherExists(ctx context.Context, db queryer, ledger generic.LedgerID, number generic.VoucherNumber) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vouchers WHERE ledger = ? AND voucher_number = ?",
		ledger, number,
	).Scan(&count)
	return count > 0, err
}

// loadVouchers reads vouchers with their postings. Empty from/to leave
// that side of the range open.
func loadVouchers(ctx context.Context, db queryer, ledger generic.LedgerID, category, from, to string) ([]generic.Voucher, error) {
	query := `
		SELECT v.id, v.ledger, v.category, v.voucher_number, v.voucher_date, v.voucher_type,
		       v.reference, v.narration, v.created_at,
		       p.posting_type, p.amount, p.description, p.role
		FROM vouchers v
		LEFT JOIN postings p ON p.voucher_id = v.id
		WHERE v.ledger = ? AND v.category = ?
	`
	args := []any{ledger, category}
	if from != "" {
		query += " AND v.voucher_date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND v.voucher_date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY v.voucher_date ASC, v.voucher_number ASC, p.seq ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []generic.Voucher
	for rows.Next() {
		var (
			v                    generic.Voucher
			voucherDate, created string
			reference, narration sql.NullString
			postingType, amount  sql.NullString
			description, role    sql.NullString
		)
		err := rows.Scan(
			&v.ID, &v.Ledger, &v.Category, &v.VoucherNumber, &voucherDate, &v.VoucherType,
			&reference, &narration, &created,
			&postingType, &amount, &description, &role,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}

		// Rows of one voucher are adjacent; start a new voucher on id change
		if n := len(vouchers); n == 0 || vouchers[n-1].ID != v.ID {
			v.VoucherDate = parseDate(voucherDate)
			v.CreatedAt = parseDate(created)
			v.Reference = reference.String
			v.Narration = narration.String
			vouchers = append(vouchers, v)
		}
		if postingType.Valid {
			last := &vouchers[len(vouchers)-1]
			last.Postings = append(last.Postings, generic.Posting{
				Type:        generic.PostingType(postingType.String),
				Amount:      generic.MustParseDecimal(amount.String),
				Description: description.String,
				Role:        generic.PostingRole(role.String),
			})
		}
	}

	return vouchers, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore reads and writes through the open transaction. It never takes
// the parent's lock, which WithTx already holds.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, v generic.Voucher) error {
	return appendVoucher(ctx, ts.tx, v)
}

func (ts *txStore) AppendBatch(ctx context.Context, vs []generic.Voucher) error {
	for _, v := range vs {
		if err := appendVoucher(ctx, ts.tx, v); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Load(ctx context.Context, ledger generic.LedgerID, category string) ([]generic.Voucher, error) {
	return loadVouchers(ctx, ts.tx, ledger, category, "", "")
}

func (ts *txStore) LoadRange(ctx context.Context, ledger generic.LedgerID, category string, from, to generic.TimePoint) ([]generic.Voucher, error) {
	return loadVouchers(ctx, ts.tx, ledger, category, from.String(), to.String())
}

func (ts *txStore) Exists(ctx context.Context, ledger generic.LedgerID, number generic.VoucherNumber) (bool, error) {
	return voucherExists(ctx, ts.tx, ledger, number)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDate(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}
	}
	return tp
}

func now() string {
	return formatTimestamp(time.Now())
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
