package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// BILL HEAD STORE
// =============================================================================

// SaveBillHead inserts or replaces a bill head. An empty ID is generated.
// Replacing bumps the version; bills already issued keep their snapshot.
func (s *Store) SaveBillHead(ctx context.Context, spec billing.BillHeadSpec) (billing.BillHeadSpec, error) {
	if err := spec.Validate(); err != nil {
		return spec, err
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	configJSON, err := factory.NewBillHeadFactory().MarshalBillHead(spec)
	if err != nil {
		return spec, fmt.Errorf("failed to encode bill head: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bill_heads (id, code, name, category, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			category = excluded.category,
			config_json = excluded.config_json,
			version = bill_heads.version + 1,
			updated_at = excluded.updated_at
	`, spec.ID, spec.Code, spec.Name, spec.Category, string(configJSON), ts, ts)
	if err != nil {
		return spec, fmt.Errorf("failed to save bill head: %w", err)
	}
	return spec, nil
}

// GetBillHead retrieves a bill head by ID.
func (s *Store) GetBillHead(ctx context.Context, id string) (billing.BillHeadSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configJSON string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM bill_heads WHERE id = ?", id).Scan(&configJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.BillHeadSpec{}, fmt.Errorf("bill head %s: %w", id, generic.ErrBillHeadNotFound)
	}
	if err != nil {
		return billing.BillHeadSpec{}, fmt.Errorf("failed to get bill head: %w", err)
	}
	return factory.NewBillHeadFactory().ParseBillHead([]byte(configJSON))
}

// ListBillHeads returns bill heads ordered by code. An empty category
// returns all of them.
func (s *Store) ListBillHeads(ctx context.Context, category string) ([]billing.BillHeadSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT config_json FROM bill_heads"
	var args []any
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY code ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill heads: %w", err)
	}
	defer rows.Close()

	f := factory.NewBillHeadFactory()
	var heads []billing.BillHeadSpec
	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			return nil, err
		}
		spec, err := f.ParseBillHead([]byte(configJSON))
		if err != nil {
			return nil, fmt.Errorf("stored bill head no longer valid: %w", err)
		}
		heads = append(heads, spec)
	}
	return heads, rows.Err()
}

// =============================================================================
// RESIDENT STORE
// =============================================================================

// SaveResident inserts or replaces a resident. An empty ID is generated.
func (s *Store) SaveResident(ctx context.Context, r billing.Resident) (billing.Resident, error) {
	if strings.TrimSpace(r.Name) == "" {
		return r, &billing.ValidationError{Field: "name", Reason: "required"}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO residents (id, name, block, flat, floor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.Block, r.Flat, r.Floor, now())
	if err != nil {
		return r, fmt.Errorf("failed to save resident: %w", err)
	}
	return r, nil
}

// GetResident retrieves a resident by ID.
func (s *Store) GetResident(ctx context.Context, id string) (billing.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r billing.Resident
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, block, flat, floor FROM residents WHERE id = ?", id,
	).Scan(&r.ID, &r.Name, &r.Block, &r.Flat, &r.Floor)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("resident %s: %w", id, generic.ErrResidentNotFound)
	}
	return r, err
}

// ListResidents returns the roster ordered by block, floor, flat.
func (s *Store) ListResidents(ctx context.Context) ([]billing.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, block, flat, floor FROM residents ORDER BY block, floor, flat, name")
	if err != nil {
		return nil, fmt.Errorf("failed to query residents: %w", err)
	}
	defer rows.Close()

	var residents []billing.Resident
	for rows.Next() {
		var r billing.Resident
		if err := rows.Scan(&r.ID, &r.Name, &r.Block, &r.Flat, &r.Floor); err != nil {
			return nil, err
		}
		residents = append(residents, r)
	}
	return residents, rows.Err()
}

// =============================================================================
// BILL STORE
// =============================================================================

// CreateBill persists a bill and posts both of its ledger legs in one
// transaction. An empty BillNumber is assigned from the next free
// sequence for the head code and issue month.
func (s *Store) CreateBill(ctx context.Context, b *billing.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := createBill(ctx, sqlTx, b); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// SubmitBatch implements billing.BatchSubmitter. Each bill is written
// under its own savepoint: a bill rejected for its content (duplicate
// number, invalid voucher) is reported as an item failure while the rest
// of the batch commits. Any other error fails the whole batch and
// nothing of it is kept.
func (s *Store) SubmitBatch(ctx context.Context, bills []*billing.Bill) (billing.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return billing.BatchResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var res billing.BatchResult
	for _, b := range bills {
		if _, err := sqlTx.ExecContext(ctx, "SAVEPOINT bill_item"); err != nil {
			return billing.BatchResult{}, err
		}

		assigned := b.BillNumber == ""
		if err := createBill(ctx, sqlTx, b); err != nil {
			if !isItemError(err) {
				return billing.BatchResult{}, err
			}
			if _, rbErr := sqlTx.ExecContext(ctx, "ROLLBACK TO bill_item; RELEASE bill_item"); rbErr != nil {
				return billing.BatchResult{}, rbErr
			}
			if assigned {
				b.BillNumber = ""
			}
			res.Failed = append(res.Failed, billing.ItemFailure{
				BillID:     b.ID,
				ResidentID: b.ResidentID,
				Reason:     err.Error(),
			})
			continue
		}

		if _, err := sqlTx.ExecContext(ctx, "RELEASE bill_item"); err != nil {
			return billing.BatchResult{}, err
		}
		res.Succeeded = append(res.Succeeded, b.ID)
	}

	if err := sqlTx.Commit(); err != nil {
		return billing.BatchResult{}, fmt.Errorf("failed to commit batch: %w", err)
	}
	return res, nil
}

func isItemError(err error) bool {
	return generic.IsClientError(err) || billing.IsClientError(err)
}

func createBill(ctx context.Context, db queryer, b *billing.Bill) error {
	if b.BillNumber == "" {
		number, err := nextBillNumber(ctx, db, b.HeadCode, b.IssueDate)
		if err != nil {
			return err
		}
		b.BillNumber = number
	}

	vouchers, err := billing.BillVouchers(b)
	if err != nil {
		return err
	}
	for _, v := range vouchers {
		if err := v.Validate(); err != nil {
			return err
		}
		if err := appendVoucher(ctx, db, v); err != nil {
			return err
		}
	}

	calcJSON, err := json.Marshal(b.Calculation)
	if err != nil {
		return fmt.Errorf("failed to encode calculation: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO bills
		(id, bill_number, category, head_id, head_code, head_name, resident_id, resident_name,
		 block, flat, status, issue_date, due_date, total_amount, calculation_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.BillNumber, b.Category, nullString(b.HeadID), b.HeadCode, b.HeadName,
		b.ResidentID, nullString(b.ResidentName), nullString(b.Block), nullString(b.Flat),
		b.Status, b.IssueDate.String(), b.DueDate.String(), b.Total().String(),
		string(calcJSON), formatTimestamp(b.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &generic.DuplicateVoucherError{Ledger: generic.LedgerIncome, VoucherNumber: generic.VoucherNumber(b.BillNumber)}
		}
		return fmt.Errorf("failed to insert bill: %w", err)
	}
	return nil
}

// nextBillNumber returns the next number for code in the issue month.
// Sequences are zero-padded to four digits, so the lexical maximum is
// also the numeric one.
func nextBillNumber(ctx context.Context, db queryer, code string, issue generic.TimePoint) (string, error) {
	prefix := billing.BillNumberPrefix(code, issue)

	var last sql.NullString
	err := db.QueryRowContext(ctx,
		"SELECT MAX(bill_number) FROM bills WHERE bill_number LIKE ?", prefix+"-%",
	).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("failed to read bill sequence: %w", err)
	}

	seq := 1
	if last.Valid {
		n, err := strconv.Atoi(strings.TrimPrefix(last.String, prefix+"-"))
		if err != nil {
			return "", fmt.Errorf("unexpected bill number %q: %w", last.String, err)
		}
		seq = n + 1
	}
	return billing.FormatBillNumber(code, issue, seq), nil
}

// BillFilter narrows ListBills. Zero fields match everything.
type BillFilter struct {
	Category   string
	ResidentID string
	Status     billing.BillStatus
}

const billColumns = `
	id, bill_number, category, head_id, head_code, head_name, resident_id, resident_name,
	block, flat, status, issue_date, due_date, calculation_json, created_at
`

// GetBill retrieves a bill with its payments.
func (s *Store) GetBill(ctx context.Context, id string) (*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getBill(ctx, s.db, id)
}

func getBill(ctx context.Context, db queryer, id string) (*billing.Bill, error) {
	bills, err := queryBills(ctx, db, "SELECT "+billColumns+" FROM bills WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		return nil, fmt.Errorf("bill %s: %w", id, generic.ErrBillNotFound)
	}
	return bills[0], nil
}

// ListBills returns bills ordered by issue date, then bill number.
func (s *Store) ListBills(ctx context.Context, f BillFilter) ([]*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.ResidentID != "" {
		where = append(where, "resident_id = ?")
		args = append(args, f.ResidentID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := "SELECT " + billColumns + " FROM bills"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY issue_date ASC, bill_number ASC"

	return queryBills(ctx, s.db, query, args...)
}

func queryBills(ctx context.Context, db queryer, query string, args ...any) ([]*billing.Bill, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}

	var bills []*billing.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Payments are read after the bill cursor is closed; an in-memory
	// store has a single connection
	if err := attachPayments(ctx, db, bills); err != nil {
		return nil, err
	}
	return bills, nil
}

func scanBill(rows *sql.Rows) (*billing.Bill, error) {
	var (
		b                         billing.Bill
		headID, residentName      sql.NullString
		block, flat               sql.NullString
		issue, due, calc, created string
	)
	err := rows.Scan(
		&b.ID, &b.BillNumber, &b.Category, &headID, &b.HeadCode, &b.HeadName,
		&b.ResidentID, &residentName, &block, &flat, &b.Status,
		&issue, &due, &calc, &created,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan bill: %w", err)
	}

	b.HeadID = headID.String
	b.ResidentName = residentName.String
	b.Block = block.String
	b.Flat = flat.String
	b.IssueDate = parseDate(issue)
	b.DueDate = parseDate(due)
	b.CreatedAt = parseTimestamp(created)
	if err := json.Unmarshal([]byte(calc), &b.Calculation); err != nil {
		return nil, fmt.Errorf("failed to decode calculation of %s: %w", b.BillNumber, err)
	}
	return &b, nil
}

func attachPayments(ctx context.Context, db queryer, bills []*billing.Bill) error {
	if len(bills) == 0 {
		return nil
	}
	byID := make(map[string]*billing.Bill, len(bills))
	placeholders := make([]string, 0, len(bills))
	args := make([]any, 0, len(bills))
	for _, b := range bills {
		byID[b.ID] = b
		placeholders = append(placeholders, "?")
		args = append(args, b.ID)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, bill_id, amount, paid_at, method, reference
		FROM bill_payments
		WHERE bill_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY bill_id, seq
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                 billing.Payment
			amount, paidAt    string
			method, reference sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.BillID, &amount, &paidAt, &method, &reference); err != nil {
			return fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount = generic.MustParseDecimal(amount)
		p.PaidAt = parseDate(paidAt)
		p.Method = method.String
		p.Reference = reference.String
		if b := byID[p.BillID]; b != nil {
			b.Payments = append(b.Payments, p)
		}
	}
	return rows.Err()
}

// =============================================================================
// PAYMENTS AND STATUS
// =============================================================================

// RecordPayment appends a payment to a bill, moves its status forward and
// posts a Receipt voucher to the receivable leg, all in one transaction.
func (s *Store) RecordPayment(ctx context.Context, billID string, p billing.Payment) (*billing.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	b, err := getBill(ctx, sqlTx, billID)
	if err != nil {
		return nil, err
	}
	if err := b.RecordPayment(p); err != nil {
		return nil, err
	}
	seq := len(b.Payments)
	paid := b.Payments[seq-1]

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO bill_payments (id, bill_id, seq, amount, paid_at, method, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, paid.ID, b.ID, seq, paid.Amount.String(), paid.PaidAt.String(),
		nullString(paid.Method), nullString(paid.Reference), now())
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	if err := updateStatus(ctx, sqlTx, b); err != nil {
		return nil, err
	}
	if err := appendVoucher(ctx, sqlTx, billing.ReceiptVoucher(b, paid, seq)); err != nil {
		return nil, err
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return b, nil
}

// MarkOverdue moves every unsettled bill whose due date is before at to
// overdue. Returns the bill numbers that changed.
func (s *Store) MarkOverdue(ctx context.Context, at generic.TimePoint) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	bills, err := queryBills(ctx, sqlTx,
		"SELECT "+billColumns+" FROM bills WHERE status IN (?, ?) AND due_date < ? ORDER BY bill_number",
		billing.StatusPending, billing.StatusPartiallyPaid, at.String(),
	)
	if err != nil {
		return nil, err
	}

	var changed []string
	for _, b := range bills {
		if !b.MarkOverdue(at) {
			continue
		}
		if err := updateStatus(ctx, sqlTx, b); err != nil {
			return nil, err
		}
		changed = append(changed, b.BillNumber)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit overdue sweep: %w", err)
	}
	return changed, nil
}

func updateStatus(ctx context.Context, db queryer, b *billing.Bill) error {
	_, err := db.ExecContext(ctx, "UPDATE bills SET status = ? WHERE id = ?", b.Status, b.ID)
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", b.BillNumber, err)
	}
	return nil
}
