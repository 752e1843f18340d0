/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes bill heads, residents, bills, payments and reconciled ledger
  statements via REST. Handles HTTP request/response and JSON, and
  delegates to the billing, reconcile and store packages.

ENDPOINTS:
  Categories:
    GET    /api/categories                  Registered categories and labels

  Bill heads:
    GET    /api/bill-heads                  List (?category=)
    POST   /api/bill-heads                  Create/update from factory JSON
    GET    /api/bill-heads/{id}             Get one

  Residents:
    GET    /api/residents                   Roster
    POST   /api/residents                   Create/update

  Bills:
    POST   /api/bills/calculate             Preview a calculation, nothing stored
    POST   /api/bills                       Create one bill, post both ledger legs
    POST   /api/bills/bulk                  Bulk generation (207 with warnings)
    GET    /api/bills                       List (?category=&resident_id=&status=)
    GET    /api/bills/{id}                  Get one
    POST   /api/bills/{id}/payments         Record a payment

  Ledger:
    GET    /api/ledger/{category}/statement ?from=&to=&format=json|csv|xlsx|pdf
                                            &opening=&opening_side=Dr|Cr
                                            or ?cycle=monthly|financial_year&as_of=
    GET    /api/ledger/{category}/{ledger}/vouchers  One leg, ?from=&to=
    POST   /api/ledger/{category}/{ledger}/vouchers  Manual adjustment voucher
    GET    /api/ledger/{category}/{ledger}/balance   Folded balance, ?at=

  Admin:
    POST   /api/admin/overdue               Run the overdue sweep now (?at=)
    GET    /api/admin/health                Database ping

REQUEST FLOW:
  1. Decode and validate input
  2. Load the bill head / resident from the store
  3. Build a billing.Draft and calculate
  4. Persist through the store (bill + vouchers in one transaction)
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with a status derived from the error chain:
  - 400: validation, formula, incomplete calculation, unsupported type
  - 404: bill, bill head, resident or category not found
  - 409: duplicate voucher number (a repeated charge is only a warning)
  - 502: a ledger leg could not be fetched
  - 500: anything else (logged)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Periodic overdue sweep
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/logger"
	"github.com/warp/billing-engine/metrics"
	"github.com/warp/billing-engine/reconcile"
	"github.com/warp/billing-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Factory    *factory.BillHeadFactory
	Assembler  *billing.BillAssembler
	Batcher    *billing.BulkBatcher
	Statements *reconcile.Service
	Ledger     generic.Ledger
	Metrics    *metrics.Metrics // may be nil

	logger *zap.Logger
}

// NewHandler wires the billing components around one store.
func NewHandler(store *sqlite.Store, m *metrics.Metrics, log *zap.Logger) *Handler {
	log = logger.OrNop(log)
	h := &Handler{
		Store:      store,
		Factory:    factory.NewBillHeadFactory(),
		Assembler:  billing.NewBillAssembler(),
		Batcher:    billing.NewBulkBatcher(store, log),
		Statements: reconcile.NewService(store, log),
		Ledger:     generic.NewLedger(store),
		Metrics:    m,
		logger:     log,
	}
	if m != nil {
		h.Batcher.Observer = m
		h.Statements.Observer = m
	}
	return h
}

// SeedBillHeads stores bill heads from configuration.
func (h *Handler) SeedBillHeads(ctx context.Context, specs []billing.BillHeadSpec) error {
	for _, spec := range specs {
		if _, err := h.Store.SaveBillHead(ctx, spec); err != nil {
			return fmt.Errorf("seed bill head %s: %w", spec.Code, err)
		}
	}
	return nil
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// ListCategories returns the registered bill categories with their usage
// labels, for the admin UI.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats := generic.ListCategories()
	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = CategoryDTO{ID: c.ID, Name: c.Name, UsageLabel: c.UsageLabel, DefaultDueDays: c.DefaultDueDays}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BILL HEAD HANDLERS
// =============================================================================

func (h *Handler) ListBillHeads(w http.ResponseWriter, r *http.Request) {
	specs, err := h.Store.ListBillHeads(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.fail(w, r, "Failed to list bill heads", err)
		return
	}

	dtos := make([]factory.BillHeadJSON, len(specs))
	for i, s := range specs {
		dtos[i] = h.Factory.ToJSON(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBillHead validates the bill head at configuration time; a GST rate
// above its ceiling never reaches a bill.
func (h *Handler) CreateBillHead(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	spec, err := h.Factory.ParseBillHead(body)
	if err != nil {
		h.fail(w, r, "Invalid bill head configuration", err)
		return
	}

	saved, err := h.Store.SaveBillHead(r.Context(), spec)
	if err != nil {
		h.fail(w, r, "Failed to save bill head", err)
		return
	}

	writeJSON(w, http.StatusCreated, h.Factory.ToJSON(saved))
}

func (h *Handler) GetBillHead(w http.ResponseWriter, r *http.Request) {
	spec, err := h.Store.GetBillHead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Bill head not found", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(spec))
}

// =============================================================================
// RESIDENT HANDLERS
// =============================================================================

func (h *Handler) ListResidents(w http.ResponseWriter, r *http.Request) {
	residents, err := h.Store.ListResidents(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list residents", err)
		return
	}

	dtos := make([]ResidentDTO, len(residents))
	for i, res := range residents {
		dtos[i] = toResidentDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateResident(w http.ResponseWriter, r *http.Request) {
	var req ResidentDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	saved, err := h.Store.SaveResident(r.Context(), req.resident())
	if err != nil {
		h.fail(w, r, "Failed to save resident", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResidentDTO(saved))
}

// =============================================================================
// BILL HANDLERS
// =============================================================================

// CalculateBill previews a calculation. Nothing is stored.
func (h *Handler) CalculateBill(w http.ResponseWriter, r *http.Request) {
	var req BillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	draft, warnings, err := h.draft(r, req)
	if err != nil {
		h.fail(w, r, "Invalid bill request", err)
		return
	}

	result, err := draft.Calculate()
	if err != nil {
		h.fail(w, r, "Calculation failed", err)
		return
	}
	dto := toCalculationDTO(result)
	dto.Warnings = warnings
	writeJSON(w, http.StatusOK, dto)
}

// CreateBill calculates and stores one bill with both ledger legs.
func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	var req BillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ResidentID == "" {
		h.fail(w, r, "Invalid bill request", &billing.ValidationError{Field: "resident_id", Reason: "required"})
		return
	}

	resident, err := h.Store.GetResident(r.Context(), req.ResidentID)
	if err != nil {
		h.fail(w, r, "Resident not found", err)
		return
	}

	draft, warnings, err := h.draft(r, req)
	if err != nil {
		h.fail(w, r, "Invalid bill request", err)
		return
	}
	if _, err := draft.Calculate(); err != nil {
		h.fail(w, r, "Calculation failed", err)
		return
	}

	bill, err := draft.Finalize(billing.BillIdentity{Resident: resident})
	if err != nil {
		h.fail(w, r, "Calculation failed", err)
		return
	}

	err = h.Store.CreateBill(r.Context(), bill)
	if h.Metrics != nil {
		h.Metrics.ObserveBill(bill.Category, err)
	}
	if err != nil {
		h.fail(w, r, "Failed to create bill", err)
		return
	}
	dto := toBillDTO(bill)
	dto.Warnings = warnings
	writeJSON(w, http.StatusCreated, dto)
}

// GenerateBulk bills every eligible resident in scope. A run with failed
// or unsubmitted bills answers 207 so the caller can tell it apart from
// full success.
func (h *Handler) GenerateBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	bulk, warnings, err := h.bulkRequest(r, req)
	if err != nil {
		h.fail(w, r, "Invalid bulk request", err)
		return
	}

	roster, err := h.Store.ListResidents(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to load residents", err)
		return
	}

	result, err := h.Batcher.Run(r.Context(), bulk, roster, func(p billing.Progress) {
		h.logger.Debug("bulk progress",
			zap.String("bill_head", bulk.Spec.ID),
			zap.Int("batch", p.Batch),
			zap.Int("total_batches", p.TotalBatches),
			zap.Float64("percent", p.Percent),
		)
	})
	if err != nil {
		h.fail(w, r, "Bulk generation failed", err)
		return
	}

	dto := toBulkResultDTO(result)
	if len(warnings) > 0 {
		dto.Warnings = warnings
		dto.HasWarnings = true
	}
	status := http.StatusOK
	if dto.HasWarnings {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, dto)
}

func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bills, err := h.Store.ListBills(r.Context(), sqlite.BillFilter{
		Category:   q.Get("category"),
		ResidentID: q.Get("resident_id"),
		Status:     billing.BillStatus(q.Get("status")),
	})
	if err != nil {
		h.fail(w, r, "Failed to list bills", err)
		return
	}

	dtos := make([]BillDTO, len(bills))
	for i, b := range bills {
		dtos[i] = toBillDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.Store.GetBill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Bill not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(bill))
}

// RecordPayment appends a payment and posts its Receipt voucher.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseAmount("amount", req.Amount)
	if err == nil && !amount.Valid {
		err = &billing.ValidationError{Field: "amount", Reason: "required"}
	}
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	paidAt, err := parseDate("paid_at", req.PaidAt)
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	if paidAt.IsZero() {
		paidAt = generic.Today()
	}

	bill, err := h.Store.RecordPayment(r.Context(), chi.URLParam(r, "id"), billing.Payment{
		Amount:    amount.Decimal,
		PaidAt:    paidAt,
		Method:    req.Method,
		Reference: req.Reference,
	})
	if err != nil {
		h.fail(w, r, "Failed to record payment", err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.ObservePayment()
	}
	writeJSON(w, http.StatusCreated, toBillDTO(bill))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

// GetStatement reconciles the income and receivable legs of a category.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	q := r.URL.Query()

	if _, ok := generic.LookupCategory(category); !ok {
		h.fail(w, r, "Unknown category", fmt.Errorf("category %s: %w", category, generic.ErrCategoryNotFound))
		return
	}

	period, err := statementPeriod(q.Get("from"), q.Get("to"), q.Get("cycle"), q.Get("as_of"))
	if err != nil {
		h.fail(w, r, "Invalid statement period", err)
		return
	}
	opening, err := parseOpening(q.Get("opening"), q.Get("opening_side"))
	if err != nil {
		h.fail(w, r, "Invalid opening balance", err)
		return
	}

	format := strings.ToLower(q.Get("format"))
	switch format {
	case "", "json", "csv", "xlsx", "pdf":
	default:
		writeError(w, http.StatusBadRequest, "Unsupported format", fmt.Errorf("format %q", format))
		return
	}

	st, err := h.Statements.Statement(r.Context(), category, period, opening)
	if err != nil {
		h.fail(w, r, "Failed to build statement", err)
		return
	}

	filename := fmt.Sprintf("statement-%s-%s-%s", category, period.Start, period.End)
	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := reconcile.WriteCSV(&buf, st); err != nil {
			h.fail(w, r, "Failed to export statement", err)
			return
		}
		writeFile(w, contentTypeCSV, filename+".csv", buf.Bytes())
	case "xlsx":
		data, err := reconcile.BuildStatementXLSX(st)
		if err != nil {
			h.fail(w, r, "Failed to export statement", err)
			return
		}
		writeFile(w, contentTypeXLSX, filename+".xlsx", data)
	case "pdf":
		data, err := reconcile.BuildStatementPDF(st)
		if err != nil {
			h.fail(w, r, "Failed to export statement", err)
			return
		}
		writeFile(w, contentTypePDF, filename+".pdf", data)
	default:
		writeJSON(w, http.StatusOK, toStatementDTO(st))
	}
}

// ListVouchers returns one leg's vouchers with their postings.
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	category, leg, ok := h.legParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	var (
		vouchers []generic.Voucher
		err      error
	)
	if q.Get("from") == "" && q.Get("to") == "" {
		vouchers, err = h.Ledger.Vouchers(r.Context(), leg, category)
	} else {
		var p generic.Period
		p, err = statementPeriod(q.Get("from"), q.Get("to"), "", "")
		if err == nil {
			vouchers, err = h.Ledger.VouchersInRange(r.Context(), leg, category, p)
		}
	}
	if err != nil {
		h.fail(w, r, "Failed to load vouchers", err)
		return
	}

	dtos := make([]VoucherDTO, len(vouchers))
	for i, v := range vouchers {
		dtos[i] = toVoucherDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLedgerBalance folds one leg up to ?at= (default today). On the
// receivable leg this is the amount still owed by residents.
func (h *Handler) GetLedgerBalance(w http.ResponseWriter, r *http.Request) {
	category, leg, ok := h.legParams(w, r)
	if !ok {
		return
	}
	at, err := parseDate("at", r.URL.Query().Get("at"))
	if err != nil {
		h.fail(w, r, "Invalid balance date", err)
		return
	}
	if at.IsZero() {
		at = generic.Today()
	}

	balance, err := h.Ledger.BalanceAt(r.Context(), leg, category, at)
	if err != nil {
		h.fail(w, r, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, LedgerBalanceDTO{
		Category: category,
		Ledger:   string(leg),
		AsOf:     at.String(),
		Balance:  toBalanceDTO(balance),
	})
}

// PostVoucher appends a manual adjustment voucher to one leg. Bill and
// receipt vouchers are written by the bill endpoints, never here.
func (h *Handler) PostVoucher(w http.ResponseWriter, r *http.Request) {
	category, leg, ok := h.legParams(w, r)
	if !ok {
		return
	}
	var req VoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	v, err := adjustmentVoucher(category, leg, req)
	if err != nil {
		h.fail(w, r, "Invalid voucher", err)
		return
	}
	if err := h.Ledger.AppendBatch(r.Context(), []generic.Voucher{v}); err != nil {
		h.fail(w, r, "Failed to post voucher", err)
		return
	}
	h.logger.Info("adjustment posted",
		zap.String("category", category),
		zap.String("ledger", string(leg)),
		zap.String("voucher", string(v.VoucherNumber)),
	)
	writeJSON(w, http.StatusCreated, toVoucherDTO(v))
}

func adjustmentVoucher(category string, leg generic.LedgerID, req VoucherRequest) (generic.Voucher, error) {
	vt := generic.VoucherType(req.VoucherType)
	switch vt {
	case generic.VoucherJournal, generic.VoucherCreditNote, generic.VoucherDebitNote:
	default:
		return generic.Voucher{}, &billing.ValidationError{
			Field:  "voucher_type",
			Reason: fmt.Sprintf("%q is not Journal, Credit Note or Debit Note", req.VoucherType),
		}
	}
	date, err := parseDate("voucher_date", req.VoucherDate)
	if err != nil {
		return generic.Voucher{}, err
	}

	postings := make([]generic.Posting, 0, len(req.Postings))
	for i, p := range req.Postings {
		field := fmt.Sprintf("postings[%d].amount", i)
		amount, err := parseAmount(field, p.Amount)
		if err != nil {
			return generic.Voucher{}, err
		}
		if !amount.Valid || !amount.Decimal.IsPositive() {
			return generic.Voucher{}, &billing.ValidationError{Field: field, Reason: "must be positive"}
		}
		postings = append(postings, generic.Posting{
			Type:        generic.PostingType(p.Type),
			Amount:      amount.Decimal.Round(2),
			Description: p.Description,
			Role:        generic.PostingRole(p.Role),
		})
	}

	return generic.Voucher{
		ID:            generic.VoucherID(uuid.NewString()),
		Ledger:        leg,
		Category:      category,
		VoucherNumber: generic.VoucherNumber(strings.TrimSpace(req.VoucherNumber)),
		VoucherDate:   date,
		VoucherType:   vt,
		Reference:     req.Reference,
		Narration:     req.Narration,
		Postings:      postings,
		CreatedAt:     generic.Today(),
	}, nil
}

func (h *Handler) legParams(w http.ResponseWriter, r *http.Request) (string, generic.LedgerID, bool) {
	category := chi.URLParam(r, "category")
	if _, ok := generic.LookupCategory(category); !ok {
		h.fail(w, r, "Unknown category", fmt.Errorf("category %s: %w", category, generic.ErrCategoryNotFound))
		return "", "", false
	}
	leg := generic.LedgerID(chi.URLParam(r, "ledger"))
	if !leg.Valid() {
		h.fail(w, r, "Unknown ledger", &billing.ValidationError{Field: "ledger", Reason: fmt.Sprintf("%q is not income or receivable", leg)})
		return "", "", false
	}
	return category, leg, true
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SweepOverdue runs the overdue sweep immediately.
func (h *Handler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	at, err := parseDate("at", r.URL.Query().Get("at"))
	if err != nil {
		h.fail(w, r, "Invalid sweep date", err)
		return
	}
	if at.IsZero() {
		at = generic.Today()
	}

	changed, err := h.sweepOverdue(r.Context(), at)
	if err != nil {
		h.fail(w, r, "Overdue sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"as_of":   at.String(),
		"overdue": changed,
	})
}

func (h *Handler) sweepOverdue(ctx context.Context, at generic.TimePoint) ([]string, error) {
	changed, err := h.Store.MarkOverdue(ctx, at)
	if err != nil {
		return nil, err
	}
	if h.Metrics != nil {
		h.Metrics.ObserveOverdue(len(changed))
	}
	if changed == nil {
		changed = []string{}
	}
	return changed, nil
}

// =============================================================================
// REQUEST DECODING
// =============================================================================

// draft turns a bill request into a Draft. Missing dates are left for the
// assembler to report as an incomplete calculation.
func (h *Handler) draft(r *http.Request, req BillRequest) (*billing.Draft, []string, error) {
	if req.BillHeadID == "" {
		return nil, nil, &billing.ValidationError{Field: "bill_head_id", Reason: "required"}
	}
	spec, err := h.Store.GetBillHead(r.Context(), req.BillHeadID)
	if err != nil {
		return nil, nil, err
	}

	issue, due, err := billDates(spec, req.IssueDate, req.DueDate)
	if err != nil {
		return nil, nil, err
	}
	evalAt, err := parseDate("evaluation_date", req.EvaluationDate)
	if err != nil {
		return nil, nil, err
	}

	d := billing.NewDraft(h.Assembler, spec)
	d.SetDates(issue, due)
	if !evalAt.IsZero() {
		d.SetEvaluationDate(evalAt)
	}

	usage, err := h.usage(req.UnitUsage, req.CustomAmount)
	if err != nil {
		return nil, nil, err
	}
	if usage.UnitUsage.Valid {
		d.SetUnitUsage(usage.UnitUsage.Decimal)
	}
	if usage.CustomAmount.Valid {
		d.SetCustomAmount(usage.CustomAmount.Decimal)
	}

	charges, err := h.charges(req.Charges)
	if err != nil {
		return nil, nil, err
	}
	var warnings []string
	for _, c := range charges {
		err := d.AddCharge(c)
		switch {
		case errors.Is(err, billing.ErrDuplicateCharge):
			warnings = append(warnings, err.Error()+", repeat ignored")
		case err != nil:
			return nil, nil, err
		}
	}
	return d, warnings, nil
}

func (h *Handler) bulkRequest(r *http.Request, req BulkBillRequest) (billing.BulkRequest, []string, error) {
	if req.BillHeadID == "" {
		return billing.BulkRequest{}, nil, &billing.ValidationError{Field: "bill_head_id", Reason: "required"}
	}
	spec, err := h.Store.GetBillHead(r.Context(), req.BillHeadID)
	if err != nil {
		return billing.BulkRequest{}, nil, err
	}

	issue, due, err := billDates(spec, req.IssueDate, req.DueDate)
	if err != nil {
		return billing.BulkRequest{}, nil, err
	}
	usage, err := h.usage(req.UnitUsage, req.CustomAmount)
	if err != nil {
		return billing.BulkRequest{}, nil, err
	}

	var perResident map[string]decimal.Decimal
	if len(req.UsageByResident) > 0 {
		perResident = make(map[string]decimal.Decimal, len(req.UsageByResident))
		for id, raw := range req.UsageByResident {
			u, err := billing.ParseUsage(string(raw))
			if err != nil {
				return billing.BulkRequest{}, nil, &billing.ValidationError{
					Field:  "usage_by_resident." + id,
					Reason: err.Error(),
				}
			}
			perResident[id] = u
		}
	}

	charges, err := h.charges(req.Charges)
	if err != nil {
		return billing.BulkRequest{}, nil, err
	}
	charges, warnings := dedupeCharges(charges)

	return billing.BulkRequest{
		Spec:            spec,
		Usage:           usage,
		UsageByResident: perResident,
		Charges:         charges,
		IssueDate:       issue,
		DueDate:         due,
		Scope: billing.Scope{
			Kind:  billing.ScopeKind(req.Scope.Kind),
			Block: req.Scope.Block,
			Floor: req.Scope.Floor,
		},
	}, warnings, nil
}

func (h *Handler) usage(unitUsage, customAmount Amount) (billing.UsageInput, error) {
	var in billing.UsageInput
	if strings.TrimSpace(string(unitUsage)) != "" {
		u, err := billing.ParseUsage(string(unitUsage))
		if err != nil {
			return in, err
		}
		in.UnitUsage = decimal.NewNullDecimal(u)
	}
	custom, err := parseAmount("custom_amount", customAmount)
	if err != nil {
		return in, err
	}
	in.CustomAmount = custom
	return in, nil
}

func (h *Handler) charges(cjs []factory.ChargeJSON) ([]billing.AdditionalCharge, error) {
	out := make([]billing.AdditionalCharge, 0, len(cjs))
	for _, cj := range cjs {
		spec, in, err := h.Factory.ParseCharge(cj)
		if err != nil {
			return nil, err
		}
		c, err := billing.NewAdditionalCharge(h.Assembler.Calculator, spec, in)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// dedupeCharges keeps the first charge per source and reports the rest.
// The batcher builds one ChargeSet per resident, so a repeat would
// otherwise fail every draft in the run.
func dedupeCharges(in []billing.AdditionalCharge) ([]billing.AdditionalCharge, []string) {
	seen := make(map[string]bool, len(in))
	out := make([]billing.AdditionalCharge, 0, len(in))
	var warnings []string
	for _, c := range in {
		if seen[c.SourceSpecID] {
			dup := &billing.DuplicateChargeError{SourceSpecID: c.SourceSpecID}
			warnings = append(warnings, dup.Error()+", repeat ignored")
			continue
		}
		seen[c.SourceSpecID] = true
		out = append(out, c)
	}
	return out, warnings
}

func billDates(spec billing.BillHeadSpec, issueRaw, dueRaw string) (issue, due generic.TimePoint, err error) {
	if issue, err = parseDate("issue_date", issueRaw); err != nil {
		return issue, due, err
	}
	if due, err = parseDate("due_date", dueRaw); err != nil {
		return issue, due, err
	}
	if due.IsZero() && !issue.IsZero() {
		due = spec.DueDate(issue)
	}
	return issue, due, nil
}

// parseDate returns the zero TimePoint for an empty string.
func parseDate(field, s string) (generic.TimePoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return generic.TimePoint{}, nil
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}, &billing.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return tp, nil
}

// statementPeriod uses from/to when either is given. Otherwise it picks
// the billing cycle (monthly, calendar_year, financial_year) containing
// as_of, which defaults to today.
func statementPeriod(fromRaw, toRaw, cycle, asOfRaw string) (generic.Period, error) {
	if fromRaw != "" || toRaw != "" {
		from, err := parseDate("from", fromRaw)
		if err != nil {
			return generic.Period{}, err
		}
		to, err := parseDate("to", toRaw)
		if err != nil {
			return generic.Period{}, err
		}
		return generic.Period{Start: from, End: to}, nil
	}

	pc := generic.PeriodConfig{Type: generic.PeriodType(cycle)}
	switch pc.Type {
	case "":
		pc.Type = generic.PeriodMonthly
	case generic.PeriodMonthly, generic.PeriodCalendarYear, generic.PeriodFinancialYear:
	default:
		return generic.Period{}, &billing.ValidationError{Field: "cycle", Reason: fmt.Sprintf("unknown cycle %q", cycle)}
	}

	asOf, err := parseDate("as_of", asOfRaw)
	if err != nil {
		return generic.Period{}, err
	}
	if asOf.IsZero() {
		asOf = generic.Today()
	}
	return pc.PeriodFor(asOf), nil
}

func parseAmount(field string, a Amount) (decimal.NullDecimal, error) {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, &billing.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a number", s)}
	}
	return decimal.NewNullDecimal(d), nil
}

func parseOpening(amount, side string) (generic.Balance, error) {
	v, err := parseAmount("opening", Amount(amount))
	if err != nil || !v.Valid {
		return generic.ZeroBalance(), err
	}
	switch generic.Side(side) {
	case "", generic.SideDebit:
		return generic.NewBalance(v.Decimal, generic.SideDebit), nil
	case generic.SideCredit:
		return generic.NewBalance(v.Decimal, generic.SideCredit), nil
	}
	return generic.Balance{}, &billing.ValidationError{Field: "opening_side", Reason: fmt.Sprintf("%q is not Dr or Cr", side)}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		var verr *billing.ValidationError
		var vcerr *generic.VoucherError
		switch {
		case errors.As(err, &verr):
			resp.Field = verr.Field
		case errors.As(err, &vcerr):
			resp.Field = vcerr.Field
		}
	}
	writeJSON(w, status, resp)
}

// fail maps err to a status and writes it. Server-side failures are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message,
			zap.Error(err),
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, reconcile.ErrReconciliationGap):
		return http.StatusBadGateway
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrDuplicateCharge), errors.Is(err, generic.ErrDuplicateVoucher):
		return http.StatusConflict
	case billing.IsClientError(err), generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
