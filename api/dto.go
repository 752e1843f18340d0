/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Every amount leaves the API as a string with two decimals ("1180.00").
  Amounts coming in (unit usage, custom amounts, payments) accept either
  a JSON string or a JSON number; anything non-numeric is a validation
  error, never a silent zero.

TYPES:
  Categories:   CategoryDTO
  Bill heads:   factory.BillHeadJSON (request and response)
  Residents:    ResidentDTO
  Bills:        BillRequest, BulkBillRequest, BillDTO, CalculationDTO
  Payments:     PaymentRequest, PaymentDTO
  Bulk:         BulkResultDTO
  Statements:   StatementDTO, StatementRowDTO, BalanceDTO
  Ledger legs:  VoucherRequest, VoucherDTO, PostingDTO, LedgerBalanceDTO

SEE ALSO:
  - handlers.go: Uses these types
  - factory/billhead.go: BillHeadJSON, ChargeJSON
*/
package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/reconcile"
)

// =============================================================================
// INPUT HELPERS
// =============================================================================

// Amount accepts "12.5" and 12.5 alike. Parsing happens in the handler so
// a bad value surfaces as a field-level validation error.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(data)
	return nil
}

func money(d decimal.Decimal) string { return d.StringFixed(generic.MoneyPlaces) }

// =============================================================================
// CATEGORIES
// =============================================================================

type CategoryDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	UsageLabel     string `json:"usage_label"`
	DefaultDueDays int    `json:"default_due_days"`
}

// =============================================================================
// RESIDENTS
// =============================================================================

type ResidentDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Block string `json:"block,omitempty"`
	Flat  string `json:"flat,omitempty"`
	Floor int    `json:"floor,omitempty"`
}

func toResidentDTO(r billing.Resident) ResidentDTO {
	return ResidentDTO{ID: r.ID, Name: r.Name, Block: r.Block, Flat: r.Flat, Floor: r.Floor}
}

func (d ResidentDTO) resident() billing.Resident {
	return billing.Resident{ID: d.ID, Name: d.Name, Block: d.Block, Flat: d.Flat, Floor: d.Floor}
}

// =============================================================================
// BILL REQUESTS
// =============================================================================

// BillRequest drives both the calculation preview and single bill
// creation. ResidentID is ignored by the preview.
type BillRequest struct {
	BillHeadID     string               `json:"bill_head_id"`
	ResidentID     string               `json:"resident_id,omitempty"`
	UnitUsage      Amount               `json:"unit_usage,omitempty"`
	CustomAmount   Amount               `json:"custom_amount,omitempty"`
	Charges        []factory.ChargeJSON `json:"charges,omitempty"`
	IssueDate      string               `json:"issue_date"`
	DueDate        string               `json:"due_date,omitempty"`        // defaults from the bill head
	EvaluationDate string               `json:"evaluation_date,omitempty"` // late fee date, defaults to issue
}

type ScopeRequest struct {
	Kind  string `json:"kind"` // all, block, floor
	Block string `json:"block,omitempty"`
	Floor int    `json:"floor,omitempty"`
}

type BulkBillRequest struct {
	BillHeadID      string               `json:"bill_head_id"`
	UnitUsage       Amount               `json:"unit_usage,omitempty"`
	UsageByResident map[string]Amount    `json:"usage_by_resident,omitempty"`
	CustomAmount    Amount               `json:"custom_amount,omitempty"`
	Charges         []factory.ChargeJSON `json:"charges,omitempty"`
	IssueDate       string               `json:"issue_date"`
	DueDate         string               `json:"due_date,omitempty"`
	Scope           ScopeRequest         `json:"scope"`
}

type PaymentRequest struct {
	Amount    Amount `json:"amount"`
	PaidAt    string `json:"paid_at"`
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// =============================================================================
// CALCULATION / BILL RESPONSES
// =============================================================================

type GSTDTO struct {
	CGST  string `json:"cgst"`
	SGST  string `json:"sgst"`
	IGST  string `json:"igst"`
	Total string `json:"total"`
}

type ChargeDTO struct {
	SourceSpecID    string `json:"source_spec_id"`
	ChargeType      string `json:"charge_type"`
	CalculationType string `json:"calculation_type"`
	UnitUsage       string `json:"unit_usage"`
	Amount          string `json:"amount"`
}

type LateFeeDTO struct {
	Applicable bool   `json:"applicable"`
	Periods    int    `json:"periods"`
	GraceEnds  string `json:"grace_ends,omitempty"`
	Amount     string `json:"amount"`
}

type CalculationDTO struct {
	BaseAmount             string      `json:"base_amount"`
	UnitUsage              string      `json:"unit_usage"`
	GST                    GSTDTO      `json:"gst"`
	Charges                []ChargeDTO `json:"charges"`
	AdditionalChargesTotal string      `json:"additional_charges_total"`
	LateFee                LateFeeDTO  `json:"late_fee"`
	TotalAmount            string      `json:"total_amount"`
	Warnings               []string    `json:"warnings,omitempty"`
}

func toCalculationDTO(c billing.CalculationResult) CalculationDTO {
	charges := make([]ChargeDTO, len(c.Charges))
	for i, ch := range c.Charges {
		charges[i] = ChargeDTO{
			SourceSpecID:    ch.SourceSpecID,
			ChargeType:      string(ch.ChargeType),
			CalculationType: string(ch.CalculationType),
			UnitUsage:       ch.UnitUsage.String(),
			Amount:          money(ch.Amount),
		}
	}
	return CalculationDTO{
		BaseAmount: money(c.BaseAmount),
		UnitUsage:  c.UnitUsage.String(),
		GST: GSTDTO{
			CGST:  money(c.GST.CGSTAmount),
			SGST:  money(c.GST.SGSTAmount),
			IGST:  money(c.GST.IGSTAmount),
			Total: money(c.GST.Total),
		},
		Charges:                charges,
		AdditionalChargesTotal: money(c.AdditionalChargesTotal),
		LateFee: LateFeeDTO{
			Applicable: c.LateFee.Applicable,
			Periods:    c.LateFee.Periods,
			GraceEnds:  c.LateFee.GraceEnds.String(),
			Amount:     money(c.LateFeeAmount),
		},
		TotalAmount: money(c.TotalAmount),
	}
}

type PaymentDTO struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	PaidAt    string `json:"paid_at"`
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// BillDTO represents a bill in API responses.
type BillDTO struct {
	ID           string         `json:"id"`
	BillNumber   string         `json:"bill_number"`
	Category     string         `json:"category"`
	HeadID       string         `json:"head_id"`
	HeadCode     string         `json:"head_code"`
	HeadName     string         `json:"head_name"`
	ResidentID   string         `json:"resident_id"`
	ResidentName string         `json:"resident_name"`
	Block        string         `json:"block"`
	Flat         string         `json:"flat"`
	Status       string         `json:"status"`
	IssueDate    string         `json:"issue_date"`
	DueDate      string         `json:"due_date"`
	Total        string         `json:"total"`
	Paid         string         `json:"paid"`
	Outstanding  string         `json:"outstanding"`
	Calculation  CalculationDTO `json:"calculation"`
	Payments     []PaymentDTO   `json:"payments"`
	CreatedAt    string         `json:"created_at,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
}

func toBillDTO(b *billing.Bill) BillDTO {
	payments := make([]PaymentDTO, len(b.Payments))
	for i, p := range b.Payments {
		payments[i] = PaymentDTO{
			ID:        p.ID,
			Amount:    money(p.Amount),
			PaidAt:    p.PaidAt.String(),
			Method:    p.Method,
			Reference: p.Reference,
		}
	}
	dto := BillDTO{
		ID:           b.ID,
		BillNumber:   b.BillNumber,
		Category:     b.Category,
		HeadID:       b.HeadID,
		HeadCode:     b.HeadCode,
		HeadName:     b.HeadName,
		ResidentID:   b.ResidentID,
		ResidentName: b.ResidentName,
		Block:        b.Block,
		Flat:         b.Flat,
		Status:       string(b.Status),
		IssueDate:    b.IssueDate.String(),
		DueDate:      b.DueDate.String(),
		Total:        money(b.Total()),
		Paid:         money(b.AmountPaid()),
		Outstanding:  money(b.Outstanding()),
		Calculation:  toCalculationDTO(b.Calculation),
		Payments:     payments,
	}
	if !b.CreatedAt.IsZero() {
		dto.CreatedAt = b.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// BULK RESPONSE
// =============================================================================

type BatchFailureDTO struct {
	Batch int    `json:"batch"`
	Size  int    `json:"size"`
	Error string `json:"error"`
}

type ItemFailureDTO struct {
	BillID     string `json:"bill_id"`
	ResidentID string `json:"resident_id"`
	Reason     string `json:"reason"`
}

type BulkResultDTO struct {
	Total         int               `json:"total"`
	SuccessCount  int               `json:"success_count"`
	FailedCount   int               `json:"failed_count"`
	Excluded      []ResidentDTO     `json:"excluded"`
	BatchFailures []BatchFailureDTO `json:"batch_failures"`
	ItemFailures  []ItemFailureDTO  `json:"item_failures"`
	Cancelled     bool              `json:"cancelled"`
	NotSubmitted  int               `json:"not_submitted"`
	HasWarnings   bool              `json:"has_warnings"`
	Warnings      []string          `json:"warnings,omitempty"`
}

func toBulkResultDTO(r billing.BulkResult) BulkResultDTO {
	dto := BulkResultDTO{
		Total:         r.Total,
		SuccessCount:  r.SuccessCount,
		FailedCount:   r.FailedCount,
		Excluded:      make([]ResidentDTO, len(r.Excluded)),
		BatchFailures: make([]BatchFailureDTO, len(r.BatchFailures)),
		ItemFailures:  make([]ItemFailureDTO, len(r.ItemFailures)),
		Cancelled:     r.Cancelled,
		NotSubmitted:  r.NotSubmitted,
		HasWarnings:   r.HasWarnings(),
	}
	for i, e := range r.Excluded {
		dto.Excluded[i] = toResidentDTO(e)
	}
	for i, f := range r.BatchFailures {
		dto.BatchFailures[i] = BatchFailureDTO{Batch: f.Batch, Size: f.Size, Error: f.Err.Error()}
	}
	for i, f := range r.ItemFailures {
		dto.ItemFailures[i] = ItemFailureDTO{BillID: f.BillID, ResidentID: f.ResidentID, Reason: f.Reason}
	}
	return dto
}

// =============================================================================
// STATEMENT RESPONSE
// =============================================================================

type BalanceDTO struct {
	Amount  string `json:"amount"`
	Side    string `json:"side"`
	Display string `json:"display"` // "1180.00 Dr"
}

func toBalanceDTO(b generic.Balance) BalanceDTO {
	side := b.Side
	if side == "" {
		side = generic.SideDebit
	}
	return BalanceDTO{Amount: money(b.Amount), Side: string(side), Display: b.String()}
}

type PostingDTO struct {
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	Role        string `json:"role,omitempty"`
}

type VoucherDTO struct {
	ID            string       `json:"id"`
	Ledger        string       `json:"ledger"`
	VoucherNumber string       `json:"voucher_number"`
	VoucherDate   string       `json:"voucher_date"`
	VoucherType   string       `json:"voucher_type"`
	Reference     string       `json:"reference,omitempty"`
	Narration     string       `json:"narration,omitempty"`
	Postings      []PostingDTO `json:"postings"`
}

func toVoucherDTO(v generic.Voucher) VoucherDTO {
	postings := make([]PostingDTO, len(v.Postings))
	for i, p := range v.Postings {
		postings[i] = PostingDTO{
			Type:        string(p.Type),
			Amount:      money(p.Amount),
			Description: p.Description,
			Role:        string(p.Role),
		}
	}
	return VoucherDTO{
		ID:            string(v.ID),
		Ledger:        string(v.Ledger),
		VoucherNumber: string(v.VoucherNumber),
		VoucherDate:   v.VoucherDate.String(),
		VoucherType:   string(v.VoucherType),
		Reference:     v.Reference,
		Narration:     v.Narration,
		Postings:      postings,
	}
}

// VoucherRequest posts a manual adjustment (Journal, Credit Note, Debit
// Note) into one leg.
type VoucherRequest struct {
	VoucherNumber string           `json:"voucher_number"`
	VoucherDate   string           `json:"voucher_date"`
	VoucherType   string           `json:"voucher_type"`
	Reference     string           `json:"reference"`
	Narration     string           `json:"narration"`
	Postings      []PostingRequest `json:"postings"`
}

type PostingRequest struct {
	Type        string `json:"type"`
	Amount      Amount `json:"amount"`
	Description string `json:"description"`
	Role        string `json:"role"`
}

type LedgerBalanceDTO struct {
	Category string     `json:"category"`
	Ledger   string     `json:"ledger"`
	AsOf     string     `json:"as_of"`
	Balance  BalanceDTO `json:"balance"`
}

type StatementRowDTO struct {
	Date          string     `json:"date"`
	VoucherNumber string     `json:"voucher_number"`
	VoucherType   string     `json:"voucher_type"`
	Reference     string     `json:"reference,omitempty"`
	Narration     string     `json:"narration,omitempty"`
	Debit         *string    `json:"debit"`  // null when the receivable leg is missing
	Credit        *string    `json:"credit"` // null when the income leg is missing
	Balance       BalanceDTO `json:"balance"`
	MissingLeg    string     `json:"missing_leg,omitempty"`
}

type StatementDTO struct {
	Category    string            `json:"category"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Opening     BalanceDTO        `json:"opening"`
	Closing     BalanceDTO        `json:"closing"`
	Rows        []StatementRowDTO `json:"rows"`
	TotalDebit  string            `json:"total_debit"`
	TotalCredit string            `json:"total_credit"`
	Skipped     int               `json:"skipped"`
}

func toStatementDTO(st *reconcile.Statement) StatementDTO {
	rows := make([]StatementRowDTO, len(st.Rows))
	for i, r := range st.Rows {
		rows[i] = StatementRowDTO{
			Date:          r.Date.String(),
			VoucherNumber: string(r.VoucherNumber),
			VoucherType:   string(r.VoucherType),
			Reference:     r.Reference,
			Narration:     r.Narration,
			Debit:         nullMoney(r.Debit),
			Credit:        nullMoney(r.Credit),
			Balance:       toBalanceDTO(r.Balance),
			MissingLeg:    string(r.MissingLeg),
		}
	}
	debit, credit := st.Totals()
	return StatementDTO{
		Category:    st.Category,
		From:        st.Period.Start.String(),
		To:          st.Period.End.String(),
		Opening:     toBalanceDTO(st.Opening),
		Closing:     toBalanceDTO(st.Closing),
		Rows:        rows,
		TotalDebit:  money(debit),
		TotalCredit: money(credit),
		Skipped:     st.Skipped,
	}
}

func nullMoney(n decimal.NullDecimal) *string {
	if !n.Valid {
		return nil
	}
	s := money(n.Decimal)
	return &s
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}
