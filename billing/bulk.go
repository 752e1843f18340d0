/*
bulk.go - Bulk bill generation

PURPOSE:
  Issues one bill head to many residents in one operator-initiated run.
  Generation is best-effort: a failed batch is counted and reported, and
  the run moves on. Already-submitted batches are never rolled back.

FLOW:
  1. Filter the roster by scope (all / block / floor)
  2. Exclude residents without both block and flat (reported, not defaulted)
  3. Assemble one bill per eligible resident. A calculation error aborts
     the run here, before anything is submitted.
  4. Partition into batches of BatchSize (default 20)
  5. Submit batches one at a time, in order

ITERATION:
  run, err := batcher.Start(req, roster)
  for {
      progress, ok := run.Next(ctx)
      if !ok { break }
      // progress.Percent grows monotonically
  }
  result := run.Result()

  Cancellation means "stop pulling". A cancelled context is observed only
  at batch boundaries; a batch in flight is allowed to finish.

SEE ALSO:
  - store/sqlite/bills.go: BatchSubmitter implementation
  - api/handlers.go: HTTP 207 when the result has warnings
*/
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/generic"
)

const DefaultBatchSize = 20

// =============================================================================
// RESIDENTS AND SCOPE
// =============================================================================

type Resident struct {
	ID    string
	Name  string
	Block string
	Flat  string
	Floor int
}

// HasAddress reports whether both block and flat are assigned.
func (r Resident) HasAddress() bool {
	return r.Block != "" && r.Flat != ""
}

type ScopeKind string

const (
	ScopeKindAll   ScopeKind = "all"
	ScopeKindBlock ScopeKind = "block"
	ScopeKindFloor ScopeKind = "floor"
)

type Scope struct {
	Kind  ScopeKind
	Block string
	Floor int
}

func ScopeAll() Scope                      { return Scope{Kind: ScopeKindAll} }
func ScopeBlock(block string) Scope        { return Scope{Kind: ScopeKindBlock, Block: block} }
func ScopeFloor(block string, f int) Scope { return Scope{Kind: ScopeKindFloor, Block: block, Floor: f} }

func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeKindAll, "":
		return nil
	case ScopeKindBlock, ScopeKindFloor:
		if s.Block == "" {
			return invalid("scope.block", "required for %s scope", s.Kind)
		}
		return nil
	}
	return invalid("scope.kind", "unknown scope %q", s.Kind)
}

func (s Scope) Matches(r Resident) bool {
	switch s.Kind {
	case ScopeKindBlock:
		return r.Block == s.Block
	case ScopeKindFloor:
		return r.Block == s.Block && r.Floor == s.Floor
	default:
		return true
	}
}

// =============================================================================
// SUBMISSION CONTRACT
// =============================================================================

// BatchSubmitter persists one batch and partitions it into successes and
// failures. An error return means the whole batch failed.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, bills []*Bill) (BatchResult, error)
}

type BatchResult struct {
	Succeeded []string // bill ids
	Failed    []ItemFailure
}

type ItemFailure struct {
	BillID     string
	ResidentID string
	Reason     string
}

// BatchObserver receives one callback per submitted batch.
type BatchObserver interface {
	ObserveBatch(category string, size, failed int, elapsed time.Duration)
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

type BulkRequest struct {
	Spec  BillHeadSpec
	Usage UsageInput

	// UsageByResident overrides Usage.UnitUsage per resident id
	UsageByResident map[string]decimal.Decimal

	Charges   []AdditionalCharge
	IssueDate generic.TimePoint
	DueDate   generic.TimePoint
	Scope     Scope
}

type BatchFailure struct {
	Batch int // 1-based
	Size  int
	Err   error
}

// Progress is emitted after each completed batch.
type Progress struct {
	Batch        int // 1-based, the batch just completed
	TotalBatches int
	Succeeded    int // running totals
	Failed       int
	Percent      float64 // completed batches / total batches * 100
	BatchErr     error   // non-nil when this batch failed as a whole
}

type BulkResult struct {
	Total         int // eligible residents
	SuccessCount  int
	FailedCount   int
	Excluded      []Resident
	BatchFailures []BatchFailure
	ItemFailures  []ItemFailure
	Cancelled     bool
	NotSubmitted  int
}

// HasWarnings reports a state distinct from full success.
func (r BulkResult) HasWarnings() bool {
	return r.FailedCount > 0 || r.Cancelled
}

// =============================================================================
// BULK BATCHER
// =============================================================================

type BulkBatcher struct {
	Assembler *BillAssembler
	Submitter BatchSubmitter
	BatchSize int
	Observer  BatchObserver
	logger    *zap.Logger
}

func NewBulkBatcher(submitter BatchSubmitter, logger *zap.Logger) *BulkBatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkBatcher{
		Assembler: NewBillAssembler(),
		Submitter: submitter,
		BatchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// Start assembles every bill and returns a run positioned before the
// first batch. Nothing is submitted yet.
func (b *BulkBatcher) Start(req BulkRequest, roster []Resident) (*BulkRun, error) {
	if b.Submitter == nil {
		return nil, errors.New("bulk batcher has no submitter")
	}
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}
	if err := req.Spec.Validate(); err != nil {
		return nil, err
	}

	var eligible, excluded []Resident
	for _, r := range roster {
		if !req.Scope.Matches(r) {
			continue
		}
		if !r.HasAddress() {
			excluded = append(excluded, r)
			continue
		}
		eligible = append(eligible, r)
	}

	bills := make([]*Bill, 0, len(eligible))
	for _, r := range eligible {
		usage := req.Usage
		if u, ok := req.UsageByResident[r.ID]; ok {
			usage.UnitUsage = decimal.NewNullDecimal(u)
		}
		calc, err := b.Assembler.Assemble(AssemblyInput{
			Spec:      req.Spec,
			Usage:     usage,
			Charges:   req.Charges,
			IssueDate: req.IssueDate,
			DueDate:   req.DueDate,
		})
		if err != nil {
			return nil, err
		}
		bills = append(bills, NewBill(req.Spec, BillIdentity{Resident: r}, calc, req.IssueDate, req.DueDate))
	}

	size := b.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	return &BulkRun{
		batcher:  b,
		category: req.Spec.Category,
		batches:  partition(bills, size),
		result:   BulkResult{Total: len(bills), Excluded: excluded},
	}, nil
}

// Run drives a run to completion, calling onProgress after each batch.
func (b *BulkBatcher) Run(ctx context.Context, req BulkRequest, roster []Resident, onProgress func(Progress)) (BulkResult, error) {
	run, err := b.Start(req, roster)
	if err != nil {
		return BulkResult{}, err
	}
	for {
		p, ok := run.Next(ctx)
		if !ok {
			break
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
	return run.Result(), nil
}

func partition(bills []*Bill, size int) [][]*Bill {
	var batches [][]*Bill
	for start := 0; start < len(bills); start += size {
		end := min(start+size, len(bills))
		batches = append(batches, bills[start:end])
	}
	return batches
}

// =============================================================================
// BULK RUN - iterator over batches
// =============================================================================

type BulkRun struct {
	batcher  *BulkBatcher
	category string
	batches  [][]*Bill
	next     int
	done     bool
	result   BulkResult
}

func (r *BulkRun) TotalBatches() int { return len(r.batches) }

// Next submits the next batch and reports progress. It returns false
// when every batch has been submitted or ctx was cancelled before the
// next batch started.
func (r *BulkRun) Next(ctx context.Context) (Progress, bool) {
	if r.done {
		return Progress{}, false
	}
	if r.next >= len(r.batches) {
		r.done = true
		return Progress{}, false
	}
	if ctx.Err() != nil {
		r.cancel()
		return Progress{}, false
	}

	idx := r.next
	batch := r.batches[idx]
	r.next++

	started := time.Now()
	res, err := r.batcher.Submitter.SubmitBatch(ctx, batch)
	elapsed := time.Since(started)

	log := r.batcher.logger.With(
		zap.String("category", r.category),
		zap.Int("batch", idx+1),
		zap.Int("total_batches", len(r.batches)),
		zap.Int("size", len(batch)),
	)

	p := Progress{Batch: idx + 1, TotalBatches: len(r.batches)}
	failed := 0
	if err != nil {
		terr := &TransportError{Batch: idx + 1, Size: len(batch), Err: err}
		r.result.BatchFailures = append(r.result.BatchFailures, BatchFailure{Batch: idx + 1, Size: len(batch), Err: terr})
		failed = len(batch)
		p.BatchErr = terr
		log.Warn("bulk batch failed", zap.Error(err), zap.Duration("elapsed", elapsed))
	} else {
		succeeded := min(len(res.Succeeded), len(batch))
		failed = len(batch) - succeeded
		r.result.SuccessCount += succeeded
		r.result.ItemFailures = append(r.result.ItemFailures, res.Failed...)
		log.Info("bulk batch submitted",
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
			zap.Duration("elapsed", elapsed),
		)
	}
	r.result.FailedCount += failed

	if obs := r.batcher.Observer; obs != nil {
		obs.ObserveBatch(r.category, len(batch), failed, elapsed)
	}

	p.Succeeded = r.result.SuccessCount
	p.Failed = r.result.FailedCount
	p.Percent = float64(idx+1) / float64(len(r.batches)) * 100
	if r.next >= len(r.batches) {
		r.done = true
	}
	return p, true
}

func (r *BulkRun) cancel() {
	r.done = true
	r.result.Cancelled = true
	for _, batch := range r.batches[r.next:] {
		r.result.NotSubmitted += len(batch)
	}
	r.batcher.logger.Info("bulk run cancelled",
		zap.String("category", r.category),
		zap.Int("completed_batches", r.next),
		zap.Int("not_submitted", r.result.NotSubmitted),
	)
}

// Result returns the accumulated outcome so far.
func (r *BulkRun) Result() BulkResult {
	out := r.result
	out.Excluded = append([]Resident(nil), r.result.Excluded...)
	out.BatchFailures = append([]BatchFailure(nil), r.result.BatchFailures...)
	out.ItemFailures = append([]ItemFailure(nil), r.result.ItemFailures...)
	return out
}
