package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// STATEMENT SERVICE - fetch both legs, then reconcile
// =============================================================================

// LegSource reads one ledger leg of a category. from may be the zero
// TimePoint, meaning "from the first voucher".
type LegSource interface {
	LoadLeg(ctx context.Context, ledger generic.LedgerID, category string, from, to generic.TimePoint) ([]generic.Voucher, error)
}

// StatementObserver is told about every statement request.
type StatementObserver interface {
	ObserveStatement(category string, rows int, elapsed time.Duration, err error)
}

type Service struct {
	Source     LegSource
	Reconciler Reconciler
	Observer   StatementObserver
	logger     *zap.Logger
}

func NewService(source LegSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Source: source, logger: logger}
}

// Statement fetches the income and receivable legs in parallel and
// reconciles them. Both legs are loaded from the beginning of history up
// to p.End so the opening balance can be derived. If either fetch fails
// the statement is not produced and a ReconciliationGapError is returned.
func (s *Service) Statement(ctx context.Context, category string, p generic.Period, opening generic.Balance) (*Statement, error) {
	started := time.Now()
	st, err := s.statement(ctx, category, p, opening)
	if s.Observer != nil {
		rows := 0
		if st != nil {
			rows = len(st.Rows)
		}
		s.Observer.ObserveStatement(category, rows, time.Since(started), err)
	}
	return st, err
}

func (s *Service) statement(ctx context.Context, category string, p generic.Period, opening generic.Balance) (*Statement, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var income, receivable []generic.Voucher
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(leg generic.LedgerID, dst *[]generic.Voucher) func() error {
		return func() error {
			vs, err := s.Source.LoadLeg(gctx, leg, category, generic.TimePoint{}, p.End)
			if err != nil {
				return &ReconciliationGapError{Category: category, Period: p, Leg: leg, Err: err}
			}
			*dst = vs
			return nil
		}
	}
	g.Go(fetch(generic.LedgerIncome, &income))
	g.Go(fetch(generic.LedgerReceivable, &receivable))
	if err := g.Wait(); err != nil {
		s.logger.Error("ledger leg fetch failed",
			zap.String("category", category),
			zap.String("period", p.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return s.Reconciler.Reconcile(ReconcileInput{
		Category:   category,
		Period:     p,
		Opening:    opening,
		Income:     income,
		Receivable: receivable,
	})
}
