package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/reconcile"
)

type fakeLegSource struct {
	mu    sync.Mutex
	legs  map[generic.LedgerID][]generic.Voucher
	fail  map[generic.LedgerID]error
	calls []generic.LedgerID
}

func (f *fakeLegSource) LoadLeg(_ context.Context, ledger generic.LedgerID, _ string, _, _ generic.TimePoint) ([]generic.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ledger)
	if err := f.fail[ledger]; err != nil {
		return nil, err
	}
	return f.legs[ledger], nil
}

type statementCounter struct {
	calls int
	err   error
}

func (c *statementCounter) ObserveStatement(_ string, _ int, _ time.Duration, err error) {
	c.calls++
	c.err = err
}

func TestService_StatementFetchesBothLegs(t *testing.T) {
	src := &fakeLegSource{legs: map[generic.LedgerID][]generic.Voucher{
		generic.LedgerIncome:     {incomeVoucher("V100", oct(5), "1180")},
		generic.LedgerReceivable: {receivableVoucher("V100", oct(5), "1180")},
	}}
	svc := reconcile.NewService(src, nil)
	obs := &statementCounter{}
	svc.Observer = obs

	st, err := svc.Statement(context.Background(), "utility", october(), generic.ZeroBalance())

	require.NoError(t, err)
	require.Len(t, st.Rows, 1)
	assert.ElementsMatch(t, []generic.LedgerID{generic.LedgerIncome, generic.LedgerReceivable}, src.calls)
	assert.Equal(t, 1, obs.calls)
	assert.NoError(t, obs.err)
}

func TestService_LegFailureIsAGap(t *testing.T) {
	// GIVEN: the receivable leg cannot be fetched
	boom := errors.New("receivable service unavailable")
	src := &fakeLegSource{
		legs: map[generic.LedgerID][]generic.Voucher{
			generic.LedgerIncome: {incomeVoucher("V100", oct(5), "1180")},
		},
		fail: map[generic.LedgerID]error{generic.LedgerReceivable: boom},
	}
	svc := reconcile.NewService(src, nil)
	obs := &statementCounter{}
	svc.Observer = obs

	// WHEN
	st, err := svc.Statement(context.Background(), "utility", october(), generic.ZeroBalance())

	// THEN: no partial statement, the gap is surfaced
	assert.Nil(t, st)
	assert.ErrorIs(t, err, reconcile.ErrReconciliationGap)
	assert.ErrorIs(t, err, boom)
	var gap *reconcile.ReconciliationGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, generic.LedgerReceivable, gap.Leg)
	assert.Equal(t, 1, obs.calls)
	assert.Error(t, obs.err)
}

func TestService_InvalidPeriodSkipsFetch(t *testing.T) {
	src := &fakeLegSource{}

	_, err := reconcile.NewService(src, nil).Statement(context.Background(), "utility",
		generic.Period{Start: oct(10), End: oct(1)}, generic.ZeroBalance())

	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
	assert.Empty(t, src.calls)
}
