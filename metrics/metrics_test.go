package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/reconcile"
)

var (
	_ billing.BatchObserver       = (*Metrics)(nil)
	_ reconcile.StatementObserver = (*Metrics)(nil)
)

func TestObserveBatch(t *testing.T) {
	m := New()

	m.ObserveBatch("utility", 20, 0, time.Second)
	m.ObserveBatch("utility", 20, 3, time.Second)
	m.ObserveBatch("utility", 5, 5, time.Second)

	body := scrape(t, m)
	assert.Contains(t, body, `billing_bulk_batches_total{status="ok"} 1`)
	assert.Contains(t, body, `billing_bulk_batches_total{status="partial"} 1`)
	assert.Contains(t, body, `billing_bulk_batches_total{status="failed"} 1`)
	assert.Contains(t, body, `billing_bills_total{category="utility",status="created"} 37`)
	assert.Contains(t, body, `billing_bills_total{category="utility",status="failed"} 8`)
}

func TestObserveStatement(t *testing.T) {
	m := New()

	m.ObserveStatement("amenity", 4, time.Millisecond, nil)
	m.ObserveStatement("amenity", 0, time.Millisecond, errors.New("leg down"))

	body := scrape(t, m)
	assert.Contains(t, body, `billing_statements_total{category="amenity",status="ok"} 1`)
	assert.Contains(t, body, `billing_statements_total{category="amenity",status="error"} 1`)
	assert.Contains(t, body, "billing_statement_duration_seconds_count 2")
}

func TestHandler(t *testing.T) {
	// GIVEN: two independent instances, which must not collide
	m := New()
	_ = New()
	m.ObservePayment()
	m.ObserveOverdue(2)

	body := scrape(t, m)

	assert.Contains(t, body, "billing_payments_total 1")
	assert.Contains(t, body, "billing_bills_overdue_total 2")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
