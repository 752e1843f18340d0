package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles billing metrics. Collectors live on their own registry
// so several instances can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	BillsTotal        *prometheus.CounterVec
	BatchesTotal      *prometheus.CounterVec
	BatchDuration     prometheus.Histogram
	PaymentsTotal     prometheus.Counter
	OverdueTotal      prometheus.Counter
	StatementsTotal   *prometheus.CounterVec
	StatementDuration prometheus.Histogram
}

// New constructs and registers metrics.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		BillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_bills_total",
				Help: "Bills submitted by category and outcome",
			},
			[]string{"category", "status"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_bulk_batches_total",
				Help: "Bulk generation batches by outcome",
			},
			[]string{"status"},
		),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_bulk_batch_duration_seconds",
			Help:    "Bulk batch submission duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		PaymentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_payments_total",
			Help: "Payments recorded",
		}),
		OverdueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_bills_overdue_total",
			Help: "Bills moved to overdue by the sweeper",
		}),
		StatementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_statements_total",
				Help: "Reconciled statements by category and outcome",
			},
			[]string{"category", "status"},
		),
		StatementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_statement_duration_seconds",
			Help:    "Statement fetch and reconcile duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.Registry.MustRegister(
		m.BillsTotal,
		m.BatchesTotal,
		m.BatchDuration,
		m.PaymentsTotal,
		m.OverdueTotal,
		m.StatementsTotal,
		m.StatementDuration,
	)
	return m
}

// ObserveBatch records one bulk batch. size is the number of bills in the
// batch; failed counts the ones that were not created.
func (m *Metrics) ObserveBatch(category string, size, failed int, elapsed time.Duration) {
	status := "ok"
	switch {
	case failed >= size:
		status = "failed"
	case failed > 0:
		status = "partial"
	}
	m.BatchesTotal.WithLabelValues(status).Inc()
	m.BatchDuration.Observe(elapsed.Seconds())
	m.BillsTotal.WithLabelValues(category, "created").Add(float64(size - failed))
	m.BillsTotal.WithLabelValues(category, "failed").Add(float64(failed))
}

// ObserveBill records a single bill submission.
func (m *Metrics) ObserveBill(category string, err error) {
	status := "created"
	if err != nil {
		status = "failed"
	}
	m.BillsTotal.WithLabelValues(category, status).Inc()
}

func (m *Metrics) ObservePayment() { m.PaymentsTotal.Inc() }

func (m *Metrics) ObserveOverdue(n int) { m.OverdueTotal.Add(float64(n)) }

func (m *Metrics) ObserveStatement(category string, rows int, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StatementsTotal.WithLabelValues(category, status).Inc()
	m.StatementDuration.Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
