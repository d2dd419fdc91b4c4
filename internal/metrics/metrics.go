package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "settlement"

// Metrics holds the settlement engine's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SalesCreated       *prometheus.CounterVec
	Refunds            *prometheus.CounterVec
	RefundAmount       prometheus.Counter
	MoneyBoxTxns       *prometheus.CounterVec
	SettlementFailures *prometheus.CounterVec
	SettlementDuration *prometheus.HistogramVec
	DebtsMarkedOverdue prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.SalesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sales_created_total",
		Help:      "Sale invoices created",
	}, []string{"payment_type"})

	m.Refunds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refunds_total",
		Help:      "Refunds processed by resulting refund status",
	}, []string{"refund_status"})

	m.RefundAmount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refund_amount_total",
		Help:      "Sum of refund totals in invoice currency",
	})

	m.MoneyBoxTxns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "money_box_transactions_total",
		Help:      "Cash-box transactions appended",
	}, []string{"type"})

	m.SettlementFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_failures_total",
		Help:      "Failed settlement operations by error code",
	}, []string{"operation", "code"})

	m.SettlementDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "settlement_duration_seconds",
		Help:      "Duration of settlement operations",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation"})

	m.DebtsMarkedOverdue = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "debts_marked_overdue_total",
		Help:      "Debts flipped to OVERDUE by the sweep",
	})

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SalesCreated,
		m.Refunds,
		m.RefundAmount,
		m.MoneyBoxTxns,
		m.SettlementFailures,
		m.SettlementDuration,
		m.DebtsMarkedOverdue,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveOperation records the duration of one settlement operation and,
// when code is non-empty, a failure with that error code.
func (m *Metrics) ObserveOperation(operation string, started time.Time, code string) {
	if m == nil {
		return
	}
	m.SettlementDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if code != "" {
		m.SettlementFailures.WithLabelValues(operation, code).Inc()
	}
}

func (m *Metrics) RecordSale(paymentType string) {
	if m == nil {
		return
	}
	m.SalesCreated.WithLabelValues(paymentType).Inc()
}

func (m *Metrics) RecordRefund(status string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.Refunds.WithLabelValues(status).Inc()
	m.RefundAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) RecordMoneyBoxTransaction(txType string) {
	if m == nil {
		return
	}
	m.MoneyBoxTxns.WithLabelValues(txType).Inc()
}

func (m *Metrics) RecordOverdue(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DebtsMarkedOverdue.Add(float64(n))
}
