package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leasekeeper_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leasekeeper_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	agreementsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leasekeeper_agreements_created_total",
		Help: "Completed agreements written, by result",
	}, []string{"result"})

	workingCopyCleanups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leasekeeper_working_copy_cleanups_total",
		Help: "Working copy removals after an agreement run, by result",
	}, []string{"result"})

	paymentsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leasekeeper_payments_settled_total",
		Help: "Mark-paid and unmark-paid calls, by action and result",
	}, []string{"action", "result"})

	ledgerExports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leasekeeper_exports_total",
		Help: "Rendered exports, by document kind and format",
	}, []string{"kind", "format"})

	activeLeases = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leasekeeper_active_leases",
		Help: "Number of active leases at the last refresh",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func ObserveAgreement(result string) {
	agreementsCreated.WithLabelValues(result).Inc()
}

func ObserveCleanup(result string) {
	workingCopyCleanups.WithLabelValues(result).Inc()
}

// ObserveSettlement counts a payment action; action is "pay" or "unpay" and
// result is "ok", "noop" or "error".
func ObserveSettlement(action, result string) {
	paymentsSettled.WithLabelValues(action, result).Inc()
}

func ObserveExport(kind, format string) {
	ledgerExports.WithLabelValues(kind, format).Inc()
}

// SetActiveLeases sets the active lease gauge.
func SetActiveLeases(count int) {
	if count < 0 {
		count = 0
	}
	activeLeases.Set(float64(count))
}
