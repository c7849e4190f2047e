package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions      prometheus.Gauge
	sessionSaveDuration prometheus.Histogram
	sessionLoadDuration prometheus.Histogram
	sessionListDuration prometheus.Histogram
	sessionDeleteTotal  *prometheus.CounterVec

	bridgeRequestsTotal   *prometheus.CounterVec
	bridgeClientsGauge    prometheus.Gauge
	watcherEventsTotal    prometheus.Counter
	retentionSweepsTotal  prometheus.Counter
	retentionDeletedTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current persisted session count.",
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionListDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_list_duration_seconds",
					Help:    "Session list duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionDeleteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "session_delete_total",
					Help: "Total session deletions by status.",
				},
				[]string{"status"},
			),
			bridgeRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bridge_requests_total",
					Help: "Total bridge RPC requests by method and status.",
				},
				[]string{"method", "status"},
			),
			bridgeClientsGauge: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "bridge_clients",
					Help: "Currently connected bridge clients.",
				},
			),
			watcherEventsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "store_watcher_events_total",
					Help: "Total debounced store change notifications.",
				},
			),
			retentionSweepsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "retention_sweeps_total",
					Help: "Total retention sweeps executed.",
				},
			),
			retentionDeletedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "retention_deleted_total",
					Help: "Total sessions removed by retention sweeps.",
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionSaveDuration,
			m.sessionLoadDuration,
			m.sessionListDuration,
			m.sessionDeleteTotal,
			m.bridgeRequestsTotal,
			m.bridgeClientsGauge,
			m.watcherEventsTotal,
			m.retentionSweepsTotal,
			m.retentionDeletedTotal,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered forces metric registration. Safe to call from every
// constructor that records metrics.
func EnsureRegistered() {
	getMetrics()
}

// MetricsHandler exposes the default prometheus registry over HTTP.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// SetActiveSessions records the current persisted session count.
func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

// RecordSessionSave records one save and its duration.
func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

// RecordSessionLoad records one load and its duration.
func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

// RecordSessionList records one directory scan and its duration.
func RecordSessionList(duration time.Duration) {
	getMetrics().sessionListDuration.Observe(duration.Seconds())
}

// RecordSessionDelete records one delete attempt.
func RecordSessionDelete(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	getMetrics().sessionDeleteTotal.WithLabelValues(status).Inc()
}

// RecordBridgeRequest records one RPC dispatch.
func RecordBridgeRequest(method string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	getMetrics().bridgeRequestsTotal.WithLabelValues(method, status).Inc()
}

// SetBridgeClients records the connected client count.
func SetBridgeClients(count int) {
	getMetrics().bridgeClientsGauge.Set(float64(count))
}

// RecordWatcherEvent records one debounced store change notification.
func RecordWatcherEvent() {
	getMetrics().watcherEventsTotal.Inc()
}

// RecordRetentionSweep records one sweep and how many sessions it removed.
func RecordRetentionSweep(deleted int) {
	m := getMetrics()
	m.retentionSweepsTotal.Inc()
	m.retentionDeletedTotal.Add(float64(deleted))
}
