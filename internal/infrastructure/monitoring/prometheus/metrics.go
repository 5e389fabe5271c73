package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds the plugin metric families. It satisfies the metrics
// ports of the prediction and deepsearch services.
type AppMetrics struct {
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	RXNAttemptsTotal  CounterVec
	RXNCacheLookups   CounterVec
	RXNBatchesTotal   CounterVec
	RXNBatchReactions CounterVec

	DSQueriesTotal  CounterVec
	DSQueryDuration HistogramVec

	HealthCheckStatus GaugeVec
}

var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultQueryDurationBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
)

// NewAppMetrics registers the HTTP, RXN, Deep Search and health metrics on
// collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	m.RXNAttemptsTotal = collector.RegisterCounter("rxn_attempts_total", "RXN submit and poll attempts", "stage", "status")
	m.RXNCacheLookups = collector.RegisterCounter("rxn_cache_lookups_total", "Prediction cache lookups", "result")
	m.RXNBatchesTotal = collector.RegisterCounter("rxn_batches_total", "Batch forward predictions", "outcome")
	m.RXNBatchReactions = collector.RegisterCounter("rxn_batch_reactions_total", "Reactions handled by batch predictions", "kind")

	m.DSQueriesTotal = collector.RegisterCounter("deepsearch_queries_total", "Deep Search queries", "operation", "status")
	m.DSQueryDuration = collector.RegisterHistogram("deepsearch_query_duration_seconds", "Deep Search query duration", DefaultQueryDurationBuckets, "operation")

	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	return m
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveAttempt counts one submit or poll attempt.
func (m *AppMetrics) ObserveAttempt(stage string, ok bool) {
	m.RXNAttemptsTotal.WithLabelValues(stage, status(ok)).Inc()
}

func (m *AppMetrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RXNCacheLookups.WithLabelValues(result).Inc()
}

// ObserveBatch counts a finished batch and how its reactions were served.
func (m *AppMetrics) ObserveBatch(outcome string, invalid, cached, fresh int) {
	m.RXNBatchesTotal.WithLabelValues(outcome).Inc()
	m.RXNBatchReactions.WithLabelValues("invalid").Add(float64(invalid))
	m.RXNBatchReactions.WithLabelValues("cached").Add(float64(cached))
	m.RXNBatchReactions.WithLabelValues("fresh").Add(float64(fresh))
}

// ObserveQuery records a Deep Search operation and its duration.
func (m *AppMetrics) ObserveQuery(op string, d time.Duration, ok bool) {
	m.DSQueriesTotal.WithLabelValues(op, status(ok)).Inc()
	m.DSQueryDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *AppMetrics) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// SetHealth sets the component gauge to 1 when up and 0 otherwise.
func (m *AppMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}
