package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "sensorfleet_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRows    *prometheus.CounterVec
	ingestLatency *prometheus.HistogramVec

	decodeWarnings *prometheus.CounterVec
	deadLetters    prometheus.Counter

	scanRuns    *prometheus.CounterVec
	scanLatency *prometheus.HistogramVec

	alertTransitions *prometheus.CounterVec

	auditWriteFailures prometheus.Counter
)

// Init registers service metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ingestRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_rows_total",
				Help: "Ingested payload rows by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest batch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		decodeWarnings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decode_warnings_total",
				Help: "Decoder warnings by sensor class",
			},
			[]string{"class"},
		)
		deadLetters = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "dead_letters_total",
				Help: "Payloads redirected to the dead-letter sink",
			},
		)

		scanRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_scans_total",
				Help: "Alert scan runs by result",
			},
			[]string{"result"},
		)
		scanLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "alert_scan_latency_seconds",
				Help:    "Alert scan latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		alertTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_transitions_total",
				Help: "Alert lifecycle transitions by action",
			},
			[]string{"action"},
		)

		auditWriteFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "audit_write_failures_total",
				Help: "Swallowed audit write failures",
			},
		)

		prometheus.MustRegister(
			ingestRows,
			ingestLatency,
			decodeWarnings,
			deadLetters,
			scanRuns,
			scanLatency,
			alertTransitions,
			auditWriteFailures,
		)
	})
}

// IncIngestRow counts one ingested row by result.
func IncIngestRow(result string) {
	if ingestRows == nil {
		return
	}
	ingestRows.WithLabelValues(result).Inc()
}

// ObserveIngestLatency records ingest batch latency.
func ObserveIngestLatency(result string, duration time.Duration) {
	if ingestLatency == nil {
		return
	}
	ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// IncDecodeWarning counts decoder warnings for a sensor class.
func IncDecodeWarning(class string, count int) {
	if decodeWarnings == nil || count <= 0 {
		return
	}
	decodeWarnings.WithLabelValues(class).Add(float64(count))
}

// IncDeadLetter counts one dead-lettered payload.
func IncDeadLetter() {
	if deadLetters == nil {
		return
	}
	deadLetters.Inc()
}

// IncScan counts one scan run by result.
func IncScan(result string) {
	if scanRuns == nil {
		return
	}
	scanRuns.WithLabelValues(result).Inc()
}

// ObserveScanLatency records scan latency.
func ObserveScanLatency(result string, duration time.Duration) {
	if scanLatency == nil {
		return
	}
	scanLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// IncAlertTransition counts one alert transition by action.
func IncAlertTransition(action string) {
	if alertTransitions == nil {
		return
	}
	alertTransitions.WithLabelValues(action).Inc()
}

// IncAuditWriteFailure counts one swallowed audit write failure.
func IncAuditWriteFailure() {
	if auditWriteFailures == nil {
		return
	}
	auditWriteFailures.Inc()
}
