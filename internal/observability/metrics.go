package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fitbit_alerts"

var (
	evaluationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "evaluations_total",
		Help:      "Number of (user, reference date) evaluations by outcome.",
	}, []string{"outcome"})

	evaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "evaluation_duration_seconds",
		Help:      "Wall time of one evaluation including alert persistence.",
		Buckets:   prometheus.DefBuckets,
	})

	alertCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "alerts_persisted_total",
		Help:      "Number of alerts persisted grouped by type and priority.",
	}, []string{"alert_type", "priority"})

	ruleSkipCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rule_skips_total",
		Help:      "Number of silent rule skips grouped by rule and reason.",
	}, []string{"rule", "reason"})

	streamMessageCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "stream_messages_total",
		Help:      "Number of evaluation requests read from the stream by result.",
	}, []string{"result"})

	lastTickGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "last_tick_timestamp_seconds",
		Help:      "Unix timestamp of the most recent scheduler batch.",
	})

	ingestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "requests_total",
		Help:      "Number of wearable API requests by resource and status.",
	}, []string{"resource", "status"})

	notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "notifications_total",
		Help:      "Number of alert notifications published by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		evaluationCounter,
		evaluationDuration,
		alertCounter,
		ruleSkipCounter,
		streamMessageCounter,
		lastTickGauge,
		ingestCounter,
		notificationCounter,
	)
}

// RecordEvaluation counts one evaluation; outcome is "alerted", "quiet" or "failed".
func RecordEvaluation(outcome string, elapsed time.Duration) {
	evaluationCounter.WithLabelValues(outcome).Inc()
	evaluationDuration.Observe(elapsed.Seconds())
}

// RecordAlert counts one persisted alert.
func RecordAlert(alertType, priority string) {
	alertCounter.WithLabelValues(alertType, priority).Inc()
}

// RecordRuleSkip counts a silent skip (insufficient_data, degenerate_baseline, ...).
func RecordRuleSkip(rule, reason string) {
	ruleSkipCounter.WithLabelValues(rule, reason).Inc()
}

// RecordStreamMessage counts a consumed evaluation request.
func RecordStreamMessage(result string) {
	streamMessageCounter.WithLabelValues(result).Inc()
}

// RecordSchedulerTick updates the scheduler watermark.
func RecordSchedulerTick(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastTickGauge.Set(float64(ts.Unix()))
}

// RecordIngestRequest counts one wearable API call.
func RecordIngestRequest(resource string, status int) {
	ingestCounter.WithLabelValues(resource, statusClass(status)).Inc()
}

// RecordNotification counts one notifier publish attempt.
func RecordNotification(result string) {
	notificationCounter.WithLabelValues(result).Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
