package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analyzer call latency in milliseconds, per analyzer and outcome.
	AnalyzerCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyzer_call_latency_ms",
			Help:    "Model analyzer call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"analyzer", "status"},
	)

	// Per-email analysis outcomes.
	EmailsAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_analyzed_count",
			Help: "Total number of emails run through the analysis pipeline",
		},
		[]string{"status"}, // status: success, partial, failed
	)

	// Wall-clock duration of whole batch runs, in seconds.
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_batch_duration_seconds",
			Help:    "Batch run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		},
	)

	// Cumulative model spend in USD.
	ModelSpendUSD = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_spend_usd_total",
			Help: "Cumulative model spend in USD",
		},
	)

	// Review-queue request latency in seconds.
	QueueRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "review_queue_request_duration_seconds",
			Help:    "Review queue selection duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
)

func ObserveAnalyzerCall(analyzer, status string, duration time.Duration) {
	AnalyzerCallLatency.WithLabelValues(analyzer, status).Observe(float64(duration.Milliseconds()))
}

func IncrEmailAnalyzed(status string) {
	EmailsAnalyzed.WithLabelValues(status).Inc()
}

func ObserveBatchDuration(duration time.Duration) {
	BatchDuration.Observe(duration.Seconds())
}

func AddModelSpend(usd float64) {
	ModelSpendUSD.Add(usd)
}

func ObserveQueueRequest(duration time.Duration) {
	QueueRequestDuration.Observe(duration.Seconds())
}
