package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_sync_runs_total",
		Help: "Series syncs by outcome",
	}, []string{"outcome"})

	SourcesIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recall_sources_indexed_total",
		Help: "Meeting transcripts added to a series index",
	})

	SourceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recall_source_failures_total",
		Help: "Meeting transcripts that failed to index and will be retried",
	})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recall_search_duration_seconds",
		Help:    "Duration of similarity searches including query embedding",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recall_active_sessions",
		Help: "Live meeting sessions currently connected",
	})

	ResponsesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_responses_total",
		Help: "Assistant replies by kind",
	}, []string{"kind"})
)

// Sync outcomes
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// MetricsHandler serves the default prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
