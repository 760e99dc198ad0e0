package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway metrics
	RecordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_gateway_records_fetched_total",
			Help: "Total raw records fetched from the log store",
		},
		[]string{"source_type"},
	)

	GatewayRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_gateway_retries_total",
			Help: "Total transient backend errors retried",
		},
		[]string{"source_type"},
	)

	// Normalization metrics
	EventsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_events_normalized_total",
			Help: "Total records normalized into canonical events",
		},
		[]string{"source_type"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_records_skipped_total",
			Help: "Total malformed records skipped during normalization",
		},
		[]string{"source_type", "reason"},
	)

	UnplaceableEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_unplaceable_events_total",
			Help: "Total events excluded from correlation due to unparseable timestamps",
		},
		[]string{"source_type"},
	)

	// Correlation metrics
	ClustersEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_clusters_emitted_total",
			Help: "Total correlated clusters emitted",
		},
		[]string{"strategy"},
	)

	// Pipeline metrics
	IncidentsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_incidents_emitted_total",
			Help: "Total incident candidates emitted",
		},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kestrel_run_duration_seconds",
			Help:    "Duration of hunt runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_runs_total",
			Help: "Total hunt runs by final status",
		},
		[]string{"status"},
	)
)
