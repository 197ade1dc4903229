package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scriptls_queue_depth",
		Help: "Modules waiting in each analysis stage queue.",
	}, []string{"stage"})

	TickBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptls_tick_batches_total",
		Help: "Scheduler batches processed, by stage.",
	}, []string{"stage"})

	TickGatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptls_tick_gated_total",
		Help: "Scheduler ticks skipped because the type database was not ready.",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scriptls_stage_seconds",
		Help:    "Time spent running one analysis stage on one module.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptls_stage_failures_total",
		Help: "Analyzer failures, by stage.",
	}, []string{"stage"})

	PromotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptls_promotions_total",
		Help: "On-demand module promotions for interactive requests.",
	})

	DebounceFiresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptls_debounce_fires_total",
		Help: "Edit debounce timers that fired and re-analysed a module.",
	})

	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptls_sweeps_total",
		Help: "Bulk sweeps started, by kind.",
	}, []string{"kind"})

	HostReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptls_host_reconnects_total",
		Help: "Connections opened to the host process.",
	})

	TypePartialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptls_type_partials_total",
		Help: "Type database snapshot chunks received from the host.",
	})

	TypeFinalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptls_type_finalize_total",
		Help: "Type database finalizations, by trigger.",
	}, []string{"trigger"})

	QueryStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptls_query_steps_total",
		Help: "Resumable query steps executed, by query kind.",
	}, []string{"kind"})

	DiagnosticsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptls_diagnostics_published_total",
		Help: "Diagnostic sets published to the editor.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptls_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	DiagnosticsWriteQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scriptls_diagnostics_write_queue_depth",
		Help: "Diagnostic sets waiting to be persisted.",
	})

	DiagnosticsWriteDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptls_diagnostics_write_dropped_total",
		Help: "Diagnostic sets dropped because the persistence queue was full.",
	})

	DiagnosticsWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptls_diagnostics_write_errors_total",
		Help: "Failed diagnostics persistence batches.",
	})

	DiagnosticsWriteFlushSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scriptls_diagnostics_write_flush_seconds",
		Help:    "Time spent persisting one batch of diagnostics.",
		Buckets: prometheus.DefBuckets,
	})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptls_lsp_requests_total",
		Help: "Editor requests by method and outcome.",
	}, []string{"method", "outcome"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scriptls_lsp_request_seconds",
		Help:    "Editor request latency by method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)
