package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_converter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	UploadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_converter_upload_bytes",
			Help:    "Size of uploaded conversion inputs in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
		[]string{"category"},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_conversions_total",
			Help: "Total number of conversions by input category, output format and status",
		},
		[]string{"category", "output", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_converter_conversion_duration_seconds",
			Help:    "End-to-end conversion duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"category"},
	)

	ConversionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_conversions_in_progress",
			Help: "Number of conversions currently running",
		},
	)

	ConversionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_conversion_errors_total",
			Help: "Total number of failed conversions by error kind",
		},
		[]string{"kind"},
	)

	QualityFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_quality_fallbacks_total",
			Help: "Codecs resolved without a quality table entry",
		},
		[]string{"codec"},
	)
)

// Engine metrics
var (
	EngineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_engine_runs_total",
			Help: "Total number of engine invocations by engine, program and result",
		},
		[]string{"engine", "program", "result"},
	)

	EngineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_converter_engine_run_duration_seconds",
			Help:    "Engine invocation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"engine", "program"},
	)

	EngineProcessesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_engine_processes_active",
			Help: "Number of engine processes currently running",
		},
	)

	GIFStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_converter_gif_stage_duration_seconds",
			Help:    "Duration of each GIF pipeline stage in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"}, // "frames", "palettegen", "paletteuse", "compact", "optimize"
	)
)

// PDF metrics
var (
	PDFOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_pdf_operations_total",
			Help: "Total number of PDF operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	PDFOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_converter_pdf_operation_duration_seconds",
			Help:    "PDF operation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)
)

// Result cache metrics
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_converter_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_converter_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_converter_cache_evictions_total",
			Help: "Total number of expired result cache entries removed",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_cache_entries",
			Help: "Number of entries in the result cache",
		},
	)
)

// Delivery metrics
var (
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_deliveries_total",
			Help: "Total number of output deliveries by backend and status",
		},
		[]string{"backend", "status"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_converter_delivery_duration_seconds",
			Help:    "Output delivery duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend"},
	)
)

// Filesystem retry metrics, labeled by operation and volume
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_filesystem_retry_attempts_total",
			Help: "Retries after NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_filesystem_stale_errors_total",
			Help: "ESTALE errors seen",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_converter_filesystem_retry_duration_seconds",
			Help:    "Duration of retried filesystem operations including backoff",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// Usage and history metrics
var (
	DailyConversions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_daily_conversions",
			Help: "Conversions counted for the current day",
		},
	)

	DailyBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_daily_bytes",
			Help: "Input bytes counted for the current day",
		},
	)

	HistoryRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_history_rows",
			Help: "Number of rows in the conversion history",
		},
	)

	HistoryQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_converter_history_query_duration_seconds",
			Help:    "Conversion history query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	HistoryQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_converter_history_queries_total",
			Help: "Total number of conversion history queries",
		},
		[]string{"operation", "status"},
	)
)

// Memory metrics
var (
	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_go_memlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes",
		},
	)

	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_go_mem_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	GoMemSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_go_mem_sys_bytes",
			Help: "Total bytes of memory obtained from the OS",
		},
	)

	GoGCRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_go_gc_runs",
			Help: "Number of completed GC cycles",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_memory_usage_ratio",
			Help: "Memory usage as a ratio of the configured limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_memory_paused",
			Help: "Whether conversions are refused due to memory pressure (1 = paused)",
		},
	)

	MemoryReservedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_converter_memory_reserved_bytes",
			Help: "Input bytes held by admitted conversions",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_converter_memory_gc_pauses_total",
			Help: "Number of times conversions were paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_converter_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version", "engine"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion, engine string) {
	AppInfo.WithLabelValues(version, commit, goVersion, engine).Set(1)
}
