// Package metrics provides Prometheus instrumentation for the media converter.
//
// All metrics are promauto globals prefixed with "media_converter_" and are
// served by promhttp on METRICS_PORT.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal: requests by method, route template and status
//   - HTTPRequestDuration: request duration by method and route template
//   - HTTPRequestsInFlight: requests currently being processed
//   - UploadBytes: input size by category
//
// ## Conversion Metrics
//   - ConversionsTotal: by input category, output format and status
//   - ConversionDuration: end-to-end duration by category
//   - ConversionsInProgress: running conversions
//   - ConversionErrorsTotal: failures by error kind
//   - QualityFallbacksTotal: codecs resolved without a quality table entry
//
// ## Engine Metrics
//   - EngineRunsTotal: runs by engine, program and result
//   - EngineRunDuration: run duration by engine and program
//   - EngineProcessesActive: native processes currently running
//   - GIFStageDuration: time spent per GIF pipeline stage
//
// Engine metrics are recorded through the observer returned by
// [NewEngineObserver], which keeps the engine package free of Prometheus.
//
// ## PDF, Cache and Delivery Metrics
//   - PDFOperationsTotal, PDFOperationDuration
//   - CacheHits, CacheMisses, CacheEvictions, CacheEntries
//   - DeliveriesTotal, DeliveryDuration
//
// ## Filesystem Metrics
//   - FilesystemRetryAttempts, FilesystemRetrySuccess, FilesystemRetryFailures
//   - FilesystemStaleErrors, FilesystemRetryDuration
//
// These are recorded through [NewFilesystemObserver] for writes to shared
// output volumes.
//
// ## Usage and History Metrics
//   - DailyConversions, DailyBytes: counters for the current usage day
//   - HistoryRows, HistoryQueryTotal, HistoryQueryDuration
//
// ## Memory Metrics
//   - GoMemLimit, GoMemAllocBytes, GoMemSysBytes, GoGCRuns
//   - MemoryUsageRatio, MemoryPaused, MemoryReservedBytes, MemoryGCPauses
//
// # Initialization
//
// [InitializeMetrics] pre-populates the expected label sets so every series
// exists from the first scrape. [SetAppInfo] records build information.
//
// # Collector
//
// A [Collector] refreshes runtime and gauge metrics on an interval from a
// [StatsProvider]:
//
//	collector := metrics.NewCollector(metrics.StatsFunc(func() metrics.Stats {
//	    return metrics.Stats{HistoryRows: n}
//	}), time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
