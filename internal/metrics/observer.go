package metrics

import (
	"media-converter/internal/engine"
	"media-converter/internal/filesystem"
)

// engineObserver implements engine.Observer using the Prometheus
// metrics declared in this package.
type engineObserver struct{}

// NewEngineObserver creates an observer that records engine runs into the
// counters and histograms declared in metrics.go.
func NewEngineObserver() engine.Observer {
	return &engineObserver{}
}

func (o *engineObserver) ObserveRun(engineName, program string, durationSeconds float64, kind engine.ErrorKind) {
	EngineRunDuration.WithLabelValues(engineName, program).Observe(durationSeconds)

	result := "success"
	switch kind {
	case "":
	case engine.KindEngineTimeout:
		result = "timeout"
	default:
		result = "failure"
	}
	EngineRunsTotal.WithLabelValues(engineName, program, result).Inc()
}

func (o *engineObserver) ObserveProcesses(delta int) {
	EngineProcessesActive.Add(float64(delta))
}

// filesystemObserver implements filesystem.Observer using the Prometheus
// metrics declared in this package.
type filesystemObserver struct{}

// NewFilesystemObserver creates an observer that records filesystem retries.
func NewFilesystemObserver() filesystem.Observer {
	return &filesystemObserver{}
}

func (o *filesystemObserver) ObserveRetryAttempt(retryOp, volume string) {
	FilesystemRetryAttempts.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetrySuccess(retryOp, volume string) {
	FilesystemRetrySuccess.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryFailure(retryOp, volume string) {
	FilesystemRetryFailures.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryDuration(retryOp, volume string, durationSeconds float64) {
	FilesystemRetryDuration.WithLabelValues(retryOp, volume).Observe(durationSeconds)
}

func (o *filesystemObserver) ObserveStaleError(retryOp, volume string) {
	FilesystemStaleErrors.WithLabelValues(retryOp, volume).Inc()
}
