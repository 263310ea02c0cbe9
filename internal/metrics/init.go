package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(engineName string) {
	// --- Conversions by category ---
	for _, c := range []string{"video", "audio", "image"} {
		ConversionDuration.WithLabelValues(c)
		UploadBytes.WithLabelValues(c)
	}

	// --- Error kinds ---
	for _, k := range []string{"UnsupportedFormat", "InvalidOption", "EngineTimeout",
		"UnsupportedCodecCombination", "CorruptInput", "EmptyOutput", "GenericEngineFailure"} {
		ConversionErrorsTotal.WithLabelValues(k)
	}

	// --- Engine runs ---
	for _, program := range []string{"ffmpeg", "gifsicle"} {
		EngineRunDuration.WithLabelValues(engineName, program)
		for _, result := range []string{"success", "failure", "timeout"} {
			EngineRunsTotal.WithLabelValues(engineName, program, result)
		}
	}

	for _, stage := range []string{"frames", "palettegen", "paletteuse", "compact", "optimize"} {
		GIFStageDuration.WithLabelValues(stage)
	}

	// --- PDF operations ---
	for _, op := range []string{"images", "merge", "split", "page_count"} {
		PDFOperationsTotal.WithLabelValues(op, "success")
		PDFOperationsTotal.WithLabelValues(op, "error")
		PDFOperationDuration.WithLabelValues(op)
	}

	// --- Deliveries ---
	for _, b := range []string{"direct", "local", "s3", "gcs", "sftp"} {
		DeliveriesTotal.WithLabelValues(b, "success")
		DeliveriesTotal.WithLabelValues(b, "error")
		DeliveryDuration.WithLabelValues(b)
	}

	// --- Filesystem retries ---
	for _, op := range []string{"stat", "open", "mkdir", "write"} {
		FilesystemRetryDuration.WithLabelValues(op, "output")
	}

	// --- History queries ---
	for _, op := range []string{"initialize_schema", "record", "recent", "stats", "cleanup"} {
		HistoryQueryTotal.WithLabelValues(op, "success")
		HistoryQueryTotal.WithLabelValues(op, "error")
		HistoryQueryDuration.WithLabelValues(op)
	}
}
