// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - WORK_DIR: Scratch space for conversions (default: $TMPDIR/media-converter)
//   - DATA_DIR: History database and result cache (default: /data)
//   - MAX_UPLOAD_SIZE: Largest accepted input, e.g. 100MB (default: 100MB)
//   - MAX_IMAGES: Most images accepted by GIF and PDF assembly (default: 50)
//   - CONVERSION_TIMEOUT: Wall-clock limit per conversion (default: 5m)
//   - MAX_OUTPUT_BUFFER: Captured engine stdout/stderr limit (default: 10MB)
//   - MIN_FREE_DISK: Free space WORK_DIR needs to report ready (default: 512MB)
//   - ENGINE: process or wasm (default: process)
//   - FFMPEG_PATH, GIFSICLE_PATH: native binaries (default: looked up in PATH)
//   - FFMPEG_WASM_PATH: ffmpeg compiled to WASI, required for ENGINE=wasm
//   - CACHE_ENABLED, CACHE_TTL: result cache (default: true, 24h)
//   - HISTORY_ENABLED, HISTORY_RETENTION: conversion history (default: true, 720h)
//   - USAGE_REDIS_URL: shared daily counters; in-memory when empty
//   - USAGE_TIMEZONE: IANA zone that decides when a usage day rolls over
//   - OUTPUT_BACKEND: direct, local, s3, gcs or sftp (default: direct)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: false)
//   - CONVERT_WORKERS: Parallelism for GIF frame normalization
//
// Backend settings are OUTPUT_LOCAL_DIR; S3_BUCKET, S3_REGION, S3_ACCESS_KEY,
// S3_SECRET_KEY, S3_PREFIX, S3_ENDPOINT; GCS_BUCKET, GCS_CREDENTIALS_FILE,
// GCS_PREFIX; and SFTP_HOST, SFTP_PORT, SFTP_USER, SFTP_PASSWORD,
// SFTP_KEY_FILE, SFTP_KNOWN_HOSTS, SFTP_DIR.
//
// Sizes accept binary units (KB, MiB, Gi). Durations use Go syntax. Invalid
// values are logged and replaced by the default.
//
// # Directory Setup
//
//   - Work directory: required, must be writable
//   - Data directory: optional, enables the cache and history when writable
//
// [CheckDisk] reports free space through gopsutil and is also used by the
// readiness check.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Example Usage
//
//	config, err := startup.LoadConfig()
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//
//	startup.LogServerStarted(startup.ServerConfig{
//	    Port:            config.Port,
//	    MetricsPort:     config.MetricsPort,
//	    MetricsEnabled:  config.MetricsEnabled,
//	    StartupDuration: time.Since(startTime),
//	})
package startup
