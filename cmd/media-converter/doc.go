// Package main provides the entry point for the Media Converter server.
//
// Media Converter accepts uploaded media over HTTP and converts it between
// video, audio and image formats with ffmpeg (optionally gifsicle), builds
// animated GIFs from still images, and runs PDF operations in-process.
//
// # Application Lifecycle
//
// The application follows a structured initialization sequence:
//
//  1. Memory Configuration: Sets GOMEMLIMIT from environment or container limits
//  2. Configuration Loading: Reads environment variables and validates directories
//  3. Engine Initialization: Native ffmpeg processes or an ffmpeg WASM module
//  4. Component Initialization:
//     - Converter and PDF dispatcher
//     - Conversion history (SQLite) with retention cleanup
//     - Result cache (Pebble) with TTL cleanup
//     - Daily usage counters (Redis or in-memory)
//     - Output delivery backend (direct, local, S3, GCS or SFTP)
//     - Memory monitor and metrics collector
//  5. HTTP Server Setup: Configures routes, middleware, and starts server
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM, stops all components cleanly
//
// # HTTP Server
//
// The application runs two HTTP servers:
//
//  1. Main Server (default port 8080): the /api conversion endpoints and the
//     /health, /healthz, /livez, /readyz and /version checks.
//  2. Metrics Server (default port 9090, optional): Prometheus /metrics.
//
// # Graceful Shutdown
//
// On SIGINT or SIGTERM the server kills engine processes still running,
// drains HTTP connections for up to 30 seconds, stops the cleanup and metrics
// goroutines, and closes the history, cache, usage and delivery stores.
package main
