package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-converter/internal/engine"
	"media-converter/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	Engine   string `json:"engine"`
	FFmpeg   bool   `json:"ffmpeg"`
	Gifsicle bool   `json:"gifsicle"`

	// Storage
	WorkDirFreeBytes uint64 `json:"workDirFreeBytes"`
	DiskError        string `json:"diskError,omitempty"`
	Cache            bool   `json:"cache"`
	History          bool   `json:"history"`
	Delivery         string `json:"delivery"`

	// Memory
	MemoryPaused bool    `json:"memoryPaused"`
	MemoryUsage  float64 `json:"memoryUsage"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	ConversionsToday int64 `json:"conversionsToday"`
}

// readiness reports whether new conversions can be accepted, and why not.
func (h *Handlers) readiness() (bool, string) {
	if h.converter == nil || !h.converter.Supports(engine.ProgramFFmpeg) {
		return false, "engine_unavailable"
	}
	if h.memory != nil && h.memory.IsPaused() {
		return false, "memory_pressure"
	}
	if _, err := startup.CheckDisk(h.workDir, h.minFreeDisk); err != nil {
		return false, "disk"
	}
	return true, ""
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ready, _ := h.readiness()

	response := HealthResponse{
		Ready:        ready,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Engine:       h.engineName,
		Cache:        h.cache != nil,
		History:      h.history != nil,
		Delivery:     h.delivery.Name(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if h.converter != nil {
		response.Engine = h.converter.EngineName()
		response.FFmpeg = h.converter.Supports(engine.ProgramFFmpeg)
		response.Gifsicle = h.converter.Supports(engine.ProgramGifsicle)
	}

	if free, err := startup.CheckDisk(h.workDir, h.minFreeDisk); err != nil {
		response.DiskError = err.Error()
	} else {
		response.WorkDirFreeBytes = free
	}

	if h.memory != nil {
		stats := h.memory.GetStats()
		response.MemoryPaused = stats.Paused
		response.MemoryUsage = stats.Usage
	}

	if snap, err := h.usage.Snapshot(r.Context()); err == nil {
		response.ConversionsToday = snap.Conversions
	}

	if ready {
		response.Status = statusHealthy
	} else {
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")

	// Return 503 only if not ready at all
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness check (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	ready, reason := h.readiness()
	if ready {
		writeJSONStatus(w, http.StatusOK, map[string]string{
			"status": "ready",
		})
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
		"status": "not_ready",
		"reason": reason,
	})
}
