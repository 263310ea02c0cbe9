package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"media-converter/internal/memory"
	"media-converter/internal/startup"
)

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheckHealthy(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp HealthResponse
	decodeJSON(t, w, &resp)

	if resp.Status != statusHealthy || !resp.Ready {
		t.Errorf("Expected healthy and ready, got %q ready=%v", resp.Status, resp.Ready)
	}
	if resp.Engine != "fake" {
		t.Errorf("Expected engine fake, got %q", resp.Engine)
	}
	if !resp.FFmpeg || !resp.Gifsicle {
		t.Errorf("Expected both programs available, got ffmpeg=%v gifsicle=%v", resp.FFmpeg, resp.Gifsicle)
	}
	if !resp.Cache || !resp.History {
		t.Errorf("Expected cache and history enabled, got cache=%v history=%v", resp.Cache, resp.History)
	}
	if resp.Delivery != "direct" {
		t.Errorf("Expected direct delivery, got %q", resp.Delivery)
	}
	if resp.WorkDirFreeBytes == 0 || resp.DiskError != "" {
		t.Errorf("Expected free space on the work dir, got %d (%s)", resp.WorkDirFreeBytes, resp.DiskError)
	}
	if resp.GoVersion == "" || resp.NumCPU == 0 {
		t.Error("Expected system info to be filled in")
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mod        func(*Dependencies, *startup.Config)
		wantReason string
	}{
		{
			name:       "no converter",
			mod:        func(d *Dependencies, _ *startup.Config) { d.Converter = nil },
			wantReason: "engine_unavailable",
		},
		{
			name:       "disk below minimum",
			mod:        func(_ *Dependencies, c *startup.Config) { c.MinFreeDisk = 1 << 62 },
			wantReason: "disk",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, tt.mod)

			w := httptest.NewRecorder()
			env.h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("Expected status 503, got %d", w.Code)
			}
			var resp HealthResponse
			decodeJSON(t, w, &resp)
			if resp.Status != statusDegraded {
				t.Errorf("Expected status %q, got %q", statusDegraded, resp.Status)
			}

			w = httptest.NewRecorder()
			env.h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("Expected readiness 503, got %d", w.Code)
			}
			var ready map[string]string
			decodeJSON(t, w, &ready)
			if ready["reason"] != tt.wantReason {
				t.Errorf("Expected reason %q, got %q", tt.wantReason, ready["reason"])
			}
		})
	}
}

func TestReadinessUnderMemoryPressure(t *testing.T) {
	t.Parallel()

	mon := memory.NewMonitor(memory.Config{
		MemoryLimitBytes:  1,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     time.Hour,
	})
	mon.Start()
	t.Cleanup(mon.Stop)

	env := newTestEnv(t, func(d *Dependencies, _ *startup.Config) { d.Memory = mon })

	w := httptest.NewRecorder()
	env.h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
	var resp map[string]string
	decodeJSON(t, w, &resp)
	if resp["reason"] != "memory_pressure" {
		t.Errorf("Expected reason memory_pressure, got %q", resp["reason"])
	}
}

func TestHealthCheckCountsConversions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.h.Convert(w, convertRequest(t, map[string]string{"outputFormat": "mp4"}))
	if w.Code != http.StatusOK {
		t.Fatalf("Convert failed with %d", w.Code)
	}

	w = httptest.NewRecorder()
	env.h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	var resp HealthResponse
	decodeJSON(t, w, &resp)
	if resp.ConversionsToday != 1 {
		t.Errorf("Expected 1 conversion today, got %d", resp.ConversionsToday)
	}
}

// =============================================================================
// Liveness / Readiness Tests
// =============================================================================

func TestLivenessCheck(t *testing.T) {
	t.Parallel()
	h := &Handlers{}

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		t.Run(method, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.LivenessCheck(w, httptest.NewRequest(method, "/livez", http.NoBody))

			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected application/json, got %q", ct)
			}
			if method == http.MethodHead && w.Body.Len() != 0 {
				t.Errorf("Expected empty body for HEAD, got %q", w.Body.String())
			}
			if method == http.MethodGet && w.Body.Len() == 0 {
				t.Error("Expected body for GET")
			}
		})
	}
}

func TestReadinessCheckReady(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	decodeJSON(t, w, &resp)
	if resp["status"] != "ready" {
		t.Errorf("Expected status ready, got %q", resp["status"])
	}
}
