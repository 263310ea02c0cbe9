package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"media-converter/internal/database"
	"media-converter/internal/startup"
)

func TestGetUsage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	if _, err := env.deps.Usage.Record(context.Background(), 3<<20); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	w := httptest.NewRecorder()
	env.h.GetUsage(w, httptest.NewRequest(http.MethodGet, "/api/usage", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp struct {
		Day                string  `json:"day"`
		Conversions        int64   `json:"conversions"`
		Bytes              int64   `json:"bytes"`
		MegabytesProcessed float64 `json:"megabytesProcessed"`
	}
	decodeJSON(t, w, &resp)

	if resp.Conversions != 1 || resp.Bytes != 3<<20 {
		t.Errorf("Expected 1 conversion of 3MiB, got %+v", resp)
	}
	if resp.MegabytesProcessed != 3 {
		t.Errorf("Expected 3 megabytes, got %v", resp.MegabytesProcessed)
	}
	if resp.Day == "" {
		t.Error("Expected the usage day")
	}
}

func TestGetHistory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for _, status := range []database.Status{database.StatusSuccess, database.StatusFailed, database.StatusSuccess} {
		if err := env.history.Record(context.Background(), &database.Conversion{
			Operation: opConvert,
			InputExt:  "mov",
			OutputExt: "mp4",
			Status:    status,
		}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	t.Run("limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.h.GetHistory(w, httptest.NewRequest(http.MethodGet, "/api/history?limit=2", http.NoBody))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp HistoryResponse
		decodeJSON(t, w, &resp)
		if len(resp.Conversions) != 2 {
			t.Errorf("Expected 2 rows, got %d", len(resp.Conversions))
		}
		if resp.Stats != nil {
			t.Error("Expected no stats unless asked for")
		}
	})

	t.Run("stats", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.h.GetHistory(w, httptest.NewRequest(http.MethodGet, "/api/history?stats=true", http.NoBody))
		var resp HistoryResponse
		decodeJSON(t, w, &resp)
		if resp.Stats == nil {
			t.Fatal("Expected stats")
		}
		if resp.Stats.Total != 3 || resp.Stats.Failed != 1 {
			t.Errorf("Expected 3 total and 1 failed, got %+v", *resp.Stats)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, limit := range []string{"0", "-1", "ten"} {
			w := httptest.NewRecorder()
			env.h.GetHistory(w, httptest.NewRequest(http.MethodGet, "/api/history?limit="+limit, http.NoBody))
			if w.Code != http.StatusBadRequest {
				t.Errorf("limit=%s: Expected status 400, got %d", limit, w.Code)
			}
		}
	})
}

func TestGetHistoryEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.h.GetHistory(w, httptest.NewRequest(http.MethodGet, "/api/history", http.NoBody))

	if got := w.Body.String(); got != "{\"conversions\":[]}\n" {
		t.Errorf("Expected an empty list, got %q", got)
	}
}

func TestGetHistoryDisabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(d *Dependencies, _ *startup.Config) { d.History = nil })

	w := httptest.NewRecorder()
	env.h.GetHistory(w, httptest.NewRequest(http.MethodGet, "/api/history", http.NoBody))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestClearCache(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	// One cached output and one leftover scratch directory.
	w := httptest.NewRecorder()
	env.h.Convert(w, convertRequest(t, map[string]string{"outputFormat": "mp4"}))
	if w.Code != http.StatusOK {
		t.Fatalf("Convert failed with %d", w.Code)
	}
	stale := filepath.Join(env.config.WorkDir, "stale")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, "frame.png"), make([]byte, 512), 0o644); err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	env.h.ClearCache(w, httptest.NewRequest(http.MethodPost, "/api/cache/clear", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success          bool  `json:"success"`
		FreedBytes       int64 `json:"freedBytes"`
		WorkDirBytes     int64 `json:"workDirBytes"`
		ResultCacheBytes int64 `json:"resultCacheBytes"`
	}
	decodeJSON(t, w, &resp)

	if !resp.Success {
		t.Error("Expected success")
	}
	if resp.WorkDirBytes < 512 {
		t.Errorf("Expected at least 512 scratch bytes freed, got %d", resp.WorkDirBytes)
	}
	if resp.ResultCacheBytes == 0 {
		t.Error("Expected cached output bytes to be freed")
	}
	if resp.FreedBytes != resp.WorkDirBytes+resp.ResultCacheBytes {
		t.Errorf("Expected freedBytes to be the sum, got %d", resp.FreedBytes)
	}
	if n, _ := env.cache.Len(); n != 0 {
		t.Errorf("Expected empty cache, got %d entries", n)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("Expected scratch directory removed, got %v", err)
	}
}
