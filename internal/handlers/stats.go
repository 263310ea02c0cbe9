package handlers

import (
	"net/http"
	"strconv"

	"media-converter/internal/database"
	"media-converter/internal/usage"
)

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	Conversions []database.Conversion  `json:"conversions"`
	Stats       *database.HistoryStats `json:"stats,omitempty"`
}

// GetUsage returns the counters of the current usage day.
// GET /api/usage
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	snap, err := h.usage.Snapshot(r.Context())
	if err != nil {
		logger.Error("failed to read usage: %v", err)
		writeJSONError(w, "Failed to read usage", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, struct {
		usage.Snapshot
		MegabytesProcessed float64 `json:"megabytesProcessed"`
	}{snap, float64(snap.Bytes) / (1024 * 1024)})
}

// GetHistory returns recent conversions, newest first.
// GET /api/history?limit=N&stats=true
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSONError(w, "History is disabled", http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONError(w, "limit must be a positive number", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		logger.Error("failed to read history: %v", err)
		writeJSONError(w, "Failed to read history", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []database.Conversion{}
	}
	resp := HistoryResponse{Conversions: rows}

	if r.URL.Query().Get("stats") == "true" {
		stats, err := h.history.Stats(r.Context())
		if err != nil {
			logger.Error("failed to read history stats: %v", err)
			writeJSONError(w, "Failed to read history", http.StatusInternalServerError)
			return
		}
		resp.Stats = &stats
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, resp)
}

// ClearCache empties the work directory and the result cache.
// POST /api/cache/clear
func (h *Handlers) ClearCache(w http.ResponseWriter, _ *http.Request) {
	workFreed, err := h.converter.ClearWorkDir()
	if err != nil {
		logger.Error("Failed to clear work directory: %v", err)
		writeJSONError(w, "Failed to clear work directory", http.StatusInternalServerError)
		return
	}

	var cacheFreed int64
	if h.cache != nil {
		if cacheFreed, err = h.cache.Clear(); err != nil {
			logger.Error("Failed to clear result cache: %v", err)
			writeJSONError(w, "Failed to clear result cache", http.StatusInternalServerError)
			return
		}
	}

	logger.Info("Caches cleared, freed %d bytes of scratch space and %d bytes of cached output", workFreed, cacheFreed)

	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"freedBytes":       workFreed + cacheFreed,
		"workDirBytes":     workFreed,
		"resultCacheBytes": cacheFreed,
	})
}
