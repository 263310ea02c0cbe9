package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"media-converter/internal/mediatypes"
)

func TestGetFormats(t *testing.T) {
	t.Parallel()
	h := New(Dependencies{}, &startupConfig)

	w := httptest.NewRecorder()
	h.GetFormats(w, httptest.NewRequest(http.MethodGet, "/api/formats", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age") {
		t.Errorf("Expected cacheable response, got Cache-Control %q", cc)
	}

	var resp FormatsResponse
	decodeJSON(t, w, &resp)

	if len(resp.Video.Input) == 0 || len(resp.Audio.Output) == 0 || len(resp.Image.Input) == 0 {
		t.Errorf("Expected non-empty format lists, got %+v", resp.Formats)
	}
	for _, c := range mediatypes.Categories {
		if resp.Defaults[c] == "" {
			t.Errorf("Expected a default output for %s", c)
		}
		if len(resp.Available[c]) == 0 {
			t.Errorf("Expected available outputs for %s", c)
		}
	}
}

func TestCheckConversion(t *testing.T) {
	t.Parallel()
	h := New(Dependencies{}, &startupConfig)

	tests := []struct {
		name          string
		body          string
		wantStatus    int
		wantSupported bool
	}{
		{"video to audio", `{"inputFormat":"mp4","outputFormat":"mp3"}`, http.StatusOK, true},
		{"video to gif", `{"inputFormat":"mov","outputFormat":"gif"}`, http.StatusOK, true},
		{"audio to video", `{"inputFormat":"mp3","outputFormat":"mp4"}`, http.StatusOK, false},
		{"unknown input", `{"inputFormat":"xyz","outputFormat":"mp4"}`, http.StatusOK, false},
		{"dotted and upper case", `{"inputFormat":".WAV","outputFormat":"OGG"}`, http.StatusOK, true},
		{"missing output", `{"inputFormat":"mp4"}`, http.StatusBadRequest, false},
		{"invalid json", `{inputFormat`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/api/check-conversion", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.CheckConversion(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp CheckConversionResponse
			decodeJSON(t, w, &resp)
			if resp.Supported != tt.wantSupported {
				t.Errorf("Expected supported=%v, got %v", tt.wantSupported, resp.Supported)
			}
		})
	}
}
