package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// makePDF returns a document with the given number of pages.
func makePDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Text(40, 40, "page")
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return buf.Bytes()
}

func pagesOf(t *testing.T, env *testEnv, doc []byte) int {
	t.Helper()
	n, err := env.deps.PDF.PageCount(context.Background(), doc)
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	return n
}

// =============================================================================
// PDF Tests
// =============================================================================

func TestPDFImages(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := newUploadRequest(t, "/api/pdf", map[string]string{"operation": "images"},
		part{"files", "a.png", pngImage(t, 20, 10)},
		part{"files", "b.png", pngImage(t, 10, 20)},
		part{"files", "c.png", pngImage(t, 8, 8)},
	)
	w := httptest.NewRecorder()
	env.h.PDF(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "converted.pdf") {
		t.Errorf("Expected converted.pdf, got %q", cd)
	}
	if n := pagesOf(t, env, w.Body.Bytes()); n != 3 {
		t.Errorf("Expected 3 pages, got %d", n)
	}
}

func TestPDFMerge(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := newUploadRequest(t, "/api/pdf", map[string]string{"operation": "merge"},
		part{"files", "one.pdf", makePDF(t, 2)},
		part{"files", "two.pdf", makePDF(t, 1)},
	)
	w := httptest.NewRecorder()
	env.h.PDF(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "merged.pdf") {
		t.Errorf("Expected merged.pdf, got %q", cd)
	}
	if n := pagesOf(t, env, w.Body.Bytes()); n != 3 {
		t.Errorf("Expected 3 pages, got %d", n)
	}
}

func TestPDFSplit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := newUploadRequest(t, "/api/pdf", map[string]string{"operation": "split", "page": "2"},
		part{"file", "doc.pdf", makePDF(t, 3)},
	)
	w := httptest.NewRecorder()
	env.h.PDF(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "page-2.pdf") {
		t.Errorf("Expected page-2.pdf, got %q", cd)
	}
	if n := pagesOf(t, env, w.Body.Bytes()); n != 1 {
		t.Errorf("Expected 1 page, got %d", n)
	}
}

func TestPDFErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		fields     map[string]string
		parts      func(t *testing.T) []part
		wantStatus int
	}{
		{
			name:       "unknown operation",
			fields:     map[string]string{"operation": "rotate"},
			parts:      func(t *testing.T) []part { return []part{{"file", "a.pdf", makePDF(t, 1)}} },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "split without document",
			fields:     map[string]string{"operation": "split"},
			parts:      func(*testing.T) []part { return nil },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "split page out of range",
			fields:     map[string]string{"operation": "split", "page": "5"},
			parts:      func(t *testing.T) []part { return []part{{"file", "a.pdf", makePDF(t, 2)}} },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "split page not a number",
			fields:     map[string]string{"operation": "split", "page": "two"},
			parts:      func(t *testing.T) []part { return []part{{"file", "a.pdf", makePDF(t, 2)}} },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "merge single document",
			fields:     map[string]string{"operation": "merge"},
			parts:      func(t *testing.T) []part { return []part{{"files", "a.pdf", makePDF(t, 1)}} },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "merge garbage",
			fields:     map[string]string{"operation": "merge"},
			parts: func(t *testing.T) []part {
				return []part{{"files", "a.pdf", []byte("not a pdf")}, {"files", "b.pdf", makePDF(t, 1)}}
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)

			w := httptest.NewRecorder()
			env.h.PDF(w, newUploadRequest(t, "/api/pdf", tt.fields, tt.parts(t)...))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestPageCountHandler(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.h.PageCount(w, newUploadRequest(t, "/api/pdf/pages", nil, part{"files", "doc.pdf", makePDF(t, 4)}))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]int
	decodeJSON(t, w, &resp)
	if resp["pages"] != 4 {
		t.Errorf("Expected 4 pages, got %d", resp["pages"])
	}
}

func TestParsePage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 1, false},
		{" 3 ", 3, false},
		{"0", 0, false},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parsePage(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePage(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parsePage(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
