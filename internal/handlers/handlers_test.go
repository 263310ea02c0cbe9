package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-converter/internal/cache"
	"media-converter/internal/database"
	"media-converter/internal/engine"
	"media-converter/internal/pdf"
	"media-converter/internal/startup"
	"media-converter/internal/transcoder"
	"media-converter/internal/usage"
)

// =============================================================================
// Test fixtures
// =============================================================================

// fakeEngine writes "<program>:<output file>" for every run.
type fakeEngine struct {
	mu    sync.Mutex
	runs  int
	fail  string // stderr of a failing run, if set
	empty bool
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Supports(program string) bool {
	return program == engine.ProgramFFmpeg || program == engine.ProgramGifsicle
}

func (f *fakeEngine) Run(_ context.Context, inv engine.Invocation) (*engine.Output, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	if f.fail != "" {
		return &engine.Output{ExitCode: 1, Stderr: []byte(f.fail)}, nil
	}
	if inv.OutputFile == "" {
		return &engine.Output{}, nil
	}
	content := []byte(inv.Program + ":" + inv.OutputFile)
	if inv.Program == engine.ProgramFFmpeg && inv.OutputFile == transcoder.GIFFile {
		content = singleFrameGIF()
	}
	if f.empty {
		content = nil
	}
	if err := os.WriteFile(filepath.Join(inv.WorkDir, inv.OutputFile), content, 0o644); err != nil {
		return nil, err
	}
	return &engine.Output{}, nil
}

// singleFrameGIF is a valid GIF for the palette compaction that follows
// the paletteuse run.
func singleFrameGIF() []byte {
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, &gif.GIF{Image: []*image.Paletted{img}, Delay: []int{10}}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (f *fakeEngine) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// startupConfig is enough for handlers that touch no components.
var startupConfig = startup.Config{MaxUploadSize: 1 << 20, Engine: startup.EngineProcess}

type testEnv struct {
	h       *Handlers
	engine  *fakeEngine
	deps    Dependencies
	config  *startup.Config
	history *database.Database
	cache   *cache.Cache
}

// newTestEnv wires real components around a fake engine. Modifiers run
// before the handlers are built.
func newTestEnv(t *testing.T, mods ...func(*Dependencies, *startup.Config)) *testEnv {
	t.Helper()

	eng := &fakeEngine{}
	workDir := t.TempDir()
	conv, err := transcoder.New(engine.NewInvoker(eng, engine.InvokerConfig{Timeout: 10 * time.Second}), transcoder.Config{
		WorkDir: workDir,
	})
	if err != nil {
		t.Fatalf("transcoder.New failed: %v", err)
	}

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache"), cache.Options{TTL: time.Hour})
	if err != nil {
		t.Fatalf("cache.Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("database.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	deps := Dependencies{
		Converter: conv,
		PDF:       pdf.NewDispatcher(pdf.Config{}),
		Usage:     usage.NewTracker(usage.NewMemoryStore()),
		Cache:     c,
		History:   db,
	}
	config := &startup.Config{
		WorkDir:       workDir,
		MaxUploadSize: 1 << 20,
		Engine:        startup.EngineProcess,
	}
	for _, mod := range mods {
		mod(&deps, config)
	}

	return &testEnv{
		h:       New(deps, config),
		engine:  eng,
		deps:    deps,
		config:  config,
		history: db,
		cache:   c,
	}
}

type part struct {
	field    string
	filename string
	data     []byte
}

// newUploadRequest builds a multipart POST with the given fields and files.
func newUploadRequest(t *testing.T, target string, fields map[string]string, parts ...part) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.filename)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		if _, err := fw.Write(p.data); err != nil {
			t.Fatalf("write part failed: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v (body %q)", err, w.Body.String())
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	decodeJSON(t, w, &resp)
	return resp
}

// =============================================================================
// New Tests
// =============================================================================

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	h := New(Dependencies{}, &startup.Config{Engine: startup.EngineWasm, MaxUploadSize: 42})

	if h.usage == nil {
		t.Error("Expected an in-memory usage tracker when none is given")
	}
	if h.delivery == nil || h.delivery.Name() != "direct" {
		t.Errorf("Expected direct delivery by default, got %v", h.delivery)
	}
	if h.engineName != startup.EngineWasm {
		t.Errorf("Expected engine %q, got %q", startup.EngineWasm, h.engineName)
	}
	if h.maxUploadSize != 42 {
		t.Errorf("Expected maxUploadSize=42, got %d", h.maxUploadSize)
	}
	if h.startTime.IsZero() {
		t.Error("Expected startTime to be set")
	}
}
