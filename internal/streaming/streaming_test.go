package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

type blockingWriter struct {
	header  http.Header
	release chan struct{}
}

func (b *blockingWriter) Header() http.Header { return b.header }
func (b *blockingWriter) WriteHeader(int)     {}
func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.release
	return len(p), nil
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout=30s, got %v", config.WriteTimeout)
	}
	if config.IdleTimeout != 60*time.Second {
		t.Errorf("Expected IdleTimeout=60s, got %v", config.IdleTimeout)
	}
	if config.ChunkSize != 64*1024 {
		t.Errorf("Expected ChunkSize=64KB, got %d", config.ChunkSize)
	}
}

func TestTimeoutWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), w, DefaultConfig())
	defer tw.Close()

	data := []byte("test data")
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}
	if bytesWritten, _ := tw.Stats(); bytesWritten != int64(len(data)) {
		t.Errorf("Expected bytes written=%d, got %d", len(data), bytesWritten)
	}
	if w.Body.String() != "test data" {
		t.Errorf("Expected body %q, got %q", data, w.Body.String())
	}
}

func TestTimeoutWriterChunks(t *testing.T) {
	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	config := DefaultConfig()
	config.ChunkSize = 10

	tw := NewTimeoutWriter(context.Background(), rec, config)
	defer tw.Close()

	data := bytes.Repeat([]byte("x"), 35)
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 35 || rec.Body.Len() != 35 {
		t.Errorf("Expected 35 bytes written, got n=%d body=%d", n, rec.Body.Len())
	}
	// Four chunks, flushed between them.
	if rec.flushes != 3 {
		t.Errorf("Expected 3 flushes, got %d", rec.flushes)
	}
}

func TestTimeoutWriterClosed(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultConfig())
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Errorf("Expected second Close to succeed, got %v", err)
	}
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled, got %v", err)
	}
}

func TestTimeoutWriterClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tw := NewTimeoutWriter(ctx, httptest.NewRecorder(), DefaultConfig())
	defer tw.Close()

	cancel()
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
}

func TestTimeoutWriterWriteTimeout(t *testing.T) {
	bw := &blockingWriter{header: http.Header{}, release: make(chan struct{})}
	defer close(bw.release)

	config := DefaultConfig()
	config.WriteTimeout = 20 * time.Millisecond
	tw := NewTimeoutWriter(context.Background(), bw, config)
	defer tw.Close()

	start := time.Now()
	_, err := tw.Write([]byte("stalled"))
	if !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Expected ErrWriteTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected the timeout to fire quickly, took %v", elapsed)
	}

	// The writer is canceled after a timeout.
	if _, err := tw.Write([]byte("more")); err == nil {
		t.Error("Expected writes after a timeout to fail")
	}
}

func TestTimeoutWriterIdle(t *testing.T) {
	config := DefaultConfig()
	config.IdleTimeout = 40 * time.Millisecond
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	time.Sleep(150 * time.Millisecond)
	if _, err := tw.Write([]byte("late")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled after idling, got %v", err)
	}
}

func TestWriteOutput(t *testing.T) {
	tests := []struct {
		name            string
		out             Output
		wantType        string
		wantDisposition string
	}{
		{
			name:            "gif with filename",
			out:             Output{Data: []byte("GIF89a"), MimeType: "image/gif", Filename: "clip.gif"},
			wantType:        "image/gif",
			wantDisposition: `attachment; filename=clip.gif`,
		},
		{
			name:            "quoted filename",
			out:             Output{Data: []byte("x"), MimeType: "audio/mpeg", Filename: "my song.mp3"},
			wantType:        "audio/mpeg",
			wantDisposition: `attachment; filename="my song.mp3"`,
		},
		{
			name:     "no mime type",
			out:      Output{Data: []byte("x")},
			wantType: "application/octet-stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			if err := WriteOutput(context.Background(), w, tt.out, DefaultConfig()); err != nil {
				t.Fatalf("WriteOutput failed: %v", err)
			}

			if w.Code != http.StatusOK {
				t.Errorf("Expected 200, got %d", w.Code)
			}
			if got := w.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Expected Content-Type %s, got %s", tt.wantType, got)
			}
			if got := w.Header().Get("Content-Disposition"); got != tt.wantDisposition {
				t.Errorf("Expected Content-Disposition %q, got %q", tt.wantDisposition, got)
			}
			if !bytes.Equal(w.Body.Bytes(), tt.out.Data) {
				t.Errorf("Expected body %q, got %q", tt.out.Data, w.Body.Bytes())
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("Expected nosniff header")
			}
		})
	}
}
