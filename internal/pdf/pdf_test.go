package pdf

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/jung-kurt/gofpdf"

	"media-converter/internal/engine"
)

func encodeImage(t *testing.T, format string, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

// makePDF returns an uncompressed document with one marker string per page.
func makePDF(t *testing.T, markers ...string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 12)
	for _, m := range markers {
		doc.AddPage()
		doc.Text(40, 40, m)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return buf.Bytes()
}

func pageCount(t *testing.T, d *Dispatcher, doc []byte) int {
	t.Helper()
	n, err := d.PageCount(context.Background(), doc)
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	return n
}

func TestImagesToPDF(t *testing.T) {
	d := NewDispatcher(Config{})
	images := [][]byte{
		encodeImage(t, "jpeg", 120, 80),
		encodeImage(t, "png", 60, 90),
		encodeImage(t, "png", 30, 30),
	}

	out, err := d.ImagesToPDF(context.Background(), images)
	if err != nil {
		t.Fatalf("ImagesToPDF failed: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("Expected a PDF, got %q", out[:min(len(out), 16)])
	}
	if n := pageCount(t, d, out); n != len(images) {
		t.Errorf("Expected %d pages, got %d", len(images), n)
	}
}

func TestImagesToPDFRejects(t *testing.T) {
	d := NewDispatcher(Config{MaxInputs: 2})
	valid := encodeImage(t, "png", 10, 10)

	tests := []struct {
		name     string
		images   [][]byte
		wantKind engine.ErrorKind
		wantErr  error
	}{
		{"none", nil, engine.KindInvalidOption, ErrNoImages},
		{"gif", [][]byte{valid, encodeImage(t, "gif", 10, 10)}, engine.KindUnsupportedFormat, ErrUnsupportedImage},
		{"garbage", [][]byte{[]byte("hello world")}, engine.KindUnsupportedFormat, ErrUnsupportedImage},
		{"empty file", [][]byte{valid, {}}, engine.KindInvalidOption, nil},
		{"too many", [][]byte{valid, valid, valid}, engine.KindInvalidOption, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.ImagesToPDF(context.Background(), tt.images)
			if got := engine.KindOf(err); got != tt.wantKind {
				t.Errorf("Expected %s, got %s (%v)", tt.wantKind, got, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMergeKeepsOrder(t *testing.T) {
	d := NewDispatcher(Config{})
	a := makePDF(t, "DOC-A-P1")
	b := makePDF(t, "DOC-B-P1", "DOC-B-P2")

	merged, err := d.Merge(context.Background(), [][]byte{a, b})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if n := pageCount(t, d, merged); n != 3 {
		t.Fatalf("Expected 3 pages, got %d", n)
	}

	for page, marker := range map[int]string{1: "DOC-A-P1", 2: "DOC-B-P1", 3: "DOC-B-P2"} {
		out, err := d.ExtractPage(context.Background(), merged, page)
		if err != nil {
			t.Fatalf("ExtractPage(%d) failed: %v", page, err)
		}
		if !bytes.Contains(out, []byte(marker)) {
			t.Errorf("Expected page %d to hold %s", page, marker)
		}
	}
}

func TestMergeRejects(t *testing.T) {
	d := NewDispatcher(Config{})
	a := makePDF(t, "A")

	_, err := d.Merge(context.Background(), [][]byte{a})
	if !errors.Is(err, ErrTooFewDocuments) || engine.KindOf(err) != engine.KindInvalidOption {
		t.Errorf("Expected ErrTooFewDocuments as InvalidOption, got %v", err)
	}

	_, err = d.Merge(context.Background(), [][]byte{a, []byte("not a pdf")})
	if engine.KindOf(err) != engine.KindCorruptInput {
		t.Errorf("Expected CorruptInput, got %v", err)
	}
}

func TestExtractPage(t *testing.T) {
	d := NewDispatcher(Config{})
	doc := makePDF(t, "PAGE-ONE", "PAGE-TWO", "PAGE-THREE")

	out, err := d.ExtractPage(context.Background(), doc, 2)
	if err != nil {
		t.Fatalf("ExtractPage failed: %v", err)
	}
	if n := pageCount(t, d, out); n != 1 {
		t.Errorf("Expected 1 page, got %d", n)
	}
	if !bytes.Contains(out, []byte("PAGE-TWO")) {
		t.Error("Expected the second page's content")
	}
}

func TestExtractPageOutOfRange(t *testing.T) {
	d := NewDispatcher(Config{})
	doc := makePDF(t, "1", "2", "3")

	for _, page := range []int{0, -1, 4, 100} {
		_, err := d.ExtractPage(context.Background(), doc, page)
		if !errors.Is(err, ErrInvalidPage) {
			t.Errorf("page %d: expected ErrInvalidPage, got %v", page, err)
		}
		if engine.KindOf(err) != engine.KindInvalidOption {
			t.Errorf("page %d: expected InvalidOption, got %s", page, engine.KindOf(err))
		}
	}
}

func TestPageCountRejectsGarbage(t *testing.T) {
	d := NewDispatcher(Config{})
	_, err := d.PageCount(context.Background(), []byte("plain text"))
	if !errors.Is(err, ErrInvalidDocument) || engine.KindOf(err) != engine.KindCorruptInput {
		t.Errorf("Expected ErrInvalidDocument as CorruptInput, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	d := NewDispatcher(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.ImagesToPDF(ctx, [][]byte{encodeImage(t, "png", 4, 4)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestInputSizeLimit(t *testing.T) {
	d := NewDispatcher(Config{MaxInputBytes: 100})
	doc := makePDF(t, "x", "y")

	_, err := d.ExtractPage(context.Background(), doc, 1)
	if engine.KindOf(err) != engine.KindInvalidOption {
		t.Errorf("Expected InvalidOption for oversized input, got %v", err)
	}
}
