package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"media-converter/internal/engine"
	"media-converter/internal/logging"
	"media-converter/internal/media"
	"media-converter/internal/metrics"
)

// Operation names, also used as metric labels.
const (
	OpImages    = "images"
	OpMerge     = "merge"
	OpSplit     = "split"
	OpPageCount = "page_count"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxInputs = 50
)

var (
	// ErrUnsupportedImage is returned for images that are neither JPEG nor PNG.
	ErrUnsupportedImage = errors.New("only JPEG and PNG images can be placed in a PDF")
	// ErrInvalidPage is returned for a page number outside 1..pageCount.
	ErrInvalidPage = errors.New("page number out of range")
	// ErrTooFewDocuments is returned when a merge gets fewer than two documents.
	ErrTooFewDocuments = errors.New("at least two documents are required")
	// ErrNoImages is returned when ImagesToPDF gets no images.
	ErrNoImages = errors.New("at least one image is required")
	// ErrInvalidDocument is returned for input the PDF reader rejects.
	ErrInvalidDocument = errors.New("not a readable PDF document")
)

var disableConfigDir sync.Once

// Config holds the Dispatcher limits.
type Config struct {
	MaxInputBytes int64
	MaxInputs     int
}

// Dispatcher runs PDF operations in-process.
type Dispatcher struct {
	cfg  Config
	conf *model.Configuration
	log  logging.Logger
}

// NewDispatcher creates a Dispatcher with relaxed validation, which accepts
// the slightly malformed files common in the wild.
func NewDispatcher(cfg Config) *Dispatcher {
	disableConfigDir.Do(api.DisableConfigDir)

	if cfg.MaxInputs <= 0 {
		cfg.MaxInputs = DefaultMaxInputs
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &Dispatcher{
		cfg:  cfg,
		conf: conf,
		log:  logging.For("pdf"),
	}
}

// ImagesToPDF places each image on its own page, sized to the image in
// points, in input order.
func (d *Dispatcher) ImagesToPDF(ctx context.Context, images [][]byte) (out []byte, err error) {
	defer d.observe(OpImages, time.Now(), &err)

	if len(images) == 0 {
		return nil, engine.Wrap(engine.KindInvalidOption, ErrNoImages, "")
	}
	if err := d.checkInputs(images); err != nil {
		return nil, err
	}

	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetCompression(true)
	doc.SetAutoPageBreak(false, 0)

	for i, data := range images {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}

		imageType, dims, err := imageInfo(data)
		if err != nil {
			return nil, engine.Wrap(engine.KindUnsupportedFormat, err, fmt.Sprintf("image %d: %v", i+1, err))
		}

		w, h := float64(dims.Width), float64(dims.Height)
		name := "img" + strconv.Itoa(i)
		opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: false}

		doc.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
		doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
		doc.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
		if doc.Err() {
			return nil, engine.Wrap(engine.KindCorruptInput, doc.Error(), fmt.Sprintf("image %d could not be embedded", i+1))
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, engine.Wrap(engine.KindGeneric, err, "failed to write PDF")
	}
	d.log.Debug("built %d-page PDF (%d bytes)", len(images), buf.Len())
	return buf.Bytes(), nil
}

// imageInfo sniffs data and returns the gofpdf image type and dimensions.
func imageInfo(data []byte) (string, media.Dimensions, error) {
	dims, format, err := media.GetDimensions(data)
	if err != nil {
		return "", media.Dimensions{}, ErrUnsupportedImage
	}
	switch format {
	case "jpeg":
		return "JPG", dims, nil
	case "png":
		return "PNG", dims, nil
	default:
		return "", media.Dimensions{}, fmt.Errorf("%w (got %s)", ErrUnsupportedImage, format)
	}
}

// Merge concatenates the pages of docs in order.
func (d *Dispatcher) Merge(ctx context.Context, docs [][]byte) (out []byte, err error) {
	defer d.observe(OpMerge, time.Now(), &err)

	if len(docs) < 2 {
		return nil, engine.Wrap(engine.KindInvalidOption, ErrTooFewDocuments, "")
	}
	if err := d.checkInputs(docs); err != nil {
		return nil, err
	}

	readers := make([]io.ReadSeeker, len(docs))
	for i, doc := range docs {
		if _, err := d.pageCount(doc); err != nil {
			return nil, engine.Wrap(engine.KindCorruptInput, err, fmt.Sprintf("document %d is not a readable PDF", i+1))
		}
		readers[i] = bytes.NewReader(doc)
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, d.conf); err != nil {
		return nil, engine.Wrap(engine.KindCorruptInput, err, "failed to merge documents")
	}
	return buf.Bytes(), nil
}

// ExtractPage returns a one-page document holding page (1-based) of doc.
func (d *Dispatcher) ExtractPage(ctx context.Context, doc []byte, page int) (out []byte, err error) {
	defer d.observe(OpSplit, time.Now(), &err)

	if err := d.checkInputs([][]byte{doc}); err != nil {
		return nil, err
	}

	total, err := d.pageCount(doc)
	if err != nil {
		return nil, engine.Wrap(engine.KindCorruptInput, err, "document is not a readable PDF")
	}
	if page < 1 || page > total {
		return nil, engine.Wrap(engine.KindInvalidOption, ErrInvalidPage, fmt.Sprintf("page must be between 1 and %d", total))
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(doc), &buf, []string{strconv.Itoa(page)}, d.conf); err != nil {
		return nil, engine.Wrap(engine.KindCorruptInput, err, "failed to extract page")
	}
	return buf.Bytes(), nil
}

// PageCount returns the number of pages in doc.
func (d *Dispatcher) PageCount(ctx context.Context, doc []byte) (n int, err error) {
	defer d.observe(OpPageCount, time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return 0, contextError(err)
	}
	n, err = d.pageCount(doc)
	if err != nil {
		return 0, engine.Wrap(engine.KindCorruptInput, err, "document is not a readable PDF")
	}
	return n, nil
}

func (d *Dispatcher) pageCount(doc []byte) (int, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(doc, "\x00\t\r\n "), []byte("%PDF-")) {
		return 0, ErrInvalidDocument
	}
	n, err := api.PageCount(bytes.NewReader(doc), d.conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return n, nil
}

func (d *Dispatcher) checkInputs(inputs [][]byte) error {
	if len(inputs) > d.cfg.MaxInputs {
		return engine.Errorf(engine.KindInvalidOption, "%d files given, the limit is %d", len(inputs), d.cfg.MaxInputs)
	}
	var total int64
	for i, in := range inputs {
		if len(in) == 0 {
			return engine.Errorf(engine.KindInvalidOption, "file %d is empty", i+1)
		}
		total += int64(len(in))
	}
	if d.cfg.MaxInputBytes > 0 && total > d.cfg.MaxInputBytes {
		return engine.Errorf(engine.KindInvalidOption, "files total %d bytes, the limit is %d", total, d.cfg.MaxInputBytes)
	}
	return nil
}

func (d *Dispatcher) observe(op string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
		metrics.ConversionErrorsTotal.WithLabelValues(string(engine.KindOf(*err))).Inc()
		d.log.Warn("%s failed: %v", op, *err)
	}
	metrics.PDFOperationsTotal.WithLabelValues(op, status).Inc()
	metrics.PDFOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return engine.Wrap(engine.KindEngineTimeout, err, "")
	}
	return engine.Wrap(engine.KindGeneric, err, "operation canceled")
}
