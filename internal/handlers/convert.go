package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-converter/internal/cache"
	"media-converter/internal/database"
	"media-converter/internal/delivery"
	"media-converter/internal/engine"
	"media-converter/internal/mediatypes"
	"media-converter/internal/metrics"
	"media-converter/internal/middleware"
	"media-converter/internal/streaming"
	"media-converter/internal/transcoder"

	"github.com/google/uuid"
)

// Operation names recorded in the history.
const (
	opConvert = "convert"
	opGIF     = "gif"
)

// DeliveryResponse is returned instead of the file when outputs go to a
// storage backend.
type DeliveryResponse struct {
	ID           string            `json:"id"`
	OutputFormat string            `json:"outputFormat"`
	MimeType     string            `json:"mimeType"`
	Size         int64             `json:"size"`
	Cached       bool              `json:"cached"`
	Location     delivery.Location `json:"location"`
}

// output is a finished conversion on its way back to the caller.
type output struct {
	operation      string
	inputExt       string
	inputCategory  mediatypes.Category
	inputBytes     int64
	outputExt      string
	outputCategory mediatypes.Category
	mimeType       string
	filename       string
	data           []byte
	cached         bool
	started        time.Time
}

// Convert converts one uploaded file.
// POST /api/convert
//
// Form fields: file, outputFormat, resolution, fps, bitrate, quality,
// sampleRate, channels, codec, playbackSpeed (or speed), and optionally
// inputFormat to override the file name's extension.
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	release, ok := h.admit(w, r)
	if !ok {
		return
	}
	defer release()

	if err := h.parseForm(w, r); err != nil {
		writeError(w, err)
		return
	}

	data, header, err := readFormFile(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}

	inputExt := mediatypes.NormalizeExt(r.FormValue("inputFormat"))
	if inputExt == "" {
		inputExt = mediatypes.NormalizeExt(filepath.Ext(header.Filename))
	}
	inputCategory := mediatypes.Classify(inputExt)

	outputExt := mediatypes.NormalizeExt(r.FormValue("outputFormat"))
	if outputExt == "" {
		outputExt = mediatypes.DefaultOutput(inputCategory)
	}

	opts, err := parseOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.UploadBytes.WithLabelValues(string(inputCategory)).Observe(float64(len(data)))
	logger.Debug("convert %s (%d bytes) to %s", header.Filename, len(data), outputExt)

	out := output{
		operation:      opConvert,
		inputExt:       inputExt,
		inputCategory:  inputCategory,
		inputBytes:     int64(len(data)),
		outputExt:      outputExt,
		outputCategory: mediatypes.Classify(outputExt),
		filename:       "converted." + outputExt,
		started:        start,
	}

	key := cache.Key(data, opConvert, inputExt, outputExt, optionsKey(opts))
	if h.fromCache(key, &out) {
		h.finish(w, r, out)
		return
	}

	result, err := h.converter.Convert(r.Context(), data, inputExt, outputExt, opts)
	if err != nil {
		h.fail(r.Context(), out, err)
		writeError(w, err)
		return
	}

	out.data = result.Data
	out.mimeType = result.MimeType
	h.storeCache(key, out)
	h.finish(w, r, out)
}

// GIF builds an animated GIF from uploaded still images.
// POST /api/gif
//
// Form fields: files (one or more, in frame order), fps, quality, resolution.
func (h *Handlers) GIF(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	release, ok := h.admit(w, r)
	if !ok {
		return
	}
	defer release()

	if err := h.parseForm(w, r); err != nil {
		writeError(w, err)
		return
	}

	images, err := readFormFiles(r, "files")
	if err != nil {
		writeError(w, err)
		return
	}

	opts, err := parseOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var total int64
	for _, img := range images {
		total += int64(len(img))
	}
	metrics.UploadBytes.WithLabelValues(string(mediatypes.CategoryImage)).Observe(float64(total))

	out := output{
		operation:      opGIF,
		inputExt:       "png",
		inputCategory:  mediatypes.CategoryImage,
		inputBytes:     total,
		outputExt:      "gif",
		outputCategory: mediatypes.CategoryVideo,
		filename:       "animated.gif",
		started:        start,
	}

	result, err := h.converter.ImagesToGIF(r.Context(), images, opts)
	if err != nil {
		h.fail(r.Context(), out, err)
		writeError(w, err)
		return
	}

	out.data = result.Data
	out.mimeType = result.MimeType
	h.finish(w, r, out)
}

// admit reserves memory for the request body. It writes 503 and returns
// false when the memory monitor refuses.
func (h *Handlers) admit(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.memory == nil {
		return func() {}, true
	}
	size := r.ContentLength
	if size < 0 {
		size = h.maxUploadSize
	}
	release, ok := h.memory.Admit(size)
	if !ok {
		logger.Warn("refusing %s %s: memory pressure", r.Method, r.URL.Path)
		w.Header().Set("Retry-After", "5")
		writeJSONError(w, "Server is busy, try again shortly", http.StatusServiceUnavailable)
		return nil, false
	}
	return release, true
}

// parseForm limits the body and parses the multipart form.
func (h *Handlers) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return tooLarge
		}
		if strings.Contains(err.Error(), "request body too large") {
			return &http.MaxBytesError{Limit: h.maxUploadSize + multipartOverhead}
		}
		return engine.Wrap(engine.KindInvalidOption, err, "Request must be multipart/form-data")
	}
	return nil
}

func readFormFile(r *http.Request, field string) ([]byte, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, engine.Errorf(engine.KindInvalidOption, "No file uploaded in field %q", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, engine.Wrap(engine.KindGeneric, err, "Failed to read upload")
	}
	return data, header, nil
}

func readFormFiles(r *http.Request, field string) ([][]byte, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, engine.Errorf(engine.KindInvalidOption, "No files uploaded in field %q", field)
	}

	headers := r.MultipartForm.File[field]
	out := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, engine.Wrap(engine.KindGeneric, err, "Failed to open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, engine.Wrap(engine.KindGeneric, err, "Failed to read upload")
	}
	return data, nil
}

// parseOptions reads the conversion knobs. Empty fields are left unset.
func parseOptions(r *http.Request) (transcoder.Options, error) {
	opts := transcoder.Options{
		Resolution: strings.TrimSpace(r.FormValue("resolution")),
		Bitrate:    strings.TrimSpace(r.FormValue("bitrate")),
		Quality:    strings.TrimSpace(r.FormValue("quality")),
		Codec:      strings.TrimSpace(r.FormValue("codec")),
	}

	ints := []struct {
		field string
		dst   *int
	}{
		{"fps", &opts.FPS},
		{"sampleRate", &opts.SampleRate},
		{"channels", &opts.Channels},
	}
	for _, f := range ints {
		v := strings.TrimSpace(r.FormValue(f.field))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, engine.Errorf(engine.KindInvalidOption, "%s must be a whole number, got %q", f.field, v)
		}
		*f.dst = n
	}

	speed := strings.TrimSpace(r.FormValue("playbackSpeed"))
	if speed == "" {
		speed = strings.TrimSpace(r.FormValue("speed"))
	}
	if speed != "" {
		s, err := strconv.ParseFloat(speed, 64)
		if err != nil {
			return opts, engine.Errorf(engine.KindInvalidOption, "playbackSpeed must be a number, got %q", speed)
		}
		opts.Speed = s
	}

	return opts, nil
}

// optionsKey is the cache key component for opts.
func optionsKey(o transcoder.Options) string {
	return fmt.Sprintf("r=%s|f=%d|b=%s|q=%s|sr=%d|c=%d|cd=%s|s=%g",
		o.Resolution, o.FPS, o.Bitrate, o.Quality, o.SampleRate, o.Channels, o.Codec, o.Speed)
}

func (h *Handlers) fromCache(key string, out *output) bool {
	if h.cache == nil {
		return false
	}
	data, entry, err := h.cache.Get(key)
	if err != nil {
		logger.Warn("cache lookup failed: %v", err)
		return false
	}
	if entry == nil {
		return false
	}
	out.data = data
	out.mimeType = entry.MimeType
	out.cached = true
	return true
}

func (h *Handlers) storeCache(key string, out output) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Put(key, out.outputExt, out.mimeType, out.data); err != nil {
		logger.Warn("failed to cache output: %v", err)
	}
}

// finish records a successful conversion and sends or delivers the output.
func (h *Handlers) finish(w http.ResponseWriter, r *http.Request, out output) {
	ctx := r.Context()
	id := uuid.NewString()

	if _, err := h.usage.Record(ctx, out.inputBytes); err != nil {
		logger.Warn("failed to record usage: %v", err)
	}

	var loc delivery.Location
	if !delivery.IsDirect(h.delivery) {
		var err error
		loc, err = delivery.Deliver(ctx, h.delivery, delivery.Object{
			Name:     delivery.ObjectName(id, out.outputExt),
			MimeType: out.mimeType,
			Data:     out.data,
		})
		if err != nil {
			h.recordHistory(ctx, id, out, engine.Wrap(engine.KindGeneric, err, ""))
			writeJSONError(w, "Failed to deliver the converted file", http.StatusBadGateway)
			return
		}
	}

	h.recordHistory(ctx, id, out, nil)

	w.Header().Set("X-Conversion-Id", id)
	if out.cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}

	if !delivery.IsDirect(h.delivery) {
		writeJSONStatus(w, http.StatusOK, DeliveryResponse{
			ID:           id,
			OutputFormat: out.outputExt,
			MimeType:     out.mimeType,
			Size:         int64(len(out.data)),
			Cached:       out.cached,
			Location:     loc,
		})
		return
	}

	err := streaming.WriteOutput(ctx, w, streaming.Output{
		Data:     out.data,
		MimeType: out.mimeType,
		Filename: out.filename,
	}, h.streaming)
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logger.Warn("failed to send output [%s]: %v", middleware.RequestIDFrom(ctx), err)
	}
}

// fail records a failed conversion.
func (h *Handlers) fail(ctx context.Context, out output, err error) {
	h.recordHistory(ctx, uuid.NewString(), out, err)
}

func (h *Handlers) recordHistory(ctx context.Context, id string, out output, convErr error) {
	if h.history == nil {
		return
	}

	c := &database.Conversion{
		ID:             id,
		Operation:      out.operation,
		InputExt:       out.inputExt,
		OutputExt:      out.outputExt,
		InputCategory:  string(out.inputCategory),
		OutputCategory: string(out.outputCategory),
		InputBytes:     out.inputBytes,
		OutputBytes:    int64(len(out.data)),
		Duration:       float64(time.Since(out.started).Microseconds()) / 1000,
		Status:         database.StatusSuccess,
		Cached:         out.cached,
		Backend:        h.delivery.Name(),
	}
	if convErr != nil {
		c.Status = database.StatusFailed
		c.ErrorKind = string(engine.KindOf(convErr))
	}

	// The request context may already be canceled; history is still written.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.history.Record(recordCtx, c); err != nil {
		logger.Warn("failed to record history: %v", err)
	}
}
