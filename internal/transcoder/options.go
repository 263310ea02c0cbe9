package transcoder

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"media-converter/internal/engine"
	"media-converter/internal/mediatypes"
	"media-converter/internal/quality"
)

// Knob limits.
const (
	MinFPS        = 1
	MaxFPS        = 120
	DefaultGIFFPS = 10
	MaxSampleRate = 384000
	MinSpeed      = 0.01
	MaxSpeed      = 100.0
)

// Options are the caller's optional conversion knobs. Zero values mean
// "not set". Knobs that do not apply to the output are ignored.
type Options struct {
	Resolution string  `json:"resolution,omitempty"` // "WxH", "W:H" or "original"
	FPS        int     `json:"fps,omitempty"`
	Bitrate    string  `json:"bitrate,omitempty"` // e.g. "2000k"
	Quality    string  `json:"quality,omitempty"` // low|medium|high
	SampleRate int     `json:"sampleRate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	Speed      float64 `json:"speed,omitempty"` // video to GIF only
}

// Request is a validated conversion. It is not modified after NewRequest.
type Request struct {
	InputExt       string
	OutputExt      string
	InputCategory  mediatypes.Category
	OutputCategory mediatypes.Category

	// Scale is false for "original" or no resolution. Width and Height may
	// be -1 or -2 to keep the aspect ratio.
	Scale  bool
	Width  int
	Height int

	FPS        int
	Bitrate    int64 // bits per second, 0 when unset
	Quality    quality.Level
	SampleRate int
	Channels   int
	Codec      string
	Speed      float64
}

// IsGIF reports whether the output goes through the palette pipeline.
func (r Request) IsGIF() bool { return r.OutputExt == "gif" }

// HasSpeedChange reports whether a timestamp rescale is needed.
func (r Request) HasSpeedChange() bool { return r.Speed != 1.0 }

var codecPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

// NewRequest validates the extensions and knobs. The returned error is an
// *engine.Error of kind UnsupportedFormat or InvalidOption.
func NewRequest(inputExt, outputExt string, opts Options) (Request, error) {
	in := mediatypes.NormalizeExt(inputExt)
	out := mediatypes.NormalizeExt(outputExt)

	if !mediatypes.IsInput(in) {
		return Request{}, engine.Errorf(engine.KindUnsupportedFormat, "unsupported input format %q", in)
	}
	if !mediatypes.IsOutput(out) {
		return Request{}, engine.Errorf(engine.KindUnsupportedFormat, "unsupported output format %q", out)
	}
	if !mediatypes.IsSupportedConversion(in, out) {
		return Request{}, engine.Errorf(engine.KindUnsupportedFormat, "conversion from %s to %s is not supported", in, out)
	}

	req := Request{
		InputExt:       in,
		OutputExt:      out,
		InputCategory:  mediatypes.Classify(in),
		OutputCategory: mediatypes.Classify(out),
	}
	if err := req.applyOptions(opts); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (r *Request) applyOptions(opts Options) error {
	level, err := quality.ParseLevel(opts.Quality)
	if err != nil {
		return engine.Wrap(engine.KindInvalidOption, err, "quality must be low, medium or high")
	}
	r.Quality = level

	r.Scale, r.Width, r.Height, err = ParseResolution(opts.Resolution)
	if err != nil {
		return err
	}

	if opts.FPS != 0 && (opts.FPS < MinFPS || opts.FPS > MaxFPS) {
		return engine.Errorf(engine.KindInvalidOption, "fps must be between %d and %d", MinFPS, MaxFPS)
	}
	r.FPS = opts.FPS

	if strings.TrimSpace(opts.Bitrate) != "" {
		bps, err := quality.ParseBitrate(opts.Bitrate)
		if err != nil {
			return engine.Wrap(engine.KindInvalidOption, err, "bitrate must look like 2000k, 2M or 128000")
		}
		r.Bitrate = bps
	}

	if opts.SampleRate < 0 || opts.SampleRate > MaxSampleRate {
		return engine.Errorf(engine.KindInvalidOption, "sample rate must be between 1 and %d", MaxSampleRate)
	}
	r.SampleRate = opts.SampleRate

	if opts.Channels != 0 && opts.Channels != 1 && opts.Channels != 2 {
		return engine.Errorf(engine.KindInvalidOption, "channels must be 1 or 2")
	}
	r.Channels = opts.Channels

	if c := strings.ToLower(strings.TrimSpace(opts.Codec)); c != "" {
		if !codecPattern.MatchString(c) {
			return engine.Errorf(engine.KindInvalidOption, "invalid codec name %q", opts.Codec)
		}
		r.Codec = c
	}
	// A stream copy cannot be filtered or re-encoded, so scale, fps and
	// rate knobs are ignored for it (see Build).

	switch {
	case opts.Speed == 0:
		r.Speed = 1.0
	case math.IsNaN(opts.Speed) || opts.Speed < MinSpeed || opts.Speed > MaxSpeed:
		return engine.Errorf(engine.KindInvalidOption, "speed must be between %g and %g", MinSpeed, MaxSpeed)
	default:
		r.Speed = opts.Speed
	}

	return nil
}

// ParseResolution parses "WxH" or "W:H". Empty and "original" mean no
// scaling. Either side may be -1 or -2 to follow the other.
func ParseResolution(s string) (scale bool, width, height int, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "original" {
		return false, 0, 0, nil
	}

	sep := "x"
	if strings.Contains(s, ":") {
		sep = ":"
	}
	ws, hs, ok := strings.Cut(s, sep)
	if !ok {
		return false, 0, 0, engine.Errorf(engine.KindInvalidOption, "resolution must be WxH or original, got %q", s)
	}

	w, werr := strconv.Atoi(strings.TrimSpace(ws))
	h, herr := strconv.Atoi(strings.TrimSpace(hs))
	if werr != nil || herr != nil || !validDimension(w) || !validDimension(h) || (w < 0 && h < 0) {
		return false, 0, 0, engine.Errorf(engine.KindInvalidOption, "invalid resolution %q", s)
	}
	return true, w, h, nil
}

func validDimension(d int) bool {
	return d == -1 || d == -2 || (d > 0 && d <= 16384)
}
