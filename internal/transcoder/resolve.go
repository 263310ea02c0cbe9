package transcoder

import (
	"errors"

	"media-converter/internal/logging"
	"media-converter/internal/mediatypes"
	"media-converter/internal/metrics"
	"media-converter/internal/quality"
)

// profile describes how an output extension is muxed and encoded.
type profile struct {
	muxer     string
	video     string
	audio     string
	faststart bool
	// image outputs: the encoder ffmpeg picks from the extension
	implied string
}

var profiles = map[string]profile{
	"mp4":  {muxer: "mp4", video: "libx264", audio: "aac", faststart: true},
	"m4v":  {muxer: "mp4", video: "libx264", audio: "aac", faststart: true},
	"mov":  {muxer: "mov", video: "libx264", audio: "aac", faststart: true},
	"3gp":  {muxer: "3gp", video: "libx264", audio: "aac", faststart: true},
	"mkv":  {muxer: "matroska", video: "libx264", audio: "aac"},
	"avi":  {muxer: "avi", video: "libx264", audio: "libmp3lame"},
	"flv":  {muxer: "flv", video: "libx264", audio: "libmp3lame"},
	"webm": {muxer: "webm", video: "libvpx-vp9", audio: "libopus"},
	"wmv":  {muxer: "asf", video: "wmv2", audio: "wmav2"},
	"gif":  {muxer: "gif", video: "gif"},

	"mp3":  {muxer: "mp3", audio: "libmp3lame"},
	"wav":  {muxer: "wav", audio: "pcm_s16le"},
	"flac": {muxer: "flac", audio: "flac"},
	"aac":  {muxer: "adts", audio: "aac"},
	"ogg":  {muxer: "ogg", audio: "libvorbis"},
	"m4a":  {muxer: "mp4", audio: "aac", faststart: true},
	"wma":  {muxer: "asf", audio: "wmav2"},
	"opus": {muxer: "opus", audio: "libopus"},

	"jpg":  {muxer: "image2", implied: "mjpeg"},
	"jpeg": {muxer: "image2", implied: "mjpeg"},
	"png":  {muxer: "image2", implied: "png"},
	"bmp":  {muxer: "image2", implied: "bmp"},
	"tiff": {muxer: "image2", implied: "tiff"},
	"webp": {muxer: "image2", implied: "libwebp"},
}

// Params are the engine parameters derived from a Request.
type Params struct {
	Muxer      string
	VideoCodec string // empty for audio and image outputs
	AudioCodec string // empty for image outputs and GIF

	// VideoQuality drives the video stream, or the still image encoder for
	// image outputs. Nil when the codec is lossless.
	VideoQuality *quality.Setting
	// AudioQuality is nil when an explicit bitrate replaces it or the codec
	// is lossless.
	AudioQuality *quality.Setting

	Preset    string // x264 only
	CPUUsed   int    // libvpx only
	FastStart bool

	// GIF palette pipeline
	PaletteColors int
	Dither        string
	Optimize      int
}

var logger = logging.For("transcoder")

// Resolve derives codec choice and quality parameters for req.
func Resolve(req Request) Params {
	prof := profiles[req.OutputExt]
	p := Params{Muxer: prof.muxer, FastStart: prof.faststart}

	switch {
	case req.IsGIF():
		p.PaletteColors = quality.PaletteColors(req.Quality)
		p.Dither = quality.DitherMode(req.Quality)
		p.Optimize = quality.OptimizeLevel(req.Quality)

	case req.OutputCategory == mediatypes.CategoryImage:
		p.VideoQuality = lookup(req.OutputExt, prof.implied, req.Quality, false)

	case req.OutputCategory == mediatypes.CategoryAudio:
		p.AudioCodec = prof.audio
		if req.Codec != "" {
			p.AudioCodec = req.Codec
		}
		// An explicit bitrate is the audio quality parameter.
		if req.Bitrate == 0 {
			p.AudioQuality = lookup(req.OutputExt, p.AudioCodec, req.Quality, false)
		}

	case req.OutputCategory == mediatypes.CategoryVideo:
		p.VideoCodec = prof.video
		if req.Codec != "" {
			p.VideoCodec = req.Codec
		}
		p.AudioCodec = prof.audio
		p.VideoQuality = lookup(req.OutputExt, p.VideoCodec, req.Quality, true)
		p.AudioQuality = lookup(req.OutputExt, p.AudioCodec, req.Quality, false)

		switch p.VideoCodec {
		case "libx264":
			p.Preset = quality.MapPreset(req.Quality)
		case "libvpx-vp9", "libvpx":
			p.CPUUsed = quality.MapCPUUsed(req.Quality)
		}
	}

	return p
}

// lookup resolves the quality setting for codec. Video codecs without a
// table row fall back to a medium CRF; other codecs get no quality flag.
// Both fallbacks are logged.
func lookup(container, codec string, level quality.Level, video bool) *quality.Setting {
	if codec == "" || codec == codecCopy || quality.IsLossless(codec) {
		return nil
	}

	s, err := quality.Lookup(container, codec, level)
	if err == nil {
		return &s
	}
	if !errors.Is(err, quality.ErrNoQualityTable) {
		logger.Warn("quality lookup for %s failed: %v", codec, err)
		return nil
	}

	metrics.QualityFallbacksTotal.WithLabelValues(codec).Inc()
	if video {
		fb := quality.VideoFallback(codec)
		logger.Warn("no quality table for video codec %s, using %s %s", codec, fb.Flag, fb.Token())
		return &fb
	}
	logger.Warn("no quality table for codec %s, leaving quality to the encoder", codec)
	return nil
}
