package transcoder

import (
	"math"
	"testing"

	"media-converter/internal/engine"
	"media-converter/internal/mediatypes"
	"media-converter/internal/quality"
)

func TestNewRequestFormats(t *testing.T) {
	tests := []struct {
		name     string
		in, out  string
		wantKind engine.ErrorKind
	}{
		{"video to video", "mov", "mp4", ""},
		{"video to audio", "mp4", "mp3", ""},
		{"video to image", "mkv", "png", ""},
		{"video to gif", "mp4", "gif", ""},
		{"gif to video", "gif", "webm", ""},
		{"audio to audio", "wav", "flac", ""},
		{"image to image", "png", "webp", ""},
		{"uppercase with dot", ".MP4", "MP3", ""},
		{"audio to video", "mp3", "mp4", engine.KindUnsupportedFormat},
		{"image to video", "png", "mp4", engine.KindUnsupportedFormat},
		{"image to gif", "jpg", "gif", engine.KindUnsupportedFormat},
		{"audio to image", "mp3", "png", engine.KindUnsupportedFormat},
		{"unknown input", "xyz", "mp4", engine.KindUnsupportedFormat},
		{"unknown output", "mp4", "xyz", engine.KindUnsupportedFormat},
		{"svg input", "svg", "png", engine.KindUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest(tt.in, tt.out, Options{})
			if got := engine.KindOf(err); got != tt.wantKind {
				t.Errorf("Expected kind %q, got %q (%v)", tt.wantKind, got, err)
			}
		})
	}
}

func TestNewRequestNormalizes(t *testing.T) {
	req, err := NewRequest(".MOV", "Mp4", Options{})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if req.InputExt != "mov" || req.OutputExt != "mp4" {
		t.Errorf("Expected mov->mp4, got %s->%s", req.InputExt, req.OutputExt)
	}
	if req.InputCategory != mediatypes.CategoryVideo || req.OutputCategory != mediatypes.CategoryVideo {
		t.Errorf("Expected video categories, got %s/%s", req.InputCategory, req.OutputCategory)
	}
	if req.Speed != 1.0 {
		t.Errorf("Expected default speed 1.0, got %v", req.Speed)
	}
	if req.Quality != quality.LevelUnset {
		t.Errorf("Expected unset quality, got %v", req.Quality)
	}
}

func TestNewRequestOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"empty", Options{}, false},
		{"quality high", Options{Quality: "high"}, false},
		{"quality korean", Options{Quality: "보통"}, false},
		{"quality unknown", Options{Quality: "ultra"}, true},
		{"fps min", Options{FPS: 1}, false},
		{"fps max", Options{FPS: 120}, false},
		{"fps too high", Options{FPS: 121}, true},
		{"fps negative", Options{FPS: -5}, true},
		{"bitrate k", Options{Bitrate: "2000k"}, false},
		{"bitrate M", Options{Bitrate: "2M"}, false},
		{"bitrate garbage", Options{Bitrate: "fast"}, true},
		{"bitrate zero", Options{Bitrate: "0"}, true},
		{"sample rate", Options{SampleRate: 44100}, false},
		{"sample rate too high", Options{SampleRate: 1_000_000}, true},
		{"sample rate negative", Options{SampleRate: -1}, true},
		{"mono", Options{Channels: 1}, false},
		{"stereo", Options{Channels: 2}, false},
		{"surround rejected", Options{Channels: 6}, true},
		{"codec", Options{Codec: "libx265"}, false},
		{"codec injection", Options{Codec: "libx264 -y"}, true},
		{"codec flag", Options{Codec: "-c:v"}, true},
		{"speed", Options{Speed: 2}, false},
		{"speed negative", Options{Speed: -1}, true},
		{"speed NaN", Options{Speed: math.NaN()}, true},
		{"speed Inf", Options{Speed: math.Inf(1)}, true},
		{"speed too fast", Options{Speed: 20001}, true},
		{"speed too slow", Options{Speed: 0.001}, true},
		{"speed at max", Options{Speed: MaxSpeed}, false},
		{"speed at min", Options{Speed: MinSpeed}, false},
		{"resolution", Options{Resolution: "1280x720"}, false},
		{"resolution bad", Options{Resolution: "big"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest("mp4", "mp4", tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && engine.KindOf(err) != engine.KindInvalidOption {
				t.Errorf("Expected InvalidOption, got %s", engine.KindOf(err))
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		scale   bool
		w, h    int
		wantErr bool
	}{
		{"", false, 0, 0, false},
		{"original", false, 0, 0, false},
		{" Original ", false, 0, 0, false},
		{"1280x720", true, 1280, 720, false},
		{"640:480", true, 640, 480, false},
		{"1280X720", true, 1280, 720, false},
		{"640x-2", true, 640, -2, false},
		{"-1:360", true, -1, 360, false},
		{"-1x-1", false, 0, 0, true},
		{"0x720", false, 0, 0, true},
		{"1280", false, 0, 0, true},
		{"axb", false, 0, 0, true},
		{"20000x100", false, 0, 0, true},
		{"-3x100", false, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			scale, w, h, err := ParseResolution(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if scale != tt.scale || w != tt.w || h != tt.h {
				t.Errorf("Expected (%v, %d, %d), got (%v, %d, %d)", tt.scale, tt.w, tt.h, scale, w, h)
			}
		})
	}
}

func TestHasSpeedChange(t *testing.T) {
	req, _ := NewRequest("mp4", "gif", Options{})
	if req.HasSpeedChange() {
		t.Error("Expected no speed change by default")
	}
	req, _ = NewRequest("mp4", "gif", Options{Speed: 1})
	if req.HasSpeedChange() {
		t.Error("Expected no speed change at 1.0")
	}
	req, _ = NewRequest("mp4", "gif", Options{Speed: 0.5})
	if !req.HasSpeedChange() {
		t.Error("Expected speed change at 0.5")
	}
}
