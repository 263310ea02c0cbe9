package mediatypes

import (
	"strings"
)

// Category is the coarse classification of a file format.
type Category string

const (
	// CategoryVideo covers video containers and animated GIF.
	CategoryVideo Category = "video"
	// CategoryAudio covers audio-only containers.
	CategoryAudio Category = "audio"
	// CategoryImage covers still image formats.
	CategoryImage Category = "image"
	// CategoryUnknown is returned for unrecognized extensions.
	CategoryUnknown Category = ""
)

// Categories lists the recognized categories in classification order.
var Categories = []Category{CategoryVideo, CategoryAudio, CategoryImage}

// FormatList holds the input and output extensions of one category.
type FormatList struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

// Formats is the full registry keyed by category.
type Formats struct {
	Video FormatList `json:"video"`
	Audio FormatList `json:"audio"`
	Image FormatList `json:"image"`
}

// GIF is a video format in both directions. SVG is not recognized.
var registry = map[Category]FormatList{
	CategoryVideo: {
		Input:  []string{"mp4", "avi", "mov", "mkv", "webm", "flv", "wmv", "m4v", "3gp", "gif"},
		Output: []string{"mp4", "avi", "mov", "mkv", "webm", "flv", "wmv", "m4v", "3gp", "gif"},
	},
	CategoryAudio: {
		Input:  []string{"mp3", "wav", "flac", "aac", "ogg", "m4a", "wma", "opus"},
		Output: []string{"mp3", "wav", "flac", "aac", "ogg", "m4a", "wma", "opus"},
	},
	CategoryImage: {
		Input:  []string{"jpg", "jpeg", "png", "bmp", "tiff", "webp"},
		Output: []string{"jpg", "jpeg", "png", "bmp", "tiff", "webp"},
	},
}

// Extra outputs reachable from a video input by frame or track extraction.
var videoExtractOutputs = []string{"jpg", "png", "webp", "mp3", "aac", "wav"}

var defaultOutputs = map[Category]string{
	CategoryVideo: "mp4",
	CategoryAudio: "mp3",
	CategoryImage: "jpg",
}

var (
	inputIndex  = buildIndex(func(l FormatList) []string { return l.Input })
	outputIndex = buildIndex(func(l FormatList) []string { return l.Output })
)

func buildIndex(pick func(FormatList) []string) map[string]Category {
	index := make(map[string]Category)
	for _, c := range Categories {
		for _, ext := range pick(registry[c]) {
			if _, seen := index[ext]; !seen {
				index[ext] = c
			}
		}
	}
	return index
}

// MimeTypes maps extensions to their MIME types.
var MimeTypes = map[string]string{
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"mkv":  "video/x-matroska",
	"webm": "video/webm",
	"flv":  "video/x-flv",
	"wmv":  "video/x-ms-wmv",
	"m4v":  "video/x-m4v",
	"3gp":  "video/3gpp",
	"gif":  "image/gif",

	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"m4a":  "audio/mp4",
	"wma":  "audio/x-ms-wma",
	"opus": "audio/opus",

	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",

	"pdf": "application/pdf",
}

// NormalizeExt lowercases an extension and strips everything up to the last
// dot, so "clip.MP4", ".mp4" and "mp4" all become "mp4".
func NormalizeExt(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// Classify returns the category of an extension, checking input lists before
// output lists. Unrecognized extensions return CategoryUnknown.
func Classify(ext string) Category {
	ext = NormalizeExt(ext)
	if c, ok := inputIndex[ext]; ok {
		return c
	}
	if c, ok := outputIndex[ext]; ok {
		return c
	}
	return CategoryUnknown
}

// IsInput reports whether ext is accepted as a conversion source.
func IsInput(ext string) bool {
	_, ok := inputIndex[NormalizeExt(ext)]
	return ok
}

// IsOutput reports whether ext can be produced.
func IsOutput(ext string) bool {
	_, ok := outputIndex[NormalizeExt(ext)]
	return ok
}

// IsSupportedCategoryPair allows same-category conversions plus video to
// audio (track extraction) and video to image (frame extraction).
func IsSupportedCategoryPair(in, out Category) bool {
	if in == CategoryUnknown || out == CategoryUnknown {
		return false
	}
	if in == out {
		return true
	}
	return in == CategoryVideo && (out == CategoryAudio || out == CategoryImage)
}

// IsSupportedConversion reports whether inputExt can be converted to outputExt.
// Unrecognized extensions on either side are never supported.
func IsSupportedConversion(inputExt, outputExt string) bool {
	in, ok := inputIndex[NormalizeExt(inputExt)]
	if !ok {
		return false
	}
	out, ok := outputIndex[NormalizeExt(outputExt)]
	if !ok {
		return false
	}
	return IsSupportedCategoryPair(in, out)
}

// SupportedFormats returns a copy of the registry.
func SupportedFormats() Formats {
	cp := func(c Category) FormatList {
		l := registry[c]
		return FormatList{
			Input:  append([]string(nil), l.Input...),
			Output: append([]string(nil), l.Output...),
		}
	}
	return Formats{
		Video: cp(CategoryVideo),
		Audio: cp(CategoryAudio),
		Image: cp(CategoryImage),
	}
}

// AvailableOutputs lists the output extensions reachable from a category.
func AvailableOutputs(c Category) []string {
	l, ok := registry[c]
	if !ok {
		return nil
	}
	outs := append([]string(nil), l.Output...)
	if c == CategoryVideo {
		outs = append(outs, videoExtractOutputs...)
	}
	return outs
}

// DefaultOutput returns the output used when a caller names none.
func DefaultOutput(c Category) string {
	return defaultOutputs[c]
}

// GetMimeType returns the MIME type for an extension, or
// "application/octet-stream" when unknown.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[NormalizeExt(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}
