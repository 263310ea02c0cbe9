// Package mediatypes is the format registry of the converter.
//
// It holds the static tables of recognized extensions grouped into the
// video, audio and image categories, and answers two questions before any
// engine is involved:
//
//	mediatypes.Classify("clip.mov")                // CategoryVideo
//	mediatypes.IsSupportedConversion("mov", "mp3") // true, track extraction
//
// # Conversion Rules
//
// A conversion is allowed when both sides share a category, or when a video
// input is converted to audio (track extraction) or to an image (frame
// extraction). Every other cross-category pair is rejected, as is any
// unrecognized extension on either side.
//
// # Policy
//
// GIF is classified as video, both as input and as output: it is produced by
// the palette pipeline and consumed as an animation. SVG is not recognized
// since the engine offers no decoder guarantee for it.
//
// The tables are read-only after package initialization and safe for
// concurrent use without locking.
package mediatypes
