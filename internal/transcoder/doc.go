// Package transcoder converts audio, video and image files through an
// engine.Invoker.
//
// It covers:
//   - Request validation against the format registry and knob limits
//   - Codec and quality resolution per output container
//   - Single-pass ffmpeg argument construction
//   - The three-stage GIF palette pipeline with an optional gifsicle pass
//   - Still images to animated GIF
//
// Each conversion runs in its own scratch directory under the configured
// work directory. The directory is removed when the conversion ends.
package transcoder
