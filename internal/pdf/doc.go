// Package pdf builds, merges and splits PDF documents in-process.
//
// Images are placed with gofpdf, one page per image at the image's pixel
// size in points. Merging, page extraction and page counting use pdfcpu.
// Every error returned by a Dispatcher is an *engine.Error, so callers map
// PDF failures to HTTP statuses the same way as engine failures.
package pdf
