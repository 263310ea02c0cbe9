package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"media-converter/internal/engine"
	"media-converter/internal/mediatypes"
	"media-converter/internal/pdf"
)

// PDF runs a document operation.
// POST /api/pdf
//
// Form fields: operation (images, merge or split), files, and for split a
// single file plus page (default 1).
func (h *Handlers) PDF(w http.ResponseWriter, r *http.Request) {
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

	op := strings.ToLower(strings.TrimSpace(r.FormValue("operation")))
	out := output{
		operation:      "pdf_" + op,
		outputExt:      "pdf",
		outputCategory: mediatypes.CategoryUnknown,
		mimeType:       mediatypes.GetMimeType("pdf"),
		started:        start,
	}

	var (
		data []byte
		err  error
	)
	switch op {
	case pdf.OpImages:
		var images [][]byte
		if images, err = readFormFiles(r, "files"); err == nil {
			out.inputExt, out.inputCategory = "image", mediatypes.CategoryImage
			out.inputBytes = totalBytes(images)
			out.filename = "converted.pdf"
			data, err = h.pdf.ImagesToPDF(r.Context(), images)
		}

	case pdf.OpMerge:
		var docs [][]byte
		if docs, err = readFormFiles(r, "files"); err == nil {
			out.inputExt = "pdf"
			out.inputBytes = totalBytes(docs)
			out.filename = "merged.pdf"
			data, err = h.pdf.Merge(r.Context(), docs)
		}

	case pdf.OpSplit:
		var (
			doc  []byte
			page int
		)
		if doc, err = readSingleDocument(r); err == nil {
			if page, err = parsePage(r.FormValue("page")); err == nil {
				out.inputExt = "pdf"
				out.inputBytes = int64(len(doc))
				out.filename = fmt.Sprintf("page-%d.pdf", page)
				data, err = h.pdf.ExtractPage(r.Context(), doc, page)
			}
		}

	default:
		writeError(w, engine.Errorf(engine.KindInvalidOption, "Unknown operation %q (expected images, merge or split)", op))
		return
	}

	if err != nil {
		h.fail(r.Context(), out, err)
		writeError(w, err)
		return
	}

	out.data = data
	h.finish(w, r, out)
}

// PageCount reports the number of pages of an uploaded document.
// POST /api/pdf/pages
func (h *Handlers) PageCount(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		writeError(w, err)
		return
	}
	doc, err := readSingleDocument(r)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := h.pdf.PageCount(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]int{"pages": n})
}

// readSingleDocument accepts the document in "file" or as the first of "files".
func readSingleDocument(r *http.Request) ([]byte, error) {
	if r.MultipartForm != nil {
		if fhs := r.MultipartForm.File["file"]; len(fhs) > 0 {
			return readPart(fhs[0])
		}
		if fhs := r.MultipartForm.File["files"]; len(fhs) > 0 {
			return readPart(fhs[0])
		}
	}
	return nil, engine.Errorf(engine.KindInvalidOption, "No PDF uploaded")
}

func parsePage(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(v)
	if err != nil {
		return 0, engine.Errorf(engine.KindInvalidOption, "page must be a whole number, got %q", v)
	}
	return page, nil
}

func totalBytes(parts [][]byte) int64 {
	var n int64
	for _, p := range parts {
		n += int64(len(p))
	}
	return n
}
