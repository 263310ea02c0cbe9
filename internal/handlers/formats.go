package handlers

import (
	"encoding/json"
	"net/http"

	"media-converter/internal/mediatypes"
)

// FormatsResponse is the format registry plus the outputs reachable from
// each input category.
type FormatsResponse struct {
	mediatypes.Formats
	Available map[mediatypes.Category][]string `json:"available"`
	Defaults  map[mediatypes.Category]string   `json:"defaults"`
}

// CheckConversionRequest is the body of POST /api/check-conversion.
type CheckConversionRequest struct {
	InputFormat  string `json:"inputFormat"`
	OutputFormat string `json:"outputFormat"`
}

// CheckConversionResponse reports whether a conversion is allowed.
type CheckConversionResponse struct {
	Supported      bool                `json:"supported"`
	InputCategory  mediatypes.Category `json:"inputCategory,omitempty"`
	OutputCategory mediatypes.Category `json:"outputCategory,omitempty"`
}

// GetFormats lists the supported formats.
// GET /api/formats
func (h *Handlers) GetFormats(w http.ResponseWriter, _ *http.Request) {
	resp := FormatsResponse{
		Formats:   mediatypes.SupportedFormats(),
		Available: make(map[mediatypes.Category][]string, len(mediatypes.Categories)),
		Defaults:  make(map[mediatypes.Category]string, len(mediatypes.Categories)),
	}
	for _, c := range mediatypes.Categories {
		resp.Available[c] = mediatypes.AvailableOutputs(c)
		resp.Defaults[c] = mediatypes.DefaultOutput(c)
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSONStatus(w, http.StatusOK, resp)
}

// CheckConversion reports whether inputFormat can be converted to
// outputFormat.
// POST /api/check-conversion
func (h *Handlers) CheckConversion(w http.ResponseWriter, r *http.Request) {
	var req CheckConversionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.InputFormat == "" || req.OutputFormat == "" {
		writeJSONError(w, "inputFormat and outputFormat are required", http.StatusBadRequest)
		return
	}

	writeJSONStatus(w, http.StatusOK, CheckConversionResponse{
		Supported:      mediatypes.IsSupportedConversion(req.InputFormat, req.OutputFormat),
		InputCategory:  mediatypes.Classify(mediatypes.NormalizeExt(req.InputFormat)),
		OutputCategory: mediatypes.Classify(mediatypes.NormalizeExt(req.OutputFormat)),
	})
}
