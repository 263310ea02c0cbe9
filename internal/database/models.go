package database

import "time"

// Status is the outcome of a recorded conversion.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Conversion is one row of the conversion history.
type Conversion struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	Operation      string    `json:"operation"`
	InputExt       string    `json:"inputExt"`
	OutputExt      string    `json:"outputExt"`
	InputCategory  string    `json:"inputCategory,omitempty"`
	OutputCategory string    `json:"outputCategory,omitempty"`
	InputBytes     int64     `json:"inputBytes"`
	OutputBytes    int64     `json:"outputBytes"`
	Duration       float64   `json:"durationMs"`
	Status         Status    `json:"status"`
	ErrorKind      string    `json:"errorKind,omitempty"`
	Cached         bool      `json:"cached"`
	Backend        string    `json:"backend,omitempty"`
}

// HistoryStats summarizes the stored history.
type HistoryStats struct {
	Total       int64            `json:"total"`
	Succeeded   int64            `json:"succeeded"`
	Failed      int64            `json:"failed"`
	Cached      int64            `json:"cached"`
	InputBytes  int64            `json:"inputBytes"`
	OutputBytes int64            `json:"outputBytes"`
	ByOutput    map[string]int64 `json:"byOutput"`
	Oldest      time.Time        `json:"oldest,omitempty"`
}
