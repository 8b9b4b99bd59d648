package models

import "time"

// PredictionRequest pairs a query with a stored spreadsheet path.
type PredictionRequest struct {
	Query    string `json:"query"`
	FilePath string `json:"file_path"`
}

// PredictionResult is the remote service's answer: the annotated workbook and
// its relevant-only subset, both as local paths.
type PredictionResult struct {
	Path         string `json:"Path"`
	FilteredPath string `json:"FilteredPath"`
}

type PredictionStatus string

const (
	PredictionSucceeded PredictionStatus = "succeeded"
	PredictionFailed    PredictionStatus = "failed"
	PredictionCanceled  PredictionStatus = "canceled"
)

// Prediction is one trigger recorded in the session history.
type Prediction struct {
	ID           string           `json:"id"`
	SessionID    string           `json:"session_id"`
	Query        string           `json:"query"`
	FilePath     string           `json:"file_path"`
	Status       PredictionStatus `json:"status"`
	ErrorKind    string           `json:"error_kind,omitempty"`
	Path         string           `json:"path,omitempty"`
	FilteredPath string           `json:"filtered_path,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}
