package models

import "time"

// Session is one browser's continuous interaction with the page.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// State is the presentation state of a session.
type State string

const (
	StateNoFile     State = "no_file"
	StateFileReady  State = "file_ready"
	StatePredicting State = "predicting"
	StateHasResults State = "has_results"
)
