package models

import "time"

// Upload records where a session's spreadsheet was persisted.
type Upload struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	FileName   string    `json:"file_name"`
	StoredPath string    `json:"stored_path"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}
