package models

import "time"

// ResultTable is a spreadsheet loaded as a header plus string rows.
type ResultTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// CachedResult is the latest successful prediction kept for a session.
type CachedResult struct {
	Table        *ResultTable `json:"table"`
	Path         string       `json:"path"`
	FilteredPath string       `json:"filtered_path"`
	Query        string       `json:"query"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
