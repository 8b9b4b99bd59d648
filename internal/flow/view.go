package flow

import (
	"errors"

	"relevancy/internal/models"
)

// Notices shown to the user. They are plain text and never carry error details.
const (
	NoticeEmptyQuery = "Please enter a query"
	NoticeNoFile     = "Please upload a file first"
	NoticeBusy       = "A prediction is already running"
	NoticeCompleted  = "Relevancy prediction completed."
	NoticeFailed     = "Error: Could not process the query"
	NoticeSaveFailed = "Error: Could not save the uploaded file"

	noticeUnavailablePrefix = "File unavailable: "
)

const MIMETypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type DownloadKind string

const (
	DownloadFull     DownloadKind = "full"
	DownloadRelevant DownloadKind = "relevant"
)

var (
	ErrUnknownDownload = errors.New("unknown download kind")
	ErrNoResult        = errors.New("no prediction result for session")
)

type downloadTarget struct {
	label    string
	fileName string
	path     func(*models.CachedResult) string
}

var downloads = map[DownloadKind]downloadTarget{
	DownloadFull: {
		label:    "Download",
		fileName: "updated_file.xlsx",
		path:     func(r *models.CachedResult) string { return r.Path },
	},
	DownloadRelevant: {
		label:    "Download Relevant",
		fileName: "relevant_only_file.xlsx",
		path:     func(r *models.CachedResult) string { return r.FilteredPath },
	},
}

// downloadOrder fixes the order downloads appear on the page.
var downloadOrder = []DownloadKind{DownloadFull, DownloadRelevant}

// ParseDownloadKind validates a kind coming from a URL.
func ParseDownloadKind(raw string) (DownloadKind, error) {
	kind := DownloadKind(raw)
	if _, ok := downloads[kind]; !ok {
		return "", ErrUnknownDownload
	}
	return kind, nil
}

// Download describes one download control.
type Download struct {
	Kind      DownloadKind `json:"kind"`
	Label     string       `json:"label"`
	FileName  string       `json:"file_name"`
	MIMEType  string       `json:"mime_type"`
	Available bool         `json:"available"`
	Size      int64        `json:"size,omitempty"`
	Notice    string       `json:"notice,omitempty"`
}

// View is everything the page needs to draw one session.
type View struct {
	SessionID string              `json:"-"`
	State     models.State        `json:"state"`
	Notice    string              `json:"notice,omitempty"`
	FileName  string              `json:"file_name,omitempty"`
	Query     string              `json:"query,omitempty"`
	Table     *models.ResultTable `json:"table,omitempty"`
	Downloads []Download          `json:"downloads,omitempty"`
}

// Predicting reports whether the page should keep polling.
func (v *View) Predicting() bool {
	return v != nil && v.State == models.StatePredicting
}

// Attachment is a download ready to be written to the client.
type Attachment struct {
	FileName string
	MIMEType string
	Data     []byte
}
