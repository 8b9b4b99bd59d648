package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"relevancy/internal/models"
)

var ErrNoUpload = errors.New("no upload recorded for session")

// Service persists what each session uploaded and predicted.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RecordUpload stores the location of a session's newest spreadsheet.
func (s *Service) RecordUpload(ctx context.Context, sessionID, fileName, storedPath string, size int64) (*models.Upload, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session_id is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (session_id, file_name, stored_path, size, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, fileName, storedPath, size, now,
	)
	if err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("upload id: %w", err)
	}
	return &models.Upload{
		ID:         id,
		SessionID:  sessionID,
		FileName:   fileName,
		StoredPath: storedPath,
		Size:       size,
		CreatedAt:  now,
	}, nil
}

// LatestUpload returns the most recent upload of the session or ErrNoUpload.
func (s *Service) LatestUpload(ctx context.Context, sessionID string) (*models.Upload, error) {
	var up models.Upload
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, file_name, stored_path, size, created_at
		 FROM uploads WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID,
	).Scan(&up.ID, &up.SessionID, &up.FileName, &up.StoredPath, &up.Size, &up.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoUpload
		}
		return nil, fmt.Errorf("latest upload: %w", err)
	}
	return &up, nil
}

// RecordPrediction appends one trigger outcome to the session history.
func (s *Service) RecordPrediction(ctx context.Context, p *models.Prediction) error {
	if p == nil {
		return errors.New("prediction is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, session_id, query, file_path, status, error_kind, path, filtered_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.Query, p.FilePath, string(p.Status), p.ErrorKind, p.Path, p.FilteredPath, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record prediction: %w", err)
	}
	return nil
}

// ListPredictions returns the session's predictions, newest first.
func (s *Service) ListPredictions(ctx context.Context, sessionID string, limit int) ([]models.Prediction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, query, file_path, status, error_kind, path, filtered_path, created_at
		 FROM predictions WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var p models.Prediction
		var status string
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Query, &p.FilePath, &status, &p.ErrorKind, &p.Path, &p.FilteredPath, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Status = models.PredictionStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// exclusiveUploadPaths lists files uploaded by sessionID that no other session
// has recorded under the same path.
func (s *Service) exclusiveUploadPaths(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT stored_path FROM uploads
		 WHERE session_id = ?
		 AND stored_path NOT IN (SELECT stored_path FROM uploads WHERE session_id <> ?)`,
		sessionID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list session uploads: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan upload path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
