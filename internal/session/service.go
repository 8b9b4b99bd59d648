package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"relevancy/internal/models"
	"relevancy/internal/redis"
)

const redisSessionPrefix = "session:"

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")
)

// Service issues, validates, and revokes anonymous browser sessions.
type Service struct {
	db             *sql.DB
	cache          *redis.Client
	ttl            time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
	csrfFormField  string
}

// NewService constructs a session service. cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		cache:          cache,
		ttl:            ttl,
		cookieName:     "relevancy_session",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
		csrfFormField:  "csrf_token",
	}
}

// Issue mints a new session and persists it.
func (s *Service) Issue(ctx context.Context) (*models.Session, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)
	for i := 0; i < 5; i++ {
		id, err := generateToken()
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, created_at, expires_at) VALUES (?, ?, ?)`,
			id, now, expiresAt,
		)
		if err == nil {
			s.cacheSession(ctx, id, expiresAt)
			return &models.Session{ID: id, CreatedAt: now, ExpiresAt: expiresAt}, nil
		}
	}
	return nil, errors.New("could not issue session")
}

// Validate verifies the session exists and has not expired. Expired sessions
// are left in place for the cleaner, which tears down their state first.
func (s *Service) Validate(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, ErrInvalidSession
	}
	if expiresAt, ok := s.cachedExpiry(ctx, id); ok {
		if time.Now().UTC().After(expiresAt) {
			return nil, ErrSessionExpired
		}
		return &models.Session{ID: id, ExpiresAt: expiresAt}, nil
	}
	var sess models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	s.cacheSession(ctx, id, sess.ExpiresAt)
	return &sess, nil
}

// Revoke deletes a session together with its uploads and prediction history.
func (s *Service) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, redisSessionPrefix+id); err != nil {
			return fmt.Errorf("revoke cached session: %w", err)
		}
	}
	return nil
}

// Expired lists sessions whose lifetime ended at or before now.
func (s *Service) Expired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Service) cacheSession(ctx context.Context, id string, expiresAt time.Time) {
	if s.cache == nil {
		return
	}
	_ = s.cache.SetDeadline(ctx, redisSessionPrefix+id, expiresAt)
}

func (s *Service) cachedExpiry(ctx context.Context, id string) (time.Time, bool) {
	if s.cache == nil {
		return time.Time{}, false
	}
	at, ok, err := s.cache.Deadline(ctx, redisSessionPrefix+id)
	if err != nil || !ok {
		return time.Time{}, false
	}
	return at, true
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CookieName returns the cookie name storing session ids.
func (s *Service) CookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TTL reports the configured session lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
