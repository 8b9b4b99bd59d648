package session

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"relevancy/internal/config"
	"relevancy/internal/redis"
	"relevancy/internal/storage"
)

func TestSessionIssueValidateRevoke(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, time.Hour)
	ctx := context.Background()
	sess, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if len(sess.ID) != 64 {
		t.Fatalf("expected 64 hex chars, got %q", sess.ID)
	}
	got, err := svc.Validate(ctx, sess.ID)
	if err != nil || got.ID != sess.ID {
		t.Fatalf("Validate failed: %+v err=%v", got, err)
	}
	if err := svc.Revoke(ctx, sess.ID); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if _, err := svc.Validate(ctx, sess.ID); err != ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession after revoke, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, 10*time.Millisecond)
	ctx := context.Background()
	sess, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	expired, err := svc.Expired(ctx, time.Now())
	if err != nil {
		t.Fatalf("Expired error: %v", err)
	}
	if len(expired) != 1 || expired[0] != sess.ID {
		t.Fatalf("expected %s in expired list, got %v", sess.ID, expired)
	}
	if _, err := svc.Validate(ctx, sess.ID); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE id = ?`, sess.ID).Scan(&count); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expired session must stay until the cleaner revokes it, found %d rows", count)
	}
	if _, err := svc.Validate(ctx, sess.ID); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired on repeat, got %v", err)
	}
}

func TestMiddlewareIssuesAndReusesSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil, time.Hour)

	router := gin.New()
	router.Use(svc.Middleware())
	router.GET("/whoami", func(c *gin.Context) {
		sess, _ := FromContext(c)
		c.String(http.StatusOK, sess.ID)
	})
	router.POST("/mutate", svc.CSRFMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	firstID := rec.Body.String()
	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected session and csrf cookies, got %d", len(cookies))
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	var csrf string
	for _, ck := range cookies {
		req.AddCookie(ck)
		if ck.Name == svc.CSRFCookieName() {
			csrf = ck.Value
		}
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Body.String() != firstID {
		t.Fatalf("expected session reuse, got %s vs %s", rec.Body.String(), firstID)
	}

	// Missing CSRF header is rejected.
	req = httptest.NewRequest(http.MethodPost, "/mutate", strings.NewReader(""))
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf header, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/mutate", strings.NewReader(""))
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	req.Header.Set(svc.CSRFHeaderName(), csrf)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with csrf header, got %d", rec.Code)
	}
}

func TestSessionCacheUsesRedis(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(db, cacheClient, time.Hour)
	ctx := context.Background()
	sess, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, ok, err := cacheClient.Deadline(ctx, redisSessionPrefix+sess.ID); err != nil || !ok {
		t.Fatalf("expected session cached in redis: ok=%v err=%v", ok, err)
	}

	_, _ = db.Exec(`DELETE FROM sessions WHERE id = ?`, sess.ID)
	if _, err := svc.Validate(ctx, sess.ID); err != nil {
		t.Fatalf("Validate via redis failed: %v", err)
	}
	if err := svc.Revoke(ctx, sess.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Validate(ctx, sess.ID); err == nil {
		t.Fatalf("expected error after revoke")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed session tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := redis.Connect(config.RedisConfig{Host: host, Port: port})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Flush(ctx); err != nil {
		t.Fatalf("flush db: %v", err)
	}
	return client, func() { client.Close() }
}
