package cache

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"relevancy/internal/config"
	"relevancy/internal/models"
	"relevancy/internal/redis"
)

func sampleResult(query string) *models.CachedResult {
	return &models.CachedResult{
		Table: &models.ResultTable{
			Columns: []string{"Title", "Relevancy predicted", "Comments made"},
			Rows:    [][]string{{"Battery pack", "Relevant", "mentions recycling"}},
		},
		Path:         "out/full.xlsx",
		FilteredPath: "out/filtered.xlsx",
		Query:        query,
		UpdatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "s1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "s1", sampleResult("first")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(ctx, "s1", sampleResult("second")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Query != "second" || got.Table.Rows[0][0] != "Battery pack" {
		t.Fatalf("latest entry not kept: %+v", got)
	}
	if _, ok, _ := c.Get(ctx, "s2"); ok {
		t.Fatalf("sessions must not share entries")
	}
	if err := c.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "s1"); ok {
		t.Fatalf("entry survived delete")
	}
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemory())
}

func TestRedisCache(t *testing.T) {
	client := newRedisClient(t)
	defer client.Close()
	exerciseCache(t, NewRedis(client, time.Minute))
}

func TestRedisInvalidationBroadcast(t *testing.T) {
	client := newRedisClient(t)
	defer client.Close()
	c := NewRedis(client, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan string, 1)
	if err := c.Listen(ctx, func(sessionID string) { got <- sessionID }); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if err := c.Invalidate(ctx, "gone"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	select {
	case id := <-got:
		if id != "gone" {
			t.Fatalf("unexpected invalidation %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("invalidation not received")
	}
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed cache tests")
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
	if err := client.Flush(context.Background()); err != nil {
		t.Fatalf("flush db: %v", err)
	}
	return client
}
