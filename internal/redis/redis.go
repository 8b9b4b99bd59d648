package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"relevancy/internal/config"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 6379
	dialTimeout = 3 * time.Second
)

// ErrClosed is returned by every call on a nil or closed Client.
var ErrClosed = errors.New("redis: client unavailable")

// Client is the shared connection used for session expiries, cached
// prediction results and cross-instance invalidation.
type Client struct {
	rdb *goredis.Client
}

// Connect dials the server described by cfg and pings it once.
func Connect(cfg config.RedisConfig) (*Client, error) {
	addr := address(cfg)
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &Client{rdb: rdb}, nil
}

func address(cfg config.RedisConfig) string {
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = defaultHost
	}
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (c *Client) ready() bool {
	return c != nil && c.rdb != nil
}

// SetJSON encodes v and stores it under key for ttl.
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !c.ready() {
		return ErrClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// GetJSON decodes the value under key into dst. A missing key reports false
// with a nil error.
func (c *Client) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.ready() {
		return false, ErrClosed
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetDeadline stores the instant at and lets the key expire with it.
func (c *Client) SetDeadline(ctx context.Context, key string, at time.Time) error {
	if !c.ready() {
		return ErrClosed
	}
	ttl := time.Until(at)
	if ttl <= 0 {
		return c.Del(ctx, key)
	}
	return c.rdb.Set(ctx, key, at.Unix(), ttl).Err()
}

// Deadline reads an instant written by SetDeadline.
func (c *Client) Deadline(ctx context.Context, key string) (time.Time, bool, error) {
	if !c.ready() {
		return time.Time{}, false, ErrClosed
	}
	unix, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// Del removes keys; absent keys are not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if !c.ready() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Publish sends v as JSON on channel.
func (c *Client) Publish(ctx context.Context, channel string, v any) error {
	if !c.ready() {
		return ErrClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", channel, err)
	}
	return c.rdb.Publish(ctx, channel, data).Err()
}

// Subscribe delivers every payload published on channel to fn until ctx is
// done. The subscription is confirmed before Subscribe returns.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(payload []byte)) error {
	if !c.ready() {
		return ErrClosed
	}
	sub := c.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				fn([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

// Flush empties the selected database.
func (c *Client) Flush(ctx context.Context) error {
	if !c.ready() {
		return ErrClosed
	}
	return c.rdb.FlushDB(ctx).Err()
}

func (c *Client) Close() error {
	if !c.ready() {
		return nil
	}
	return c.rdb.Close()
}
