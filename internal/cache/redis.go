package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"relevancy/internal/models"
	"relevancy/internal/redis"
)

const (
	redisResultPrefix      = "relevancy:result:"
	redisInvalidateChannel = "relevancy:invalidate"
)

type invalidateMessage struct {
	SessionID string `json:"session_id"`
}

// Redis stores cached results as JSON values that expire with the session.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Set(ctx context.Context, sessionID string, result *models.CachedResult) error {
	if result == nil {
		return r.Delete(ctx, sessionID)
	}
	if err := r.client.SetJSON(ctx, redisResultPrefix+sessionID, result, r.ttl); err != nil {
		return fmt.Errorf("store cached result: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, sessionID string) (*models.CachedResult, bool, error) {
	var res models.CachedResult
	ok, err := r.client.GetJSON(ctx, redisResultPrefix+sessionID, &res)
	if err != nil {
		return nil, false, fmt.Errorf("load cached result: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &res, true, nil
}

func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, redisResultPrefix+sessionID); err != nil {
		return fmt.Errorf("delete cached result: %w", err)
	}
	return nil
}

// Invalidate deletes the entry and tells every listening instance that the
// session is gone.
func (r *Redis) Invalidate(ctx context.Context, sessionID string) error {
	if err := r.Delete(ctx, sessionID); err != nil {
		return err
	}
	msg := invalidateMessage{SessionID: sessionID}
	if err := r.client.Publish(ctx, redisInvalidateChannel, msg); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("cache publish invalidation failed")
	}
	return nil
}

// Listen invokes handler for every session invalidated by any instance until
// ctx is done.
func (r *Redis) Listen(ctx context.Context, handler func(sessionID string)) error {
	return r.client.Subscribe(ctx, redisInvalidateChannel, func(payload []byte) {
		var inv invalidateMessage
		if err := json.Unmarshal(payload, &inv); err != nil {
			log.Warn().Err(err).Msg("cache invalidation decode failed")
			return
		}
		if inv.SessionID != "" {
			handler(inv.SessionID)
		}
	})
}
