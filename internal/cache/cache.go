package cache

import (
	"context"
	"sync"

	"relevancy/internal/models"
)

// Cache keeps the latest successful prediction of every session.
type Cache interface {
	Set(ctx context.Context, sessionID string, result *models.CachedResult) error
	Get(ctx context.Context, sessionID string) (*models.CachedResult, bool, error)
	Delete(ctx context.Context, sessionID string) error
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*models.CachedResult
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*models.CachedResult)}
}

func (m *Memory) Set(_ context.Context, sessionID string, result *models.CachedResult) error {
	if result == nil {
		return m.Delete(context.Background(), sessionID)
	}
	m.mu.Lock()
	m.entries[sessionID] = result
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, sessionID string) (*models.CachedResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.entries[sessionID]
	return res, ok, nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
	return nil
}
