package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrBusy    = errors.New("a job is already running for this session")
	ErrStopped = errors.New("worker manager stopped")
)

// Task is the body of a job. ctx is canceled when the session is torn down or
// the manager stops.
type Task func(ctx context.Context)

// Manager runs at most one background job per session.
type Manager struct {
	root   context.Context
	stop   context.CancelFunc
	jobs   *jobTable
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewManager() *Manager {
	root, stop := context.WithCancel(context.Background())
	return &Manager{
		root: root,
		stop: stop,
		jobs: newJobTable(),
	}
}

// Start launches task for sessionID. It returns ErrBusy while a previous job
// for the same session has not finished.
func (m *Manager) Start(sessionID string, task Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(m.root)
	j := &job{cancel: cancel, done: make(chan struct{})}
	if !m.jobs.claim(sessionID, j) {
		cancel()
		return ErrBusy
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(j.done)
		defer m.jobs.release(sessionID, j)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("session", sessionID).Interface("panic", r).Msg("worker job panicked")
			}
		}()
		log.Debug().Str("session", sessionID).Msg("worker job started")
		task(ctx)
		log.Debug().Str("session", sessionID).Msg("worker job finished")
	}()
	return nil
}

// Cancel cancels the session's job, if any, and reports whether one was running.
func (m *Manager) Cancel(sessionID string) bool {
	j := m.jobs.get(sessionID)
	if j == nil {
		return false
	}
	j.cancel()
	return true
}

// Wait blocks until the session has no job in flight or ctx is done.
func (m *Manager) Wait(ctx context.Context, sessionID string) error {
	j := m.jobs.get(sessionID)
	if j == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) InFlight(sessionID string) bool {
	return m.jobs.get(sessionID) != nil
}

// Running reports the number of sessions with a job in flight.
func (m *Manager) Running() int {
	return m.jobs.size()
}

// Stop cancels every job and waits for them to return. Start fails afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.stop()
	for _, j := range m.jobs.snapshot() {
		j.cancel()
	}
	m.wg.Wait()
}
