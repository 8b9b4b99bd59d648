package worker

import (
	"context"
	"sync"
)

// job is one in-flight prediction owned by a session.
type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type jobTable struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*job)}
}

// claim registers j for sessionID unless another job already owns it.
func (t *jobTable) claim(sessionID string, j *job) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.jobs[sessionID]; busy {
		return false
	}
	t.jobs[sessionID] = j
	return true
}

func (t *jobTable) get(sessionID string) *job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.jobs[sessionID]
}

// release drops j only if it is still the session's current job.
func (t *jobTable) release(sessionID string, j *job) {
	t.mu.Lock()
	if cur, ok := t.jobs[sessionID]; ok && cur == j {
		delete(t.jobs, sessionID)
	}
	t.mu.Unlock()
}

func (t *jobTable) snapshot() []*job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	return out
}

func (t *jobTable) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}
