package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the most recent jobs in process memory.
// It backs async polling when SQLite history is disabled.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	limit int
}

// NewMemoryStore keeps at most limit jobs, evicting the oldest; limit <= 0 means unbounded.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job), limit: limit}
}

func (m *MemoryStore) CreateJob(job *Job) error {
	if err := prepareJob(job); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("insert job: duplicate id %s", job.ID)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	m.order = append(m.order, job.ID)
	if m.limit > 0 && len(m.order) > m.limit {
		delete(m.jobs, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *MemoryStore) MarkRunning(id string, startedAt time.Time) error {
	return m.update(id, func(j *Job) {
		t := startedAt.UTC()
		j.Status = StatusRunning
		j.StartedAt = &t
	})
}

func (m *MemoryStore) UpdateProgress(id, step string, progress int) error {
	return m.update(id, func(j *Job) {
		j.Step = step
		j.Progress = max(j.Progress, progress)
	})
}

func (m *MemoryStore) SaveResult(id string, textPath, jsonPath string, completedAt time.Time) error {
	return m.update(id, func(j *Job) {
		t := completedAt.UTC()
		j.Status = StatusCompleted
		j.Progress = 100
		j.TextPath = &textPath
		j.JSONPath = &jsonPath
		j.ErrorMessage = nil
		j.CompletedAt = &t
	})
}

func (m *MemoryStore) SaveError(id string, errMsg string, completedAt time.Time) error {
	return m.update(id, func(j *Job) {
		t := completedAt.UTC()
		j.Status = StatusFailed
		j.ErrorMessage = &errMsg
		j.CompletedAt = &t
	})
}

func (m *MemoryStore) update(id string, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(j)
	return nil
}

func (m *MemoryStore) GetJob(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) ListJobs(limit int) ([]*Job, error) {
	m.mu.RLock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		cp := *j
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID > out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
