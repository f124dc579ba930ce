package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryJobs is an in-memory JobStore for tests and broker-less setups.
type MemoryJobs struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryJobs() *MemoryJobs {
	return &MemoryJobs{jobs: make(map[string]Job)}
}

func (m *MemoryJobs) Put(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryJobs) Get(_ context.Context, jobID string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job %s not found", jobID)
	}
	return job, nil
}

func (m *MemoryJobs) UpdateFields(_ context.Context, jobID string, upd JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.CurrentStep != nil {
		job.CurrentStep = *upd.CurrentStep
	}
	if upd.Progress != nil {
		job.Progress = *upd.Progress
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[jobID] = job
	return nil
}
