package scan

import (
	"context"
	"fmt"
	"sync"
)

// Store persists jobs. Each job has a single writer, so implementations
// only need per-call atomicity.
type Store interface {
	// Get returns a copy of the job or ErrJobNotFound.
	Get(ctx context.Context, id string) (*Job, error)
	// Put inserts or replaces the job.
	Put(ctx context.Context, job *Job) error
	// Delete removes the job. A missing job is not an error.
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps jobs in process memory. Jobs are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	return &j, nil
}

func (s *MemoryStore) Put(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = *job

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, id)

	return nil
}
