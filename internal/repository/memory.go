package store

import (
	"context"
	"sync"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[string]domain.Context
	tasks    map[string]domain.TaskRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts: make(map[string]domain.Context),
		tasks:    make(map[string]domain.TaskRecord),
	}
}

func (s *MemoryStore) LoadContext(_ context.Context, contextID string) (domain.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.contexts[contextID]
	if !ok {
		return nil, nil
	}
	return msgs.Append(), nil
}

func (s *MemoryStore) UpdateContext(_ context.Context, contextID string, messages domain.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[contextID] = messages.Append()
	return nil
}

func (s *MemoryStore) LoadTask(_ context.Context, taskID string) (*domain.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, task *domain.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.TaskID] = *task
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
