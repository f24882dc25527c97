package subjects

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/consentkeeper/internal/common"
)

// MemoryRepository keeps subjects in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	subjects map[string]*Subject
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subjects: map[string]*Subject{}}
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subjects[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return s.clone(), nil
}

func (r *MemoryRepository) Save(_ context.Context, s *Subject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subjects[s.ID] = s.clone()
	return nil
}

func (r *MemoryRepository) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subjects), nil
}
