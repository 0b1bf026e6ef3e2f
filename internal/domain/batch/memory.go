package batch

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for unit tests.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[uuid.UUID]Operation
	items   map[uuid.UUID][]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[uuid.UUID]Operation),
		items:   make(map[uuid.UUID][]Item),
	}
}

func (s *MemoryStore) CreateBatch(ctx context.Context, op Operation, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[op.ID] = op
	cp := make([]Item, len(items))
	copy(cp, items)
	sort.Slice(cp, func(i, j int) bool { return cp[i].ID.String() < cp[j].ID.String() })
	s.items[op.ID] = cp
	return nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, id uuid.UUID) (Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.batches[id]
	if !ok {
		return Operation{}, ErrBatchNotFound
	}
	return op, nil
}

func (s *MemoryStore) UpdateBatch(ctx context.Context, op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[op.ID]; !ok {
		return ErrBatchNotFound
	}
	s.batches[op.ID] = op
	return nil
}

func (s *MemoryStore) GetItems(ctx context.Context, batchID uuid.UUID) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[batchID]
	cp := make([]Item, len(items))
	copy(cp, items)
	return cp, nil
}

func (s *MemoryStore) UpdateItem(ctx context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[item.BatchID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return nil
		}
	}
	return ErrBatchNotFound
}
