package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if existing.Seq == entry.Seq {
			return fmt.Errorf("duplicate seq %d", entry.Seq)
		}
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) Last(_ context.Context) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, ErrEmptyChain
	}
	return s.entries[len(s.entries)-1], nil
}

func (s *MemoryStore) Range(_ context.Context, fromSeq, toSeq int64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.Seq >= fromSeq && entry.Seq <= toSeq {
			out = append(out, entry)
		}
	}
	return out, nil
}

// tamper and remove exist for integrity tests only.

func (s *MemoryStore) tamper(seq int64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Seq == seq {
			s.entries[i].Payload = payload
		}
	}
}

func (s *MemoryStore) remove(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.entries[:0]
	for _, entry := range s.entries {
		if entry.Seq != seq {
			out = append(out, entry)
		}
	}
	s.entries = out
}
