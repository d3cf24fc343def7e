package projection

import (
	"SLINK-Backend/internal/domain"
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process projection store for local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]domain.RedirectRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]domain.RedirectRecord)}
}

func (s *MemoryStore) Apply(_ context.Context, b *Batch) error {
	if b == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for d, keys := range b.Deletes() {
		for _, k := range keys {
			delete(s.data[d], k)
		}
	}
	for d, fields := range b.Sets() {
		if s.data[d] == nil {
			s.data[d] = make(map[string]domain.RedirectRecord)
		}
		for k, rec := range fields {
			s.data[d][k] = rec
		}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, linkDomain, key string) (*domain.RedirectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[strings.ToLower(linkDomain)][strings.ToLower(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Keys returns the lower-cased keys stored for a domain.
func (s *MemoryStore) Keys(linkDomain string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields := s.data[strings.ToLower(linkDomain)]
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	return keys
}
