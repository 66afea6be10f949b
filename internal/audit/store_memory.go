package audit

import (
	"context"
	"sync"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.MasterAccountID] = append(s.entries[entry.MasterAccountID], entry)
	return nil
}

func (s *InMemoryStore) ListByAccount(_ context.Context, masterAccountID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries[masterAccountID]...), nil
}

// ListAll returns every entry across all accounts. Test helper.
func (s *InMemoryStore) ListAll(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Entry
	for _, accountEntries := range s.entries {
		all = append(all, accountEntries...)
	}
	return all, nil
}
