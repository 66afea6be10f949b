package account

import (
	"context"
	"sync"
	"time"

	"siteledger/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*MasterAccount
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[string]*MasterAccount)}
}

func (s *InMemoryStore) Create(_ context.Context, acct *MasterAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[acct.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := cloneAccount(acct)
	s.accounts[acct.ID] = cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*MasterAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAccount(acct), nil
}

func (s *InMemoryStore) FindByNationalID(_ context.Context, nationalID string) ([]*MasterAccount, error) {
	if nationalID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []*MasterAccount
	for _, acct := range s.accounts {
		if acct.NationalIDNumber == nationalID {
			matches = append(matches, cloneAccount(acct))
		}
	}
	return matches, nil
}

func (s *InMemoryStore) Update(_ context.Context, acct *MasterAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[acct.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	// The company list is owned by AppendCompanyID; keep the stored one so a
	// caller's stale read cannot drop entries appended since.
	cp := cloneAccount(acct)
	cp.CompanyIDs = append([]string(nil), cur.CompanyIDs...)
	s.accounts[acct.ID] = cp
	return nil
}

func (s *InMemoryStore) AppendCompanyID(_ context.Context, id, companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if acct.AddCompanyID(companyID) {
		acct.UpdatedAt = time.Now()
	}
	return nil
}

// cloneAccount keeps callers from mutating store state through shared slices.
func cloneAccount(a *MasterAccount) *MasterAccount {
	cp := *a
	cp.CompanyIDs = append([]string(nil), a.CompanyIDs...)
	return &cp
}
