// Package store provides ledger persistence: an in-memory implementation for
// tests and single-node runs, and a PostgreSQL implementation for production.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"siteledger/internal/ownership/models"
	"siteledger/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu         sync.RWMutex
	ownerships map[uuid.UUID]*models.CompanyOwnership
	roles      map[uuid.UUID]*models.CompanyRole
	companies  map[string]*models.Company
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		ownerships: make(map[uuid.UUID]*models.CompanyOwnership),
		roles:      make(map[uuid.UUID]*models.CompanyRole),
		companies:  make(map[string]*models.Company),
	}
}

func (s *InMemoryStore) CreateOwnership(_ context.Context, o *models.CompanyOwnership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ownerships[o.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *o
	s.ownerships[o.ID] = &cp
	return nil
}

func (s *InMemoryStore) OwnershipByID(_ context.Context, id uuid.UUID) (*models.CompanyOwnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.ownerships[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *InMemoryStore) UpdateOwnership(_ context.Context, o *models.CompanyOwnership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownerships[o.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *o
	s.ownerships[o.ID] = &cp
	return nil
}

func (s *InMemoryStore) OwnershipsByCompany(_ context.Context, companyID string, includeInactive bool) ([]*models.CompanyOwnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CompanyOwnership
	for _, o := range s.ownerships {
		if o.CompanyID != companyID {
			continue
		}
		if !includeInactive && !o.IsActive() {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sortByGrantedAt(out)
	return out, nil
}

func (s *InMemoryStore) OwnershipsByAccount(_ context.Context, masterAccountID string, includeInactive bool) ([]*models.CompanyOwnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CompanyOwnership
	for _, o := range s.ownerships {
		if o.MasterAccountID != masterAccountID {
			continue
		}
		if !includeInactive && !o.IsActive() {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sortByGrantedAt(out)
	return out, nil
}

func (s *InMemoryStore) CreateRole(_ context.Context, r *models.CompanyRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[r.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *r
	cp.Permissions = append([]string(nil), r.Permissions...)
	s.roles[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) RolesByAccount(_ context.Context, masterAccountID, companyID string) ([]*models.CompanyRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CompanyRole
	for _, r := range s.roles {
		if r.MasterAccountID != masterAccountID || !r.IsActive() {
			continue
		}
		if companyID != "" && r.CompanyID != companyID {
			continue
		}
		cp := *r
		cp.Permissions = append([]string(nil), r.Permissions...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out, nil
}

func (s *InMemoryStore) HasActiveRole(_ context.Context, companyID, masterAccountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.CompanyID == companyID && r.MasterAccountID == masterAccountID && r.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) GetCompany(_ context.Context, companyID string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[companyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) UpsertCompany(_ context.Context, c *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.companies[c.ID] = &cp
	return nil
}

func sortByGrantedAt(stakes []*models.CompanyOwnership) {
	sort.Slice(stakes, func(i, j int) bool { return stakes[i].GrantedAt.Before(stakes[j].GrantedAt) })
}
