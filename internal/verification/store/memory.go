// Package store provides verification persistence: an in-memory implementation
// for tests and single-node runs, and a PostgreSQL implementation for
// production, plus a Redis-backed national-ID index.
package store

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"siteledger/internal/verification/models"
	"siteledger/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu            sync.RWMutex
	verifications map[uuid.UUID]*models.IDVerification
	disputes      map[uuid.UUID]*models.FraudDispute
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		verifications: make(map[uuid.UUID]*models.IDVerification),
		disputes:      make(map[uuid.UUID]*models.FraudDispute),
	}
}

func (s *InMemoryStore) CreateVerification(_ context.Context, v *models.IDVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.verifications[v.ID]; exists {
		return sentinel.ErrConflict
	}
	s.verifications[v.ID] = cloneVerification(v)
	return nil
}

func (s *InMemoryStore) VerificationByID(_ context.Context, id uuid.UUID) (*models.IDVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifications[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneVerification(v), nil
}

func (s *InMemoryStore) UpdateVerification(_ context.Context, v *models.IDVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.verifications[v.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.verifications[v.ID] = cloneVerification(v)
	return nil
}

func (s *InMemoryStore) VerificationsByStatus(_ context.Context, status models.VerificationStatus) ([]*models.IDVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.IDVerification
	for _, v := range s.verifications {
		if v.Status == status {
			out = append(out, cloneVerification(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *InMemoryStore) VerificationsByAccount(_ context.Context, masterAccountID string) ([]*models.IDVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.IDVerification
	for _, v := range s.verifications {
		if v.MasterAccountID == masterAccountID {
			out = append(out, cloneVerification(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *InMemoryStore) CreateDispute(_ context.Context, d *models.FraudDispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.disputes[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.disputes[d.ID] = cloneDispute(d)
	return nil
}

func (s *InMemoryStore) DisputesByStatus(_ context.Context, status models.DisputeStatus) ([]*models.FraudDispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.FraudDispute
	for _, d := range s.disputes {
		if d.Status == status {
			out = append(out, cloneDispute(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReportedAt.Before(out[j].ReportedAt) })
	return out, nil
}

func cloneVerification(v *models.IDVerification) *models.IDVerification {
	cp := *v
	if v.Metadata != nil {
		cp.Metadata = maps.Clone(v.Metadata)
	}
	return &cp
}

func cloneDispute(d *models.FraudDispute) *models.FraudDispute {
	cp := *d
	cp.SupportingDocuments = append([]models.SupportingDocument(nil), d.SupportingDocuments...)
	return &cp
}
