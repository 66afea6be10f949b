package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteledger/internal/ownership/models"
	"siteledger/pkg/platform/sentinel"
)

func seedStake(t *testing.T, s *InMemoryStore, companyID, accountID string, pct float64, grantedAt time.Time) *models.CompanyOwnership {
	t.Helper()
	o := &models.CompanyOwnership{
		ID:              uuid.New(),
		CompanyID:       companyID,
		MasterAccountID: accountID,
		Percentage:      pct,
		Status:          models.StatusActive,
		GrantedAt:       grantedAt,
		GrantedBy:       "admin-1",
	}
	require.NoError(t, s.CreateOwnership(context.Background(), o))
	return o
}

func TestOwnershipCRUD(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	stake := seedStake(t, s, "c1", "m1", 40, now)

	t.Run("duplicate id conflicts", func(t *testing.T) {
		err := s.CreateOwnership(ctx, stake)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("find by id", func(t *testing.T) {
		got, err := s.OwnershipByID(ctx, stake.ID)
		require.NoError(t, err)
		assert.Equal(t, stake.ID, got.ID)
		assert.Equal(t, 40.0, got.Percentage)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := s.OwnershipByID(ctx, uuid.New())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		stake.Percentage = 35
		require.NoError(t, s.UpdateOwnership(ctx, stake))
		got, err := s.OwnershipByID(ctx, stake.ID)
		require.NoError(t, err)
		assert.Equal(t, 35.0, got.Percentage)
	})

	t.Run("update missing", func(t *testing.T) {
		err := s.UpdateOwnership(ctx, &models.CompanyOwnership{ID: uuid.New()})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestOwnershipListingFiltersAndSorts(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now()

	second := seedStake(t, s, "c1", "m2", 30, base.Add(time.Minute))
	first := seedStake(t, s, "c1", "m1", 40, base)
	revoked := seedStake(t, s, "c1", "m3", 10, base.Add(2*time.Minute))
	revoked.Status = models.StatusRevoked
	require.NoError(t, s.UpdateOwnership(ctx, revoked))
	seedStake(t, s, "c2", "m1", 15, base)

	active, err := s.OwnershipsByCompany(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID, "sorted by grant time")
	assert.Equal(t, second.ID, active[1].ID)

	all, err := s.OwnershipsByCompany(ctx, "c1", true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byAccount, err := s.OwnershipsByAccount(ctx, "m1", false)
	require.NoError(t, err)
	assert.Len(t, byAccount, 2, "m1 holds stakes in two companies")
}

func TestOwnershipReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	stake := seedStake(t, s, "c1", "m1", 40, time.Now())

	got, err := s.OwnershipByID(ctx, stake.ID)
	require.NoError(t, err)
	got.Percentage = 99

	again, err := s.OwnershipByID(ctx, stake.ID)
	require.NoError(t, err)
	assert.Equal(t, 40.0, again.Percentage, "mutating a result must not touch the store")
}

func TestRoles(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	role, err := models.NewCompanyRole("c1", "m1", "M One", models.RoleDirector, "", []string{"approve"}, "admin-1", "", now)
	require.NoError(t, err)
	require.NoError(t, s.CreateRole(ctx, role))

	custom, err := models.NewCompanyRole("c1", "m1", "M One", models.RoleCustom, "Safety Officer", nil, "admin-1", "", now.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, s.CreateRole(ctx, custom))

	t.Run("list scoped to company", func(t *testing.T) {
		roles, err := s.RolesByAccount(ctx, "m1", "c1")
		require.NoError(t, err)
		require.Len(t, roles, 2)
		assert.Equal(t, role.ID, roles[0].ID)
	})

	t.Run("list across companies", func(t *testing.T) {
		roles, err := s.RolesByAccount(ctx, "m1", "")
		require.NoError(t, err)
		assert.Len(t, roles, 2)
	})

	t.Run("has active role", func(t *testing.T) {
		ok, err := s.HasActiveRole(ctx, "c1", "m1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.HasActiveRole(ctx, "c1", "m2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("permissions are copied", func(t *testing.T) {
		roles, err := s.RolesByAccount(ctx, "m1", "c1")
		require.NoError(t, err)
		roles[0].Permissions[0] = "mutated"

		again, err := s.RolesByAccount(ctx, "m1", "c1")
		require.NoError(t, err)
		assert.Equal(t, "approve", again[0].Permissions[0])
	})
}

func TestCompanyCounters(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, err := s.GetCompany(ctx, "c1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	c := &models.Company{ID: "c1", TotalOwnershipPercentage: 70, OwnerCount: 2, UpdatedAt: time.Now()}
	require.NoError(t, s.UpsertCompany(ctx, c))

	got, err := s.GetCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 70.0, got.TotalOwnershipPercentage)

	c.TotalOwnershipPercentage = 100
	c.OwnerCount = 3
	require.NoError(t, s.UpsertCompany(ctx, c))

	got, err = s.GetCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.TotalOwnershipPercentage)
	assert.Equal(t, 3, got.OwnerCount)
}
