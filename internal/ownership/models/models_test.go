package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "siteledger/pkg/domain-errors"
)

func TestValidatePercentage(t *testing.T) {
	cases := []struct {
		name string
		pct  float64
		ok   bool
	}{
		{"zero", 0, false},
		{"negative", -5, false},
		{"above ceiling", 100.01, false},
		{"minimum stake", 0.01, true},
		{"full ownership", 100, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePercentage(tc.pct)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			}
		})
	}
}

func TestNewCompanyOwnership(t *testing.T) {
	now := time.Now()

	o, err := NewCompanyOwnership("c1", "m1", "Mia Banda", 40, true, true, "admin-1", "", now)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, o.Status)
	assert.True(t, o.IsActive())
	assert.Equal(t, now, o.GrantedAt)

	_, err = NewCompanyOwnership("", "m1", "", 40, false, false, "admin-1", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewCompanyOwnership("c1", "m1", "", 0, false, false, "admin-1", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestNewCompanyRoleCustomNameInvariant(t *testing.T) {
	now := time.Now()

	_, err := NewCompanyRole("c1", "m1", "", RoleCustom, "", []string{"view_timesheets"}, "admin-1", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "custom role without name must fail")

	_, err = NewCompanyRole("c1", "m1", "", RoleViewer, "Safety Officer", nil, "admin-1", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "named non-custom role must fail")

	r, err := NewCompanyRole("c1", "m1", "", RoleCustom, "Safety Officer", []string{"schedule_inspections"}, "admin-1", "", now)
	require.NoError(t, err)
	assert.Equal(t, "Safety Officer", r.CustomRoleName)

	_, err = NewCompanyRole("c1", "m1", "", Role("Overlord"), "", nil, "admin-1", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestNewCompanyRoleNormalizesPermissions(t *testing.T) {
	r, err := NewCompanyRole("c1", "m1", "", RoleManager, "",
		[]string{" Approve_Timesheets ", "approve_timesheets", "", "view_reports"},
		"admin-1", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"approve_timesheets", "view_reports"}, r.Permissions)
}
