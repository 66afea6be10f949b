// Package models defines the ownership ledger aggregates.
package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "siteledger/pkg/domain-errors"
	platformstrings "siteledger/pkg/platform/strings"
)

// MaxTotalPercentage is the ceiling on the sum of active stakes per company.
const MaxTotalPercentage = 100.0

// Status of an ownership stake or role grant. Records are never physically
// deleted; they are revoked.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// CompanyOwnership is one master account's fractional stake in one company.
//
// Invariants:
//   - 0 < Percentage <= 100
//   - for a fixed CompanyID, the sum of Percentage over all records with
//     Status=active never exceeds MaxTotalPercentage (enforced by the service
//     inside a transaction, not here)
type CompanyOwnership struct {
	ID                uuid.UUID `json:"id"`
	CompanyID         string    `json:"company_id"`
	MasterAccountID   string    `json:"master_account_id"`
	MasterAccountName string    `json:"master_account_name"`
	Percentage        float64   `json:"ownership_percentage"`
	Status            Status    `json:"status"`
	VotingRights      bool      `json:"voting_rights"`
	EconomicRights    bool      `json:"economic_rights"`
	GrantedAt         time.Time `json:"granted_at"`
	GrantedBy         string    `json:"granted_by"`
	Notes             string    `json:"notes,omitempty"`
}

func (o *CompanyOwnership) IsActive() bool {
	return o.Status == StatusActive
}

// ValidatePercentage checks the range invariant shared by create and change.
func ValidatePercentage(p float64) error {
	if p <= 0 || p > MaxTotalPercentage {
		return dErrors.New(dErrors.CodeValidation, "Ownership percentage must be between 0 and 100").
			WithDetail("attempted", p)
	}
	return nil
}

// NewCompanyOwnership validates field-level invariants and builds an active
// stake. The sum invariant is the service's job.
func NewCompanyOwnership(companyID, masterAccountID, masterAccountName string, percentage float64, votingRights, economicRights bool, grantedBy, notes string, now time.Time) (*CompanyOwnership, error) {
	if companyID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "company id cannot be empty")
	}
	if masterAccountID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "master account id cannot be empty")
	}
	if err := ValidatePercentage(percentage); err != nil {
		return nil, err
	}
	return &CompanyOwnership{
		ID:                uuid.New(),
		CompanyID:         companyID,
		MasterAccountID:   masterAccountID,
		MasterAccountName: masterAccountName,
		Percentage:        percentage,
		Status:            StatusActive,
		VotingRights:      votingRights,
		EconomicRights:    economicRights,
		GrantedAt:         now,
		GrantedBy:         grantedBy,
		Notes:             notes,
	}, nil
}

// Role is a named permission grant within a company.
type Role string

const (
	RoleDirector Role = "Director"
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleViewer   Role = "Viewer"
	RoleCustom   Role = "Custom"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDirector, RoleAdmin, RoleManager, RoleViewer, RoleCustom:
		return true
	}
	return false
}

// CompanyRole is a role grant of a master account within a company.
//
// Invariant: CustomRoleName is set if and only if Role is Custom.
type CompanyRole struct {
	ID                uuid.UUID `json:"id"`
	CompanyID         string    `json:"company_id"`
	MasterAccountID   string    `json:"master_account_id"`
	MasterAccountName string    `json:"master_account_name"`
	Role              Role      `json:"role"`
	CustomRoleName    string    `json:"custom_role_name,omitempty"`
	Permissions       []string  `json:"permissions"`
	Status            Status    `json:"status"`
	AssignedAt        time.Time `json:"assigned_at"`
	AssignedBy        string    `json:"assigned_by"`
	Notes             string    `json:"notes,omitempty"`
}

func (r *CompanyRole) IsActive() bool {
	return r.Status == StatusActive
}

// NewCompanyRole validates the role enum and the custom-name invariant.
func NewCompanyRole(companyID, masterAccountID, masterAccountName string, role Role, customRoleName string, permissions []string, assignedBy, notes string, now time.Time) (*CompanyRole, error) {
	if companyID == "" || masterAccountID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "company id and master account id are required")
	}
	if !role.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown role %q", role)
	}
	if role == RoleCustom && customRoleName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "custom role requires a custom role name")
	}
	if role != RoleCustom && customRoleName != "" {
		return nil, dErrors.New(dErrors.CodeValidation, "custom role name is only allowed for custom roles")
	}
	return &CompanyRole{
		ID:                uuid.New(),
		CompanyID:         companyID,
		MasterAccountID:   masterAccountID,
		MasterAccountName: masterAccountName,
		Role:              role,
		CustomRoleName:    customRoleName,
		Permissions:       platformstrings.DedupeAndTrimLower(permissions),
		Status:            StatusActive,
		AssignedAt:        now,
		AssignedBy:        assignedBy,
		Notes:             notes,
	}, nil
}

// Company carries the denormalized counters derived from the ownership set.
// These fields are caches: they are only ever written inside the same
// transaction that mutates the underlying stakes, so they cannot drift.
type Company struct {
	ID                       string    `json:"id"`
	TotalOwnershipPercentage float64   `json:"total_ownership_percentage"`
	OwnerCount               int       `json:"owner_count"`
	UpdatedAt                time.Time `json:"updated_at"`
}
