// Package account holds the master account aggregate. Accounts are owned by
// the surrounding platform; the ledger and verification cores only read them
// and mutate the verification/capability fields.
package account

import (
	"slices"
	"time"
)

// VerificationStatus tracks the account-level view of identity review.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationPending    VerificationStatus = "PENDING_REVIEW"
	VerificationVerified   VerificationStatus = "VERIFIED"
	VerificationRejected   VerificationStatus = "REJECTED"
)

// DuplicateIDStatus flags accounts that submitted a national ID already held
// by another account.
type DuplicateIDStatus string

const (
	DuplicateNone     DuplicateIDStatus = "NONE"
	DuplicateDetected DuplicateIDStatus = "DUPLICATE_DETECTED"
)

// MasterAccount is the top-level owner identity. A master account may hold
// stakes and roles in many companies.
type MasterAccount struct {
	ID    string
	Name  string
	Email string

	NationalIDNumber string
	IDDocumentURL    string

	IDVerificationStatus VerificationStatus
	DuplicateIDStatus    DuplicateIDStatus
	RestrictionReason    string

	CanOwnCompanies            bool
	CanReceivePayouts          bool
	CanApproveOwnershipChanges bool

	CompanyIDs []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddCompanyID appends companyID to the denormalized list if absent.
// Returns true when the list changed.
func (a *MasterAccount) AddCompanyID(companyID string) bool {
	if slices.Contains(a.CompanyIDs, companyID) {
		return false
	}
	a.CompanyIDs = append(a.CompanyIDs, companyID)
	return true
}

// GrantVerifiedCapabilities applies the single irreversible capability grant
// that accompanies an approved identity verification.
func (a *MasterAccount) GrantVerifiedCapabilities(now time.Time) {
	a.IDVerificationStatus = VerificationVerified
	a.CanOwnCompanies = true
	a.CanReceivePayouts = true
	a.CanApproveOwnershipChanges = true
	a.RestrictionReason = ""
	a.UpdatedAt = now
}
