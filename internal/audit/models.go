package audit

import (
	"time"

	"github.com/google/uuid"
)

// ActionType identifies the mutation an entry records.
type ActionType string

const (
	ActionOwnershipAdded        ActionType = "company_ownership_added"
	ActionOwnershipChanged      ActionType = "company_ownership_changed"
	ActionOwnershipRevoked      ActionType = "company_ownership_revoked"
	ActionRoleAssigned          ActionType = "company_role_assigned"
	ActionVerificationSubmitted ActionType = "id_verification_submitted"
	ActionVerificationApproved  ActionType = "id_verification_approved"
	ActionVerificationRejected  ActionType = "id_verification_rejected"
	ActionDuplicateIDDetected   ActionType = "duplicate_id_detected"
	ActionFraudDisputeReported  ActionType = "fraud_dispute_reported"
)

// Entry is one append-only record of a mutation performed by the ledger or
// verification cores. Entries are written as a side effect of every mutating
// operation and never read back by the cores themselves.
type Entry struct {
	ID                uuid.UUID
	MasterAccountID   string
	MasterAccountName string
	CompanyID         string // empty for account-level actions
	ActionType        ActionType
	ActionDescription string
	PerformedBy       string
	PerformedByName   string
	TargetEntity      string
	TargetEntityType  string
	PreviousValue     string // serialized, empty when not applicable
	NewValue          string
	Timestamp         time.Time
}
