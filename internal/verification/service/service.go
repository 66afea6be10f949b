// Package service implements the duplicate-ID detection and identity
// verification workflow: submissions, admin review, and fraud disputes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"siteledger/internal/account"
	"siteledger/internal/audit"
	verificationmetrics "siteledger/internal/verification/metrics"
	"siteledger/internal/verification/models"
	dErrors "siteledger/pkg/domain-errors"
	"siteledger/pkg/platform/sentinel"
)

// Store abstracts verification persistence.
type Store interface {
	CreateVerification(ctx context.Context, v *models.IDVerification) error
	VerificationByID(ctx context.Context, id uuid.UUID) (*models.IDVerification, error)
	UpdateVerification(ctx context.Context, v *models.IDVerification) error
	VerificationsByStatus(ctx context.Context, status models.VerificationStatus) ([]*models.IDVerification, error)
	VerificationsByAccount(ctx context.Context, masterAccountID string) ([]*models.IDVerification, error)

	CreateDispute(ctx context.Context, d *models.FraudDispute) error
	DisputesByStatus(ctx context.Context, status models.DisputeStatus) ([]*models.FraudDispute, error)
}

// AccountStore is the slice of the master account store this workflow needs.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*account.MasterAccount, error)
	FindByNationalID(ctx context.Context, nationalID string) ([]*account.MasterAccount, error)
	Update(ctx context.Context, acct *account.MasterAccount) error
}

// NationalIDIndex answers "who holds this national ID" faster than a store
// scan. It is best-effort: lookup errors fall through to the store, and a
// missing index (nil) disables the fast path entirely.
type NationalIDIndex interface {
	Lookup(ctx context.Context, nationalID string) (string, error)
	Put(ctx context.Context, nationalID, masterAccountID string) error
}

// AuditPublisher records every mutation.
type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Workflow orchestrates identity verification and fraud disputes.
type Workflow struct {
	store    Store
	accounts AccountStore
	index    NationalIDIndex
	tx       StoreTx
	auditor  AuditPublisher
	logger   *slog.Logger
	metrics  *verificationmetrics.Metrics
}

type Option func(*Workflow)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) { w.logger = logger }
}

func WithMetrics(m *verificationmetrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// WithNationalIDIndex installs the Redis-backed fast path for CheckNationalID.
func WithNationalIDIndex(index NationalIDIndex) Option {
	return func(w *Workflow) { w.index = index }
}

// NewWorkflow constructs the verification workflow. tx may be nil, in which
// case an in-memory sharded-lock transaction boundary is used.
func NewWorkflow(store Store, accounts AccountStore, auditor AuditPublisher, tx StoreTx, opts ...Option) *Workflow {
	if tx == nil {
		tx = NewInMemoryTx()
	}
	w := &Workflow{
		store:    store,
		accounts: accounts,
		tx:       tx,
		auditor:  auditor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Match is the result of a national ID lookup.
type Match struct {
	Exists            bool   `json:"exists"`
	MasterAccountID   string `json:"master_account_id,omitempty"`
	MasterAccountName string `json:"master_account_name,omitempty"`
}

// CheckNationalID reports whether any master account holds the given national
// ID, regardless of its verification state. The Redis index is consulted
// first; on a miss or index error the account store is scanned.
func (w *Workflow) CheckNationalID(ctx context.Context, nationalID string) (*Match, error) {
	if nationalID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "National ID number is required")
	}
	if w.metrics != nil {
		w.metrics.IndexLookups.Inc()
	}

	if w.index != nil {
		accountID, err := w.index.Lookup(ctx, nationalID)
		if err != nil {
			w.logger.WarnContext(ctx, "national id index lookup failed, falling back to store", "error", err.Error())
		} else if accountID != "" {
			acct, err := w.accounts.FindByID(ctx, accountID)
			if err == nil {
				if w.metrics != nil {
					w.metrics.IndexHits.Inc()
				}
				return &Match{Exists: true, MasterAccountID: acct.ID, MasterAccountName: acct.Name}, nil
			}
			// Stale index entry; fall through to the store.
			w.logger.WarnContext(ctx, "national id index entry points at missing account", "account_id", accountID)
		}
	}

	matches, err := w.accounts.FindByNationalID(ctx, nationalID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up national ID")
	}
	if len(matches) == 0 {
		return &Match{}, nil
	}
	holder := matches[0]
	return &Match{Exists: true, MasterAccountID: holder.ID, MasterAccountName: holder.Name}, nil
}

// SubmitParams carries one identity-document submission.
type SubmitParams struct {
	MasterAccountID  string
	NationalIDNumber string
	DocumentType     string
	DocumentURL      string
	StoragePath      string
	Metadata         map[string]string
}

// Submit files an identity-document submission. A national ID already held by
// a different account blocks the submission: no verification record is
// created, the submitting account is flagged DUPLICATE_DETECTED with the
// submitted number persisted, and the error names the holder. The multi-step
// writes here are not atomic.
func (w *Workflow) Submit(ctx context.Context, p SubmitParams) (*models.IDVerification, error) {
	verification, err := models.NewIDVerification(
		p.MasterAccountID, p.NationalIDNumber, p.DocumentType,
		p.DocumentURL, p.StoragePath, p.Metadata, time.Now(),
	)
	if err != nil {
		return nil, err
	}

	acct, err := w.accounts.FindByID(ctx, p.MasterAccountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Master account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load master account")
	}

	match, err := w.CheckNationalID(ctx, p.NationalIDNumber)
	if err != nil {
		return nil, err
	}
	if match.Exists && match.MasterAccountID != p.MasterAccountID {
		return nil, w.blockDuplicate(ctx, acct, p.NationalIDNumber, match)
	}

	if err := w.store.CreateVerification(ctx, verification); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification record")
	}

	acct.NationalIDNumber = p.NationalIDNumber
	acct.IDVerificationStatus = account.VerificationPending
	acct.IDDocumentURL = p.DocumentURL
	acct.DuplicateIDStatus = account.DuplicateNone
	acct.UpdatedAt = time.Now()
	if err := w.accounts.Update(ctx, acct); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update master account")
	}

	if w.index != nil {
		if err := w.index.Put(ctx, p.NationalIDNumber, p.MasterAccountID); err != nil {
			w.logger.WarnContext(ctx, "failed to index national id", "error", err.Error())
		}
	}

	entry := audit.Entry{
		MasterAccountID:   p.MasterAccountID,
		MasterAccountName: acct.Name,
		ActionType:        audit.ActionVerificationSubmitted,
		ActionDescription: fmt.Sprintf("Submitted %s for identity verification", p.DocumentType),
		PerformedBy:       p.MasterAccountID,
		TargetEntity:      verification.ID.String(),
		TargetEntityType:  "idVerification",
		NewValue:          string(models.StatusPendingReview),
	}
	if err := w.auditor.Emit(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
	}

	w.logAudit(ctx, string(audit.ActionVerificationSubmitted),
		"master_account_id", p.MasterAccountID,
		"verification_id", verification.ID.String(),
	)
	if w.metrics != nil {
		w.metrics.Submissions.Inc()
	}
	return verification, nil
}

// blockDuplicate applies the flag-and-block policy: the account keeps the
// submitted number so the dispute workflow can find it, gains the
// DUPLICATE_DETECTED flag, and the caller gets a conflict naming the holder.
func (w *Workflow) blockDuplicate(ctx context.Context, acct *account.MasterAccount, nationalID string, match *Match) error {
	acct.NationalIDNumber = nationalID
	acct.DuplicateIDStatus = account.DuplicateDetected
	acct.UpdatedAt = time.Now()
	if err := w.accounts.Update(ctx, acct); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to flag duplicate submission")
	}

	entry := audit.Entry{
		MasterAccountID:   acct.ID,
		MasterAccountName: acct.Name,
		ActionType:        audit.ActionDuplicateIDDetected,
		ActionDescription: fmt.Sprintf("Blocked verification submission: national ID already registered to %s", match.MasterAccountName),
		PerformedBy:       acct.ID,
		TargetEntity:      acct.ID,
		TargetEntityType:  "masterAccount",
		NewValue:          string(account.DuplicateDetected),
	}
	if err := w.auditor.Emit(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
	}

	w.logAudit(ctx, string(audit.ActionDuplicateIDDetected),
		"master_account_id", acct.ID,
		"holder_account_id", match.MasterAccountID,
	)
	if w.metrics != nil {
		w.metrics.DuplicatesDetected.Inc()
	}
	return dErrors.Newf(dErrors.CodeConflict,
		"This national ID is already registered to %s", match.MasterAccountName).
		WithDetail("existing_account_id", match.MasterAccountID)
}

// Approve marks a pending verification VERIFIED and grants the account its
// verified capabilities. Atomic: the record, the account, and the audit entry
// commit together. Terminal records cannot be approved again.
func (w *Workflow) Approve(ctx context.Context, verificationID uuid.UUID, adminID, notes string) error {
	err := w.tx.RunInTx(ctx, verificationID.String(), func(txCtx context.Context) error {
		verification, err := w.loadVerification(txCtx, verificationID)
		if err != nil {
			return err
		}
		if verification.IsTerminal() {
			return dErrors.Newf(dErrors.CodeConflict,
				"Verification has already been reviewed (status %s)", verification.Status)
		}

		now := time.Now()
		verification.Status = models.StatusVerified
		verification.ReviewedAt = now
		verification.ReviewedBy = adminID
		verification.ReviewNotes = notes
		if err := w.store.UpdateVerification(txCtx, verification); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification record")
		}

		acct, err := w.accounts.FindByID(txCtx, verification.MasterAccountID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "Master account not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load master account")
		}
		acct.GrantVerifiedCapabilities(now)
		if err := w.accounts.Update(txCtx, acct); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update master account")
		}

		entry := audit.Entry{
			MasterAccountID:   verification.MasterAccountID,
			MasterAccountName: acct.Name,
			ActionType:        audit.ActionVerificationApproved,
			ActionDescription: "Approved identity verification",
			PerformedBy:       adminID,
			TargetEntity:      verification.ID.String(),
			TargetEntityType:  "idVerification",
			PreviousValue:     string(models.StatusPendingReview),
			NewValue:          string(models.StatusVerified),
		}
		if err := w.auditor.Emit(txCtx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.logAudit(ctx, string(audit.ActionVerificationApproved), "verification_id", verificationID.String())
	if w.metrics != nil {
		w.metrics.Approvals.Inc()
	}
	return nil
}

// Reject marks a pending verification REJECTED with a reason and records the
// restriction on the account. Capabilities granted earlier are untouched:
// approve and reject are mutually exclusive per record, so there is nothing
// to revoke.
func (w *Workflow) Reject(ctx context.Context, verificationID uuid.UUID, adminID, reason string) error {
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "Rejection reason is required")
	}

	err := w.tx.RunInTx(ctx, verificationID.String(), func(txCtx context.Context) error {
		verification, err := w.loadVerification(txCtx, verificationID)
		if err != nil {
			return err
		}
		if verification.IsTerminal() {
			return dErrors.Newf(dErrors.CodeConflict,
				"Verification has already been reviewed (status %s)", verification.Status)
		}

		now := time.Now()
		verification.Status = models.StatusRejected
		verification.ReviewedAt = now
		verification.ReviewedBy = adminID
		verification.RejectionReason = reason
		if err := w.store.UpdateVerification(txCtx, verification); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification record")
		}

		acct, err := w.accounts.FindByID(txCtx, verification.MasterAccountID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "Master account not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load master account")
		}
		acct.IDVerificationStatus = account.VerificationRejected
		acct.RestrictionReason = reason
		acct.UpdatedAt = now
		if err := w.accounts.Update(txCtx, acct); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update master account")
		}

		entry := audit.Entry{
			MasterAccountID:   verification.MasterAccountID,
			MasterAccountName: acct.Name,
			ActionType:        audit.ActionVerificationRejected,
			ActionDescription: fmt.Sprintf("Rejected identity verification: %s", reason),
			PerformedBy:       adminID,
			TargetEntity:      verification.ID.String(),
			TargetEntityType:  "idVerification",
			PreviousValue:     string(models.StatusPendingReview),
			NewValue:          string(models.StatusRejected),
		}
		if err := w.auditor.Emit(txCtx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.logAudit(ctx, string(audit.ActionVerificationRejected), "verification_id", verificationID.String())
	if w.metrics != nil {
		w.metrics.Rejections.Inc()
	}
	return nil
}

// DisputeParams carries one fraud report.
type DisputeParams struct {
	NationalIDNumber    string
	ReportedBy          string
	ReportedByName      string
	ReportedByEmail     string
	Explanation         string
	SupportingDocuments []models.SupportingDocument
}

// ReportDispute files a duplicate-ID fraud dispute. An account must already
// hold the disputed ID. When two accounts carry the same number, the one
// flagged DUPLICATE_DETECTED is recorded as the "new" side of the dispute.
func (w *Workflow) ReportDispute(ctx context.Context, p DisputeParams) (*models.FraudDispute, error) {
	dispute, err := models.NewFraudDispute(
		p.NationalIDNumber, p.ReportedBy, p.ReportedByName, p.ReportedByEmail,
		p.Explanation, p.SupportingDocuments, time.Now(),
	)
	if err != nil {
		return nil, err
	}

	matches, err := w.accounts.FindByNationalID(ctx, p.NationalIDNumber)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up national ID")
	}
	if len(matches) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "No account holds this national ID")
	}

	existing, newcomer := splitDisputeParties(matches)
	dispute.ExistingAccountID = existing.ID
	dispute.ExistingAccountName = existing.Name
	if newcomer != nil {
		dispute.NewAccountID = newcomer.ID
		dispute.NewAccountName = newcomer.Name
	}

	if err := w.store.CreateDispute(ctx, dispute); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create dispute record")
	}

	entry := audit.Entry{
		MasterAccountID:   existing.ID,
		MasterAccountName: existing.Name,
		ActionType:        audit.ActionFraudDisputeReported,
		ActionDescription: fmt.Sprintf("Fraud dispute filed by %s", p.ReportedByName),
		PerformedBy:       p.ReportedBy,
		PerformedByName:   p.ReportedByName,
		TargetEntity:      dispute.ID.String(),
		TargetEntityType:  "fraudDispute",
		NewValue:          string(models.DisputePending),
	}
	if err := w.auditor.Emit(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
	}

	w.logAudit(ctx, string(audit.ActionFraudDisputeReported),
		"dispute_id", dispute.ID.String(),
		"existing_account_id", existing.ID,
	)
	if w.metrics != nil {
		w.metrics.DisputesReported.Inc()
	}
	return dispute, nil
}

// PendingVerifications lists the review queue, oldest first.
func (w *Workflow) PendingVerifications(ctx context.Context) ([]*models.IDVerification, error) {
	pending, err := w.store.VerificationsByStatus(ctx, models.StatusPendingReview)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending verifications")
	}
	return pending, nil
}

// AccountVerifications lists every submission an account has made.
func (w *Workflow) AccountVerifications(ctx context.Context, masterAccountID string) ([]*models.IDVerification, error) {
	list, err := w.store.VerificationsByAccount(ctx, masterAccountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list account verifications")
	}
	return list, nil
}

// DisputesByStatus lists disputes for the review surface.
func (w *Workflow) DisputesByStatus(ctx context.Context, status models.DisputeStatus) ([]*models.FraudDispute, error) {
	disputes, err := w.store.DisputesByStatus(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list disputes")
	}
	return disputes, nil
}

func (w *Workflow) loadVerification(ctx context.Context, id uuid.UUID) (*models.IDVerification, error) {
	verification, err := w.store.VerificationByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Verification record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification record")
	}
	return verification, nil
}

// splitDisputeParties picks the established holder and, when present, the
// account that was flagged while trying to register the same number.
func splitDisputeParties(matches []*account.MasterAccount) (existing *account.MasterAccount, newcomer *account.MasterAccount) {
	existing = matches[0]
	for _, m := range matches {
		if m.DuplicateIDStatus == account.DuplicateDetected {
			newcomer = m
		} else {
			existing = m
		}
	}
	return existing, newcomer
}

func (w *Workflow) logAudit(ctx context.Context, event string, attributes ...any) {
	args := append(attributes, "event", event, "log_type", "audit")
	w.logger.InfoContext(ctx, event, args...)
}
