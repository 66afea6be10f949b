// Package service implements the ownership ledger engine: per company, a set
// of active stakes whose percentages never exceed 100 in total, plus role
// grants, with every mutation atomic and audit-logged.
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
	ownershipmetrics "siteledger/internal/ownership/metrics"
	"siteledger/internal/ownership/models"
	dErrors "siteledger/pkg/domain-errors"
	"siteledger/pkg/platform/sentinel"
)

// Store abstracts ledger persistence. Implementations must honor a
// transaction carried on the context (pkg/platform/tx).
type Store interface {
	CreateOwnership(ctx context.Context, o *models.CompanyOwnership) error
	OwnershipByID(ctx context.Context, id uuid.UUID) (*models.CompanyOwnership, error)
	UpdateOwnership(ctx context.Context, o *models.CompanyOwnership) error
	OwnershipsByCompany(ctx context.Context, companyID string, includeInactive bool) ([]*models.CompanyOwnership, error)
	OwnershipsByAccount(ctx context.Context, masterAccountID string, includeInactive bool) ([]*models.CompanyOwnership, error)

	CreateRole(ctx context.Context, r *models.CompanyRole) error
	RolesByAccount(ctx context.Context, masterAccountID, companyID string) ([]*models.CompanyRole, error)
	HasActiveRole(ctx context.Context, companyID, masterAccountID string) (bool, error)

	GetCompany(ctx context.Context, companyID string) (*models.Company, error)
	UpsertCompany(ctx context.Context, c *models.Company) error
}

// AccountStore is the slice of the master account store the ledger needs.
// The company-list append is a store-side atomic, not a read-modify-write:
// grants for the same account in different companies run under different
// company locks, so writing back a slice read here would race.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*account.MasterAccount, error)
	AppendCompanyID(ctx context.Context, id, companyID string) error
}

// AuditPublisher records every mutation. Emit is called inside the mutating
// transaction so failed operations leave no trail.
type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Ledger orchestrates ownership stakes and role grants.
type Ledger struct {
	store    Store
	accounts AccountStore
	tx       StoreTx
	auditor  AuditPublisher
	logger   *slog.Logger
	metrics  *ownershipmetrics.Metrics

	// uniqueActiveRole rejects a second active role for the same
	// (company, account) pair. Off by default: the product allows an account
	// to act as, say, Director and Custom safety officer at once.
	uniqueActiveRole bool
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *ownershipmetrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithUniqueActiveRole enables the one-active-role-per-company check on
// AssignRole.
func WithUniqueActiveRole() Option {
	return func(l *Ledger) { l.uniqueActiveRole = true }
}

// NewLedger constructs the engine. tx may be nil, in which case an in-memory
// sharded-lock transaction boundary is used (suitable with the memory stores).
func NewLedger(store Store, accounts AccountStore, auditor AuditPublisher, tx StoreTx, opts ...Option) *Ledger {
	if tx == nil {
		tx = NewInMemoryTx()
	}
	l := &Ledger{
		store:    store,
		accounts: accounts,
		tx:       tx,
		auditor:  auditor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddOwnerParams carries everything AddOwner needs. GrantedBy identifies the
// caller; identity verification is the outer auth layer's job.
type AddOwnerParams struct {
	CompanyID         string
	MasterAccountID   string
	MasterAccountName string
	Percentage        float64
	VotingRights      bool
	EconomicRights    bool
	GrantedBy         string
	GrantedByName     string
	Notes             string
}

// AddOwner grants a new ownership stake. All effects — the stake, the
// account's company list, the company's denormalized totals, and the audit
// entry — commit atomically or not at all.
func (l *Ledger) AddOwner(ctx context.Context, p AddOwnerParams) (*models.CompanyOwnership, error) {
	if err := models.ValidatePercentage(p.Percentage); err != nil {
		return nil, err
	}

	var created *models.CompanyOwnership
	err := l.tx.RunInTx(ctx, p.CompanyID, func(txCtx context.Context) error {
		acct, err := l.accounts.FindByID(txCtx, p.MasterAccountID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "Master account not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load master account")
		}
		if !acct.CanOwnCompanies {
			return dErrors.New(dErrors.CodeForbidden, "Master account must be verified before owning companies")
		}

		active, err := l.store.OwnershipsByCompany(txCtx, p.CompanyID, false)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load company owners")
		}

		currentTotal := sumPercentages(active)
		if currentTotal+p.Percentage > models.MaxTotalPercentage {
			l.incInvariantRejections()
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"total ownership would exceed 100%%: current total is %s%%, attempted to add %s%%",
				trimPct(currentTotal), trimPct(p.Percentage)).
				WithDetail("current_total", currentTotal).
				WithDetail("attempted", p.Percentage)
		}

		for _, stake := range active {
			if stake.MasterAccountID == p.MasterAccountID {
				return dErrors.New(dErrors.CodeConflict,
					"Master account already holds an active stake in this company; change the ownership percentage instead")
			}
		}

		ownership, err := models.NewCompanyOwnership(
			p.CompanyID, p.MasterAccountID, p.MasterAccountName,
			p.Percentage, p.VotingRights, p.EconomicRights,
			p.GrantedBy, p.Notes, time.Now(),
		)
		if err != nil {
			return err
		}
		if err := l.store.CreateOwnership(txCtx, ownership); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create ownership record")
		}

		if err := l.accounts.AppendCompanyID(txCtx, p.MasterAccountID, p.CompanyID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update master account")
		}

		if err := l.refreshCompanyTotals(txCtx, p.CompanyID); err != nil {
			return err
		}

		entry := audit.Entry{
			MasterAccountID:   p.MasterAccountID,
			MasterAccountName: p.MasterAccountName,
			CompanyID:         p.CompanyID,
			ActionType:        audit.ActionOwnershipAdded,
			ActionDescription: fmt.Sprintf("Granted %s%% ownership of company %s", trimPct(p.Percentage), p.CompanyID),
			PerformedBy:       p.GrantedBy,
			PerformedByName:   p.GrantedByName,
			TargetEntity:      ownership.ID.String(),
			TargetEntityType:  "companyOwnership",
			NewValue:          trimPct(p.Percentage),
		}
		if err := l.auditor.Emit(txCtx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
		}

		created = ownership
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logAudit(ctx, string(audit.ActionOwnershipAdded),
		"company_id", p.CompanyID,
		"master_account_id", p.MasterAccountID,
		"ownership_id", created.ID.String(),
	)
	if l.metrics != nil {
		l.metrics.OwnersAdded.Inc()
	}
	return created, nil
}

// ChangePercentage resizes an existing stake. The gate on CanOwnCompanies is
// deliberately not re-checked: it only applies when a stake is created.
func (l *Ledger) ChangePercentage(ctx context.Context, ownershipID uuid.UUID, newPercentage float64, changedBy, reason string) (*models.CompanyOwnership, error) {
	if err := models.ValidatePercentage(newPercentage); err != nil {
		return nil, err
	}

	// The company is only known once the record is loaded, so look it up
	// outside the lock and validate again inside it.
	record, err := l.store.OwnershipByID(ctx, ownershipID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Ownership record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ownership record")
	}

	var updated *models.CompanyOwnership
	err = l.tx.RunInTx(ctx, record.CompanyID, func(txCtx context.Context) error {
		current, err := l.store.OwnershipByID(txCtx, ownershipID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "Ownership record not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ownership record")
		}

		active, err := l.store.OwnershipsByCompany(txCtx, current.CompanyID, false)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load company owners")
		}
		otherTotal := 0.0
		for _, stake := range active {
			if stake.ID != current.ID {
				otherTotal += stake.Percentage
			}
		}
		if current.IsActive() && otherTotal+newPercentage > models.MaxTotalPercentage {
			l.incInvariantRejections()
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"total ownership would exceed 100%%: other owners hold %s%%, attempted to set %s%%",
				trimPct(otherTotal), trimPct(newPercentage)).
				WithDetail("other_total", otherTotal).
				WithDetail("attempted", newPercentage)
		}

		previous := current.Percentage
		current.Percentage = newPercentage
		if err := l.store.UpdateOwnership(txCtx, current); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update ownership record")
		}

		if err := l.refreshCompanyTotals(txCtx, current.CompanyID); err != nil {
			return err
		}

		entry := audit.Entry{
			MasterAccountID:   current.MasterAccountID,
			MasterAccountName: current.MasterAccountName,
			CompanyID:         current.CompanyID,
			ActionType:        audit.ActionOwnershipChanged,
			ActionDescription: fmt.Sprintf("Changed ownership from %s%% to %s%%: %s", trimPct(previous), trimPct(newPercentage), reason),
			PerformedBy:       changedBy,
			TargetEntity:      current.ID.String(),
			TargetEntityType:  "companyOwnership",
			PreviousValue:     trimPct(previous),
			NewValue:          trimPct(newPercentage),
		}
		if err := l.auditor.Emit(txCtx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
		}

		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logAudit(ctx, string(audit.ActionOwnershipChanged),
		"ownership_id", ownershipID.String(),
		"company_id", updated.CompanyID,
	)
	if l.metrics != nil {
		l.metrics.PercentageChanges.Inc()
	}
	return updated, nil
}

// RevokeOwnership deactivates a stake. The record survives for the audit
// trail; only its status and the company's totals change.
func (l *Ledger) RevokeOwnership(ctx context.Context, ownershipID uuid.UUID, revokedBy, reason string) error {
	record, err := l.store.OwnershipByID(ctx, ownershipID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "Ownership record not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ownership record")
	}

	err = l.tx.RunInTx(ctx, record.CompanyID, func(txCtx context.Context) error {
		current, err := l.store.OwnershipByID(txCtx, ownershipID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "Ownership record not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ownership record")
		}
		if !current.IsActive() {
			return dErrors.New(dErrors.CodeConflict, "Ownership stake is already revoked")
		}

		current.Status = models.StatusRevoked
		if err := l.store.UpdateOwnership(txCtx, current); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update ownership record")
		}
		if err := l.refreshCompanyTotals(txCtx, current.CompanyID); err != nil {
			return err
		}

		entry := audit.Entry{
			MasterAccountID:   current.MasterAccountID,
			MasterAccountName: current.MasterAccountName,
			CompanyID:         current.CompanyID,
			ActionType:        audit.ActionOwnershipRevoked,
			ActionDescription: fmt.Sprintf("Revoked %s%% ownership stake: %s", trimPct(current.Percentage), reason),
			PerformedBy:       revokedBy,
			TargetEntity:      current.ID.String(),
			TargetEntityType:  "companyOwnership",
			PreviousValue:     string(models.StatusActive),
			NewValue:          string(models.StatusRevoked),
		}
		if err := l.auditor.Emit(txCtx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logAudit(ctx, string(audit.ActionOwnershipRevoked), "ownership_id", ownershipID.String())
	return nil
}

// AssignRoleParams mirrors AddOwnerParams for role grants.
type AssignRoleParams struct {
	CompanyID         string
	MasterAccountID   string
	MasterAccountName string
	Role              models.Role
	CustomRoleName    string
	Permissions       []string
	AssignedBy        string
	AssignedByName    string
	Notes             string
}

// AssignRole grants a role. Unlike the stake operations this is not a
// transaction: a crash between the role write and the audit write is an
// accepted gap.
func (l *Ledger) AssignRole(ctx context.Context, p AssignRoleParams) (*models.CompanyRole, error) {
	role, err := models.NewCompanyRole(
		p.CompanyID, p.MasterAccountID, p.MasterAccountName,
		p.Role, p.CustomRoleName, p.Permissions,
		p.AssignedBy, p.Notes, time.Now(),
	)
	if err != nil {
		return nil, err
	}

	if l.uniqueActiveRole {
		exists, err := l.store.HasActiveRole(ctx, p.CompanyID, p.MasterAccountID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing roles")
		}
		if exists {
			return nil, dErrors.New(dErrors.CodeConflict, "Master account already holds an active role in this company")
		}
	}

	if err := l.store.CreateRole(ctx, role); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create role record")
	}

	entry := audit.Entry{
		MasterAccountID:   p.MasterAccountID,
		MasterAccountName: p.MasterAccountName,
		CompanyID:         p.CompanyID,
		ActionType:        audit.ActionRoleAssigned,
		ActionDescription: fmt.Sprintf("Assigned role %s in company %s", roleLabel(role), p.CompanyID),
		PerformedBy:       p.AssignedBy,
		PerformedByName:   p.AssignedByName,
		TargetEntity:      role.ID.String(),
		TargetEntityType:  "companyRole",
		NewValue:          string(role.Role),
	}
	if err := l.auditor.Emit(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
	}

	l.logAudit(ctx, string(audit.ActionRoleAssigned),
		"company_id", p.CompanyID,
		"master_account_id", p.MasterAccountID,
		"role", string(role.Role),
	)
	if l.metrics != nil {
		l.metrics.RolesAssigned.Inc()
	}
	return role, nil
}

// CompanyOwners lists stakes for a company. Reads perform no invariant
// checks; the invariant is enforced at write time only.
func (l *Ledger) CompanyOwners(ctx context.Context, companyID string, includeInactive bool) ([]*models.CompanyOwnership, error) {
	owners, err := l.store.OwnershipsByCompany(ctx, companyID, includeInactive)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list company owners")
	}
	return owners, nil
}

// AccountOwnerships lists a master account's stakes across companies.
func (l *Ledger) AccountOwnerships(ctx context.Context, masterAccountID string, includeInactive bool) ([]*models.CompanyOwnership, error) {
	owners, err := l.store.OwnershipsByAccount(ctx, masterAccountID, includeInactive)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list account ownerships")
	}
	return owners, nil
}

// AccountRoles lists a master account's active roles, optionally scoped to a
// company.
func (l *Ledger) AccountRoles(ctx context.Context, masterAccountID, companyID string) ([]*models.CompanyRole, error) {
	roles, err := l.store.RolesByAccount(ctx, masterAccountID, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list account roles")
	}
	return roles, nil
}

// Company returns the denormalized counters for a company. A company with no
// recorded stakes yields zero counters rather than an error.
func (l *Ledger) Company(ctx context.Context, companyID string) (*models.Company, error) {
	c, err := l.store.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.Company{ID: companyID}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load company")
	}
	return c, nil
}

// refreshCompanyTotals recomputes the denormalized counters from the active
// stake set inside the caller's transaction, so the cache cannot drift.
func (l *Ledger) refreshCompanyTotals(ctx context.Context, companyID string) error {
	active, err := l.store.OwnershipsByCompany(ctx, companyID, false)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to recompute company totals")
	}
	c := &models.Company{
		ID:                       companyID,
		TotalOwnershipPercentage: sumPercentages(active),
		OwnerCount:               len(active),
		UpdatedAt:                time.Now(),
	}
	if err := l.store.UpsertCompany(ctx, c); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update company totals")
	}
	return nil
}

func (l *Ledger) logAudit(ctx context.Context, event string, attributes ...any) {
	args := append(attributes, "event", event, "log_type", "audit")
	l.logger.InfoContext(ctx, event, args...)
}

func (l *Ledger) incInvariantRejections() {
	if l.metrics != nil {
		l.metrics.InvariantRejections.Inc()
	}
}

func sumPercentages(stakes []*models.CompanyOwnership) float64 {
	total := 0.0
	for _, s := range stakes {
		total += s.Percentage
	}
	return total
}

func roleLabel(r *models.CompanyRole) string {
	if r.Role == models.RoleCustom {
		return fmt.Sprintf("%s (%s)", r.Role, r.CustomRoleName)
	}
	return string(r.Role)
}

// trimPct renders a percentage without trailing zeros (40 not 40.000000).
func trimPct(p float64) string {
	return fmt.Sprintf("%g", p)
}
