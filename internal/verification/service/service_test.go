package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteledger/internal/account"
	"siteledger/internal/audit"
	"siteledger/internal/verification/models"
	"siteledger/internal/verification/store"
	dErrors "siteledger/pkg/domain-errors"
)

type fixture struct {
	workflow *Workflow
	store    *store.InMemoryStore
	accounts *account.InMemoryStore
	auditLog *audit.InMemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	verifications := store.NewInMemoryStore()
	accounts := account.NewInMemoryStore()
	auditStore := audit.NewInMemoryStore()
	workflow := NewWorkflow(verifications, accounts, audit.NewPublisher(auditStore), nil, opts...)
	return &fixture{workflow: workflow, store: verifications, accounts: accounts, auditLog: auditStore}
}

func (f *fixture) seedAccount(t *testing.T, id, nationalID string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, f.accounts.Create(context.Background(), &account.MasterAccount{
		ID:                   id,
		Name:                 "Account " + id,
		NationalIDNumber:     nationalID,
		IDVerificationStatus: account.VerificationUnverified,
		DuplicateIDStatus:    account.DuplicateNone,
		CreatedAt:            now,
		UpdatedAt:            now,
	}))
}

func (f *fixture) submit(t *testing.T, accountID, nationalID string) *models.IDVerification {
	t.Helper()
	v, err := f.workflow.Submit(context.Background(), SubmitParams{
		MasterAccountID:  accountID,
		NationalIDNumber: nationalID,
		DocumentType:     "passport",
		DocumentURL:      "https://docs.example/" + accountID,
	})
	require.NoError(t, err)
	return v
}

func TestCheckNationalID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, "a1", "123")
	f.seedAccount(t, "a2", "")

	t.Run("existing holder", func(t *testing.T) {
		match, err := f.workflow.CheckNationalID(ctx, "123")
		require.NoError(t, err)
		assert.True(t, match.Exists)
		assert.Equal(t, "a1", match.MasterAccountID)
		assert.Equal(t, "Account a1", match.MasterAccountName)
	})

	t.Run("unknown id", func(t *testing.T) {
		match, err := f.workflow.CheckNationalID(ctx, "999")
		require.NoError(t, err)
		assert.False(t, match.Exists)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		_, err := f.workflow.CheckNationalID(ctx, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// fakeIndex is a map-backed NationalIDIndex standing in for Redis.
type fakeIndex struct {
	entries map[string]string
	fail    bool
	lookups int
}

func (f *fakeIndex) Lookup(_ context.Context, nationalID string) (string, error) {
	f.lookups++
	if f.fail {
		return "", errors.New("index unavailable")
	}
	return f.entries[nationalID], nil
}

func (f *fakeIndex) Put(_ context.Context, nationalID, accountID string) error {
	if f.fail {
		return errors.New("index unavailable")
	}
	f.entries[nationalID] = accountID
	return nil
}

func TestCheckNationalIDUsesIndex(t *testing.T) {
	idx := &fakeIndex{entries: map[string]string{}}
	f := newFixture(t, WithNationalIDIndex(idx))
	ctx := context.Background()
	f.seedAccount(t, "a1", "")

	f.submit(t, "a1", "123")
	assert.Equal(t, "a1", idx.entries["123"], "submission populates the index")

	match, err := f.workflow.CheckNationalID(ctx, "123")
	require.NoError(t, err)
	assert.True(t, match.Exists)
	assert.Equal(t, "a1", match.MasterAccountID)

	t.Run("index failure falls back to the store", func(t *testing.T) {
		idx.fail = true
		match, err := f.workflow.CheckNationalID(ctx, "123")
		require.NoError(t, err)
		assert.True(t, match.Exists)
		assert.Equal(t, "a1", match.MasterAccountID)
	})
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, "a1", "")

	v := f.submit(t, "a1", "123")
	assert.Equal(t, models.StatusPendingReview, v.Status)

	acct, err := f.accounts.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "123", acct.NationalIDNumber)
	assert.Equal(t, account.VerificationPending, acct.IDVerificationStatus)
	assert.Equal(t, account.DuplicateNone, acct.DuplicateIDStatus)
	assert.Equal(t, "https://docs.example/a1", acct.IDDocumentURL)

	entries, err := f.auditLog.ListByAccount(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionVerificationSubmitted, entries[0].ActionType)
}

func TestSubmitDuplicateBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, "a1", "123")
	f.seedAccount(t, "b1", "")

	_, err := f.workflow.Submit(ctx, SubmitParams{
		MasterAccountID:  "b1",
		NationalIDNumber: "123",
		DocumentType:     "passport",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.Contains(t, err.Error(), "Account a1", "error names the holder")

	// No verification record exists for the blocked submitter.
	records, listErr := f.store.VerificationsByAccount(ctx, "b1")
	require.NoError(t, listErr)
	assert.Empty(t, records)

	// The submitter is flagged and the number persisted anyway.
	acct, findErr := f.accounts.FindByID(ctx, "b1")
	require.NoError(t, findErr)
	assert.Equal(t, account.DuplicateDetected, acct.DuplicateIDStatus)
	assert.Equal(t, "123", acct.NationalIDNumber)

	entries, auditErr := f.auditLog.ListByAccount(ctx, "b1")
	require.NoError(t, auditErr)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionDuplicateIDDetected, entries[0].ActionType)
}

func TestSubmitResubmissionBySameAccount(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "a1", "")

	f.submit(t, "a1", "123")
	// The same account resubmitting its own number is not a duplicate.
	second := f.submit(t, "a1", "123")
	assert.Equal(t, models.StatusPendingReview, second.Status)

	records, err := f.store.VerificationsByAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSubmitUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.workflow.Submit(context.Background(), SubmitParams{
		MasterAccountID:  "missing",
		NationalIDNumber: "123",
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestApproveGrantsCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, "a1", "")
	v := f.submit(t, "a1", "123")

	require.NoError(t, f.workflow.Approve(ctx, v.ID, "admin-1", "documents legible"))

	got, err := f.store.VerificationByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, got.Status)
	assert.Equal(t, "admin-1", got.ReviewedBy)
	assert.Equal(t, "documents legible", got.ReviewNotes)
	assert.False(t, got.ReviewedAt.IsZero())

	acct, err := f.accounts.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, account.VerificationVerified, acct.IDVerificationStatus)
	assert.True(t, acct.CanOwnCompanies)
	assert.True(t, acct.CanReceivePayouts)
	assert.True(t, acct.CanApproveOwnershipChanges)
}

func TestRejectRecordsRestriction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, "a1", "")
	v := f.submit(t, "a1", "123")

	t.Run("reason required", func(t *testing.T) {
		err := f.workflow.Reject(ctx, v.ID, "admin-1", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	require.NoError(t, f.workflow.Reject(ctx, v.ID, "admin-1", "document unreadable"))

	got, err := f.store.VerificationByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Equal(t, "document unreadable", got.RejectionReason)

	acct, err := f.accounts.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, account.VerificationRejected, acct.IDVerificationStatus)
	assert.Equal(t, "document unreadable", acct.RestrictionReason)
	assert.False(t, acct.CanOwnCompanies, "rejection grants nothing")
}

func TestVerificationLifecycleTerminalStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, "a1", "")
	v := f.submit(t, "a1", "123")

	require.NoError(t, f.workflow.Approve(ctx, v.ID, "admin-1", ""))

	t.Run("reject after approve conflicts", func(t *testing.T) {
		err := f.workflow.Reject(ctx, v.ID, "admin-1", "changed my mind")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.Contains(t, err.Error(), string(models.StatusVerified))
	})

	t.Run("double approve conflicts", func(t *testing.T) {
		err := f.workflow.Approve(ctx, v.ID, "admin-2", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("unknown verification", func(t *testing.T) {
		err := f.workflow.Approve(ctx, uuid.New(), "admin-1", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("resubmission after rejection creates a new record", func(t *testing.T) {
		f.seedAccount(t, "a2", "")
		first := f.submit(t, "a2", "456")
		require.NoError(t, f.workflow.Reject(ctx, first.ID, "admin-1", "blurry"))

		second := f.submit(t, "a2", "456")
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, models.StatusPendingReview, second.Status)

		// The rejected record stays terminal.
		got, err := f.store.VerificationByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, got.Status)
	})
}

func TestReportDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, "a1", "123")

	t.Run("no holder", func(t *testing.T) {
		_, err := f.workflow.ReportDispute(ctx, DisputeParams{
			NationalIDNumber: "999",
			ReportedBy:       "reporter-1",
			ReportedByName:   "R One",
			Explanation:      "saw a duplicate",
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("identifies both parties", func(t *testing.T) {
		// b1 tried to register a1's number and got flagged.
		f.seedAccount(t, "b1", "")
		_, err := f.workflow.Submit(ctx, SubmitParams{MasterAccountID: "b1", NationalIDNumber: "123"})
		require.Error(t, err)

		dispute, err := f.workflow.ReportDispute(ctx, DisputeParams{
			NationalIDNumber: "123",
			ReportedBy:       "reporter-1",
			ReportedByName:   "R One",
			Explanation:      "two accounts share this ID",
			SupportingDocuments: []models.SupportingDocument{
				{URL: "https://docs.example/evidence.pdf", FileName: "evidence.pdf", UploadedAt: time.Now()},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, models.DisputePending, dispute.Status)
		assert.Equal(t, models.PriorityHigh, dispute.Priority)
		assert.Equal(t, models.DisputeDuplicateID, dispute.DisputeType)
		assert.Equal(t, "a1", dispute.ExistingAccountID)
		assert.Equal(t, "b1", dispute.NewAccountID)

		pending, err := f.workflow.DisputesByStatus(ctx, models.DisputePending)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, dispute.ID, pending[0].ID)
	})
}

func TestPendingVerificationsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, "a1", "")
	f.seedAccount(t, "a2", "")

	first := f.submit(t, "a1", "111")
	second := f.submit(t, "a2", "222")

	queue, err := f.workflow.PendingVerifications(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, first.ID, queue[0].ID, "oldest first")

	require.NoError(t, f.workflow.Approve(ctx, first.ID, "admin-1", ""))

	queue, err = f.workflow.PendingVerifications(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, second.ID, queue[0].ID)
}
