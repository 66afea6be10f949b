// Package models defines the identity verification and fraud dispute records.
package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "siteledger/pkg/domain-errors"
)

// VerificationStatus is the review state of one identity-document submission.
// VERIFIED and REJECTED are terminal: there is no path back to PENDING_REVIEW.
// A rejected applicant resubmits, which creates a new record.
type VerificationStatus string

const (
	StatusPendingReview VerificationStatus = "PENDING_REVIEW"
	StatusVerified      VerificationStatus = "VERIFIED"
	StatusRejected      VerificationStatus = "REJECTED"
)

// IDVerification is one identity-document submission by a master account.
type IDVerification struct {
	ID               uuid.UUID          `json:"id"`
	MasterAccountID  string             `json:"master_account_id"`
	NationalIDNumber string             `json:"national_id_number"`
	DocumentType     string             `json:"document_type"`
	DocumentURL      string             `json:"document_url"`
	StoragePath      string             `json:"storage_path"`
	Status           VerificationStatus `json:"status"`
	SubmittedAt      time.Time          `json:"submitted_at"`
	ReviewedAt       time.Time          `json:"reviewed_at,omitempty"`
	ReviewedBy       string             `json:"reviewed_by,omitempty"`
	ReviewNotes      string             `json:"review_notes,omitempty"`
	RejectionReason  string             `json:"rejection_reason,omitempty"`
	Metadata         map[string]string  `json:"metadata,omitempty"`
}

// IsTerminal reports whether the record has been reviewed. Terminal records
// never change again.
func (v *IDVerification) IsTerminal() bool {
	return v.Status == StatusVerified || v.Status == StatusRejected
}

// NewIDVerification builds a pending submission.
func NewIDVerification(masterAccountID, nationalIDNumber, documentType, documentURL, storagePath string, metadata map[string]string, now time.Time) (*IDVerification, error) {
	if masterAccountID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "master account id cannot be empty")
	}
	if nationalIDNumber == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "National ID number is required")
	}
	return &IDVerification{
		ID:               uuid.New(),
		MasterAccountID:  masterAccountID,
		NationalIDNumber: nationalIDNumber,
		DocumentType:     documentType,
		DocumentURL:      documentURL,
		StoragePath:      storagePath,
		Status:           StatusPendingReview,
		SubmittedAt:      now,
		Metadata:         metadata,
	}, nil
}

// DisputeStatus of a fraud dispute. Only pending is produced by this core;
// resolution is handled elsewhere.
type DisputeStatus string

const (
	DisputePending DisputeStatus = "pending"
)

// DisputePriority of a fraud dispute.
type DisputePriority string

const (
	PriorityHigh DisputePriority = "high"
)

// DisputeType classifies a fraud dispute.
type DisputeType string

const (
	DisputeDuplicateID DisputeType = "duplicate_id"
)

// SupportingDocument is an evidence attachment on a dispute.
type SupportingDocument struct {
	URL         string    `json:"url"`
	StoragePath string    `json:"storage_path"`
	FileName    string    `json:"file_name"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// FraudDispute is a reported suspected duplicate-identity case.
type FraudDispute struct {
	ID                  uuid.UUID            `json:"id"`
	NationalIDNumber    string               `json:"national_id_number"`
	ReportedBy          string               `json:"reported_by"`
	ReportedByName      string               `json:"reported_by_name"`
	ReportedByEmail     string               `json:"reported_by_email,omitempty"`
	ExistingAccountID   string               `json:"existing_account_id"`
	ExistingAccountName string               `json:"existing_account_name"`
	NewAccountID        string               `json:"new_account_id,omitempty"`
	NewAccountName      string               `json:"new_account_name,omitempty"`
	Status              DisputeStatus        `json:"status"`
	Priority            DisputePriority      `json:"priority"`
	DisputeType         DisputeType          `json:"dispute_type"`
	Explanation         string               `json:"explanation"`
	SupportingDocuments []SupportingDocument `json:"supporting_documents,omitempty"`
	ReportedAt          time.Time            `json:"reported_at"`
}

// NewFraudDispute builds a pending duplicate-ID dispute.
func NewFraudDispute(nationalIDNumber, reportedBy, reportedByName, reportedByEmail, explanation string, docs []SupportingDocument, now time.Time) (*FraudDispute, error) {
	if nationalIDNumber == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "National ID number is required")
	}
	if reportedBy == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Reporter is required")
	}
	return &FraudDispute{
		ID:                  uuid.New(),
		NationalIDNumber:    nationalIDNumber,
		ReportedBy:          reportedBy,
		ReportedByName:      reportedByName,
		ReportedByEmail:     reportedByEmail,
		Status:              DisputePending,
		Priority:            PriorityHigh,
		DisputeType:         DisputeDuplicateID,
		Explanation:         explanation,
		SupportingDocuments: docs,
		ReportedAt:          now,
	}, nil
}
