package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"siteledger/internal/verification/models"
	"siteledger/pkg/platform/sentinel"
	txcontext "siteledger/pkg/platform/tx"
)

// PostgresStore persists verifications and disputes in the
// master_id_verification and fraud_disputes tables. Metadata and supporting
// documents are stored as JSONB.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const verificationColumns = `
	id, master_account_id, national_id_number, document_type, document_url,
	storage_path, status, submitted_at, reviewed_at, reviewed_by,
	review_notes, rejection_reason, metadata`

func (s *PostgresStore) CreateVerification(ctx context.Context, v *models.IDVerification) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	metadata, err := json.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("marshal verification metadata: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO master_id_verification (`+verificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.ID, v.MasterAccountID, v.NationalIDNumber, nullStr(v.DocumentType),
		nullStr(v.DocumentURL), nullStr(v.StoragePath), string(v.Status),
		v.SubmittedAt, nullTime(v.ReviewedAt), nullStr(v.ReviewedBy),
		nullStr(v.ReviewNotes), nullStr(v.RejectionReason), metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerificationByID(ctx context.Context, id uuid.UUID) (*models.IDVerification, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)

	// Inside a transaction, lock the record so concurrent reviewers serialize
	// their read-validate-write and the terminal-state check holds.
	query := `SELECT ` + verificationColumns + ` FROM master_id_verification WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	row := exec.QueryRowContext(ctx, query, id)
	v, err := scanVerification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find verification: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) UpdateVerification(ctx context.Context, v *models.IDVerification) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE master_id_verification SET
			status = $2, reviewed_at = $3, reviewed_by = $4,
			review_notes = $5, rejection_reason = $6
		WHERE id = $1`,
		v.ID, string(v.Status), nullTime(v.ReviewedAt), nullStr(v.ReviewedBy),
		nullStr(v.ReviewNotes), nullStr(v.RejectionReason),
	)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) VerificationsByStatus(ctx context.Context, status models.VerificationStatus) ([]*models.IDVerification, error) {
	return s.listVerifications(ctx, `status = $1`, string(status))
}

func (s *PostgresStore) VerificationsByAccount(ctx context.Context, masterAccountID string) ([]*models.IDVerification, error) {
	return s.listVerifications(ctx, `master_account_id = $1`, masterAccountID)
}

func (s *PostgresStore) listVerifications(ctx context.Context, where string, arg any) ([]*models.IDVerification, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)
	rows, err := exec.QueryContext(ctx,
		`SELECT `+verificationColumns+` FROM master_id_verification WHERE `+where+` ORDER BY submitted_at ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []*models.IDVerification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const disputeColumns = `
	id, national_id_number, reported_by, reported_by_name, reported_by_email,
	existing_account_id, existing_account_name, new_account_id, new_account_name,
	status, priority, dispute_type, explanation, supporting_documents, reported_at`

func (s *PostgresStore) CreateDispute(ctx context.Context, d *models.FraudDispute) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	docs, err := json.Marshal(d.SupportingDocuments)
	if err != nil {
		return fmt.Errorf("marshal supporting documents: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO fraud_disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.NationalIDNumber, d.ReportedBy, nullStr(d.ReportedByName),
		nullStr(d.ReportedByEmail), d.ExistingAccountID, nullStr(d.ExistingAccountName),
		nullStr(d.NewAccountID), nullStr(d.NewAccountName),
		string(d.Status), string(d.Priority), string(d.DisputeType),
		d.Explanation, docs, d.ReportedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

func (s *PostgresStore) DisputesByStatus(ctx context.Context, status models.DisputeStatus) ([]*models.FraudDispute, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)
	rows, err := exec.QueryContext(ctx,
		`SELECT `+disputeColumns+` FROM fraud_disputes WHERE status = $1 ORDER BY reported_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	var out []*models.FraudDispute
	for rows.Next() {
		var (
			d          models.FraudDispute
			name       sql.NullString
			email      sql.NullString
			existName  sql.NullString
			newID      sql.NullString
			newName    sql.NullString
			statusStr  string
			priority   string
			dtype      string
			docs       []byte
		)
		if err := rows.Scan(
			&d.ID, &d.NationalIDNumber, &d.ReportedBy, &name, &email,
			&d.ExistingAccountID, &existName, &newID, &newName,
			&statusStr, &priority, &dtype, &d.Explanation, &docs, &d.ReportedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dispute: %w", err)
		}
		d.ReportedByName = name.String
		d.ReportedByEmail = email.String
		d.ExistingAccountName = existName.String
		d.NewAccountID = newID.String
		d.NewAccountName = newName.String
		d.Status = models.DisputeStatus(statusStr)
		d.Priority = models.DisputePriority(priority)
		d.DisputeType = models.DisputeType(dtype)
		if len(docs) > 0 {
			if err := json.Unmarshal(docs, &d.SupportingDocuments); err != nil {
				return nil, fmt.Errorf("unmarshal supporting documents: %w", err)
			}
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func scanVerification(row interface{ Scan(dest ...any) error }) (*models.IDVerification, error) {
	var (
		v          models.IDVerification
		docType    sql.NullString
		docURL     sql.NullString
		storage    sql.NullString
		statusStr  string
		reviewedAt sql.NullTime
		reviewedBy sql.NullString
		notes      sql.NullString
		rejection  sql.NullString
		metadata   []byte
	)
	err := row.Scan(
		&v.ID, &v.MasterAccountID, &v.NationalIDNumber, &docType, &docURL,
		&storage, &statusStr, &v.SubmittedAt, &reviewedAt, &reviewedBy,
		&notes, &rejection, &metadata,
	)
	if err != nil {
		return nil, err
	}
	v.DocumentType = docType.String
	v.DocumentURL = docURL.String
	v.StoragePath = storage.String
	v.Status = models.VerificationStatus(statusStr)
	v.ReviewedAt = reviewedAt.Time
	v.ReviewedBy = reviewedBy.String
	v.ReviewNotes = notes.String
	v.RejectionReason = rejection.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &v.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal verification metadata: %w", err)
		}
	}
	return &v, nil
}

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
