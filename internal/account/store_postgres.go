package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"siteledger/pkg/platform/sentinel"
	txcontext "siteledger/pkg/platform/tx"
)

// PostgresStore persists master accounts in the master_accounts table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `
	id, name, email, national_id_number, id_document_url,
	id_verification_status, duplicate_id_status, restriction_reason,
	can_own_companies, can_receive_payouts, can_approve_ownership_changes,
	company_ids, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, acct *MasterAccount) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	companyIDs := acct.CompanyIDs
	if companyIDs == nil {
		companyIDs = []string{} // nil encodes as SQL NULL, column is NOT NULL
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO master_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		acct.ID, acct.Name, acct.Email, nullStr(acct.NationalIDNumber), nullStr(acct.IDDocumentURL),
		string(acct.IDVerificationStatus), string(acct.DuplicateIDStatus), nullStr(acct.RestrictionReason),
		acct.CanOwnCompanies, acct.CanReceivePayouts, acct.CanApproveOwnershipChanges,
		pq.Array(companyIDs), acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create master account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*MasterAccount, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM master_accounts WHERE id = $1`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find master account: %w", err)
	}
	return acct, nil
}

func (s *PostgresStore) FindByNationalID(ctx context.Context, nationalID string) ([]*MasterAccount, error) {
	if nationalID == "" {
		return nil, nil
	}
	exec := txcontext.ExecutorFor(ctx, s.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM master_accounts
		WHERE national_id_number = $1
		ORDER BY created_at ASC`,
		nationalID,
	)
	if err != nil {
		return nil, fmt.Errorf("find accounts by national id: %w", err)
	}
	defer rows.Close()

	var accounts []*MasterAccount
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan master account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, acct *MasterAccount) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	// company_ids is deliberately absent: the list is only written through
	// AppendCompanyID, so a stale read here cannot drop appended entries.
	res, err := exec.ExecContext(ctx, `
		UPDATE master_accounts SET
			name = $2, email = $3, national_id_number = $4, id_document_url = $5,
			id_verification_status = $6, duplicate_id_status = $7, restriction_reason = $8,
			can_own_companies = $9, can_receive_payouts = $10, can_approve_ownership_changes = $11,
			updated_at = $12
		WHERE id = $1`,
		acct.ID, acct.Name, acct.Email, nullStr(acct.NationalIDNumber), nullStr(acct.IDDocumentURL),
		string(acct.IDVerificationStatus), string(acct.DuplicateIDStatus), nullStr(acct.RestrictionReason),
		acct.CanOwnCompanies, acct.CanReceivePayouts, acct.CanApproveOwnershipChanges,
		acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update master account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update master account: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendCompanyID(ctx context.Context, id, companyID string) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE master_accounts SET
			company_ids = CASE
				WHEN company_ids @> ARRAY[$2::text] THEN company_ids
				ELSE array_append(company_ids, $2::text)
			END,
			updated_at = now()
		WHERE id = $1`,
		id, companyID,
	)
	if err != nil {
		return fmt.Errorf("append company id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append company id: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*MasterAccount, error) {
	var (
		acct               MasterAccount
		nationalID         sql.NullString
		docURL             sql.NullString
		restriction        sql.NullString
		verificationStatus string
		dupStatus          string
	)
	err := row.Scan(
		&acct.ID, &acct.Name, &acct.Email, &nationalID, &docURL,
		&verificationStatus, &dupStatus, &restriction,
		&acct.CanOwnCompanies, &acct.CanReceivePayouts, &acct.CanApproveOwnershipChanges,
		pq.Array(&acct.CompanyIDs), &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	acct.NationalIDNumber = nationalID.String
	acct.IDDocumentURL = docURL.String
	acct.RestrictionReason = restriction.String
	acct.IDVerificationStatus = VerificationStatus(verificationStatus)
	acct.DuplicateIDStatus = DuplicateIDStatus(dupStatus)
	return &acct, nil
}

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
