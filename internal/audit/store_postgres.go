package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	txcontext "siteledger/pkg/platform/tx"
)

// PostgresStore persists audit entries in the master_account_audit_logs table.
// Append participates in any transaction found on the context, so audit rows
// commit or roll back together with the mutation they describe.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO master_account_audit_logs (
			id, master_account_id, master_account_name, company_id,
			action_type, action_description, performed_by, performed_by_name,
			target_entity, target_entity_type, previous_value, new_value, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID, entry.MasterAccountID, entry.MasterAccountName, nullStr(entry.CompanyID),
		string(entry.ActionType), entry.ActionDescription, entry.PerformedBy, entry.PerformedByName,
		entry.TargetEntity, entry.TargetEntityType, nullStr(entry.PreviousValue), nullStr(entry.NewValue),
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, masterAccountID string) ([]Entry, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id, master_account_id, master_account_name, company_id,
		       action_type, action_description, performed_by, performed_by_name,
		       target_entity, target_entity_type, previous_value, new_value, created_at
		FROM master_account_audit_logs
		WHERE master_account_id = $1
		ORDER BY created_at ASC`,
		masterAccountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			idStr     string
			companyID sql.NullString
			prevVal   sql.NullString
			newVal    sql.NullString
		)
		if err := rows.Scan(
			&idStr, &e.MasterAccountID, &e.MasterAccountName, &companyID,
			&e.ActionType, &e.ActionDescription, &e.PerformedBy, &e.PerformedByName,
			&e.TargetEntity, &e.TargetEntityType, &prevVal, &newVal, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if id, err := uuid.Parse(idStr); err == nil {
			e.ID = id
		}
		e.CompanyID = companyID.String
		e.PreviousValue = prevVal.String
		e.NewValue = newVal.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
