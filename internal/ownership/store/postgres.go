package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"siteledger/internal/ownership/models"
	"siteledger/pkg/platform/sentinel"
	txcontext "siteledger/pkg/platform/tx"
)

// PostgresStore persists the ledger in the company_ownership, company_roles
// and companies tables. Every method participates in a transaction carried on
// the context; OwnershipsByCompany additionally locks the company row
// (SELECT ... FOR UPDATE) when called inside one, which serializes the
// validate-then-write sequence of concurrent mutations for the same company.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ownershipColumns = `
	id, company_id, master_account_id, master_account_name,
	ownership_percentage, status, voting_rights, economic_rights,
	granted_at, granted_by, notes`

func (s *PostgresStore) CreateOwnership(ctx context.Context, o *models.CompanyOwnership) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO company_ownership (`+ownershipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.CompanyID, o.MasterAccountID, o.MasterAccountName,
		o.Percentage, string(o.Status), o.VotingRights, o.EconomicRights,
		o.GrantedAt, o.GrantedBy, nullStr(o.Notes),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create ownership: %w", err)
	}
	return nil
}

func (s *PostgresStore) OwnershipByID(ctx context.Context, id uuid.UUID) (*models.CompanyOwnership, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+ownershipColumns+` FROM company_ownership WHERE id = $1`, id)
	o, err := scanOwnership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ownership: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) UpdateOwnership(ctx context.Context, o *models.CompanyOwnership) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE company_ownership SET
			master_account_name = $2, ownership_percentage = $3, status = $4,
			voting_rights = $5, economic_rights = $6, notes = $7
		WHERE id = $1`,
		o.ID, o.MasterAccountName, o.Percentage, string(o.Status),
		o.VotingRights, o.EconomicRights, nullStr(o.Notes),
	)
	if err != nil {
		return fmt.Errorf("update ownership: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ownership: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) OwnershipsByCompany(ctx context.Context, companyID string, includeInactive bool) ([]*models.CompanyOwnership, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)

	// Inside a transaction, take the company row lock first so concurrent
	// writers for the same company serialize their read-validate-write.
	if _, inTx := txcontext.From(ctx); inTx {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO companies (id, total_ownership_percentage, owner_count, updated_at)
			VALUES ($1, 0, 0, now())
			ON CONFLICT (id) DO NOTHING`, companyID); err != nil {
			return nil, fmt.Errorf("ensure company row: %w", err)
		}
		if _, err := exec.ExecContext(ctx, `SELECT 1 FROM companies WHERE id = $1 FOR UPDATE`, companyID); err != nil {
			return nil, fmt.Errorf("lock company row: %w", err)
		}
	}

	query := `SELECT ` + ownershipColumns + ` FROM company_ownership WHERE company_id = $1`
	if !includeInactive {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY granted_at ASC`

	rows, err := exec.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("list company owners: %w", err)
	}
	defer rows.Close()
	return collectOwnerships(rows)
}

func (s *PostgresStore) OwnershipsByAccount(ctx context.Context, masterAccountID string, includeInactive bool) ([]*models.CompanyOwnership, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)
	query := `SELECT ` + ownershipColumns + ` FROM company_ownership WHERE master_account_id = $1`
	if !includeInactive {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY granted_at ASC`

	rows, err := exec.QueryContext(ctx, query, masterAccountID)
	if err != nil {
		return nil, fmt.Errorf("list account ownerships: %w", err)
	}
	defer rows.Close()
	return collectOwnerships(rows)
}

const roleColumns = `
	id, company_id, master_account_id, master_account_name,
	role, custom_role_name, permissions, status, assigned_at, assigned_by, notes`

func (s *PostgresStore) CreateRole(ctx context.Context, r *models.CompanyRole) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO company_roles (`+roleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.CompanyID, r.MasterAccountID, r.MasterAccountName,
		string(r.Role), nullStr(r.CustomRoleName), pq.Array(r.Permissions),
		string(r.Status), r.AssignedAt, r.AssignedBy, nullStr(r.Notes),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

func (s *PostgresStore) RolesByAccount(ctx context.Context, masterAccountID, companyID string) ([]*models.CompanyRole, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)
	query := `SELECT ` + roleColumns + ` FROM company_roles WHERE master_account_id = $1 AND status = 'active'`
	args := []any{masterAccountID}
	if companyID != "" {
		query += ` AND company_id = $2`
		args = append(args, companyID)
	}
	query += ` ORDER BY assigned_at ASC`

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list account roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.CompanyRole
	for rows.Next() {
		var (
			r          models.CompanyRole
			customName sql.NullString
			notes      sql.NullString
			roleStr    string
			statusStr  string
		)
		if err := rows.Scan(
			&r.ID, &r.CompanyID, &r.MasterAccountID, &r.MasterAccountName,
			&roleStr, &customName, pq.Array(&r.Permissions),
			&statusStr, &r.AssignedAt, &r.AssignedBy, &notes,
		); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		r.Role = models.Role(roleStr)
		r.Status = models.Status(statusStr)
		r.CustomRoleName = customName.String
		r.Notes = notes.String
		roles = append(roles, &r)
	}
	return roles, rows.Err()
}

func (s *PostgresStore) HasActiveRole(ctx context.Context, companyID, masterAccountID string) (bool, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)
	var exists bool
	err := exec.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM company_roles
			WHERE company_id = $1 AND master_account_id = $2 AND status = 'active'
		)`, companyID, masterAccountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active role: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (*models.Company, error) {
	exec := txcontext.ExecutorFor(ctx, s.db)
	var c models.Company
	err := exec.QueryRowContext(ctx, `
		SELECT id, total_ownership_percentage, owner_count, updated_at
		FROM companies WHERE id = $1`, companyID).
		Scan(&c.ID, &c.TotalOwnershipPercentage, &c.OwnerCount, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find company: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, c *models.Company) error {
	exec := txcontext.ExecutorFor(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO companies (id, total_ownership_percentage, owner_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			total_ownership_percentage = EXCLUDED.total_ownership_percentage,
			owner_count = EXCLUDED.owner_count,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.TotalOwnershipPercentage, c.OwnerCount, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert company: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOwnership(row rowScanner) (*models.CompanyOwnership, error) {
	var (
		o         models.CompanyOwnership
		statusStr string
		notes     sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.CompanyID, &o.MasterAccountID, &o.MasterAccountName,
		&o.Percentage, &statusStr, &o.VotingRights, &o.EconomicRights,
		&o.GrantedAt, &o.GrantedBy, &notes,
	)
	if err != nil {
		return nil, err
	}
	o.Status = models.Status(statusStr)
	o.Notes = notes.String
	return &o, nil
}

func collectOwnerships(rows *sql.Rows) ([]*models.CompanyOwnership, error) {
	var out []*models.CompanyOwnership
	for rows.Next() {
		o, err := scanOwnership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ownership: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
