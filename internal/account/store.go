package account

import "context"

// Store abstracts master account persistence. Implementations must honor a
// transaction carried on the context (pkg/platform/tx) so account mutations
// commit together with the ledger writes that require them.
type Store interface {
	Create(ctx context.Context, acct *MasterAccount) error
	FindByID(ctx context.Context, id string) (*MasterAccount, error)
	// FindByNationalID returns every account registered under the number,
	// regardless of verification state.
	FindByNationalID(ctx context.Context, nationalID string) ([]*MasterAccount, error)
	// Update persists every field except CompanyIDs. The company list only
	// grows through AppendCompanyID, so writers holding a stale read of the
	// account cannot clobber entries appended since.
	Update(ctx context.Context, acct *MasterAccount) error
	// AppendCompanyID atomically adds companyID to the account's company list.
	// Appending an already-listed company is a no-op.
	AppendCompanyID(ctx context.Context, id, companyID string) error
}
