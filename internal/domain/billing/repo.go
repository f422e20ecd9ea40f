package billing

import "context"

// Repository persists patient balances and their ledger entries.
type Repository interface {
	// EnsureAccount creates a zero-balance account if none exists.
	EnsureAccount(ctx context.Context, patientID int64) error
	// GetBalance returns the patient's balance, or ErrPatientNotFound.
	GetBalance(ctx context.Context, patientID int64) (*Balance, error)
	// GetBalanceForUpdate locks the balance row for the duration of the
	// enclosing transaction.
	GetBalanceForUpdate(ctx context.Context, patientID int64) (*Balance, error)
	// AdjustBalance applies a signed delta and returns the new balance.
	AdjustBalance(ctx context.Context, patientID int64, delta float64) (float64, error)
	// InsertTransaction appends a ledger entry and fills in its ID and
	// CreatedAt.
	InsertTransaction(ctx context.Context, tx *LedgerTransaction) error
	// ListByPatient returns the patient's ledger newest first.
	ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]*LedgerTransaction, int, error)
	// SumCompleted returns the net of completed entries for reconciliation
	// against the balance row.
	SumCompleted(ctx context.Context, patientID int64) (float64, error)
}
