package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) exec(ctx context.Context) db.Executor {
	return db.Resolve(ctx, r.pool)
}

func (r *repoPG) EnsureAccount(ctx context.Context, patientID int64) error {
	_, err := r.exec(ctx).Exec(ctx, `
		INSERT INTO patient_balance (patient_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (patient_id) DO NOTHING`, patientID)
	return err
}

func (r *repoPG) GetBalance(ctx context.Context, patientID int64) (*Balance, error) {
	return r.scanBalance(ctx, `
		SELECT patient_id, balance, updated_at
		FROM patient_balance WHERE patient_id = $1`, patientID)
}

func (r *repoPG) GetBalanceForUpdate(ctx context.Context, patientID int64) (*Balance, error) {
	return r.scanBalance(ctx, `
		SELECT patient_id, balance, updated_at
		FROM patient_balance WHERE patient_id = $1
		FOR UPDATE`, patientID)
}

func (r *repoPG) scanBalance(ctx context.Context, query string, patientID int64) (*Balance, error) {
	var b Balance
	err := r.exec(ctx).QueryRow(ctx, query, patientID).
		Scan(&b.PatientID, &b.Balance, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repoPG) AdjustBalance(ctx context.Context, patientID int64, delta float64) (float64, error) {
	var newBalance float64
	err := r.exec(ctx).QueryRow(ctx, `
		UPDATE patient_balance
		SET balance = balance + $2, updated_at = NOW()
		WHERE patient_id = $1
		RETURNING balance`, patientID, delta).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrPatientNotFound
	}
	return newBalance, err
}

func (r *repoPG) InsertTransaction(ctx context.Context, tx *LedgerTransaction) error {
	return r.exec(ctx).QueryRow(ctx, `
		INSERT INTO ledger_transaction (patient_id, kind, amount, description, appointment_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		tx.PatientID, tx.Kind, tx.Amount, tx.Description, tx.AppointmentID, tx.Status).
		Scan(&tx.ID, &tx.CreatedAt)
}

const ledgerCols = `id, patient_id, kind, amount, description, appointment_id, status, created_at`

func (r *repoPG) ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]*LedgerTransaction, int, error) {
	var total int
	if err := r.exec(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM ledger_transaction WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.exec(ctx).Query(ctx, `
		SELECT `+ledgerCols+`
		FROM ledger_transaction
		WHERE patient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*LedgerTransaction
	for rows.Next() {
		var tx LedgerTransaction
		var desc *string
		if err := rows.Scan(&tx.ID, &tx.PatientID, &tx.Kind, &tx.Amount, &desc,
			&tx.AppointmentID, &tx.Status, &tx.CreatedAt); err != nil {
			return nil, 0, err
		}
		if desc != nil {
			tx.Description = *desc
		}
		items = append(items, &tx)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SumCompleted(ctx context.Context, patientID int64) (float64, error) {
	var sum float64
	err := r.exec(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN kind = 'debit' THEN -amount ELSE amount END), 0)
		FROM ledger_transaction
		WHERE patient_id = $1 AND status = 'completed'`, patientID).Scan(&sum)
	return sum, err
}
