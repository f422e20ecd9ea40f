package billing

import (
	"context"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

// GetBalance returns the patient's balance. A patient who never deposited
// simply has a zero balance.
func (s *Service) GetBalance(ctx context.Context, patientID int64) (*Balance, error) {
	b, err := s.repo.GetBalance(ctx, patientID)
	if err == ErrPatientNotFound {
		return &Balance{PatientID: patientID, Balance: 0, UpdatedAt: time.Now()}, nil
	}
	return b, err
}

// Deposit credits the patient's balance and appends a deposit entry, both in
// one transaction.
func (s *Service) Deposit(ctx context.Context, patientID int64, amount float64, description string) (*LedgerTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var entry *LedgerTransaction
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.EnsureAccount(ctx, patientID); err != nil {
			return err
		}
		if _, err := s.repo.GetBalanceForUpdate(ctx, patientID); err != nil {
			return err
		}
		if _, err := s.repo.AdjustBalance(ctx, patientID, amount); err != nil {
			return err
		}
		entry = &LedgerTransaction{
			PatientID:   patientID,
			Kind:        KindDeposit,
			Amount:      amount,
			Status:      StatusCompleted,
			Description: description,
		}
		return s.repo.InsertTransaction(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit withdraws from the patient's balance inside the caller's transaction.
// The caller is responsible for running it inside an InTx unit; the balance
// row is locked so concurrent debits serialize.
func (s *Service) Debit(ctx context.Context, patientID int64, amount float64, appointmentID *int64, description string) (*LedgerTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	bal, err := s.repo.GetBalanceForUpdate(ctx, patientID)
	if err != nil {
		if err == ErrPatientNotFound {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}
	if bal.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	if _, err := s.repo.AdjustBalance(ctx, patientID, -amount); err != nil {
		return nil, err
	}

	entry := &LedgerTransaction{
		PatientID:     patientID,
		AppointmentID: appointmentID,
		Kind:          KindDebit,
		Amount:        amount,
		Status:        StatusCompleted,
		Description:   description,
	}
	if err := s.repo.InsertTransaction(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Credit refunds to the patient's balance inside the caller's transaction.
func (s *Service) Credit(ctx context.Context, patientID int64, amount float64, appointmentID *int64, description string) (*LedgerTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if err := s.repo.EnsureAccount(ctx, patientID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetBalanceForUpdate(ctx, patientID); err != nil {
		return nil, err
	}
	if _, err := s.repo.AdjustBalance(ctx, patientID, amount); err != nil {
		return nil, err
	}

	entry := &LedgerTransaction{
		PatientID:     patientID,
		AppointmentID: appointmentID,
		Kind:          KindRefund,
		Amount:        amount,
		Status:        StatusCompleted,
		Description:   description,
	}
	if err := s.repo.InsertTransaction(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// History returns the patient's ledger newest first.
func (s *Service) History(ctx context.Context, patientID int64, limit, offset int) ([]*LedgerTransaction, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
