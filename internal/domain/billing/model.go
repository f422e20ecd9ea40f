package billing

import (
	"errors"
	"time"
)

var (
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrPatientNotFound   = errors.New("patient balance account not found")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Transaction kinds.
const (
	KindDeposit = "deposit"
	KindDebit   = "debit"
	KindRefund  = "refund"
)

// Transaction statuses.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusReversed  = "reversed"
)

// Balance is the current prepaid balance of a patient.
type Balance struct {
	PatientID int64     `json:"patient_id"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerTransaction is one append-only entry in a patient's ledger. Entries
// are never updated in place; corrections append a compensating entry.
type LedgerTransaction struct {
	ID            int64     `json:"id"`
	PatientID     int64     `json:"patient_id"`
	AppointmentID *int64    `json:"appointment_id,omitempty"`
	Kind          string    `json:"kind"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func validKind(kind string) bool {
	switch kind {
	case KindDeposit, KindDebit, KindRefund:
		return true
	}
	return false
}
