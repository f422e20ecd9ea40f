package appointment

import (
	"context"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
)

// Repository persists appointments, their telemedicine sessions, and the
// slot mutations booking requires. Slot reads here lock rows: they only make
// sense inside a transaction.
type Repository interface {
	// GetSlotForUpdate locks the slot row until the enclosing transaction
	// ends. Concurrent bookers of the same slot serialize here.
	GetSlotForUpdate(ctx context.Context, slotID int64) (*scheduling.Slot, error)
	SlotHasActiveAppointment(ctx context.Context, slotID int64) (bool, error)
	SetSlotAvailable(ctx context.Context, slotID int64, available bool) error
	// FindEarliestFreeSlotForUpdate picks and locks the earliest available,
	// unbound slot of the provider within [dayStart, dayEnd).
	FindEarliestFreeSlotForUpdate(ctx context.Context, providerID int64, dayStart, dayEnd time.Time, requireClinic bool) (*scheduling.Slot, error)

	Insert(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Appointment, error)
	// CheckIn flips booked -> in_progress. Returns false when the guard
	// matched no row.
	CheckIn(ctx context.Context, id int64) (bool, error)
	// CheckOut flips in_progress -> completed.
	CheckOut(ctx context.Context, id int64) (bool, error)
	// MarkCancelled flips any non-terminal status to cancelled and records
	// the reason and final payment status.
	MarkCancelled(ctx context.Context, id int64, reason, paymentStatus string) (bool, error)
	ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID int64, limit, offset int) ([]*Appointment, int, error)

	GetSession(ctx context.Context, appointmentID int64) (*Session, error)
	InsertSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
}
