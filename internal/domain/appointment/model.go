package appointment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotUnavailable     = errors.New("slot is no longer available")
	ErrInvalidTransition   = errors.New("illegal appointment state transition")
	ErrTypeClinicMismatch  = errors.New("appointment type and clinic do not agree")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSessionNotFound     = errors.New("telemedicine session not found")
	ErrForbidden           = errors.New("caller may not act on this appointment")
)

// Appointment statuses. Transitions are monotonic: booked -> in_progress ->
// completed, with cancelled reachable from the two non-terminal states.
const (
	StatusBooked     = "booked"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Appointment types.
const (
	TypeInPerson     = "in_person"
	TypeTelemedicine = "telemedicine"
)

// Payment methods and statuses.
const (
	PayBalance = "balance"
	PayCash    = "cash"

	PaymentPaid     = "paid"
	PaymentPending  = "pending"
	PaymentRefunded = "refunded"
)

// Telemedicine session statuses.
const (
	SessionScheduled  = "scheduled"
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
	SessionCancelled  = "cancelled"
)

type Appointment struct {
	ID                 int64      `json:"id"`
	PatientID          int64      `json:"patient_id"`
	DoctorID           int64      `json:"doctor_id"`
	ClinicID           *int64     `json:"clinic_id,omitempty"`
	SlotID             int64      `json:"slot_id"`
	Type               string     `json:"appointment_type"`
	Status             string     `json:"status"`
	Reason             string     `json:"reason,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	Fee                float64    `json:"fee"`
	PaymentMethod      string     `json:"payment_method"`
	PaymentStatus      string     `json:"payment_status"`
	RescheduledFrom    *int64     `json:"rescheduled_from,omitempty"`
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt       *time.Time `json:"checked_out_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Terminal reports whether no further status transitions are possible.
func (a *Appointment) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}

// Session is the 1:1 telemedicine state bound to an appointment. It is
// created lazily on the first start call.
type Session struct {
	ID            int64      `json:"id"`
	AppointmentID int64      `json:"appointment_id"`
	Status        string     `json:"status"`
	RoomCode      uuid.UUID  `json:"room_code"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
