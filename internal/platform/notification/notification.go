package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Event kinds emitted by the appointment lifecycle.
const (
	KindBooked      = "appointment.booked"
	KindCancelled   = "appointment.cancelled"
	KindRescheduled = "appointment.rescheduled"
	KindCheckedIn   = "appointment.checked_in"
	KindCompleted   = "appointment.completed"
)

// Event describes something a patient or doctor should hear about.
type Event struct {
	Kind          string
	PatientID     int64
	DoctorID      int64
	AppointmentID int64
	Summary       string
}

// Notifier delivers lifecycle events. Delivery is advisory: callers must not
// let a failed notification affect the operation that produced it.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// LogNotifier writes events to the structured log. It stands in for a real
// delivery channel (email, SMS, push) in development and tests.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, evt Event) {
	n.logger.Info().
		Str("kind", evt.Kind).
		Int64("patient_id", evt.PatientID).
		Int64("doctor_id", evt.DoctorID).
		Int64("appointment_id", evt.AppointmentID).
		Str("summary", evt.Summary).
		Msg("notification")
}

// Render produces the human-readable line for an event.
func Render(evt Event) string {
	switch evt.Kind {
	case KindBooked:
		return fmt.Sprintf("Appointment %d booked for patient %d with doctor %d", evt.AppointmentID, evt.PatientID, evt.DoctorID)
	case KindCancelled:
		return fmt.Sprintf("Appointment %d cancelled: %s", evt.AppointmentID, evt.Summary)
	case KindRescheduled:
		return fmt.Sprintf("Appointment %d rescheduled: %s", evt.AppointmentID, evt.Summary)
	case KindCheckedIn:
		return fmt.Sprintf("Patient %d checked in for appointment %d", evt.PatientID, evt.AppointmentID)
	case KindCompleted:
		return fmt.Sprintf("Appointment %d completed", evt.AppointmentID)
	default:
		return evt.Summary
	}
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, evt Event) {}
