package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/directory"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

// Ledger is the balance operations booking and cancellation need. Both run
// inside the caller's transaction.
type Ledger interface {
	Debit(ctx context.Context, patientID int64, amount float64, appointmentID *int64, description string) (*billing.LedgerTransaction, error)
	Credit(ctx context.Context, patientID int64, amount float64, appointmentID *int64, description string) (*billing.LedgerTransaction, error)
}

// Presence tracks who is currently inside a telemedicine room.
type Presence interface {
	Join(ctx context.Context, appointmentID, userID int64) error
	Leave(ctx context.Context, appointmentID, userID int64) error
	Peers(ctx context.Context, appointmentID int64) ([]int64, error)
}

type Service struct {
	repo     Repository
	ledger   Ledger
	dir      directory.Directory
	notifier notification.Notifier
	presence Presence
	tx       db.TxRunner
	logger   zerolog.Logger
}

func NewService(repo Repository, ledger Ledger, dir directory.Directory,
	notifier notification.Notifier, pres Presence, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		dir:      dir,
		notifier: notifier,
		presence: pres,
		tx:       tx,
		logger:   logger,
	}
}

// BookingRequest describes a booking attempt. SlotID selects an exact slot;
// a zero SlotID with a Date asks for the doctor's earliest free slot on that
// day instead.
type BookingRequest struct {
	PatientID     int64   `json:"patient_id"`
	DoctorID      int64   `json:"doctor_id"`
	SlotID        int64   `json:"slot_id"`
	Date          string  `json:"date,omitempty"` // YYYY-MM-DD, for auto-selection
	Type          string  `json:"appointment_type"`
	ClinicID      *int64  `json:"clinic_id,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	Fee           float64 `json:"fee"`
	PaymentMethod string  `json:"payment_method"`
}

// Book atomically consumes a slot, charges the patient when paying from
// balance, and creates the appointment. Either all three happen or none.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.PatientID == 0 || req.DoctorID == 0 {
		return nil, fmt.Errorf("patient_id and doctor_id are required")
	}
	if req.Type != TypeInPerson && req.Type != TypeTelemedicine {
		return nil, fmt.Errorf("invalid appointment type: %s", req.Type)
	}
	if req.PaymentMethod != PayBalance && req.PaymentMethod != PayCash {
		return nil, fmt.Errorf("invalid payment method: %s", req.PaymentMethod)
	}
	if req.Fee < 0 {
		return nil, fmt.Errorf("fee must not be negative")
	}

	clinicID, err := s.resolveClinic(ctx, req)
	if err != nil {
		return nil, err
	}

	var appt *Appointment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.bookLocked(ctx, req, clinicID, nil)
		if err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Int64("slot_id", appt.SlotID).
		Str("payment_method", appt.PaymentMethod).
		Msg("appointment booked")

	s.notify(ctx, notification.KindBooked, appt)
	return appt, nil
}

// resolveClinic enforces the type/clinic rule. In-person bookings need a
// clinic; a doctor booking for themselves may leave it out, in which case
// the directory must resolve a single membership. Telemedicine bookings must
// not carry a clinic.
func (s *Service) resolveClinic(ctx context.Context, req BookingRequest) (*int64, error) {
	if req.Type == TypeTelemedicine {
		if req.ClinicID != nil {
			return nil, fmt.Errorf("%w: telemedicine bookings must not name a clinic", ErrTypeClinicMismatch)
		}
		return nil, nil
	}

	if req.ClinicID != nil {
		if err := s.dir.ValidateClinic(ctx, *req.ClinicID, req.DoctorID); err != nil {
			if errors.Is(err, directory.ErrUnknownClinic) || errors.Is(err, directory.ErrNoClinic) {
				return nil, fmt.Errorf("%w: %v", ErrTypeClinicMismatch, err)
			}
			return nil, err
		}
		return req.ClinicID, nil
	}

	p, ok := auth.PrincipalFromContext(ctx)
	if !ok || p.Role != auth.RoleDoctor || p.ID != req.DoctorID {
		return nil, fmt.Errorf("%w: in-person bookings require a clinic", ErrTypeClinicMismatch)
	}

	clinicID, err := s.dir.ClinicForDoctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, directory.ErrNoClinic) || errors.Is(err, directory.ErrAmbiguousClinic) {
			return nil, fmt.Errorf("%w: %v", ErrTypeClinicMismatch, err)
		}
		return nil, err
	}
	return &clinicID, nil
}

// bookLocked runs the core booking steps inside an already-open transaction.
// Reschedule reuses it for the replacement appointment.
func (s *Service) bookLocked(ctx context.Context, req BookingRequest, clinicID *int64, rescheduledFrom *int64) (*Appointment, error) {
	var slot int64
	if req.SlotID != 0 {
		locked, err := s.repo.GetSlotForUpdate(ctx, req.SlotID)
		if err != nil {
			return nil, err
		}
		if !locked.Available {
			return nil, ErrSlotUnavailable
		}
		if err := s.checkSlotMatches(locked, req, clinicID); err != nil {
			return nil, err
		}
		slot = locked.ID
	} else {
		day, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", req.Date, err)
		}
		locked, err := s.repo.FindEarliestFreeSlotForUpdate(ctx, req.DoctorID, day, day.AddDate(0, 0, 1), req.Type == TypeInPerson)
		if errors.Is(err, scheduling.ErrSlotNotFound) {
			return nil, ErrSlotUnavailable
		}
		if err != nil {
			return nil, err
		}
		if err := s.checkSlotMatches(locked, req, clinicID); err != nil {
			return nil, err
		}
		slot = locked.ID
	}

	// Re-check under the lock: the slot must still be unbound. Two
	// simultaneous bookers serialize on the row lock; the loser sees the
	// winner's appointment here.
	bound, err := s.repo.SlotHasActiveAppointment(ctx, slot)
	if err != nil {
		return nil, err
	}
	if bound {
		return nil, ErrSlotUnavailable
	}

	paymentStatus := PaymentPending
	if req.PaymentMethod == PayBalance {
		paymentStatus = PaymentPaid
	}

	appt := &Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		ClinicID:        clinicID,
		SlotID:          slot,
		Type:            req.Type,
		Status:          StatusBooked,
		Reason:          req.Reason,
		Fee:             req.Fee,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   paymentStatus,
		RescheduledFrom: rescheduledFrom,
	}
	if err := s.repo.Insert(ctx, appt); err != nil {
		return nil, err
	}

	if req.PaymentMethod == PayBalance && req.Fee > 0 {
		if _, err := s.ledger.Debit(ctx, req.PatientID, req.Fee, &appt.ID, "appointment fee"); err != nil {
			return nil, err
		}
	}

	if err := s.repo.SetSlotAvailable(ctx, slot, false); err != nil {
		return nil, err
	}

	return appt, nil
}

func (s *Service) checkSlotMatches(slot *scheduling.Slot, req BookingRequest, clinicID *int64) error {
	if slot.ProviderID != req.DoctorID || slot.ProviderKind != scheduling.ProviderDoctor {
		return fmt.Errorf("%w: slot is not held by the requested doctor", ErrTypeClinicMismatch)
	}
	if req.Type == TypeTelemedicine {
		if slot.ClinicID != nil {
			return fmt.Errorf("%w: slot is clinic-bound", ErrTypeClinicMismatch)
		}
		return nil
	}
	if slot.ClinicID == nil {
		return fmt.Errorf("%w: slot has no clinic", ErrTypeClinicMismatch)
	}
	if clinicID != nil && *slot.ClinicID != *clinicID {
		return fmt.Errorf("%w: slot belongs to a different clinic", ErrTypeClinicMismatch)
	}
	return nil
}

// authorize allows the patient, the assigned doctor, or clinic staff.
func authorize(ctx context.Context, a *Appointment) error {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	switch p.Role {
	case auth.RolePlatformAdmin, auth.RoleClinicAdmin, auth.RoleNurse, auth.RoleLabAdmin:
		return nil
	case auth.RoleDoctor:
		if p.ID == a.DoctorID {
			return nil
		}
	case auth.RolePatient:
		if p.ID == a.PatientID {
			return nil
		}
	}
	return ErrForbidden
}

func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckIn moves booked -> in_progress.
func (s *Service) CheckIn(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, a); err != nil {
		return nil, err
	}

	ok, err := s.repo.CheckIn(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The guard matched no row: the appointment exists but is not
		// in the booked state.
		return nil, fmt.Errorf("%w: cannot check in from %s", ErrInvalidTransition, a.Status)
	}

	a, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notification.KindCheckedIn, a)
	return a, nil
}

// CheckOut moves in_progress -> completed.
func (s *Service) CheckOut(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, a); err != nil {
		return nil, err
	}

	ok, err := s.repo.CheckOut(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot check out from %s", ErrInvalidTransition, a.Status)
	}

	a, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notification.KindCompleted, a)
	return a, nil
}

// Cancel releases the slot and refunds a balance payment, all in one
// transaction with the status change.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*Appointment, error) {
	var cancelled *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.cancelLocked(ctx, id, reason)
		if err != nil {
			return err
		}
		cancelled = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notification.KindCancelled, cancelled)
	return cancelled, nil
}

func (s *Service) cancelLocked(ctx context.Context, id int64, reason string) (*Appointment, error) {
	a, err := s.repo.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, a); err != nil {
		return nil, err
	}
	if a.Terminal() {
		return nil, fmt.Errorf("%w: appointment already %s", ErrInvalidTransition, a.Status)
	}

	paymentStatus := a.PaymentStatus
	if a.PaymentMethod == PayBalance && a.PaymentStatus == PaymentPaid && a.Fee > 0 {
		if _, err := s.ledger.Credit(ctx, a.PatientID, a.Fee, &a.ID, "cancellation refund"); err != nil {
			return nil, err
		}
		paymentStatus = PaymentRefunded
	}

	ok, err := s.repo.MarkCancelled(ctx, id, reason, paymentStatus)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: appointment is no longer cancellable", ErrInvalidTransition)
	}

	if err := s.repo.SetSlotAvailable(ctx, a.SlotID, true); err != nil {
		return nil, err
	}

	// A pending telemedicine session dies with its appointment.
	sess, err := s.repo.GetSession(ctx, id)
	if err == nil && sess.Status != SessionCompleted && sess.Status != SessionCancelled {
		sess.Status = SessionCancelled
		if err := s.repo.UpdateSession(ctx, sess); err != nil {
			return nil, err
		}
	} else if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	return s.repo.GetByID(ctx, id)
}

// Reschedule cancels the old appointment and books the new slot as one
// atomic unit. If the new booking fails for any reason, the old appointment
// and its slot stay exactly as they were.
func (s *Service) Reschedule(ctx context.Context, oldID, newSlotID int64) (*Appointment, error) {
	var replacement *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		old, err := s.cancelLocked(ctx, oldID, "rescheduled")
		if err != nil {
			return err
		}

		req := BookingRequest{
			PatientID:     old.PatientID,
			DoctorID:      old.DoctorID,
			SlotID:        newSlotID,
			Type:          old.Type,
			ClinicID:      old.ClinicID,
			Reason:        old.Reason,
			Fee:           old.Fee,
			PaymentMethod: old.PaymentMethod,
		}
		a, err := s.bookLocked(ctx, req, old.ClinicID, &old.ID)
		if err != nil {
			return err
		}
		replacement = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notification.KindRescheduled, replacement)
	return replacement, nil
}

// StartTelemedicine lazily creates the 1:1 session and moves it to
// in_progress.
func (s *Service) StartTelemedicine(ctx context.Context, appointmentID int64) (*Session, error) {
	a, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, a); err != nil {
		return nil, err
	}
	if a.Type != TypeTelemedicine {
		return nil, fmt.Errorf("%w: appointment is not telemedicine", ErrTypeClinicMismatch)
	}
	if a.Status == StatusCancelled || a.Status == StatusCompleted {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
	}

	var sess *Session
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetSession(ctx, appointmentID)
		if errors.Is(err, ErrSessionNotFound) {
			now := time.Now().UTC()
			sess = &Session{
				AppointmentID: appointmentID,
				Status:        SessionInProgress,
				RoomCode:      uuid.New(),
				StartedAt:     &now,
			}
			return s.repo.InsertSession(ctx, sess)
		}
		if err != nil {
			return err
		}
		switch existing.Status {
		case SessionInProgress:
			sess = existing
			return nil
		case SessionScheduled:
			now := time.Now().UTC()
			existing.Status = SessionInProgress
			existing.StartedAt = &now
			sess = existing
			return s.repo.UpdateSession(ctx, existing)
		default:
			return fmt.Errorf("%w: session is %s", ErrInvalidTransition, existing.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// EndTelemedicine completes an in-progress session and records its summary.
func (s *Service) EndTelemedicine(ctx context.Context, appointmentID int64, summary string) (*Session, error) {
	a, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, a); err != nil {
		return nil, err
	}

	sess, err := s.repo.GetSession(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if sess.Status != SessionInProgress {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.Status)
	}

	now := time.Now().UTC()
	sess.Status = SessionCompleted
	sess.EndedAt = &now
	sess.Summary = summary
	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// JoinSession signals that the caller is present in the room. Advisory only:
// it never changes appointment or session state.
func (s *Service) JoinSession(ctx context.Context, appointmentID int64) error {
	sess, err := s.sessionForPresence(ctx, appointmentID)
	if err != nil {
		return err
	}
	p, _ := auth.PrincipalFromContext(ctx)
	return s.presence.Join(ctx, sess.AppointmentID, p.ID)
}

// LeaveSession signals that the caller left the room.
func (s *Service) LeaveSession(ctx context.Context, appointmentID int64) error {
	sess, err := s.sessionForPresence(ctx, appointmentID)
	if err != nil {
		return err
	}
	p, _ := auth.PrincipalFromContext(ctx)
	return s.presence.Leave(ctx, sess.AppointmentID, p.ID)
}

// Peers lists who is currently in the room.
func (s *Service) Peers(ctx context.Context, appointmentID int64) ([]int64, error) {
	sess, err := s.sessionForPresence(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.presence.Peers(ctx, sess.AppointmentID)
}

func (s *Service) sessionForPresence(ctx context.Context, appointmentID int64) (*Session, error) {
	a, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, a); err != nil {
		return nil, err
	}
	sess, err := s.repo.GetSession(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if sess.Status != SessionInProgress {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.Status)
	}
	return sess, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID int64, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

// notify delivers a lifecycle event outside the atomic unit. A failed
// notification is logged by the notifier and never fails the operation.
func (s *Service) notify(ctx context.Context, kind string, a *Appointment) {
	if a == nil {
		return
	}
	evt := notification.Event{
		Kind:          kind,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		AppointmentID: a.ID,
	}
	evt.Summary = notification.Render(evt)
	s.notifier.Notify(ctx, evt)
}
