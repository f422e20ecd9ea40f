package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) exec(ctx context.Context) db.Executor {
	return db.Resolve(ctx, r.pool)
}

const slotCols = `id, provider_id, provider_kind, clinic_id, start_time, end_time,
	available, recurrence_id, created_at, updated_at`

func scanSlot(row pgx.Row) (*scheduling.Slot, error) {
	var s scheduling.Slot
	err := row.Scan(&s.ID, &s.ProviderID, &s.ProviderKind, &s.ClinicID,
		&s.StartTime, &s.EndTime, &s.Available, &s.RecurrenceID,
		&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduling.ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) GetSlotForUpdate(ctx context.Context, slotID int64) (*scheduling.Slot, error) {
	return scanSlot(r.exec(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM availability_slot WHERE id = $1 FOR UPDATE`, slotID))
}

func (r *repoPG) SlotHasActiveAppointment(ctx context.Context, slotID int64) (bool, error) {
	var exists bool
	err := r.exec(ctx).QueryRow(ctx, `
		SELECT EXISTS (
		    SELECT 1 FROM appointment WHERE slot_id = $1 AND status <> 'cancelled'
		)`, slotID).Scan(&exists)
	return exists, err
}

func (r *repoPG) SetSlotAvailable(ctx context.Context, slotID int64, available bool) error {
	tag, err := r.exec(ctx).Exec(ctx,
		`UPDATE availability_slot SET available = $2, updated_at = NOW() WHERE id = $1`,
		slotID, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrSlotNotFound
	}
	return nil
}

func (r *repoPG) FindEarliestFreeSlotForUpdate(ctx context.Context, providerID int64, dayStart, dayEnd time.Time, requireClinic bool) (*scheduling.Slot, error) {
	// SKIP LOCKED lets concurrent auto-selecting bookers pick different
	// slots instead of queueing on the same earliest one.
	return scanSlot(r.exec(ctx).QueryRow(ctx, `
		SELECT `+slotCols+`
		FROM availability_slot s
		WHERE s.provider_id = $1
		  AND s.available
		  AND s.start_time >= $2
		  AND s.start_time < $3
		  AND (($4 AND s.clinic_id IS NOT NULL) OR (NOT $4 AND s.clinic_id IS NULL))
		  AND NOT EXISTS (
		      SELECT 1 FROM appointment a
		      WHERE a.slot_id = s.id AND a.status <> 'cancelled'
		  )
		ORDER BY s.start_time
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		providerID, dayStart, dayEnd, requireClinic))
}

const apptCols = `id, patient_id, doctor_id, clinic_id, slot_id, appointment_type, status,
	reason, notes, cancellation_reason, fee, payment_method, payment_status,
	rescheduled_from, checked_in_at, checked_out_at, cancelled_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason, notes, cancellationReason *string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ClinicID, &a.SlotID, &a.Type, &a.Status,
		&reason, &notes, &cancellationReason, &a.Fee, &a.PaymentMethod, &a.PaymentStatus,
		&a.RescheduledFrom, &a.CheckedInAt, &a.CheckedOutAt, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if reason != nil {
		a.Reason = *reason
	}
	if notes != nil {
		a.Notes = *notes
	}
	if cancellationReason != nil {
		a.CancellationReason = *cancellationReason
	}
	return &a, nil
}

func (r *repoPG) Insert(ctx context.Context, a *Appointment) error {
	return r.exec(ctx).QueryRow(ctx, `
		INSERT INTO appointment (patient_id, doctor_id, clinic_id, slot_id, appointment_type,
			status, reason, notes, fee, payment_method, payment_status, rescheduled_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		a.PatientID, a.DoctorID, a.ClinicID, a.SlotID, a.Type,
		a.Status, a.Reason, a.Notes, a.Fee, a.PaymentMethod, a.PaymentStatus, a.RescheduledFrom).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.exec(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.exec(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) CheckIn(ctx context.Context, id int64) (bool, error) {
	tag, err := r.exec(ctx).Exec(ctx, `
		UPDATE appointment
		SET status = 'in_progress', checked_in_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'booked'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) CheckOut(ctx context.Context, id int64) (bool, error) {
	tag, err := r.exec(ctx).Exec(ctx, `
		UPDATE appointment
		SET status = 'completed', checked_out_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) MarkCancelled(ctx context.Context, id int64, reason, paymentStatus string) (bool, error) {
	tag, err := r.exec(ctx).Exec(ctx, `
		UPDATE appointment
		SET status = 'cancelled', cancellation_reason = $2, payment_status = $3,
		    cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('booked', 'in_progress')`,
		id, reason, paymentStatus)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) list(ctx context.Context, column string, ownerID int64, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.exec(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE `+column+` = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.exec(ctx).Query(ctx, `
		SELECT `+apptCols+`
		FROM appointment
		WHERE `+column+` = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID int64, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, "doctor_id", doctorID, limit, offset)
}

const sessionCols = `id, appointment_id, status, room_code, started_at, ended_at, summary, created_at, updated_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var summary *string
	err := row.Scan(&s.ID, &s.AppointmentID, &s.Status, &s.RoomCode,
		&s.StartedAt, &s.EndedAt, &summary, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if summary != nil {
		s.Summary = *summary
	}
	return &s, nil
}

func (r *repoPG) GetSession(ctx context.Context, appointmentID int64) (*Session, error) {
	return scanSession(r.exec(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM telemedicine_session WHERE appointment_id = $1`, appointmentID))
}

func (r *repoPG) InsertSession(ctx context.Context, s *Session) error {
	return r.exec(ctx).QueryRow(ctx, `
		INSERT INTO telemedicine_session (appointment_id, status, room_code, started_at, ended_at, summary)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		s.AppointmentID, s.Status, s.RoomCode, s.StartedAt, s.EndedAt, s.Summary).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *repoPG) UpdateSession(ctx context.Context, s *Session) error {
	tag, err := r.exec(ctx).Exec(ctx, `
		UPDATE telemedicine_session
		SET status = $2, started_at = $3, ended_at = $4, summary = $5, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.Status, s.StartedAt, s.EndedAt, s.Summary)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
