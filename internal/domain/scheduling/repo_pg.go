package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// exclusionViolation is the SQLSTATE raised by the gist exclusion constraint
// on provider intervals.
const exclusionViolation = "23P01"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) exec(ctx context.Context) db.Executor {
	return db.Resolve(ctx, r.pool)
}

func mapSlotErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return ErrSlotOverlap
	}
	return err
}

const slotCols = `id, provider_id, provider_kind, clinic_id, start_time, end_time,
	available, recurrence_id, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.ProviderID, &s.ProviderKind, &s.ClinicID,
		&s.StartTime, &s.EndTime, &s.Available, &s.RecurrenceID,
		&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *Slot) error {
	err := r.exec(ctx).QueryRow(ctx, `
		INSERT INTO availability_slot (provider_id, provider_kind, clinic_id, start_time, end_time, available, recurrence_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		s.ProviderID, s.ProviderKind, s.ClinicID, s.StartTime, s.EndTime, s.Available, s.RecurrenceID).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return mapSlotErr(err)
}

func (r *repoPG) CreateBatch(ctx context.Context, slots []*Slot) error {
	for _, s := range slots {
		if err := r.Create(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Slot, error) {
	return scanSlot(r.exec(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM availability_slot WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, s *Slot) error {
	tag, err := r.exec(ctx).Exec(ctx, `
		UPDATE availability_slot
		SET start_time = $2, end_time = $3, available = $4, clinic_id = $5, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.StartTime, s.EndTime, s.Available, s.ClinicID)
	if err != nil {
		return mapSlotErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.exec(ctx).Exec(ctx, `DELETE FROM availability_slot WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *repoPG) CountOverlapping(ctx context.Context, providerID int64, start, end time.Time, excludeID int64) (int, error) {
	var count int
	err := r.exec(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM availability_slot
		WHERE provider_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND id <> $4`,
		providerID, start, end, excludeID).Scan(&count)
	return count, err
}

func (r *repoPG) ListAvailable(ctx context.Context, providerID int64, dayStart, dayEnd time.Time, requireClinic bool, notBefore *time.Time) ([]*Slot, error) {
	rows, err := r.exec(ctx).Query(ctx, `
		SELECT `+slotCols+`
		FROM availability_slot s
		WHERE s.provider_id = $1
		  AND s.available
		  AND s.start_time >= $2
		  AND s.start_time < $3
		  AND (($4 AND s.clinic_id IS NOT NULL) OR (NOT $4 AND s.clinic_id IS NULL))
		  AND ($5::timestamptz IS NULL OR s.start_time >= $5)
		  AND NOT EXISTS (
		      SELECT 1 FROM appointment a
		      WHERE a.slot_id = s.id AND a.status <> 'cancelled'
		  )
		ORDER BY s.start_time`,
		providerID, dayStart, dayEnd, requireClinic, notBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *repoPG) HasActiveAppointment(ctx context.Context, slotID int64) (bool, error) {
	var exists bool
	err := r.exec(ctx).QueryRow(ctx, `
		SELECT EXISTS (
		    SELECT 1 FROM appointment WHERE slot_id = $1 AND status <> 'cancelled'
		)`, slotID).Scan(&exists)
	return exists, err
}

func (r *repoPG) ListByProvider(ctx context.Context, providerID int64, limit, offset int) ([]*Slot, int, error) {
	var total int
	if err := r.exec(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM availability_slot WHERE provider_id = $1`, providerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.exec(ctx).Query(ctx, `
		SELECT `+slotCols+`
		FROM availability_slot
		WHERE provider_id = $1
		ORDER BY start_time
		LIMIT $2 OFFSET $3`, providerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var slots []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, 0, err
		}
		slots = append(slots, s)
	}
	return slots, total, rows.Err()
}
