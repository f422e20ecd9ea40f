package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

var (
	ErrNoClinic        = errors.New("doctor belongs to no clinic")
	ErrAmbiguousClinic = errors.New("doctor belongs to multiple clinics")
	ErrUnknownClinic   = errors.New("clinic not found")
)

// Directory answers questions about clinics and their staff.
type Directory interface {
	// ClinicForDoctor returns the single clinic a doctor practices at.
	// Doctors at no clinic or at several cannot be resolved implicitly.
	ClinicForDoctor(ctx context.Context, doctorID int64) (int64, error)
	// ValidateClinic reports whether the clinic exists and the doctor
	// practices there.
	ValidateClinic(ctx context.Context, clinicID, doctorID int64) error
}

type pgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) Directory {
	return &pgDirectory{pool: pool}
}

func (d *pgDirectory) ClinicForDoctor(ctx context.Context, doctorID int64) (int64, error) {
	exec := db.Resolve(ctx, d.pool)

	rows, err := exec.Query(ctx,
		`SELECT clinic_id FROM clinic_member WHERE doctor_id = $1 LIMIT 2`,
		doctorID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var clinics []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		clinics = append(clinics, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	switch len(clinics) {
	case 0:
		return 0, ErrNoClinic
	case 1:
		return clinics[0], nil
	default:
		return 0, ErrAmbiguousClinic
	}
}

func (d *pgDirectory) ValidateClinic(ctx context.Context, clinicID, doctorID int64) error {
	exec := db.Resolve(ctx, d.pool)

	var exists bool
	err := exec.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM clinic WHERE id = $1)`, clinicID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownClinic
	}

	err = exec.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM clinic_member
		    WHERE clinic_id = $1 AND doctor_id = $2
		)`, clinicID, doctorID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoClinic
	}
	return nil
}
