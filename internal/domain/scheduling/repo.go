package scheduling

import (
	"context"
	"time"
)

// Repository persists availability slots.
type Repository interface {
	Create(ctx context.Context, s *Slot) error
	// CreateBatch inserts all slots or none. Callers wrap it in a
	// transaction so a single overlap aborts the whole batch.
	CreateBatch(ctx context.Context, slots []*Slot) error
	GetByID(ctx context.Context, id int64) (*Slot, error)
	Update(ctx context.Context, s *Slot) error
	Delete(ctx context.Context, id int64) error
	// CountOverlapping counts slots of the provider whose [start, end)
	// interval intersects the given one, excluding excludeID (0 excludes
	// nothing).
	CountOverlapping(ctx context.Context, providerID int64, start, end time.Time, excludeID int64) (int, error)
	// ListAvailable returns available, unbound slots of the provider that
	// start within [dayStart, dayEnd). requireClinic selects clinic-bound
	// slots; otherwise only clinic-less ones match. A non-nil notBefore
	// additionally excludes slots starting before it.
	ListAvailable(ctx context.Context, providerID int64, dayStart, dayEnd time.Time, requireClinic bool, notBefore *time.Time) ([]*Slot, error)
	// HasActiveAppointment reports whether a non-cancelled appointment
	// references the slot.
	HasActiveAppointment(ctx context.Context, slotID int64) (bool, error)
	ListByProvider(ctx context.Context, providerID int64, limit, offset int) ([]*Slot, int, error)
}
