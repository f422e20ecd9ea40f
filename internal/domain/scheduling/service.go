package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// Appointment types callers may filter slot listings by.
const (
	TypeInPerson     = "in_person"
	TypeTelemedicine = "telemedicine"
)

type Service struct {
	repo Repository
	tx   db.TxRunner
	now  func() time.Time
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx, now: time.Now}
}

// Create persists a single slot after interval and overlap validation. The
// gist exclusion constraint backstops the overlap check under concurrency.
func (s *Service) Create(ctx context.Context, slot *Slot) error {
	if slot.ProviderID == 0 {
		return fmt.Errorf("provider_id is required")
	}
	if !validProviderKind(slot.ProviderKind) {
		return fmt.Errorf("invalid provider kind: %s", slot.ProviderKind)
	}
	if !slot.EndTime.After(slot.StartTime) {
		return ErrInvalidInterval
	}

	n, err := s.repo.CountOverlapping(ctx, slot.ProviderID, slot.StartTime, slot.EndTime, 0)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrSlotOverlap
	}

	slot.Available = true
	return s.repo.Create(ctx, slot)
}

// CreateRecurring expands a rule and persists every generated slot in one
// transaction. Any overlap aborts the whole batch.
func (s *Service) CreateRecurring(ctx context.Context, rule RecurrenceRule) ([]*Slot, error) {
	slots, err := rule.Expand()
	if err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, slot := range slots {
			n, err := s.repo.CountOverlapping(ctx, slot.ProviderID, slot.StartTime, slot.EndTime, 0)
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrSlotOverlap
			}
		}
		return s.repo.CreateBatch(ctx, slots)
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// ListAvailable returns bookable slots of a provider on one calendar date.
// For in-person the slot must be clinic-bound, for telemedicine clinic-less.
// When the date is today, slots already begun are excluded.
func (s *Service) ListAvailable(ctx context.Context, providerID int64, date string, appointmentType string) ([]*Slot, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	var requireClinic bool
	switch appointmentType {
	case TypeInPerson:
		requireClinic = true
	case TypeTelemedicine:
		requireClinic = false
	default:
		return nil, fmt.Errorf("invalid appointment type: %s", appointmentType)
	}

	dayStart := day
	dayEnd := day.AddDate(0, 0, 1)

	var notBefore *time.Time
	now := s.now().UTC()
	if !now.Before(dayStart) && now.Before(dayEnd) {
		notBefore = &now
	}

	slots, err := s.repo.ListAvailable(ctx, providerID, dayStart, dayEnd, requireClinic, notBefore)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []*Slot{}
	}
	return slots, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Slot, error) {
	return s.repo.GetByID(ctx, id)
}

// Update re-validates the interval against the provider's other slots,
// excluding the slot itself. Slots consumed by an active appointment cannot
// be changed.
func (s *Service) Update(ctx context.Context, id int64, start, end time.Time, available bool) (*Slot, error) {
	slot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	inUse, err := s.repo.HasActiveAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, ErrSlotInUse
	}

	if !end.After(start) {
		return nil, ErrInvalidInterval
	}

	n, err := s.repo.CountOverlapping(ctx, slot.ProviderID, start, end, id)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrSlotOverlap
	}

	slot.StartTime = start
	slot.EndTime = end
	slot.Available = available
	if err := s.repo.Update(ctx, slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// Delete removes an unconsumed slot.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	inUse, err := s.repo.HasActiveAppointment(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return ErrSlotInUse
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListByProvider(ctx context.Context, providerID int64, limit, offset int) ([]*Slot, int, error) {
	return s.repo.ListByProvider(ctx, providerID, limit, offset)
}
