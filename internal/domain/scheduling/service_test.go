package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"
)

// memRepo is an in-memory Repository for service tests.
type memRepo struct {
	slots    map[int64]*Slot
	consumed map[int64]bool // slot id -> has active appointment
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{slots: make(map[int64]*Slot), consumed: make(map[int64]bool), nextID: 1}
}

func (m *memRepo) Create(ctx context.Context, s *Slot) error {
	// Mirror the exclusion constraint: reject intersecting intervals.
	for _, other := range m.slots {
		if other.ProviderID == s.ProviderID &&
			s.StartTime.Before(other.EndTime) && other.StartTime.Before(s.EndTime) {
			return ErrSlotOverlap
		}
	}
	cp := *s
	cp.ID = m.nextID
	m.nextID++
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.slots[cp.ID] = &cp
	*s = cp
	return nil
}

func (m *memRepo) CreateBatch(ctx context.Context, slots []*Slot) error {
	created := make([]int64, 0, len(slots))
	for _, s := range slots {
		if err := m.Create(ctx, s); err != nil {
			for _, id := range created {
				delete(m.slots, id)
			}
			return err
		}
		created = append(created, s.ID)
	}
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (*Slot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) Update(ctx context.Context, s *Slot) error {
	if _, ok := m.slots[s.ID]; !ok {
		return ErrSlotNotFound
	}
	cp := *s
	m.slots[s.ID] = &cp
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(m.slots, id)
	return nil
}

func (m *memRepo) CountOverlapping(ctx context.Context, providerID int64, start, end time.Time, excludeID int64) (int, error) {
	count := 0
	for _, s := range m.slots {
		if s.ProviderID != providerID || s.ID == excludeID {
			continue
		}
		if start.Before(s.EndTime) && s.StartTime.Before(end) {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) ListAvailable(ctx context.Context, providerID int64, dayStart, dayEnd time.Time, requireClinic bool, notBefore *time.Time) ([]*Slot, error) {
	var out []*Slot
	for _, s := range m.slots {
		if s.ProviderID != providerID || !s.Available || m.consumed[s.ID] {
			continue
		}
		if s.StartTime.Before(dayStart) || !s.StartTime.Before(dayEnd) {
			continue
		}
		if requireClinic != (s.ClinicID != nil) {
			continue
		}
		if notBefore != nil && s.StartTime.Before(*notBefore) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartTime.Before(out[i].StartTime) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memRepo) HasActiveAppointment(ctx context.Context, slotID int64) (bool, error) {
	return m.consumed[slotID], nil
}

func (m *memRepo) ListByProvider(ctx context.Context, providerID int64, limit, offset int) ([]*Slot, int, error) {
	var all []*Slot
	for _, s := range m.slots {
		if s.ProviderID == providerID {
			cp := *s
			all = append(all, &cp)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// txStub runs the function directly; rollback is simulated by CreateBatch.
type txStub struct{}

func (txStub) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func at(hour, min int) time.Time {
	return time.Date(2025, 6, 2, hour, min, 0, 0, time.UTC)
}

func TestCreateSlot(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})

	slot := &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(9, 0), EndTime: at(9, 30)}
	if err := svc.Create(context.Background(), slot); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if slot.ID == 0 {
		t.Error("slot ID not assigned")
	}
	if !slot.Available {
		t.Error("new slot should be available")
	}
}

func TestCreateSlotRejectsInvalidInterval(t *testing.T) {
	svc := NewService(newMemRepo(), txStub{})

	slot := &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(10, 0), EndTime: at(10, 0)}
	if err := svc.Create(context.Background(), slot); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("err = %v, want ErrInvalidInterval", err)
	}

	slot.EndTime = at(9, 0)
	if err := svc.Create(context.Background(), slot); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("err = %v, want ErrInvalidInterval", err)
	}
}

func TestCreateSlotRejectsOverlap(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})
	ctx := context.Background()

	if err := svc.Create(ctx, &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(9, 0), EndTime: at(10, 0)}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	overlapping := []struct {
		name       string
		start, end time.Time
	}{
		{"identical", at(9, 0), at(10, 0)},
		{"starts inside", at(9, 30), at(10, 30)},
		{"ends inside", at(8, 30), at(9, 30)},
		{"covers", at(8, 0), at(11, 0)},
		{"contained", at(9, 15), at(9, 45)},
	}
	for _, tt := range overlapping {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Create(ctx, &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: tt.start, EndTime: tt.end})
			if !errors.Is(err, ErrSlotOverlap) {
				t.Errorf("err = %v, want ErrSlotOverlap", err)
			}
		})
	}

	// Touching intervals do not overlap.
	if err := svc.Create(ctx, &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(10, 0), EndTime: at(10, 30)}); err != nil {
		t.Errorf("adjacent slot rejected: %v", err)
	}

	// Another provider may hold the same interval.
	if err := svc.Create(ctx, &Slot{ProviderID: 2, ProviderKind: ProviderDoctor, StartTime: at(9, 0), EndTime: at(10, 0)}); err != nil {
		t.Errorf("other provider's slot rejected: %v", err)
	}
}

func TestCreateRecurringAllOrNothing(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})
	ctx := context.Background()

	// Pre-existing slot collides with the second generated instance.
	if err := svc.Create(ctx, &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(9, 30), EndTime: at(10, 0)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := len(repo.slots)

	_, err := svc.CreateRecurring(ctx, RecurrenceRule{
		ProviderID:   1,
		ProviderKind: ProviderDoctor,
		Weekdays:     []time.Weekday{time.Monday},
		DayStart:     "09:00",
		DayEnd:       "11:00",
		SlotMinutes:  30,
		FromDate:     "2025-06-02",
		ToDate:       "2025-06-02",
	})
	if !errors.Is(err, ErrSlotOverlap) {
		t.Fatalf("err = %v, want ErrSlotOverlap", err)
	}
	if len(repo.slots) != before {
		t.Errorf("batch partially persisted: %d slots, want %d", len(repo.slots), before)
	}
}

func TestCreateRecurringPersistsBatch(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})

	slots, err := svc.CreateRecurring(context.Background(), RecurrenceRule{
		ProviderID:   1,
		ProviderKind: ProviderDoctor,
		Weekdays:     []time.Weekday{time.Monday},
		DayStart:     "09:00",
		DayEnd:       "10:00",
		SlotMinutes:  30,
		FromDate:     "2025-06-02",
		ToDate:       "2025-06-02",
	})
	if err != nil {
		t.Fatalf("CreateRecurring: %v", err)
	}
	if len(slots) != 2 || len(repo.slots) != 2 {
		t.Errorf("created %d slots, repo holds %d, want 2", len(slots), len(repo.slots))
	}
}

func TestListAvailableFiltersByType(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})
	svc.now = func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	clinicID := int64(5)
	svc.Create(ctx, &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, ClinicID: &clinicID, StartTime: at(9, 0), EndTime: at(9, 30)})
	svc.Create(ctx, &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(10, 0), EndTime: at(10, 30)})

	inPerson, err := svc.ListAvailable(ctx, 1, "2025-06-02", TypeInPerson)
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(inPerson) != 1 || inPerson[0].ClinicID == nil {
		t.Errorf("in-person slots = %d, want the clinic-bound one", len(inPerson))
	}

	telemed, err := svc.ListAvailable(ctx, 1, "2025-06-02", TypeTelemedicine)
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(telemed) != 1 || telemed[0].ClinicID != nil {
		t.Errorf("telemedicine slots = %d, want the clinic-less one", len(telemed))
	}
}

func TestListAvailableExcludesPastSlotsToday(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})
	svc.now = func() time.Time { return time.Date(2025, 6, 2, 9, 45, 0, 0, time.UTC) }
	ctx := context.Background()

	svc.Create(ctx, &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(9, 0), EndTime: at(9, 30)})
	svc.Create(ctx, &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(10, 0), EndTime: at(10, 30)})

	slots, err := svc.ListAvailable(ctx, 1, "2025-06-02", TypeTelemedicine)
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(slots) != 1 || !slots[0].StartTime.Equal(at(10, 0)) {
		t.Errorf("slots = %v, want only the 10:00 slot", slots)
	}
}

func TestListAvailableExcludesConsumedSlots(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})
	svc.now = func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	booked := &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(9, 0), EndTime: at(9, 30)}
	svc.Create(ctx, booked)
	repo.consumed[booked.ID] = true

	slots, err := svc.ListAvailable(ctx, 1, "2025-06-02", TypeTelemedicine)
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("slots = %v, want empty", slots)
	}
}

func TestListAvailableEmptyDateIsNotAnError(t *testing.T) {
	svc := NewService(newMemRepo(), txStub{})

	slots, err := svc.ListAvailable(context.Background(), 1, "2019-01-01", TypeInPerson)
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Errorf("slots = %v, want empty non-nil list", slots)
	}
}

func TestUpdateRevalidatesOverlapExcludingSelf(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})
	ctx := context.Background()

	slot := &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(9, 0), EndTime: at(9, 30)}
	svc.Create(ctx, slot)
	other := &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(10, 0), EndTime: at(10, 30)}
	svc.Create(ctx, other)

	// Shifting within its own old window is fine.
	if _, err := svc.Update(ctx, slot.ID, at(9, 15), at(9, 45), true); err != nil {
		t.Errorf("Update: %v", err)
	}

	// Colliding with the other slot is not.
	if _, err := svc.Update(ctx, slot.ID, at(10, 15), at(10, 45), true); !errors.Is(err, ErrSlotOverlap) {
		t.Errorf("err = %v, want ErrSlotOverlap", err)
	}
}

func TestUpdateConsumedSlotFails(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})
	ctx := context.Background()

	slot := &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(9, 0), EndTime: at(9, 30)}
	svc.Create(ctx, slot)
	repo.consumed[slot.ID] = true

	if _, err := svc.Update(ctx, slot.ID, at(11, 0), at(11, 30), true); !errors.Is(err, ErrSlotInUse) {
		t.Errorf("err = %v, want ErrSlotInUse", err)
	}
}

func TestDeleteConsumedSlotFails(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})
	ctx := context.Background()

	slot := &Slot{ProviderID: 1, ProviderKind: ProviderDoctor, StartTime: at(9, 0), EndTime: at(9, 30)}
	svc.Create(ctx, slot)
	repo.consumed[slot.ID] = true

	if err := svc.Delete(ctx, slot.ID); !errors.Is(err, ErrSlotInUse) {
		t.Errorf("err = %v, want ErrSlotInUse", err)
	}

	repo.consumed[slot.ID] = false
	if err := svc.Delete(ctx, slot.ID); err != nil {
		t.Errorf("Delete of free slot: %v", err)
	}
	if err := svc.Delete(ctx, slot.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("err = %v, want ErrSlotNotFound", err)
	}
}
