package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInterval   = errors.New("slot end must be after start")
	ErrSlotOverlap       = errors.New("slot overlaps an existing slot for this provider")
	ErrSlotInUse         = errors.New("slot is referenced by an active appointment")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrInvalidRecurrence = errors.New("invalid recurrence rule")
)

// Provider kinds that may own slots.
const (
	ProviderDoctor = "doctor"
	ProviderNurse  = "nurse"
	ProviderLab    = "lab"
)

// Slot is a provider's declared block of bookable time. A nil ClinicID marks
// the slot telemedicine-capable; a set one binds it to in-person visits at
// that clinic.
type Slot struct {
	ID           int64      `json:"id"`
	ProviderID   int64      `json:"provider_id"`
	ProviderKind string     `json:"provider_kind"`
	ClinicID     *int64     `json:"clinic_id,omitempty"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
	Available    bool       `json:"available"`
	RecurrenceID *uuid.UUID `json:"recurrence_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func validProviderKind(kind string) bool {
	switch kind {
	case ProviderDoctor, ProviderNurse, ProviderLab:
		return true
	}
	return false
}

// RecurrenceRule describes a repeating weekly availability pattern. It
// expands into one concrete slot per SlotMinutes window on each matching
// weekday between FromDate and ToDate inclusive.
type RecurrenceRule struct {
	ProviderID   int64          `json:"provider_id"`
	ProviderKind string         `json:"provider_kind"`
	ClinicID     *int64         `json:"clinic_id,omitempty"`
	Weekdays     []time.Weekday `json:"weekdays"`
	DayStart     string         `json:"day_start"` // HH:MM
	DayEnd       string         `json:"day_end"`   // HH:MM
	SlotMinutes  int            `json:"slot_minutes"`
	FromDate     string         `json:"from_date"` // YYYY-MM-DD
	ToDate       string         `json:"to_date"`   // YYYY-MM-DD
}

func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// Expand generates the concrete slots for a rule. All generated slots share
// one recurrence id so a batch can be traced back to the rule that made it.
func (r RecurrenceRule) Expand() ([]*Slot, error) {
	if r.ProviderID == 0 {
		return nil, fmt.Errorf("%w: provider_id is required", ErrInvalidRecurrence)
	}
	if !validProviderKind(r.ProviderKind) {
		return nil, fmt.Errorf("%w: unknown provider kind %q", ErrInvalidRecurrence, r.ProviderKind)
	}
	if len(r.Weekdays) == 0 {
		return nil, fmt.Errorf("%w: at least one weekday is required", ErrInvalidRecurrence)
	}
	if r.SlotMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot_minutes must be positive", ErrInvalidRecurrence)
	}

	startHour, startMin, err := parseClock(r.DayStart)
	if err != nil {
		return nil, fmt.Errorf("%w: bad day_start %q", ErrInvalidRecurrence, r.DayStart)
	}
	endHour, endMin, err := parseClock(r.DayEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: bad day_end %q", ErrInvalidRecurrence, r.DayEnd)
	}
	if endHour*60+endMin <= startHour*60+startMin {
		return nil, fmt.Errorf("%w: day_end must be after day_start", ErrInvalidRecurrence)
	}

	from, err := time.ParseInLocation("2006-01-02", r.FromDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad from_date %q", ErrInvalidRecurrence, r.FromDate)
	}
	to, err := time.ParseInLocation("2006-01-02", r.ToDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad to_date %q", ErrInvalidRecurrence, r.ToDate)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to_date precedes from_date", ErrInvalidRecurrence)
	}

	wanted := make(map[time.Weekday]bool, len(r.Weekdays))
	for _, wd := range r.Weekdays {
		wanted[wd] = true
	}

	recurrenceID := uuid.New()
	slotLen := time.Duration(r.SlotMinutes) * time.Minute

	var slots []*Slot
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !wanted[day.Weekday()] {
			continue
		}
		windowStart := time.Date(day.Year(), day.Month(), day.Day(), startHour, startMin, 0, 0, time.UTC)
		windowEnd := time.Date(day.Year(), day.Month(), day.Day(), endHour, endMin, 0, 0, time.UTC)

		for start := windowStart; !start.Add(slotLen).After(windowEnd); start = start.Add(slotLen) {
			rid := recurrenceID
			slots = append(slots, &Slot{
				ProviderID:   r.ProviderID,
				ProviderKind: r.ProviderKind,
				ClinicID:     r.ClinicID,
				StartTime:    start,
				EndTime:      start.Add(slotLen),
				Available:    true,
				RecurrenceID: &rid,
			})
		}
	}

	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: rule expands to no slots", ErrInvalidRecurrence)
	}
	return slots, nil
}
