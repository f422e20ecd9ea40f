package notification

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogNotifierWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	n.Notify(context.Background(), Event{
		Kind:          KindBooked,
		PatientID:     10,
		DoctorID:      20,
		AppointmentID: 30,
		Summary:       "visit",
	})

	out := buf.String()
	for _, want := range []string{KindBooked, `"patient_id":10`, `"doctor_id":20`, `"appointment_id":30`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{KindBooked, "Appointment 5 booked for patient 1 with doctor 2"},
		{KindCheckedIn, "Patient 1 checked in for appointment 5"},
		{KindCompleted, "Appointment 5 completed"},
		{"unknown.kind", "fallback"},
	}

	for _, tt := range tests {
		got := Render(Event{Kind: tt.kind, PatientID: 1, DoctorID: 2, AppointmentID: 5, Summary: "fallback"})
		if got != tt.want {
			t.Errorf("Render(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
