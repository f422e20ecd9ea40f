package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

func auditRequest(t *testing.T, method, target string, p *auth.Principal, rec AuditRecorder) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(context.Background(), *p))
	}
	w := httptest.NewRecorder()
	c := e.NewContext(req, w)
	c.Set("request_id", "req-123")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	h := Audit(logger, rec)(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_RecordsPrincipalAndResource(t *testing.T) {
	var got AuditEntry
	rec := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})

	p := auth.Principal{ID: 7, Role: auth.RoleDoctor}
	auditRequest(t, http.MethodGet, "/api/v1/patients/42/ledger", &p, rec)

	if got.UserID != 7 || got.UserRole != auth.RoleDoctor {
		t.Errorf("principal = %d/%s, want 7/doctor", got.UserID, got.UserRole)
	}
	if got.Resource != "patients" {
		t.Errorf("resource = %s, want patients", got.Resource)
	}
	if got.PatientID != 42 {
		t.Errorf("patient_id = %d, want 42", got.PatientID)
	}
	if got.Action != "read" {
		t.Errorf("action = %s, want read", got.Action)
	}
	if got.RequestID != "req-123" {
		t.Errorf("request_id = %s, want req-123", got.RequestID)
	}
}

func TestAudit_PatientFromQueryParam(t *testing.T) {
	var got AuditEntry
	rec := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})

	auditRequest(t, http.MethodPost, "/api/v1/appointments?patient_id=10", nil, rec)

	if got.PatientID != 10 {
		t.Errorf("patient_id = %d, want 10", got.PatientID)
	}
	if got.Action != "create" {
		t.Errorf("action = %s, want create", got.Action)
	}
}

func TestAudit_SkipsNonAPIRoutes(t *testing.T) {
	called := false
	rec := AuditRecorderFunc(func(e AuditEntry) error {
		called = true
		return nil
	})

	auditRequest(t, http.MethodGet, "/health", nil, rec)

	if called {
		t.Error("expected health check to skip auditing")
	}
}
