package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

func newTestHandler() (*Handler, *memRepo) {
	repo := newMemRepo()
	svc := NewService(repo, txStub{})
	return NewHandler(svc), repo
}

func doRequest(h echo.HandlerFunc, method, path, body string, p auth.Principal, params map[string]string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req = req.WithContext(auth.WithPrincipal(context.Background(), p))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	return rec, h(c)
}

func TestDepositHandler(t *testing.T) {
	h, _ := newTestHandler()

	rec, err := doRequest(h.Deposit, http.MethodPost, "/patients/1/deposits",
		`{"amount": 75, "description": "top up"}`,
		auth.Principal{ID: 1, Role: auth.RolePatient},
		map[string]string{"id": "1"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var entry LedgerTransaction
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if entry.Kind != KindDeposit || entry.Amount != 75 {
		t.Errorf("entry = %+v", entry)
	}
}

func TestDepositHandlerRejectsZeroAmount(t *testing.T) {
	h, _ := newTestHandler()

	_, err := doRequest(h.Deposit, http.MethodPost, "/patients/1/deposits",
		`{"amount": 0}`,
		auth.Principal{ID: 1, Role: auth.RolePatient},
		map[string]string{"id": "1"})

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestGetBalanceHandlerForbidsOtherPatients(t *testing.T) {
	h, _ := newTestHandler()

	_, err := doRequest(h.GetBalance, http.MethodGet, "/patients/2/balance", "",
		auth.Principal{ID: 1, Role: auth.RolePatient},
		map[string]string{"id": "2"})

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestGetBalanceHandlerAllowsStaff(t *testing.T) {
	h, _ := newTestHandler()

	rec, err := doRequest(h.GetBalance, http.MethodGet, "/patients/2/balance", "",
		auth.Principal{ID: 9, Role: auth.RoleClinicAdmin},
		map[string]string{"id": "2"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var bal Balance
	if err := json.Unmarshal(rec.Body.Bytes(), &bal); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if bal.Balance != 0 {
		t.Errorf("balance = %v, want 0", bal.Balance)
	}
}

func TestHistoryHandler(t *testing.T) {
	h, repo := newTestHandler()
	svc := NewService(repo, txStub{})
	svc.Deposit(context.Background(), 1, 10, "")
	svc.Deposit(context.Background(), 1, 20, "")

	rec, err := doRequest(h.History, http.MethodGet, "/patients/1/ledger", "",
		auth.Principal{ID: 1, Role: auth.RolePatient},
		map[string]string{"id": "1"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestBadPatientIDParam(t *testing.T) {
	h, _ := newTestHandler()

	_, err := doRequest(h.GetBalance, http.MethodGet, "/patients/abc/balance", "",
		auth.Principal{ID: 1, Role: auth.RolePlatformAdmin},
		map[string]string{"id": "abc"})

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
