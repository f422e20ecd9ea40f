package billing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/balance", h.GetBalance)
	api.POST("/patients/:id/deposits", h.Deposit)
	api.GET("/patients/:id/ledger", h.History)
}

type depositRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// canAccessPatient allows the patient themselves or any staff member.
func canAccessPatient(c echo.Context, patientID int64) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	if p.IsStaff() || (p.Role == auth.RolePatient && p.ID == patientID) {
		return nil
	}
	return echo.NewHTTPError(http.StatusForbidden, "not allowed to access this patient")
}

func patientIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return id, nil
}

func (h *Handler) GetBalance(c echo.Context) error {
	patientID, err := patientIDParam(c)
	if err != nil {
		return err
	}
	if err := canAccessPatient(c, patientID); err != nil {
		return err
	}

	bal, err := h.svc.GetBalance(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, bal)
}

func (h *Handler) Deposit(c echo.Context) error {
	patientID, err := patientIDParam(c)
	if err != nil {
		return err
	}
	if err := canAccessPatient(c, patientID); err != nil {
		return err
	}

	var req depositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	entry, err := h.svc.Deposit(c.Request().Context(), patientID, req.Amount, req.Description)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) History(c echo.Context) error {
	patientID, err := patientIDParam(c)
	if err != nil {
		return err
	}
	if err := canAccessPatient(c, patientID); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
