package appointment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.Book)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments/:id/check-in", h.CheckIn)
	api.POST("/appointments/:id/check-out", h.CheckOut)
	api.POST("/appointments/:id/cancel", h.Cancel)
	api.POST("/appointments/:id/reschedule", h.Reschedule)

	api.POST("/appointments/:id/telemedicine/start", h.StartTelemedicine)
	api.POST("/appointments/:id/telemedicine/end", h.EndTelemedicine)
	api.POST("/appointments/:id/telemedicine/join", h.JoinSession)
	api.POST("/appointments/:id/telemedicine/leave", h.LeaveSession)
	api.GET("/appointments/:id/telemedicine/peers", h.Peers)

	api.GET("/patients/:id/appointments", h.ListByPatient)
	api.GET("/doctors/:id/appointments", h.ListByDoctor)
}

// httpError maps domain errors to status codes. Losing a slot race is
// distinct from running out of funds so clients can react differently.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, scheduling.ErrSlotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTypeClinicMismatch), errors.Is(err, billing.ErrInsufficientFunds):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func idParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Book(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	appt, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrTypeClinicMismatch) ||
			errors.Is(err, billing.ErrInsufficientFunds) || errors.Is(err, scheduling.ErrSlotNotFound) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CheckIn(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.CheckIn(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CheckOut(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.CheckOut(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

type rescheduleRequest struct {
	NewSlotID int64 `json:"new_slot_id"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.NewSlotID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "new_slot_id is required")
	}
	appt, err := h.svc.Reschedule(c.Request().Context(), id, req.NewSlotID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) StartTelemedicine(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.StartTelemedicine(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

type endSessionRequest struct {
	Summary string `json:"summary"`
}

func (h *Handler) EndTelemedicine(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req endSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.EndTelemedicine(c.Request().Context(), id, req.Summary)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) JoinSession(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.JoinSession(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) LeaveSession(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.LeaveSession(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Peers(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	peers, err := h.svc.Peers(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if peers == nil {
		peers = []int64{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"peers": peers})
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
