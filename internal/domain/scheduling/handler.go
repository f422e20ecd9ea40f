package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

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
	api.GET("/slots", h.ListAvailable)
	api.GET("/slots/:id", h.Get)
	api.GET("/providers/:id/slots", h.ListByProvider)

	manage := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleClinicAdmin, auth.RoleLabAdmin))
	manage.POST("/slots", h.Create)
	manage.POST("/slots/recurring", h.CreateRecurring)
	manage.PUT("/slots/:id", h.Update)
	manage.DELETE("/slots/:id", h.Delete)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSlotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotOverlap), errors.Is(err, ErrSlotInUse):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrInvalidRecurrence):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func slotIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid slot id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var slot Slot
	if err := c.Bind(&slot); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &slot); err != nil {
		if errors.Is(err, ErrSlotOverlap) || errors.Is(err, ErrInvalidInterval) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, slot)
}

func (h *Handler) CreateRecurring(c echo.Context) error {
	var rule RecurrenceRule
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slots, err := h.svc.CreateRecurring(c.Request().Context(), rule)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"count": len(slots),
		"slots": slots,
	})
}

func (h *Handler) ListAvailable(c echo.Context) error {
	providerID, err := strconv.ParseInt(c.QueryParam("provider_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "provider_id is required")
	}
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	apptType := c.QueryParam("type")
	if apptType == "" {
		apptType = TypeInPerson
	}

	slots, err := h.svc.ListAvailable(c.Request().Context(), providerID, date, apptType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := slotIDParam(c)
	if err != nil {
		return err
	}
	slot, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slot)
}

type updateSlotRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := slotIDParam(c)
	if err != nil {
		return err
	}
	var req updateSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slot, err := h.svc.Update(c.Request().Context(), id, req.StartTime, req.EndTime, req.Available)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := slotIDParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByProvider(c echo.Context) error {
	providerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	pg := pagination.FromContext(c)
	slots, total, err := h.svc.ListByProvider(c.Request().Context(), providerID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(slots, total, pg.Limit, pg.Offset))
}
