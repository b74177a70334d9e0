package scheduling

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/money"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/auth"
	"github.com/nickenf/afayaconekt-sub000/pkg/pagination"
)

// IdempotencyKeyHeader may carry the idempotency key instead of the body.
const IdempotencyKeyHeader = "Idempotency-Key"

type Handler struct {
	svc            *Service
	allowAnonymous bool
}

// NewHandler builds the scheduling handler. allowAnonymous lets callers
// without a token attempt bookings; such bookings have no requester.
func NewHandler(svc *Service, allowAnonymous bool) *Handler {
	return &Handler{svc: svc, allowAnonymous: allowAnonymous}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/facilities/:id", h.GetFacility)
	api.GET("/providers/:id", h.GetProvider)
	api.GET("/providers/:id/availability", h.GetAvailability)
	api.POST("/bookings", h.AttemptBooking)

	authed := auth.RequireAuthenticated()
	api.GET("/bookings", h.ListBookings, authed)
	api.GET("/bookings/:id", h.GetBooking, authed)
	api.POST("/bookings/:id/status", h.TransitionBooking, authed)
	api.GET("/bookings/:id/transitions", h.ListTransitions, authed)

	admin := auth.RequireRole(auth.RoleAdmin)
	api.POST("/facilities", h.CreateFacility, admin)
	api.POST("/providers", h.CreateProvider, admin)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id %q", c.Param("id"))
	}
	return id, nil
}

// -- Facility & Provider --

type createFacilityRequest struct {
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

func (h *Handler) CreateFacility(c echo.Context) error {
	var req createFacilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f := &Facility{Name: req.Name, Active: req.Active == nil || *req.Active}
	if err := h.svc.CreateFacility(c.Request().Context(), f); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetFacility(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	f, err := h.svc.GetFacility(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, f)
}

type createProviderRequest struct {
	FacilityID         uuid.UUID   `json:"facility_id"`
	Name               string      `json:"name"`
	Fee                money.Money `json:"fee"`
	StartHour          int         `json:"start_hour"`
	EndHour            int         `json:"end_hour"`
	GranularityMinutes int         `json:"granularity_minutes"`
	Active             *bool       `json:"active"`
}

func (h *Handler) CreateProvider(c echo.Context) error {
	var req createProviderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p := &Provider{
		FacilityID:         req.FacilityID,
		Name:               req.Name,
		Fee:                req.Fee,
		Window:             calendar.Window{StartHour: req.StartHour, EndHour: req.EndHour},
		GranularityMinutes: req.GranularityMinutes,
		Active:             req.Active == nil || *req.Active,
	}
	if err := h.svc.CreateProvider(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	p, err := h.svc.GetProvider(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Availability --

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	date, err := calendar.ParseDate(c.QueryParam("date"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	duration := 0
	if raw := c.QueryParam("duration"); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "duration must be an integer number of minutes")
		}
	}

	avail, err := h.svc.ResolveAvailability(c.Request().Context(), id, date, duration)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, avail)
}

// -- Booking --

type attemptBookingRequest struct {
	ProviderID      string `json:"provider_id"`
	Date            string `json:"date"`
	SlotTime        string `json:"slot_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Remote          bool   `json:"remote"`
	IdempotencyKey  string `json:"idempotency_key"`
}

func (r attemptBookingRequest) toAttempt() (AttemptRequest, error) {
	pid, err := uuid.Parse(r.ProviderID)
	if err != nil {
		return AttemptRequest{}, apperr.Validation("invalid provider_id %q", r.ProviderID)
	}
	date, err := calendar.ParseDate(r.Date)
	if err != nil {
		return AttemptRequest{}, err
	}
	slot, err := calendar.ParseTimeOfDay(r.SlotTime)
	if err != nil {
		return AttemptRequest{}, err
	}
	if len(r.IdempotencyKey) > 128 {
		return AttemptRequest{}, apperr.Validation("idempotency_key must be at most 128 characters")
	}
	return AttemptRequest{
		ProviderID:      pid,
		Date:            date,
		SlotTime:        slot,
		DurationMinutes: r.DurationMinutes,
		Remote:          r.Remote,
		IdempotencyKey:  r.IdempotencyKey,
	}, nil
}

func (h *Handler) AttemptBooking(c echo.Context) error {
	ctx := c.Request().Context()
	actor := lifecycle.ActorFromContext(ctx)
	if actor.Anonymous() && !h.allowAnonymous {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var body attemptBookingRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.IdempotencyKey == "" {
		body.IdempotencyKey = c.Request().Header.Get(IdempotencyKeyHeader)
	}
	req, err := body.toAttempt()
	if err != nil {
		return apperr.HTTPError(err)
	}
	if !actor.Anonymous() {
		req.RequesterID = &actor.ID
	}

	b, replayed, err := h.svc.AttemptBooking(ctx, req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if replayed {
		return c.JSON(http.StatusOK, b)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	ctx := c.Request().Context()
	b, err := h.svc.GetBooking(ctx, lifecycle.ActorFromContext(ctx), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func bookingFilterFrom(c echo.Context) (BookingFilter, error) {
	var f BookingFilter
	if raw := c.QueryParam("provider_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, apperr.Validation("invalid provider_id %q", raw)
		}
		f.ProviderID = id
	}
	f.RequesterID = c.QueryParam("requester_id")
	if raw := c.QueryParam("status"); raw != "" {
		st, err := lifecycle.Parse(raw)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	for _, p := range []struct {
		name string
		dst  *calendar.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		d, err := calendar.ParseDate(raw)
		if err != nil {
			return f, err
		}
		*p.dst = d
	}
	return f, nil
}

func (h *Handler) ListBookings(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := bookingFilterFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	ctx := c.Request().Context()
	items, total, err := h.svc.ListBookings(ctx, lifecycle.ActorFromContext(ctx), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) TransitionBooking(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	to, err := lifecycle.Parse(req.Status)
	if err != nil {
		return apperr.HTTPError(err)
	}

	ctx := c.Request().Context()
	b, err := h.svc.TransitionBooking(ctx, lifecycle.ActorFromContext(ctx), id, to, req.Reason)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListTransitions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	ctx := c.Request().Context()
	items, err := h.svc.BookingTransitions(ctx, lifecycle.ActorFromContext(ctx), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*lifecycle.Transition{}
	}
	return c.JSON(http.StatusOK, items)
}
