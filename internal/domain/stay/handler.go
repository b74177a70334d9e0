package stay

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/money"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/auth"
	"github.com/nickenf/afayaconekt-sub000/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/facility-options/:id", h.GetOption)
	api.POST("/stays/quote", h.Quote)
	api.POST("/stays", h.CreateStay)

	authed := auth.RequireAuthenticated()
	api.GET("/stays", h.ListStays, authed)
	api.GET("/stays/:id", h.GetStay, authed)
	api.POST("/stays/:id/status", h.TransitionStay, authed)
	api.GET("/stays/:id/transitions", h.ListTransitions, authed)

	api.POST("/facility-options", h.CreateOption, auth.RequireRole(auth.RoleAdmin))
}

// parseInstant accepts RFC 3339 timestamps or plain dates, which mean
// midnight UTC.
func parseInstant(field, s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, apperr.Validation("%s must be YYYY-MM-DD or RFC 3339, got %q", field, s)
	}
	return d.Time(), nil
}

type rangeRequest struct {
	FacilityOptionID string `json:"facility_option_id"`
	CheckIn          string `json:"check_in"`
	CheckOut         string `json:"check_out"`
	GuestCount       int    `json:"guest_count"`
}

func (r rangeRequest) parse() (uuid.UUID, time.Time, time.Time, error) {
	id, err := uuid.Parse(r.FacilityOptionID)
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, apperr.Validation("invalid facility_option_id %q", r.FacilityOptionID)
	}
	in, err := parseInstant("check_in", r.CheckIn)
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, err
	}
	out, err := parseInstant("check_out", r.CheckOut)
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, err
	}
	return id, in, out, nil
}

func (h *Handler) Quote(c echo.Context) error {
	var req rangeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id, in, out, err := req.parse()
	if err != nil {
		return apperr.HTTPError(err)
	}
	q, err := h.svc.Quote(c.Request().Context(), id, in, out)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) CreateStay(c echo.Context) error {
	var req rangeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id, in, out, err := req.parse()
	if err != nil {
		return apperr.HTTPError(err)
	}

	ctx := c.Request().Context()
	create := CreateRequest{FacilityOptionID: id, CheckIn: in, CheckOut: out, GuestCount: req.GuestCount}
	if actor := lifecycle.ActorFromContext(ctx); !actor.Anonymous() {
		create.RequesterID = &actor.ID
	}
	st, err := h.svc.CreateStay(ctx, create)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, st)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id %q", c.Param("id"))
	}
	return id, nil
}

func (h *Handler) GetStay(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	ctx := c.Request().Context()
	st, err := h.svc.GetStay(ctx, lifecycle.ActorFromContext(ctx), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListStays(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var f Filter
	if raw := c.QueryParam("facility_option_id"); raw != "" {
		if f.FacilityOptionID, err = uuid.Parse(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid facility_option_id")
		}
	}
	if raw := c.QueryParam("status"); raw != "" {
		if f.Status, err = lifecycle.Parse(raw); err != nil {
			return apperr.HTTPError(err)
		}
	}
	f.RequesterID = c.QueryParam("requester_id")

	ctx := c.Request().Context()
	items, total, err := h.svc.ListStays(ctx, lifecycle.ActorFromContext(ctx), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) TransitionStay(c echo.Context) error {
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
	st, err := h.svc.TransitionStay(ctx, lifecycle.ActorFromContext(ctx), id, to, req.Reason)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListTransitions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	ctx := c.Request().Context()
	items, err := h.svc.StayTransitions(ctx, lifecycle.ActorFromContext(ctx), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*lifecycle.Transition{}
	}
	return c.JSON(http.StatusOK, items)
}

type createOptionRequest struct {
	FacilityID  uuid.UUID   `json:"facility_id"`
	Name        string      `json:"name"`
	NightlyRate money.Money `json:"nightly_rate"`
	MaxGuests   int         `json:"max_guests"`
	Active      *bool       `json:"active"`
}

func (h *Handler) CreateOption(c echo.Context) error {
	var req createOptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	o := &FacilityOption{
		FacilityID:  req.FacilityID,
		Name:        req.Name,
		NightlyRate: req.NightlyRate,
		MaxGuests:   req.MaxGuests,
		Active:      req.Active == nil || *req.Active,
	}
	if err := h.svc.CreateOption(c.Request().Context(), o); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOption(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	o, err := h.svc.GetOption(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}
