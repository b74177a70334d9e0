package rating

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	api.GET("/ratings/:kind/:id", h.GetAggregate)
	api.POST("/ratings", h.ApplyRating, auth.RequireAuthenticated())
	api.GET("/ratings/:kind/:id/observations", h.ListObservations,
		auth.RequireRole(auth.RoleStaff, auth.RoleProvider))
}

type applyRatingRequest struct {
	EntityID   string   `json:"entity_id"`
	EntityKind string   `json:"entity_kind"`
	Score      *float64 `json:"score"`
}

func (h *Handler) ApplyRating(c echo.Context) error {
	var req applyRatingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	kind, err := ParseKind(req.EntityKind)
	if err != nil {
		return apperr.HTTPError(err)
	}
	id, err := uuid.Parse(req.EntityID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entity_id")
	}
	if req.Score == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "score is required")
	}

	ctx := c.Request().Context()
	var rater string
	if ident, ok := auth.IdentityFromContext(ctx); ok {
		rater = ident.Subject
	}
	agg, err := h.svc.ApplyRating(ctx, kind, id, *req.Score, rater)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, agg)
}

func pathEntity(c echo.Context) (Kind, uuid.UUID, error) {
	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		return "", uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", uuid.Nil, apperr.Validation("invalid id %q", c.Param("id"))
	}
	return kind, id, nil
}

func (h *Handler) GetAggregate(c echo.Context) error {
	kind, id, err := pathEntity(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	agg, err := h.svc.GetAggregate(c.Request().Context(), kind, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, agg)
}

func (h *Handler) ListObservations(c echo.Context) error {
	kind, id, err := pathEntity(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	pg, err := pagination.FromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	items, total, err := h.svc.ListObservations(c.Request().Context(), kind, id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}
