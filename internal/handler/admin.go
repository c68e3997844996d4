package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/court-booking/internal/booking"
	"github.com/iliyamo/court-booking/internal/middleware"
	"github.com/iliyamo/court-booking/internal/repository"
)

// AdminHandler serves the administrator console endpoints.  Routes are
// mounted behind RequireRole(administrator); the service checks the role
// again inside its transaction.
type AdminHandler struct {
	Service *booking.Service
	Views   *repository.ProjectionRepo
}

func NewAdminHandler(svc *booking.Service, views *repository.ProjectionRepo) *AdminHandler {
	return &AdminHandler{Service: svc, Views: views}
}

type creditReq struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// RunReconciliation handles POST /v1/admin/reconciliation: an out of
// schedule run of the daily no-show and restoration sweep.
func (h *AdminHandler) RunReconciliation(c echo.Context) error {
	res, err := h.Service.RunDailyReconciliation(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"no_shows": res.NoShows, "restored": res.Restored})
}

// CancelReservation handles DELETE /v1/admin/reservations/:id.
func (h *AdminHandler) CancelReservation(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	if err := h.Service.AdminCancel(c.Request().Context(), middleware.Account(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListReservations handles GET /v1/admin/reservations?limit=N.
func (h *AdminHandler) ListReservations(c echo.Context) error {
	views, err := h.Views.AllReservations(c.Request().Context(), limitParam(c, 200, 1000))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

// AdjustCredit handles POST /v1/admin/users/:account/credit.
func (h *AdminHandler) AdjustCredit(c echo.Context) error {
	var req creditReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	account := c.Param("account")
	score, err := h.Service.AdjustCredit(c.Request().Context(), middleware.Account(c), account, req.Delta, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"account": account, "credit_score": score})
}
