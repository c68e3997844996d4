package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/court-booking/internal/booking"
	"github.com/iliyamo/court-booking/internal/middleware"
	"github.com/iliyamo/court-booking/internal/repository"
)

// ReservationHandler serves the member and instructor booking endpoints.
// JWT authentication and role checks are done by middleware.
type ReservationHandler struct {
	Service *booking.Service
	Views   *repository.ProjectionRepo
}

func NewReservationHandler(svc *booking.Service, views *repository.ProjectionRepo) *ReservationHandler {
	return &ReservationHandler{Service: svc, Views: views}
}

type bookReq struct {
	SlotID int64 `json:"slot_id"`
}

type reservationResp struct {
	ID        int64     `json:"id"`
	SlotID    int64     `json:"slot_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type creditEntry struct {
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Book handles POST /v1/reservations.
func (h *ReservationHandler) Book(c echo.Context) error {
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	res, err := h.Service.Book(c.Request().Context(), middleware.Account(c), req.SlotID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, reservationResp{
		ID:        res.ID,
		SlotID:    res.SlotID,
		Status:    string(res.Status),
		CreatedAt: res.CreatedAt,
	})
}

// Cancel handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	if err := h.Service.Cancel(c.Request().Context(), middleware.Account(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CheckIn handles POST /v1/reservations/:id/check-in.
func (h *ReservationHandler) CheckIn(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	if err := h.Service.CheckIn(c.Request().Context(), middleware.Account(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Mine handles GET /v1/my-reservations.
func (h *ReservationHandler) Mine(c echo.Context) error {
	views, err := h.Views.UserReservations(c.Request().Context(), middleware.Account(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

// MyCredit handles GET /v1/my-credit: the current score and the newest
// ledger entries.
func (h *ReservationHandler) MyCredit(c echo.Context) error {
	ctx := c.Request().Context()
	account := middleware.Account(c)
	u, err := h.Service.Profile(ctx, account)
	if err != nil {
		return fail(c, err)
	}
	logs, err := h.Service.CreditHistory(ctx, account, limitParam(c, 50, 500))
	if err != nil {
		return fail(c, err)
	}
	history := make([]creditEntry, 0, len(logs))
	for _, l := range logs {
		history = append(history, creditEntry{Delta: l.Delta, Reason: l.Reason, CreatedAt: l.CreatedAt})
	}
	p := h.Service.Policy()
	return c.JSON(http.StatusOK, echo.Map{
		"credit_score": u.CreditScore,
		"suspended":    u.CreditScore <= p.SuspensionThreshold,
		"hot_slots":    u.CreditScore > p.HotSlotMinCredit,
		"history":      history,
	})
}
