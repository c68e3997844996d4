package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/court-booking/internal/booking"
	"github.com/iliyamo/court-booking/internal/middleware"
	"github.com/iliyamo/court-booking/internal/repository"
)

// ScheduleHandler serves the instructor's recurring schedule endpoints.
type ScheduleHandler struct {
	Service *booking.Service
	Views   *repository.ProjectionRepo
}

func NewScheduleHandler(svc *booking.Service, views *repository.ProjectionRepo) *ScheduleHandler {
	return &ScheduleHandler{Service: svc, Views: views}
}

type scheduleReq struct {
	VenueID   int64  `json:"venue_id"`
	DayOfWeek int    `json:"day_of_week"` // 0 = Monday
	StartTime string `json:"start_time"`  // HH:MM or HH:MM:SS
	EndTime   string `json:"end_time"`
}

// Add handles POST /v1/schedules.  Re-submitting an identical schedule
// extends the existing one and answers 200 instead of 201.
func (h *ScheduleHandler) Add(c echo.Context) error {
	var req scheduleReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	res, err := h.Service.AddRecurringSchedule(c.Request().Context(), booking.ScheduleRequest{
		InstructorAccount: middleware.Account(c),
		VenueID:           req.VenueID,
		DayOfWeek:         req.DayOfWeek,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
	})
	if err != nil {
		return fail(c, err)
	}
	status := http.StatusCreated
	if res.Extended {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// Remove handles DELETE /v1/schedules/:id for the owning instructor or an
// administrator.
func (h *ScheduleHandler) Remove(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid schedule id")
	}
	if err := h.Service.RemoveRecurringSchedule(c.Request().Context(), middleware.Account(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Mine handles GET /v1/my-schedules.
func (h *ScheduleHandler) Mine(c echo.Context) error {
	views, err := h.Views.InstructorSchedules(c.Request().Context(), middleware.Account(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, views)
}
