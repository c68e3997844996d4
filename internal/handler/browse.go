package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/court-booking/internal/cache"
	"github.com/iliyamo/court-booking/internal/repository"
)

// PublicHandler serves the unauthenticated browse endpoints: venues, their
// courts and the daily slot board.
type PublicHandler struct {
	Venues *repository.VenueRepo
	Slots  *cache.Availability
}

func NewPublicHandler(v *repository.VenueRepo, s *cache.Availability) *PublicHandler {
	return &PublicHandler{Venues: v, Slots: s}
}

type venueResp struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	IsOutdoor   bool   `json:"is_outdoor"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

type courtResp struct {
	ID      int64  `json:"id"`
	VenueID int64  `json:"venue_id"`
	Name    string `json:"name"`
}

// ListVenues handles GET /v1/venues.
func (h *PublicHandler) ListVenues(c echo.Context) error {
	venues, err := h.Venues.List(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	out := make([]venueResp, 0, len(venues))
	for _, v := range venues {
		out = append(out, venueResp{ID: v.ID, Name: v.Name, IsOutdoor: v.IsOutdoor, Location: v.Location, Description: v.Description})
	}
	return c.JSON(http.StatusOK, out)
}

// ListCourts handles GET /v1/venues/:id/courts.  An unknown venue answers
// 404 rather than an empty list.
func (h *PublicHandler) ListCourts(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	ctx := c.Request().Context()
	if _, err := h.Venues.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "venue not found"})
		}
		return fail(c, err)
	}
	courts, err := h.Venues.ListCourts(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	out := make([]courtResp, 0, len(courts))
	for _, ct := range courts {
		out = append(out, courtResp{ID: ct.ID, VenueID: ct.VenueID, Name: ct.Name})
	}
	return c.JSON(http.StatusOK, out)
}

// AvailableSlots handles GET /v1/venues/:id/slots?date=YYYY-MM-DD.  The
// board comes from the availability cache; X-Cache tells whether it was
// a hit.
func (h *PublicHandler) AvailableSlots(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid venue id")
	}
	date := strings.TrimSpace(c.QueryParam("date"))
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	slots, hit, err := h.Slots.Slots(c.Request().Context(), id, date)
	if err != nil {
		return fail(c, err)
	}
	if hit {
		c.Response().Header().Set("X-Cache", "HIT")
	} else {
		c.Response().Header().Set("X-Cache", "MISS")
	}
	return c.JSON(http.StatusOK, slots)
}
