package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/court-booking/internal/booking"
)

// fail writes the JSON error response for an error returned by the
// booking service.  Validation errors become 400, denials about missing
// entities 404, other denials 409.  Anything else is logged and reported
// as a generic 500.
func fail(c echo.Context, err error) error {
	var v *booking.ValidationError
	if errors.As(err, &v) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": v.Error(), "field": v.Field})
	}
	var d *booking.DenialError
	if errors.As(err, &d) {
		status := http.StatusConflict
		switch {
		case booking.IsNotFound(err):
			status = http.StatusNotFound
		case d.Code == booking.ErrInvalidCredentials.Code:
			status = http.StatusUnauthorized
		case d.Code == booking.ErrNotAdministrator.Code:
			status = http.StatusForbidden
		}
		return c.JSON(status, echo.Map{"error": d.Message, "code": d.Code})
	}
	log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// idParam parses a positive integer path parameter.
func idParam(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// limitParam reads ?limit= with a default and an upper bound.
func limitParam(c echo.Context, def, max int) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
