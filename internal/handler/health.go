package handler // declare the package name; contains HTTP handlers

import (
	"context"      // bounded ping
	"database/sql" // store handle to ping
	"net/http"     // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health returns a health-check endpoint for load balancers and monitoring.
// It answers "ok" with 200 while the store answers a ping within a second
// and 503 otherwise.  A nil db skips the ping.
func Health(db *sql.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return c.String(http.StatusServiceUnavailable, "store unavailable")
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
