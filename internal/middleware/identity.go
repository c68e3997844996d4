package middleware

// identity.go holds the context keys written by JWTAuth and the accessors
// handlers and other middleware use to read them back.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/court-booking/internal/model"
)

const (
	accountKey = "account"
	roleKey    = "role"
)

// Account returns the authenticated account, or "" for anonymous requests.
func Account(c echo.Context) string {
	s, _ := c.Get(accountKey).(string)
	return s
}

// Role returns the role claim of the authenticated caller.  Legacy role
// names in older tokens are folded into the current set.
func Role(c echo.Context) model.Role {
	s, _ := c.Get(roleKey).(string)
	r, _ := model.ParseRole(s)
	return r
}

// callerID identifies the caller for rate limiting.
func callerID(c echo.Context) string {
	if a := Account(c); a != "" {
		return a
	}
	return "anon"
}
