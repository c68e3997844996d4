package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/court-booking/internal/handler"    // import the handlers that implement each endpoint
	"github.com/iliyamo/court-booking/internal/middleware" // import middleware for JWT authentication and role enforcement
	"github.com/iliyamo/court-booking/internal/model"
)

// Handlers groups every handler the API exposes.
type Handlers struct {
	Health       echo.HandlerFunc
	Auth         *handler.AuthHandler
	Public       *handler.PublicHandler
	Reservations *handler.ReservationHandler
	Schedules    *handler.ScheduleHandler
	Admin        *handler.AdminHandler
}

// Options carries the cross-cutting middleware built from configuration.
// BrowseCache wraps the static browse lists; nil means no caching.
type Options struct {
	JWTSecret   string
	BrowseCache echo.MiddlewareFunc
}

// Register mounts the health check and every /v1 route.  Middleware is
// attached per route rather than per group so that routes sharing the /v1
// prefix never inherit each other's role checks.
func Register(e *echo.Echo, h Handlers, opt Options) {
	// Liveness probe for load balancers; it pings the store.
	e.GET("/healthz", h.Health)

	v1 := e.Group("/v1")

	// Account creation and login issue tokens and need no session.
	v1.POST("/auth/register", h.Auth.Register)
	v1.POST("/auth/login", h.Auth.Login)

	// Public browse.  Venues and courts change only when an operator
	// provisions them, so their responses may be cached whole.
	browse := []echo.MiddlewareFunc{}
	if opt.BrowseCache != nil {
		browse = append(browse, opt.BrowseCache)
	}
	v1.GET("/venues", h.Public.ListVenues, browse...)
	v1.GET("/venues/:id/courts", h.Public.ListCourts, browse...)
	v1.GET("/venues/:id/slots", h.Public.AvailableSlots)

	auth := middleware.JWTAuth(opt.JWTSecret)
	booker := middleware.RequireRole(model.RoleMember, model.RoleInstructor)
	instructor := middleware.RequireRole(model.RoleInstructor)
	admin := middleware.RequireRole(model.RoleAdministrator)

	// Any authenticated caller.
	v1.GET("/me", h.Auth.Me, auth)
	v1.GET("/my-reservations", h.Reservations.Mine, auth)
	v1.GET("/my-credit", h.Reservations.MyCredit, auth)

	// Booking lifecycle for members and instructors.
	v1.POST("/reservations", h.Reservations.Book, auth, booker)
	v1.DELETE("/reservations/:id", h.Reservations.Cancel, auth, booker)
	v1.POST("/reservations/:id/check-in", h.Reservations.CheckIn, auth, booker)

	// Recurring schedules.  Removal is also open to administrators; the
	// service decides between owner and administrator.
	v1.POST("/schedules", h.Schedules.Add, auth, instructor)
	v1.DELETE("/schedules/:id", h.Schedules.Remove, auth, middleware.RequireRole(model.RoleInstructor, model.RoleAdministrator))
	v1.GET("/my-schedules", h.Schedules.Mine, auth, instructor)

	// Administrator console.
	v1.POST("/admin/reconciliation", h.Admin.RunReconciliation, auth, admin)
	v1.GET("/admin/reservations", h.Admin.ListReservations, auth, admin)
	v1.DELETE("/admin/reservations/:id", h.Admin.CancelReservation, auth, admin)
	v1.POST("/admin/users/:account/credit", h.Admin.AdjustCredit, auth, admin)
}
