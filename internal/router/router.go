package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/transit-seat-reservation/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the guest catalog endpoints.  The listing may be
// served from the response cache; the seat map never is, so a guest always
// sees seat status as of the request.
func RegisterPublic(e *echo.Echo, t *handler.TicketHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/tickets", t.List, cache)
	e.GET("/v1/tickets/:id", t.Detail)
}
