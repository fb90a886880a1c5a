package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/transit-seat-reservation/internal/handler"
	"github.com/iliyamo/transit-seat-reservation/internal/middleware"
)

// RegisterAdmin registers catalog management under /v1/admin for the ADMIN
// role.
func RegisterAdmin(e *echo.Echo, t *handler.TicketHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.POST("/tickets", t.Create)
}
