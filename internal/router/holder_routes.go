package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/transit-seat-reservation/internal/handler"
	"github.com/iliyamo/transit-seat-reservation/internal/middleware"
)

// RegisterHolder registers the hold and payment endpoints under /v1.  All
// routes require a valid JWT with the USER role; limit is applied after
// authentication so buckets can be keyed by holder.
func RegisterHolder(e *echo.Echo, h *handler.HoldHandler, p *handler.PaymentHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleUser),
		limit,
	)
	g.POST("/tickets/:id/holds", h.Create)
	g.GET("/my-holds", h.List)
	g.DELETE("/holds/:id", h.Release)
	g.POST("/payments", p.Pay)
	g.GET("/my-reservations", p.List)
}
