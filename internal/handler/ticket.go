package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/transit-seat-reservation/internal/model"
    "github.com/iliyamo/transit-seat-reservation/internal/service"
)

// TicketHandler serves the ticket catalog: the public listing and seat map,
// and ticket creation for admins.
type TicketHandler struct {
    Catalog *service.CatalogService
}

func NewTicketHandler(catalog *service.CatalogService) *TicketHandler {
    if catalog == nil {
        panic("nil catalog passed to NewTicketHandler")
    }
    return &TicketHandler{Catalog: catalog}
}

// List handles GET /v1/tickets.
func (h *TicketHandler) List(c echo.Context) error {
    tickets, err := h.Catalog.ListTickets(c.Request().Context())
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": tickets})
}

// Detail handles GET /v1/tickets/:id and returns the ticket with the status
// of every seat.
func (h *TicketHandler) Detail(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return writeError(c, err)
    }
    t, seats, err := h.Catalog.TicketDetail(c.Request().Context(), id)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"item": t, "seats": seats})
}

// Create handles POST /v1/admin/tickets.  The body is a ticket with
// vehicle_type and the matching vehicle_details.
func (h *TicketHandler) Create(c echo.Context) error {
    var t model.Ticket
    if err := c.Bind(&t); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    created, err := h.Catalog.CreateTicket(c.Request().Context(), t)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"item": created})
}
