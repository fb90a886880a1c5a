package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/transit-seat-reservation/internal/service"
)

// HoldHandler exposes the holder's hold operations.  Routes sit behind
// JWTAuth and RequireRole(USER); the holder is always taken from the token,
// never from the request body.
type HoldHandler struct {
    Holds *service.HoldService
}

func NewHoldHandler(holds *service.HoldService) *HoldHandler {
    if holds == nil {
        panic("nil hold service passed to NewHoldHandler")
    }
    return &HoldHandler{Holds: holds}
}

type holdRequest struct {
    SeatNumber uint32 `json:"seat_number"`
}

// Create handles POST /v1/tickets/:id/holds with body {"seat_number": n}.
func (h *HoldHandler) Create(c echo.Context) error {
    holderID, err := getHolderID(c)
    if err != nil {
        return writeError(c, err)
    }
    ticketID, err := pathID(c, "id")
    if err != nil {
        return writeError(c, err)
    }
    var body holdRequest
    if err := c.Bind(&body); err != nil || body.SeatNumber == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_number is required"})
    }
    hold, err := h.Holds.CreateHold(c.Request().Context(), ticketID, body.SeatNumber, holderID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"item": hold})
}

// List handles GET /v1/my-holds.
func (h *HoldHandler) List(c echo.Context) error {
    holderID, err := getHolderID(c)
    if err != nil {
        return writeError(c, err)
    }
    holds, err := h.Holds.ListHolds(c.Request().Context(), holderID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": holds})
}

// Release handles DELETE /v1/holds/:id.
func (h *HoldHandler) Release(c echo.Context) error {
    holderID, err := getHolderID(c)
    if err != nil {
        return writeError(c, err)
    }
    holdID, err := pathID(c, "id")
    if err != nil {
        return writeError(c, err)
    }
    if err := h.Holds.ReleaseHold(c.Request().Context(), holdID, holderID); err != nil {
        return writeError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}
