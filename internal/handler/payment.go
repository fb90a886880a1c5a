package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/transit-seat-reservation/internal/service"
)

// PaymentHandler finalizes holds into paid reservations.
type PaymentHandler struct {
    Payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
    if payments == nil {
        panic("nil payment service passed to NewPaymentHandler")
    }
    return &PaymentHandler{Payments: payments}
}

type paymentRequest struct {
    HoldID        uint64 `json:"hold_id"`
    PaymentMethod string `json:"payment_method"`
}

// Pay handles POST /v1/payments.  Retrying a successful payment returns the
// same reservation with 200.
func (h *PaymentHandler) Pay(c echo.Context) error {
    holderID, err := getHolderID(c)
    if err != nil {
        return writeError(c, err)
    }
    var body paymentRequest
    if err := c.Bind(&body); err != nil || body.HoldID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "hold_id is required"})
    }
    r, err := h.Payments.Finalize(c.Request().Context(), body.HoldID, holderID, body.PaymentMethod)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// List handles GET /v1/my-reservations.
func (h *PaymentHandler) List(c echo.Context) error {
    holderID, err := getHolderID(c)
    if err != nil {
        return writeError(c, err)
    }
    rs, err := h.Payments.ListReservations(c.Request().Context(), holderID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": rs})
}
