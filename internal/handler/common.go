package handler // handler defines http handlers

import (
    "errors"
    "fmt"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "github.com/labstack/gommon/log"

    "github.com/iliyamo/transit-seat-reservation/internal/middleware"
    "github.com/iliyamo/transit-seat-reservation/internal/model"
)

// errorStatus maps the lifecycle errors onto HTTP status codes.  Order
// matters only for errors that wrap several sentinels.
var errorStatus = []struct {
    err    error
    status int
}{
    {model.ErrUnauthenticated, http.StatusUnauthorized},
    {model.ErrForbidden, http.StatusForbidden},
    {model.ErrNotFound, http.StatusNotFound},
    {model.ErrSeatUnavailable, http.StatusConflict},
    {model.ErrTicketClosed, http.StatusConflict},
    {model.ErrAlreadyPaid, http.StatusConflict},
    {model.ErrConflict, http.StatusConflict},
    {model.ErrHoldExpired, http.StatusGone},
    {model.ErrHoldLimitReached, http.StatusTooManyRequests},
    {model.ErrInvalidPaymentMethod, http.StatusBadRequest},
    {model.ErrValidation, http.StatusBadRequest},
}

// writeError renders err as {"error": ...}.  Conflicts signal a broken
// inventory invariant and unknown errors a server fault; both are logged
// and neither leaks internal detail.
func writeError(c echo.Context, err error) error {
    status := http.StatusInternalServerError
    for _, m := range errorStatus {
        if errors.Is(err, m.err) {
            status = m.status
            break
        }
    }
    switch {
    case errors.Is(err, model.ErrConflict):
        c.Logger().Errorj(log.JSON{"msg": "inventory conflict", "path": c.Path(), "error": err.Error()})
        return c.JSON(status, echo.Map{"error": model.ErrConflict.Error()})
    case status == http.StatusInternalServerError:
        c.Logger().Errorj(log.JSON{"msg": "request failed", "path": c.Path(), "error": err.Error()})
        return c.JSON(status, echo.Map{"error": "internal error"})
    }
    return c.JSON(status, echo.Map{"error": err.Error()})
}

// getHolderID returns the authenticated holder or ErrUnauthenticated.
func getHolderID(c echo.Context) (uint64, error) {
    id, ok := middleware.HolderID(c)
    if !ok {
        return 0, model.ErrUnauthenticated
    }
    return id, nil
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
    n, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || n == 0 {
        return 0, fmt.Errorf("%w: invalid %s", model.ErrValidation, name)
    }
    return n, nil
}
