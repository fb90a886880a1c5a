package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// HolderID returns the authenticated holder set by JWTAuth.  ok is false on
// routes that are not behind JWTAuth.
func HolderID(c echo.Context) (id uint64, ok bool) {
    id, ok = c.Get(CtxHolderID).(uint64)
    return id, ok && id > 0
}

// holderKey identifies the caller for rate limiting; "guest" when
// unauthenticated.
func holderKey(c echo.Context) string {
    if id, ok := HolderID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "guest"
}
