package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Roles carried in the JWT role claim.  Only USER may hold and pay;
// ADMIN seeds the ticket catalog.
const (
    RoleUser  = "USER"
    RoleAdmin = "ADMIN"
)

// RequireRole aborts with 403 unless the role stored by JWTAuth is one of
// roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]struct{}, len(roles))
    for _, r := range roles {
        allowed[r] = struct{}{}
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, _ := c.Get(CtxRole).(string)
            if _, ok := allowed[role]; !ok {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
