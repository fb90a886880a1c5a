package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
    CtxHolderID = "holder_id" // uint64 parsed from the sub claim
    CtxRole     = "role"      // string role claim
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the holder id and role into the request context.  The sub
// claim must be a positive integer (string or JSON number); tokens without
// one are rejected with 401, so handlers never see an anonymous holder.
func JWTAuth(secret string) echo.MiddlewareFunc {
    parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            claims := jwt.MapClaims{}
            tok, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            holderID, ok := subjectID(claims["sub"])
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
            }
            role, _ := claims["role"].(string)

            c.Set(CtxHolderID, holderID)
            c.Set(CtxRole, strings.ToUpper(role))
            return next(c)
        }
    }
}

// subjectID converts a sub claim into a holder id.
func subjectID(v interface{}) (uint64, bool) {
    switch t := v.(type) {
    case string:
        n, err := strconv.ParseUint(t, 10, 64)
        return n, err == nil && n > 0
    case float64: // JSON numbers decode as float64
        if t < 1 || t != float64(uint64(t)) {
            return 0, false
        }
        return uint64(t), true
    }
    return 0, false
}
