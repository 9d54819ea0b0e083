// Package middleware contains the Echo middleware chain: JWT
// authentication, role gating, Redis-backed rate limiting and response
// caching.
package middleware

import (
    "net/http"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth and read by RequireRole and the handlers.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
)

// JWTAuth validates a Bearer access token signed with HS256 and the given
// secret, then stores the subject (as uint64) and role claims in the
// request context. Wrap every protected route group with it.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                    return nil, echo.ErrUnauthorized
                }
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
            }
            claims, ok := tok.Claims.(jwt.MapClaims)
            if !ok {
                return echo.NewHTTPError(http.StatusUnauthorized, "invalid claims")
            }
            sub, ok := claims["sub"].(float64)
            if !ok || sub <= 0 {
                return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
            }
            role, _ := claims["role"].(string)

            c.Set(CtxUserID, uint64(sub))
            c.Set(CtxRole, role)
            return next(c)
        }
    }
}
