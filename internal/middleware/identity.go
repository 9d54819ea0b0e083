package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-booking-backend/internal/model"
)

// UserID returns the authenticated caller's id, or 0 when the request is
// anonymous.
func UserID(c echo.Context) uint64 {
    if v, ok := c.Get(CtxUserID).(uint64); ok {
        return v
    }
    return 0
}

// Role returns the caller's role claim, empty when anonymous.
func Role(c echo.Context) string {
    role, _ := c.Get(CtxRole).(string)
    return role
}

// Privileged reports whether the caller may act on other users' bookings.
func Privileged(c echo.Context) bool {
    role := Role(c)
    return role == model.RoleStaff || role == model.RoleAdmin
}

// rateKeyUser renders the caller identity for rate-limit keys.
func rateKeyUser(c echo.Context) string {
    if id := UserID(c); id > 0 {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
