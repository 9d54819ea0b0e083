// Package router registers the HTTP routes and mounts the middleware
// chain on an Echo instance.
package router

import (
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/cinema-booking-backend/internal/config"
    "github.com/iliyamo/cinema-booking-backend/internal/handler"
    "github.com/iliyamo/cinema-booking-backend/internal/middleware"
    "github.com/iliyamo/cinema-booking-backend/internal/model"
)

// Handlers collects everything the router wires up.
type Handlers struct {
    Auth     *handler.AuthHandler
    Seats    *handler.SeatHandler
    Bookings *handler.BookingHandler
    Payments *handler.PaymentHandler
}

// Register mounts every route. Public surface: health, auth, seat
// snapshots and the two gateway callbacks. Everything else requires a
// token; QR verification additionally requires STAFF or ADMIN.
func Register(e *echo.Echo, cfg config.Config, h Handlers, rdb *redis.Client) {
    e.GET("/healthz", handler.Health)

    // Rate limiting applies to the whole public surface; the response
    // cache only to the seat snapshot reads.
    limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
    cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

    auth := e.Group("/v1/auth", limiter)
    auth.POST("/register", h.Auth.Register)
    auth.POST("/login", h.Auth.Login)
    auth.POST("/refresh", h.Auth.Refresh)

    e.GET("/v1/showtimes/:id/seats", h.Seats.Snapshot, limiter, cache)

    // Gateway callbacks carry their own HMAC authentication instead of a
    // bearer token.
    e.GET("/v1/payments/:gateway/return", h.Payments.Return)
    e.POST("/v1/payments/:gateway/ipn", h.Payments.Notify)

    v1 := e.Group("/v1", limiter, middleware.JWTAuth(cfg.JWTSecret))
    v1.GET("/me", h.Auth.Me)
    v1.POST("/auth/logout", h.Auth.Logout)

    v1.PATCH("/showtimes/:id/price", h.Seats.UpdatePrice,
        middleware.RequireRole(model.RoleAdmin))

    v1.POST("/bookings", h.Bookings.Create)
    v1.GET("/bookings", h.Bookings.List)
    v1.GET("/bookings/code/:code", h.Bookings.GetByCode)
    v1.GET("/bookings/:id", h.Bookings.Get)
    v1.PATCH("/bookings/:id/cancel", h.Bookings.Cancel)
    v1.POST("/bookings/:id/extend", h.Bookings.Extend)
    v1.POST("/bookings/verify-qr", h.Bookings.VerifyQR,
        middleware.RequireRole(model.RoleStaff, model.RoleAdmin))

    v1.POST("/payments/:gateway/create", h.Payments.CreateIntent)
}
