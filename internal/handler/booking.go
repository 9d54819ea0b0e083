package handler

import (
    "io"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-booking-backend/internal/middleware"
    "github.com/iliyamo/cinema-booking-backend/internal/model"
    "github.com/iliyamo/cinema-booking-backend/internal/service"
    "github.com/iliyamo/cinema-booking-backend/internal/utils"
)

// BookingHandler serves the booking lifecycle endpoints.
type BookingHandler struct {
    Engine   *service.BookingEngine
    Payments *service.PaymentCoordinator
}

func NewBookingHandler(engine *service.BookingEngine, payments *service.PaymentCoordinator) *BookingHandler {
    return &BookingHandler{Engine: engine, Payments: payments}
}

type createBookingReq struct {
    ShowtimeID uint64   `json:"showtime_id"`
    Seats      []string `json:"seats"`
}

// Create opens a PENDING booking with seat holds for the caller.
func (h *BookingHandler) Create(c echo.Context) error {
    var req createBookingReq
    if err := c.Bind(&req); err != nil {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    if req.ShowtimeID == 0 {
        return echo.NewHTTPError(http.StatusBadRequest, "showtime_id required")
    }
    booking, err := h.Engine.Create(c.Request().Context(), middleware.UserID(c), req.ShowtimeID, req.Seats)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, booking)
}

// List returns the caller's bookings; ADMIN sees everyone's.
func (h *BookingHandler) List(c echo.Context) error {
    privileged := middleware.Role(c) == model.RoleAdmin
    bookings, err := h.Engine.List(c.Request().Context(), middleware.UserID(c), privileged)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, bookings)
}

// Get returns one booking by id.
func (h *BookingHandler) Get(c echo.Context) error {
    id, err := paramID(c, "id")
    if err != nil {
        return err
    }
    booking, err := h.Engine.Get(c.Request().Context(), id, middleware.UserID(c), middleware.Privileged(c))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, booking)
}

// GetByCode returns one booking by its shareable code.
func (h *BookingHandler) GetByCode(c echo.Context) error {
    code := c.Param("code")
    if code == "" {
        return echo.NewHTTPError(http.StatusBadRequest, "code required")
    }
    booking, err := h.Engine.GetByCode(c.Request().Context(), code, middleware.UserID(c), middleware.Privileged(c))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, booking)
}

// Cancel releases a PENDING booking. An ADMIN cancelling a CONFIRMED
// booking triggers the refund path (payment REFUNDED, seats un-booked).
func (h *BookingHandler) Cancel(c echo.Context) error {
    id, err := paramID(c, "id")
    if err != nil {
        return err
    }
    ctx := c.Request().Context()
    booking, err := h.Engine.Get(ctx, id, middleware.UserID(c), middleware.Privileged(c))
    if err != nil {
        return err
    }
    if booking.Status == model.BookingConfirmed {
        if middleware.Role(c) != model.RoleAdmin {
            return echo.NewHTTPError(http.StatusForbidden, "confirmed bookings can only be refunded by an admin")
        }
        _, refunded, err := h.Payments.Refund(ctx, id)
        if err != nil {
            return err
        }
        return c.JSON(http.StatusOK, refunded)
    }
    cancelled, err := h.Engine.Cancel(ctx, id)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, cancelled)
}

// Extend re-arms the caller's seat holds for another hold window.
func (h *BookingHandler) Extend(c echo.Context) error {
    id, err := paramID(c, "id")
    if err != nil {
        return err
    }
    booking, err := h.Engine.Extend(c.Request().Context(), id, middleware.UserID(c))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, booking)
}

// VerifyQR validates a scanned ticket QR at the gate: payload freshness,
// then a field-by-field cross-check against the booking record. Gate staff
// only.
func (h *BookingHandler) VerifyQR(c echo.Context) error {
    body, err := io.ReadAll(io.LimitReader(c.Request().Body, 4096))
    if err != nil {
        return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
    }
    payload, err := utils.DecodeQRPayload(body, time.Now().UTC())
    if err != nil {
        return c.JSON(http.StatusOK, echo.Map{"valid": false, "reason": err.Error()})
    }

    booking, err := h.Engine.Get(c.Request().Context(), payload.BookingID, middleware.UserID(c), true)
    if err != nil {
        return err
    }
    switch {
    case booking.Code != payload.BookingCode || booking.UserID != payload.UserID || booking.ShowtimeID != payload.ShowtimeID:
        return c.JSON(http.StatusOK, echo.Map{"valid": false, "reason": "payload does not match booking record"})
    case booking.Status != model.BookingConfirmed:
        return c.JSON(http.StatusOK, echo.Map{"valid": false, "reason": "booking is " + booking.Status})
    case !sameSeats(booking.Seats, payload.Seats):
        return c.JSON(http.StatusOK, echo.Map{"valid": false, "reason": "seat list does not match"})
    }
    return c.JSON(http.StatusOK, echo.Map{"valid": true, "booking": booking})
}

func sameSeats(a, b []string) bool {
    if len(a) != len(b) {
        return false
    }
    set := make(map[string]struct{}, len(a))
    for _, s := range a {
        set[s] = struct{}{}
    }
    for _, s := range b {
        if _, ok := set[s]; !ok {
            return false
        }
    }
    return true
}
