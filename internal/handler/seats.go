package handler

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-booking-backend/internal/repository"
)

// SeatHandler serves the read side of the seat map.
type SeatHandler struct {
    Showtimes *repository.ShowtimeRepo
    Seats     *repository.ShowtimeSeatStore
}

func NewSeatHandler(showtimes *repository.ShowtimeRepo, seats *repository.ShowtimeSeatStore) *SeatHandler {
    return &SeatHandler{Showtimes: showtimes, Seats: seats}
}

func paramID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
    }
    return id, nil
}

// Snapshot returns the showtime's current seat map: booked seats, live
// holds and the derived availability count. Expired holds never appear.
func (h *SeatHandler) Snapshot(c echo.Context) error {
    id, err := paramID(c, "id")
    if err != nil {
        return err
    }
    snap, err := h.Seats.Snapshot(c.Request().Context(), id)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, snap)
}

type priceReq struct {
    PriceCents uint32 `json:"price_cents"`
}

// UpdatePrice changes a showtime's per-seat price. Existing bookings keep
// the total frozen at their creation; only new bookings see the new price.
func (h *SeatHandler) UpdatePrice(c echo.Context) error {
    id, err := paramID(c, "id")
    if err != nil {
        return err
    }
    var req priceReq
    if err := c.Bind(&req); err != nil || req.PriceCents == 0 {
        return echo.NewHTTPError(http.StatusBadRequest, "price_cents must be a positive integer")
    }
    if err := h.Showtimes.UpdatePrice(c.Request().Context(), id, req.PriceCents); err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"showtime_id": id, "price_cents": req.PriceCents})
}
