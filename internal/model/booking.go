package model

import "time"

// Booking lifecycle states.  PENDING is the only non-terminal state;
// CONFIRMED and CANCELLED are absorbing.
const (
    BookingPending   = "PENDING"
    BookingConfirmed = "CONFIRMED"
    BookingCancelled = "CANCELLED"
)

// Booking is the atomic unit of reservation: one user, one showtime, an
// ordered list of seats and a total price frozen at creation time (the
// showtime price may change later; the booking price does not).
//
// Fields:
//  ID              – primary key identifier.
//  Code            – short human-shareable code (8 uppercase alphanumerics, unique).
//  UserID          – owning user.
//  ShowtimeID      – showtime being booked.
//  Seats           – ordered seat labels.
//  TotalPriceCents – len(Seats) × showtime price at creation.
//  Status          – PENDING, CONFIRMED or CANCELLED.
//  PaymentID       – most recent payment attempt, if any.
type Booking struct {
    ID              uint64    // bookings.id
    Code            string    // bookings.booking_code
    UserID          uint64    // bookings.user_id
    ShowtimeID      uint64    // bookings.showtime_id
    Seats           []string  // booking_seats.seat, ordered by position
    TotalPriceCents uint32    // bookings.total_price_cents
    Status          string    // bookings.status
    PaymentID       *string   // bookings.payment_id (nullable)
    CreatedAt       time.Time // bookings.created_at
    UpdatedAt       time.Time // bookings.updated_at
}
