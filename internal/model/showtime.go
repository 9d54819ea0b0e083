package model

import "time"

// Showtime represents a scheduled screening of a movie in one auditorium
// with a fixed per-seat price and a finite set of seat labels.  The
// scheduling attributes are immutable once created; only the seat
// collections (booked_seats, seat_holds) mutate under traffic, and those
// live in their own tables owned exclusively by the seat store.
//
// Fields:
//  ID         – primary key identifier.
//  MovieTitle – title of the movie being screened.
//  Auditorium – human-readable auditorium name.
//  StartsAt   – when the screening begins.
//  PriceCents – unit seat price in minor currency units.
//  Capacity   – total number of seats in the auditorium.
type Showtime struct {
    ID         uint64    // showtimes.id
    MovieTitle string    // showtimes.movie_title
    Auditorium string    // showtimes.auditorium
    StartsAt   time.Time // showtimes.starts_at
    PriceCents uint32    // showtimes.price_cents
    Capacity   uint32    // showtimes.capacity
    CreatedAt  time.Time // showtimes.created_at
    UpdatedAt  time.Time // showtimes.updated_at
}

// SeatHold is a temporary, TTL-bounded reservation of one seat tied to a
// single PENDING booking.  Expired holds are purged inline by the seat
// store and garbage-collected by the sweeper.
type SeatHold struct {
    ID         uint64    // seat_holds.id
    ShowtimeID uint64    // seat_holds.showtime_id
    Seat       string    // seat_holds.seat (opaque label, e.g. "A1")
    BookingID  uint64    // seat_holds.booking_id (the holder)
    UserID     uint64    // seat_holds.user_id
    ExpiresAt  time.Time // seat_holds.expires_at
    CreatedAt  time.Time // seat_holds.created_at
}
