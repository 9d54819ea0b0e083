// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns booking.confirmed events into
// receipt emails.
package queue

// Queue names. Both queues are declared durable so messages survive broker
// restarts.
const (
    SeatStateQueue        = "seat.state.changed"
    BookingConfirmedQueue = "booking.confirmed"
)

// SeatStateChangedEvent is published best-effort after any primitive that
// mutates seat state. Real-time subscribers (seat maps, dashboards) refresh
// on it; correctness never depends on delivery.
type SeatStateChangedEvent struct {
    ShowtimeID uint64 `json:"showtime_id"`
    Reason     string `json:"reason"` // hold, promote, release, sweep, refund
    ChangedAt  string `json:"changed_at"`
}

// BookingConfirmedEvent is published when a booking is confirmed. It
// carries everything the receipt consumer needs to render the email and
// the gate QR without querying the primary database.
type BookingConfirmedEvent struct {
    BookingID       uint64   `json:"booking_id"`
    BookingCode     string   `json:"booking_code"`
    UserID          uint64   `json:"user_id"`
    UserEmail       string   `json:"user_email"`
    ShowtimeID      uint64   `json:"showtime_id"`
    MovieTitle      string   `json:"movie_title"`
    Auditorium      string   `json:"auditorium"`
    StartsAt        string   `json:"starts_at"`
    Seats           []string `json:"seats"`
    TotalPriceCents uint32   `json:"total_price_cents"`
    ConfirmedAt     string   `json:"confirmed_at"`
}
