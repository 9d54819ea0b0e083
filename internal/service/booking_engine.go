// Package service contains the booking engine, the payment coordinator and
// the expiry sweeper: the state machines that sit between the HTTP surface
// and the storage primitives.
package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/iliyamo/cinema-booking-backend/internal/model"
    "github.com/iliyamo/cinema-booking-backend/internal/queue"
    "github.com/iliyamo/cinema-booking-backend/internal/repository"
    "github.com/iliyamo/cinema-booking-backend/internal/utils"
)

// SeatStore is the slice of ShowtimeSeatStore the engine drives. All
// methods are atomic per showtime and idempotent where the seat lifecycle
// requires it.
type SeatStore interface {
    Promote(ctx context.Context, showtimeID uint64, seats []string) error
    Release(ctx context.Context, showtimeID uint64, seats []string, bookingID uint64) error
    Unbook(ctx context.Context, showtimeID uint64, seats []string) error
    ExtendHolds(ctx context.Context, showtimeID, bookingID uint64, expiresAt time.Time) (int64, error)
    SweepExpired(ctx context.Context, showtimeID uint64, now time.Time) (int64, []uint64, error)
    Snapshot(ctx context.Context, showtimeID uint64) (*repository.SeatSnapshot, error)
}

// BookingStore is the booking persistence the engine drives. The create
// path is transactional with hold acquisition; status changes go through a
// compare-and-set so racing transitions resolve to exactly one winner.
type BookingStore interface {
    CreateWithHolds(ctx context.Context, b *model.Booking, ttl time.Duration) ([]string, error)
    GetByID(ctx context.Context, id uint64) (*model.Booking, error)
    GetByCode(ctx context.Context, code string) (*model.Booking, error)
    ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
    ListAll(ctx context.Context) ([]model.Booking, error)
    ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error)
    UpdateStatusCAS(ctx context.Context, id uint64, from, to string) (bool, error)
    SetPaymentID(ctx context.Context, id uint64, paymentID string) error
}

// ShowtimeStore resolves showtimes for pricing and capacity checks.
type ShowtimeStore interface {
    GetByID(ctx context.Context, id uint64) (*model.Showtime, error)
}

// UserStore resolves booking owners for receipt delivery.
type UserStore interface {
    GetByID(ctx context.Context, id uint64) (model.User, error)
}

// EventPublisher pushes best-effort domain events to the broker.
type EventPublisher interface {
    SeatStateChanged(ctx context.Context, showtimeID uint64, reason string) error
    BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// ErrValidation marks malformed or out-of-range input (empty seat list,
// duplicate seats, more seats than the auditorium has).
var ErrValidation = errors.New("validation")

// SeatConflictError reports which requested seats were already booked or
// held. It matches repository.ErrConflict under errors.Is so handlers map
// it to 409 without a separate check.
type SeatConflictError struct {
    Seats []string
}

func (e *SeatConflictError) Error() string {
    return "seats unavailable: " + strings.Join(e.Seats, ", ")
}

func (e *SeatConflictError) Is(target error) bool { return target == repository.ErrConflict }

// codeRetries bounds the regenerate-and-retry loop on booking code
// collisions.
const codeRetries = 3

// BookingEngine owns the booking lifecycle: the transactional
// hold-then-persist create, confirm, cancel, extend and the expiry batch
// the sweeper feeds on.
type BookingEngine struct {
    seats     SeatStore
    bookings  BookingStore
    showtimes ShowtimeStore
    users     UserStore
    events    EventPublisher
    holdTTL   time.Duration
    log       *logrus.Logger
}

// NewBookingEngine wires the engine. events may be nil in tests; every
// publish is best-effort.
func NewBookingEngine(seats SeatStore, bookings BookingStore, showtimes ShowtimeStore, users UserStore, events EventPublisher, holdTTL time.Duration, log *logrus.Logger) *BookingEngine {
    return &BookingEngine{
        seats:     seats,
        bookings:  bookings,
        showtimes: showtimes,
        users:     users,
        events:    events,
        holdTTL:   holdTTL,
        log:       log,
    }
}

func (e *BookingEngine) publishSeatState(showtimeID uint64, reason string) {
    if e.events == nil {
        return
    }
    // Detached context: event delivery must not be cut short by the
    // request deadline, and must never block a state transition.
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = e.events.SeatStateChanged(ctx, showtimeID, reason)
}

// Create validates the request, freezes the price against the showtime's
// current price and persists a PENDING booking together with its seat
// holds in one transaction. On conflict nothing is persisted and the
// conflicting seats are reported.
func (e *BookingEngine) Create(ctx context.Context, userID, showtimeID uint64, seats []string) (*model.Booking, error) {
    if len(seats) == 0 {
        return nil, fmt.Errorf("%w: seats must not be empty", ErrValidation)
    }
    seen := make(map[string]struct{}, len(seats))
    for _, seat := range seats {
        if seat == "" {
            return nil, fmt.Errorf("%w: empty seat label", ErrValidation)
        }
        if _, dup := seen[seat]; dup {
            return nil, fmt.Errorf("%w: duplicate seat %s", ErrValidation, seat)
        }
        seen[seat] = struct{}{}
    }

    showtime, err := e.showtimes.GetByID(ctx, showtimeID)
    if err != nil {
        return nil, err
    }
    if len(seats) > int(showtime.Capacity) {
        return nil, fmt.Errorf("%w: %d seats requested, capacity is %d", ErrValidation, len(seats), showtime.Capacity)
    }

    booking := &model.Booking{
        UserID:          userID,
        ShowtimeID:      showtimeID,
        Seats:           seats,
        TotalPriceCents: uint32(len(seats)) * showtime.PriceCents,
        Status:          model.BookingPending,
    }
    for attempt := 0; attempt < codeRetries; attempt++ {
        code, err := utils.NewBookingCode()
        if err != nil {
            return nil, err
        }
        booking.Code = code
        conflicts, err := e.bookings.CreateWithHolds(ctx, booking, e.holdTTL)
        if errors.Is(err, repository.ErrDuplicateCode) {
            continue
        }
        if err != nil {
            return nil, err
        }
        if len(conflicts) > 0 {
            return nil, &SeatConflictError{Seats: conflicts}
        }
        e.publishSeatState(showtimeID, "hold")
        return booking, nil
    }
    return nil, fmt.Errorf("%w: booking code space exhausted after %d attempts", repository.ErrConflict, codeRetries)
}

// Confirm promotes a PENDING booking to CONFIRMED and its holds to booked
// seats. Calling it on a CONFIRMED booking re-runs the idempotent
// promotion (healing a crash between transition and promote) and returns
// the booking unchanged; calling it on a CANCELLED booking is an invalid
// transition because the seats may have been re-sold.
func (e *BookingEngine) Confirm(ctx context.Context, bookingID uint64) (*model.Booking, error) {
    booking, err := e.bookings.GetByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    switch booking.Status {
    case model.BookingCancelled:
        return nil, fmt.Errorf("%w: cannot confirm a cancelled booking", repository.ErrInvalidTransition)
    case model.BookingConfirmed:
        if err := e.seats.Promote(ctx, booking.ShowtimeID, booking.Seats); err != nil {
            return nil, err
        }
        return booking, nil
    }

    ok, err := e.bookings.UpdateStatusCAS(ctx, bookingID, model.BookingPending, model.BookingConfirmed)
    if err != nil {
        return nil, err
    }
    if !ok {
        // Raced with another transition; re-read and settle on its outcome.
        return e.Confirm(ctx, bookingID)
    }
    booking.Status = model.BookingConfirmed

    // From here on the transition is final: promotion is idempotent and
    // retried, artifacts are best-effort.
    if err := e.seats.Promote(ctx, booking.ShowtimeID, booking.Seats); err != nil {
        return nil, err
    }
    e.publishSeatState(booking.ShowtimeID, "promote")
    e.emitConfirmed(booking)
    return booking, nil
}

// emitConfirmed publishes the receipt event. Failures are logged, never
// propagated: a downstream notification error must not reverse a
// confirmation.
func (e *BookingEngine) emitConfirmed(b *model.Booking) {
    if e.events == nil {
        return
    }
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    ev := queue.BookingConfirmedEvent{
        BookingID:       b.ID,
        BookingCode:     b.Code,
        UserID:          b.UserID,
        ShowtimeID:      b.ShowtimeID,
        Seats:           b.Seats,
        TotalPriceCents: b.TotalPriceCents,
        ConfirmedAt:     time.Now().UTC().Format(time.RFC3339),
    }
    if user, err := e.users.GetByID(ctx, b.UserID); err == nil {
        ev.UserEmail = user.Email
    } else {
        e.log.WithError(err).WithField("booking_id", b.ID).Warn("confirm: owner lookup for receipt failed")
    }
    if st, err := e.showtimes.GetByID(ctx, b.ShowtimeID); err == nil {
        ev.MovieTitle = st.MovieTitle
        ev.Auditorium = st.Auditorium
        ev.StartsAt = st.StartsAt.UTC().Format(time.RFC3339)
    }
    if err := e.events.BookingConfirmed(ctx, ev); err != nil {
        e.log.WithError(err).WithField("booking_id", b.ID).Warn("confirm: receipt event publish failed")
    }
}

// Cancel releases a booking's seats and moves it to CANCELLED. Permitted
// from PENDING (abandonment, expiry, declined payment) and from CONFIRMED
// (administrative refund, which also un-books the seats). Cancelling a
// CANCELLED booking is a no-op. A showtime deleted out of band is logged
// and the booking still transitions.
func (e *BookingEngine) Cancel(ctx context.Context, bookingID uint64) (*model.Booking, error) {
    booking, err := e.bookings.GetByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if booking.Status == model.BookingCancelled {
        return booking, nil
    }

    from := booking.Status
    missingShowtime := false
    if _, err := e.showtimes.GetByID(ctx, booking.ShowtimeID); errors.Is(err, repository.ErrNotFound) {
        missingShowtime = true
        e.log.WithFields(logrus.Fields{
            "booking_id":  booking.ID,
            "showtime_id": booking.ShowtimeID,
        }).Warn("cancel: showtime missing, releasing booking without seat cleanup")
    } else if err != nil {
        return nil, err
    }

    if !missingShowtime {
        if from == model.BookingConfirmed {
            if err := e.seats.Unbook(ctx, booking.ShowtimeID, booking.Seats); err != nil {
                return nil, err
            }
        }
        if err := e.seats.Release(ctx, booking.ShowtimeID, booking.Seats, booking.ID); err != nil {
            return nil, err
        }
    }

    ok, err := e.bookings.UpdateStatusCAS(ctx, bookingID, from, model.BookingCancelled)
    if err != nil {
        return nil, err
    }
    if !ok {
        // Raced; settle on whatever the winner decided.
        return e.Cancel(ctx, bookingID)
    }
    booking.Status = model.BookingCancelled
    reason := "release"
    if from == model.BookingConfirmed {
        reason = "refund"
    }
    if !missingShowtime {
        e.publishSeatState(booking.ShowtimeID, reason)
    }
    return booking, nil
}

// Extend re-arms the booking's holds to now+holdWindow. Only the owner may
// extend, and only while the booking is PENDING.
func (e *BookingEngine) Extend(ctx context.Context, bookingID, userID uint64) (*model.Booking, error) {
    booking, err := e.bookings.GetByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if booking.UserID != userID {
        return nil, repository.ErrForbidden
    }
    if booking.Status != model.BookingPending {
        return nil, fmt.Errorf("%w: only pending bookings can be extended", repository.ErrInvalidTransition)
    }
    touched, err := e.seats.ExtendHolds(ctx, booking.ShowtimeID, booking.ID, time.Now().UTC().Add(e.holdTTL))
    if err != nil {
        return nil, err
    }
    if touched == 0 {
        return nil, fmt.Errorf("%w: holds already expired", repository.ErrInvalidTransition)
    }
    return booking, nil
}

// ExpireStale cancels up to limit PENDING bookings created before the
// cutoff and returns how many were cancelled. Each cancellation is
// independent; one failure is logged and does not stop the batch.
func (e *BookingEngine) ExpireStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
    stale, err := e.bookings.ListStalePending(ctx, cutoff, limit)
    if err != nil {
        return 0, err
    }
    cancelled := 0
    for i := range stale {
        if _, err := e.Cancel(ctx, stale[i].ID); err != nil {
            e.log.WithError(err).WithField("booking_id", stale[i].ID).Warn("expiry: cancel failed")
            continue
        }
        cancelled++
    }
    return cancelled, nil
}

// Get returns one booking, enforcing ownership unless the caller is
// privileged.
func (e *BookingEngine) Get(ctx context.Context, bookingID, callerID uint64, privileged bool) (*model.Booking, error) {
    booking, err := e.bookings.GetByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if !privileged && booking.UserID != callerID {
        return nil, repository.ErrForbidden
    }
    return booking, nil
}

// GetByCode looks a booking up by its human-shareable code with the same
// ownership rule as Get.
func (e *BookingEngine) GetByCode(ctx context.Context, code string, callerID uint64, privileged bool) (*model.Booking, error) {
    booking, err := e.bookings.GetByCode(ctx, code)
    if err != nil {
        return nil, err
    }
    if !privileged && booking.UserID != callerID {
        return nil, repository.ErrForbidden
    }
    return booking, nil
}

// List returns the caller's bookings, or all bookings for privileged
// callers.
func (e *BookingEngine) List(ctx context.Context, callerID uint64, privileged bool) ([]model.Booking, error) {
    if privileged {
        return e.bookings.ListAll(ctx)
    }
    return e.bookings.ListByUser(ctx, callerID)
}
