package service

import (
    "context"
    "io"
    "testing"
    "time"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/cinema-booking-backend/internal/model"
    "github.com/iliyamo/cinema-booking-backend/internal/repository"
)

func quietLogger() *logrus.Logger {
    log := logrus.New()
    log.SetOutput(io.Discard)
    return log
}

type engineFixture struct {
    engine    *BookingEngine
    seats     *fakeSeatStore
    bookings  *fakeBookingStore
    showtimes *fakeShowtimeStore
    events    *fakeEvents
}

func newEngineFixture(t *testing.T) *engineFixture {
    t.Helper()
    seats := newFakeSeatStore()
    bookings := newFakeBookingStore(seats)
    showtimes := newFakeShowtimeStore(&model.Showtime{
        ID:         3,
        MovieTitle: "Arrival",
        Auditorium: "Hall 1",
        StartsAt:   time.Now().UTC().Add(48 * time.Hour),
        PriceCents: 1200,
        Capacity:   100,
    })
    users := &fakeUserStore{users: map[uint64]model.User{
        7: {ID: 7, Email: "alice@example.com", Role: model.RoleCustomer},
    }}
    events := &fakeEvents{}
    engine := NewBookingEngine(seats, bookings, showtimes, users, events, 10*time.Minute, quietLogger())
    return &engineFixture{engine: engine, seats: seats, bookings: bookings, showtimes: showtimes, events: events}
}

func TestCreateValidation(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()

    tests := []struct {
        name       string
        showtimeID uint64
        seats      []string
        wantErr    error
    }{
        {"empty seats", 3, nil, ErrValidation},
        {"blank seat", 3, []string{""}, ErrValidation},
        {"duplicate seat", 3, []string{"A1", "A1"}, ErrValidation},
        {"unknown showtime", 99, []string{"A1"}, repository.ErrNotFound},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            _, err := fx.engine.Create(ctx, 7, tt.showtimeID, tt.seats)
            assert.ErrorIs(t, err, tt.wantErr)
        })
    }
}

func TestCreateRejectsMoreSeatsThanCapacity(t *testing.T) {
    fx := newEngineFixture(t)
    fx.showtimes.showtimes[3].Capacity = 2

    _, err := fx.engine.Create(context.Background(), 7, 3, []string{"A1", "A2", "A3"})
    assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateFreezesPriceAndHoldsSeats(t *testing.T) {
    fx := newEngineFixture(t)

    b, err := fx.engine.Create(context.Background(), 7, 3, []string{"A1", "A2"})
    require.NoError(t, err)

    assert.Equal(t, model.BookingPending, b.Status)
    assert.Equal(t, uint32(2400), b.TotalPriceCents, "total = seats x unit price at create time")
    assert.Len(t, b.Code, 8)
    assert.Len(t, fx.seats.holds[3], 2)
    assert.Equal(t, "hold", fx.events.lastSeatReason())

    // A later price change must not touch the stored total.
    fx.showtimes.showtimes[3].PriceCents = 9900
    stored, err := fx.bookings.GetByID(context.Background(), b.ID)
    require.NoError(t, err)
    assert.Equal(t, uint32(2400), stored.TotalPriceCents)
}

func TestCreateReportsSeatConflicts(t *testing.T) {
    fx := newEngineFixture(t)
    fx.bookings.conflicts = []string{"A2"}

    _, err := fx.engine.Create(context.Background(), 7, 3, []string{"A1", "A2"})
    require.Error(t, err)
    assert.ErrorIs(t, err, repository.ErrConflict)

    var conflict *SeatConflictError
    require.ErrorAs(t, err, &conflict)
    assert.Equal(t, []string{"A2"}, conflict.Seats)
    assert.Empty(t, fx.events.seatState, "no event on a failed create")
}

func TestCreateRetriesOnDuplicateCode(t *testing.T) {
    fx := newEngineFixture(t)
    fx.bookings.dupCodes = 2

    b, err := fx.engine.Create(context.Background(), 7, 3, []string{"A1"})
    require.NoError(t, err)
    assert.NotEmpty(t, b.Code)
}

func TestCreateGivesUpAfterCodeRetries(t *testing.T) {
    fx := newEngineFixture(t)
    fx.bookings.dupCodes = codeRetries

    _, err := fx.engine.Create(context.Background(), 7, 3, []string{"A1"})
    assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestConfirmPromotesAndEmitsReceipt(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()
    b, err := fx.engine.Create(ctx, 7, 3, []string{"A1", "A2"})
    require.NoError(t, err)

    confirmed, err := fx.engine.Confirm(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingConfirmed, confirmed.Status)
    assert.True(t, fx.seats.booked[3]["A1"])
    assert.True(t, fx.seats.booked[3]["A2"])
    assert.Empty(t, fx.seats.holds[3], "holds removed on promotion")

    require.Len(t, fx.events.confirmed, 1)
    ev := fx.events.confirmed[0]
    assert.Equal(t, "alice@example.com", ev.UserEmail)
    assert.Equal(t, "Arrival", ev.MovieTitle)
    assert.Equal(t, b.Code, ev.BookingCode)
}

func TestConfirmIdempotent(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()
    b, err := fx.engine.Create(ctx, 7, 3, []string{"A1"})
    require.NoError(t, err)

    _, err = fx.engine.Confirm(ctx, b.ID)
    require.NoError(t, err)
    again, err := fx.engine.Confirm(ctx, b.ID)
    require.NoError(t, err)

    assert.Equal(t, model.BookingConfirmed, again.Status)
    assert.Len(t, fx.events.confirmed, 1, "receipt event published once")
}

func TestConfirmRejectsCancelled(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()
    b, err := fx.engine.Create(ctx, 7, 3, []string{"A1"})
    require.NoError(t, err)
    _, err = fx.engine.Cancel(ctx, b.ID)
    require.NoError(t, err)

    _, err = fx.engine.Confirm(ctx, b.ID)
    assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestCancelPendingReleasesHolds(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()
    b, err := fx.engine.Create(ctx, 7, 3, []string{"A1", "A2"})
    require.NoError(t, err)

    cancelled, err := fx.engine.Cancel(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, cancelled.Status)
    assert.Empty(t, fx.seats.holds[3])
    assert.Equal(t, "release", fx.events.lastSeatReason())
}

func TestCancelConfirmedUnbooksSeats(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()
    b, err := fx.engine.Create(ctx, 7, 3, []string{"A1"})
    require.NoError(t, err)
    _, err = fx.engine.Confirm(ctx, b.ID)
    require.NoError(t, err)

    cancelled, err := fx.engine.Cancel(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, cancelled.Status)
    assert.False(t, fx.seats.booked[3]["A1"], "refund path returns the seat to the pool")
    assert.Equal(t, "refund", fx.events.lastSeatReason())
}

func TestCancelIdempotent(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()
    b, err := fx.engine.Create(ctx, 7, 3, []string{"A1"})
    require.NoError(t, err)

    _, err = fx.engine.Cancel(ctx, b.ID)
    require.NoError(t, err)
    events := len(fx.events.seatState)

    again, err := fx.engine.Cancel(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, again.Status)
    assert.Len(t, fx.events.seatState, events, "no event on the no-op cancel")
}

func TestCancelSurvivesMissingShowtime(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()
    b, err := fx.engine.Create(ctx, 7, 3, []string{"A1"})
    require.NoError(t, err)

    delete(fx.showtimes.showtimes, 3)
    cancelled, err := fx.engine.Cancel(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, cancelled.Status)
}

func TestExtendOwnershipAndState(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()
    b, err := fx.engine.Create(ctx, 7, 3, []string{"A1"})
    require.NoError(t, err)

    _, err = fx.engine.Extend(ctx, b.ID, 999)
    assert.ErrorIs(t, err, repository.ErrForbidden)

    _, err = fx.engine.Extend(ctx, b.ID, 7)
    assert.NoError(t, err)

    _, err = fx.engine.Confirm(ctx, b.ID)
    require.NoError(t, err)
    _, err = fx.engine.Extend(ctx, b.ID, 7)
    assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestGetEnforcesOwnership(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()
    b, err := fx.engine.Create(ctx, 7, 3, []string{"A1"})
    require.NoError(t, err)

    _, err = fx.engine.Get(ctx, b.ID, 999, false)
    assert.ErrorIs(t, err, repository.ErrForbidden)

    got, err := fx.engine.Get(ctx, b.ID, 999, true)
    require.NoError(t, err)
    assert.Equal(t, b.ID, got.ID)
}

func TestExpireStaleCancelsOldPendings(t *testing.T) {
    fx := newEngineFixture(t)
    ctx := context.Background()

    old, err := fx.engine.Create(ctx, 7, 3, []string{"A1"})
    require.NoError(t, err)
    fresh, err := fx.engine.Create(ctx, 7, 3, []string{"A2"})
    require.NoError(t, err)
    fx.bookings.bookings[old.ID].CreatedAt = time.Now().UTC().Add(-time.Hour)

    cancelled, err := fx.engine.ExpireStale(ctx, time.Now().UTC().Add(-15*time.Minute), 100)
    require.NoError(t, err)
    assert.Equal(t, 1, cancelled)

    gotOld, _ := fx.bookings.GetByID(ctx, old.ID)
    gotFresh, _ := fx.bookings.GetByID(ctx, fresh.ID)
    assert.Equal(t, model.BookingCancelled, gotOld.Status)
    assert.Equal(t, model.BookingPending, gotFresh.Status)
}
