package service

import (
    "context"
    "sync"
    "time"

    "github.com/iliyamo/cinema-booking-backend/internal/model"
    "github.com/iliyamo/cinema-booking-backend/internal/queue"
    "github.com/iliyamo/cinema-booking-backend/internal/repository"
)

// In-memory fakes for the engine's collaborators. They implement the same
// contracts as the MySQL-backed repositories, including the conflict and
// compare-and-set semantics the state machines depend on.

type fakeSeatStore struct {
    mu       sync.Mutex
    booked   map[uint64]map[string]bool
    holds    map[uint64]map[string]holdRec
    promotes int
    err      error
}

type holdRec struct {
    bookingID uint64
    expiresAt time.Time
}

func newFakeSeatStore() *fakeSeatStore {
    return &fakeSeatStore{
        booked: map[uint64]map[string]bool{},
        holds:  map[uint64]map[string]holdRec{},
    }
}

func (f *fakeSeatStore) hold(showtimeID uint64, seat string, bookingID uint64, exp time.Time) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.holds[showtimeID] == nil {
        f.holds[showtimeID] = map[string]holdRec{}
    }
    f.holds[showtimeID][seat] = holdRec{bookingID: bookingID, expiresAt: exp}
}

func (f *fakeSeatStore) Promote(ctx context.Context, showtimeID uint64, seats []string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.err != nil {
        return f.err
    }
    f.promotes++
    if f.booked[showtimeID] == nil {
        f.booked[showtimeID] = map[string]bool{}
    }
    for _, s := range seats {
        f.booked[showtimeID][s] = true
        delete(f.holds[showtimeID], s)
    }
    return nil
}

func (f *fakeSeatStore) Release(ctx context.Context, showtimeID uint64, seats []string, bookingID uint64) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, s := range seats {
        if rec, ok := f.holds[showtimeID][s]; ok && rec.bookingID == bookingID {
            delete(f.holds[showtimeID], s)
        }
    }
    return nil
}

func (f *fakeSeatStore) Unbook(ctx context.Context, showtimeID uint64, seats []string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, s := range seats {
        delete(f.booked[showtimeID], s)
    }
    return nil
}

func (f *fakeSeatStore) ExtendHolds(ctx context.Context, showtimeID, bookingID uint64, expiresAt time.Time) (int64, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var n int64
    for seat, rec := range f.holds[showtimeID] {
        if rec.bookingID == bookingID && rec.expiresAt.After(time.Now()) {
            rec.expiresAt = expiresAt
            f.holds[showtimeID][seat] = rec
            n++
        }
    }
    return n, nil
}

func (f *fakeSeatStore) SweepExpired(ctx context.Context, showtimeID uint64, now time.Time) (int64, []uint64, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var released int64
    var affected []uint64
    for st, seats := range f.holds {
        touched := false
        for seat, rec := range seats {
            if !rec.expiresAt.After(now) {
                delete(seats, seat)
                released++
                touched = true
            }
        }
        if touched {
            affected = append(affected, st)
        }
    }
    return released, affected, nil
}

func (f *fakeSeatStore) Snapshot(ctx context.Context, showtimeID uint64) (*repository.SeatSnapshot, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    snap := &repository.SeatSnapshot{ShowtimeID: showtimeID}
    for s := range f.booked[showtimeID] {
        snap.BookedSeats = append(snap.BookedSeats, s)
    }
    for s := range f.holds[showtimeID] {
        snap.HeldSeats = append(snap.HeldSeats, s)
    }
    return snap, nil
}

type fakeBookingStore struct {
    mu        sync.Mutex
    nextID    uint64
    bookings  map[uint64]*model.Booking
    conflicts []string // returned by the next CreateWithHolds
    dupCodes  int      // ErrDuplicateCode for the next n creates
    seats     *fakeSeatStore
}

func newFakeBookingStore(seats *fakeSeatStore) *fakeBookingStore {
    return &fakeBookingStore{nextID: 10, bookings: map[uint64]*model.Booking{}, seats: seats}
}

func (f *fakeBookingStore) CreateWithHolds(ctx context.Context, b *model.Booking, ttl time.Duration) ([]string, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.dupCodes > 0 {
        f.dupCodes--
        return nil, repository.ErrDuplicateCode
    }
    if len(f.conflicts) > 0 {
        c := f.conflicts
        f.conflicts = nil
        return c, nil
    }
    f.nextID++
    b.ID = f.nextID
    b.Status = model.BookingPending
    b.CreatedAt = time.Now().UTC()
    b.UpdatedAt = b.CreatedAt
    stored := *b
    f.bookings[b.ID] = &stored
    if f.seats != nil {
        exp := time.Now().UTC().Add(ttl)
        for _, s := range b.Seats {
            f.seats.hold(b.ShowtimeID, s, b.ID, exp)
        }
    }
    return nil, nil
}

func (f *fakeBookingStore) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    b, ok := f.bookings[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *b
    return &cp, nil
}

func (f *fakeBookingStore) GetByCode(ctx context.Context, code string) (*model.Booking, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, b := range f.bookings {
        if b.Code == code {
            cp := *b
            return &cp, nil
        }
    }
    return nil, repository.ErrNotFound
}

func (f *fakeBookingStore) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []model.Booking
    for _, b := range f.bookings {
        if b.UserID == userID {
            out = append(out, *b)
        }
    }
    return out, nil
}

func (f *fakeBookingStore) ListAll(ctx context.Context) ([]model.Booking, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []model.Booking
    for _, b := range f.bookings {
        out = append(out, *b)
    }
    return out, nil
}

func (f *fakeBookingStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []model.Booking
    for _, b := range f.bookings {
        if b.Status == model.BookingPending && b.CreatedAt.Before(cutoff) && len(out) < limit {
            out = append(out, *b)
        }
    }
    return out, nil
}

func (f *fakeBookingStore) UpdateStatusCAS(ctx context.Context, id uint64, from, to string) (bool, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    b, ok := f.bookings[id]
    if !ok || b.Status != from {
        return false, nil
    }
    b.Status = to
    b.UpdatedAt = time.Now().UTC()
    return true, nil
}

func (f *fakeBookingStore) SetPaymentID(ctx context.Context, id uint64, paymentID string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    b, ok := f.bookings[id]
    if !ok {
        return repository.ErrNotFound
    }
    pid := paymentID
    b.PaymentID = &pid
    return nil
}

type fakeShowtimeStore struct {
    mu        sync.Mutex
    showtimes map[uint64]*model.Showtime
}

func newFakeShowtimeStore(sts ...*model.Showtime) *fakeShowtimeStore {
    f := &fakeShowtimeStore{showtimes: map[uint64]*model.Showtime{}}
    for _, st := range sts {
        f.showtimes[st.ID] = st
    }
    return f
}

func (f *fakeShowtimeStore) GetByID(ctx context.Context, id uint64) (*model.Showtime, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    st, ok := f.showtimes[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *st
    return &cp, nil
}

type fakeUserStore struct {
    users map[uint64]model.User
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
    u, ok := f.users[id]
    if !ok {
        return model.User{}, repository.ErrNotFound
    }
    return u, nil
}

type fakeEvents struct {
    mu        sync.Mutex
    seatState []queue.SeatStateChangedEvent
    confirmed []queue.BookingConfirmedEvent
}

func (f *fakeEvents) SeatStateChanged(ctx context.Context, showtimeID uint64, reason string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.seatState = append(f.seatState, queue.SeatStateChangedEvent{ShowtimeID: showtimeID, Reason: reason})
    return nil
}

func (f *fakeEvents) BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.confirmed = append(f.confirmed, ev)
    return nil
}

func (f *fakeEvents) lastSeatReason() string {
    f.mu.Lock()
    defer f.mu.Unlock()
    if len(f.seatState) == 0 {
        return ""
    }
    return f.seatState[len(f.seatState)-1].Reason
}
