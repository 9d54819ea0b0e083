package repository

import (
    "context"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/go-sql-driver/mysql"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/cinema-booking-backend/internal/model"
)

func newBookingRepoMock(t *testing.T) (*BookingRepo, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })
    return NewBookingRepo(db, NewShowtimeSeatStore(db)), mock
}

func pendingBooking() *model.Booking {
    return &model.Booking{
        Code:            "AB12CD34",
        UserID:          7,
        ShowtimeID:      3,
        Seats:           []string{"A1", "A2"},
        TotalPriceCents: 2400,
        Status:          model.BookingPending,
    }
}

func TestCreateWithHoldsCommitsBookingAndHoldsTogether(t *testing.T) {
    repo, mock := newBookingRepoMock(t)
    b := pendingBooking()
    now := time.Now().UTC()

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bookings (booking_code, user_id, showtime_id, total_price_cents, status) VALUES (?, ?, ?, ?, ?)`)).
        WithArgs("AB12CD34", 7, 3, 2400, model.BookingPending).
        WillReturnResult(sqlmock.NewResult(11, 1))
    mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO booking_seats (booking_id, seat, position) VALUES (?, ?, ?),(?, ?, ?)`)).
        WillReturnResult(sqlmock.NewResult(0, 2))
    expectLock(mock, 3)
    expectPurge(mock, 3)
    mock.ExpectQuery(regexp.QuoteMeta(`SELECT seat FROM booked_seats WHERE showtime_id = ? AND seat IN (?, ?)`)).
        WillReturnRows(sqlmock.NewRows([]string{"seat"}))
    mock.ExpectQuery(regexp.QuoteMeta(`SELECT seat FROM seat_holds WHERE showtime_id = ? AND seat IN (?, ?)`)).
        WillReturnRows(sqlmock.NewRows([]string{"seat"}))
    mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO seat_holds`)).
        WillReturnResult(sqlmock.NewResult(0, 2))
    mock.ExpectQuery(regexp.QuoteMeta(`SELECT created_at, updated_at FROM bookings WHERE id = ?`)).
        WithArgs(11).
        WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
    mock.ExpectCommit()

    conflicts, err := repo.CreateWithHolds(context.Background(), b, 10*time.Minute)
    require.NoError(t, err)
    assert.Empty(t, conflicts)
    assert.Equal(t, uint64(11), b.ID)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithHoldsRollsBackOnSeatConflict(t *testing.T) {
    repo, mock := newBookingRepoMock(t)
    b := pendingBooking()

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bookings`)).
        WillReturnResult(sqlmock.NewResult(11, 1))
    mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO booking_seats`)).
        WillReturnResult(sqlmock.NewResult(0, 2))
    expectLock(mock, 3)
    expectPurge(mock, 3)
    mock.ExpectQuery(regexp.QuoteMeta(`SELECT seat FROM booked_seats`)).
        WillReturnRows(sqlmock.NewRows([]string{"seat"}).AddRow("A2"))
    mock.ExpectQuery(regexp.QuoteMeta(`SELECT seat FROM seat_holds`)).
        WillReturnRows(sqlmock.NewRows([]string{"seat"}))
    mock.ExpectRollback()

    conflicts, err := repo.CreateWithHolds(context.Background(), b, 10*time.Minute)
    require.NoError(t, err)
    assert.Equal(t, []string{"A2"}, conflicts)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithHoldsDuplicateCode(t *testing.T) {
    repo, mock := newBookingRepoMock(t)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bookings`)).
        WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
    mock.ExpectRollback()

    _, err := repo.CreateWithHolds(context.Background(), pendingBooking(), 10*time.Minute)
    assert.ErrorIs(t, err, ErrDuplicateCode)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusCAS(t *testing.T) {
    repo, mock := newBookingRepoMock(t)
    update := regexp.QuoteMeta(`UPDATE bookings SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`)

    mock.ExpectExec(update).
        WithArgs(model.BookingConfirmed, 11, model.BookingPending).
        WillReturnResult(sqlmock.NewResult(0, 1))
    ok, err := repo.UpdateStatusCAS(context.Background(), 11, model.BookingPending, model.BookingConfirmed)
    require.NoError(t, err)
    assert.True(t, ok)

    mock.ExpectExec(update).
        WithArgs(model.BookingConfirmed, 11, model.BookingPending).
        WillReturnResult(sqlmock.NewResult(0, 0))
    ok, err = repo.UpdateStatusCAS(context.Background(), 11, model.BookingPending, model.BookingConfirmed)
    require.NoError(t, err)
    assert.False(t, ok, "second caller must lose the compare-and-set")
}

func TestGetByIDLoadsSeatsInOrder(t *testing.T) {
    repo, mock := newBookingRepoMock(t)
    now := time.Now().UTC()

    mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, booking_code, user_id, showtime_id, total_price_cents, status, payment_id, created_at, updated_at FROM bookings WHERE id = ?`)).
        WithArgs(11).
        WillReturnRows(sqlmock.NewRows([]string{
            "id", "booking_code", "user_id", "showtime_id", "total_price_cents",
            "status", "payment_id", "created_at", "updated_at",
        }).AddRow(11, "AB12CD34", 7, 3, 2400, model.BookingPending, nil, now, now))
    mock.ExpectQuery(regexp.QuoteMeta(`SELECT seat FROM booking_seats WHERE booking_id = ? ORDER BY position`)).
        WithArgs(11).
        WillReturnRows(sqlmock.NewRows([]string{"seat"}).AddRow("A1").AddRow("A2"))

    b, err := repo.GetByID(context.Background(), 11)
    require.NoError(t, err)
    assert.Equal(t, []string{"A1", "A2"}, b.Seats)
    assert.Nil(t, b.PaymentID)
}

func TestGetByIDNotFound(t *testing.T) {
    repo, mock := newBookingRepoMock(t)

    mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \?`).
        WithArgs(404).
        WillReturnRows(sqlmock.NewRows([]string{"id"}))

    _, err := repo.GetByID(context.Background(), 404)
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestListStalePendingUsesCutoffAndLimit(t *testing.T) {
    repo, mock := newBookingRepoMock(t)
    cutoff := time.Now().UTC().Add(-15 * time.Minute)

    mock.ExpectQuery(`SELECT .+ FROM bookings WHERE status = \? AND created_at < \? ORDER BY created_at LIMIT \?`).
        WithArgs(model.BookingPending, cutoff, 100).
        WillReturnRows(sqlmock.NewRows([]string{
            "id", "booking_code", "user_id", "showtime_id", "total_price_cents",
            "status", "payment_id", "created_at", "updated_at",
        }))

    out, err := repo.ListStalePending(context.Background(), cutoff, 100)
    require.NoError(t, err)
    assert.Empty(t, out)
}
