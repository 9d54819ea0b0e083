package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/cinema-booking-backend/internal/model"
)

// BookingRepo provides persistence for bookings and their seat lists. The
// create path couples booking persistence with hold acquisition inside one
// transaction so an outside reader never observes holds without the
// booking or vice versa.
type BookingRepo struct {
    db    *sql.DB
    seats *ShowtimeSeatStore
}

// NewBookingRepo returns a BookingRepo bound to the given database and
// seat store. Both must share the same underlying database.
func NewBookingRepo(db *sql.DB, seats *ShowtimeSeatStore) *BookingRepo {
    return &BookingRepo{db: db, seats: seats}
}

const mysqlDupEntry = 1062

// CreateWithHolds inserts the PENDING booking, its seat rows and the seat
// holds in a single transaction. On seat conflict nothing is persisted and
// the conflicting seats are returned. A booking_code collision on the
// unique index surfaces as ErrDuplicateCode so the engine can regenerate
// and retry.
func (r *BookingRepo) CreateWithHolds(ctx context.Context, b *model.Booking, ttl time.Duration) ([]string, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    res, err := tx.ExecContext(ctx,
        `INSERT INTO bookings (booking_code, user_id, showtime_id, total_price_cents, status) VALUES (?, ?, ?, ?, ?)`,
        b.Code, b.UserID, b.ShowtimeID, b.TotalPriceCents, model.BookingPending,
    )
    if err != nil {
        var me *mysql.MySQLError
        if errors.As(err, &me) && me.Number == mysqlDupEntry {
            return nil, ErrDuplicateCode
        }
        return nil, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, err
    }
    b.ID = uint64(id)
    b.Status = model.BookingPending

    query := `INSERT INTO booking_seats (booking_id, seat, position) VALUES `
    args := make([]interface{}, 0, len(b.Seats)*3)
    for i, seat := range b.Seats {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?)"
        args = append(args, b.ID, seat, i)
    }
    if _, err := tx.ExecContext(ctx, query, args...); err != nil {
        return nil, err
    }

    conflicts, err := r.seats.TryHoldTx(ctx, tx, b.ShowtimeID, b.Seats, b.ID, b.UserID, ttl)
    if err != nil {
        return nil, err
    }
    if len(conflicts) > 0 {
        // Roll back via the deferred handler: the booking row, its seats
        // and any partial hold state all disappear together.
        return conflicts, nil
    }

    if err := tx.QueryRowContext(ctx,
        `SELECT created_at, updated_at FROM bookings WHERE id = ?`, b.ID,
    ).Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
        return nil, err
    }

    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return nil, nil
}

func (r *BookingRepo) scanBooking(row *sql.Row) (*model.Booking, error) {
    var b model.Booking
    var paymentID sql.NullString
    err := row.Scan(
        &b.ID, &b.Code, &b.UserID, &b.ShowtimeID, &b.TotalPriceCents,
        &b.Status, &paymentID, &b.CreatedAt, &b.UpdatedAt,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    if paymentID.Valid {
        pid := paymentID.String
        b.PaymentID = &pid
    }
    return &b, nil
}

func (r *BookingRepo) loadSeats(ctx context.Context, b *model.Booking) error {
    rows, err := r.db.QueryContext(ctx,
        `SELECT seat FROM booking_seats WHERE booking_id = ? ORDER BY position`, b.ID)
    if err != nil {
        return err
    }
    defer rows.Close()
    for rows.Next() {
        var seat string
        if err := rows.Scan(&seat); err != nil {
            return err
        }
        b.Seats = append(b.Seats, seat)
    }
    return rows.Err()
}

const bookingCols = `id, booking_code, user_id, showtime_id, total_price_cents, status, payment_id, created_at, updated_at`

// GetByID loads one booking with its seat list.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
    b, err := r.scanBooking(r.db.QueryRowContext(ctx,
        `SELECT `+bookingCols+` FROM bookings WHERE id = ?`, id))
    if err != nil {
        return nil, err
    }
    if err := r.loadSeats(ctx, b); err != nil {
        return nil, err
    }
    return b, nil
}

// GetByCode looks a booking up by its human-shareable code.
func (r *BookingRepo) GetByCode(ctx context.Context, code string) (*model.Booking, error) {
    b, err := r.scanBooking(r.db.QueryRowContext(ctx,
        `SELECT `+bookingCols+` FROM bookings WHERE booking_code = ?`, code))
    if err != nil {
        return nil, err
    }
    if err := r.loadSeats(ctx, b); err != nil {
        return nil, err
    }
    return b, nil
}

func (r *BookingRepo) list(ctx context.Context, query string, args ...interface{}) ([]model.Booking, error) {
    rows, err := r.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Booking
    for rows.Next() {
        var b model.Booking
        var paymentID sql.NullString
        if err := rows.Scan(
            &b.ID, &b.Code, &b.UserID, &b.ShowtimeID, &b.TotalPriceCents,
            &b.Status, &paymentID, &b.CreatedAt, &b.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        if paymentID.Valid {
            pid := paymentID.String
            b.PaymentID = &pid
        }
        out = append(out, b)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    for i := range out {
        if err := r.loadSeats(ctx, &out[i]); err != nil {
            return nil, err
        }
    }
    return out, nil
}

// ListByUser returns the caller's bookings, newest first. Served by the
// (user_id, created_at DESC) index.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
    return r.list(ctx,
        `SELECT `+bookingCols+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// ListAll returns every booking, newest first. Admin-only surface.
func (r *BookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
    return r.list(ctx,
        `SELECT `+bookingCols+` FROM bookings ORDER BY created_at DESC`)
}

// ListStalePending returns up to limit PENDING bookings created before the
// cutoff, oldest first. Served by the (status, created_at) index; the
// sweeper feeds each returned booking to Cancel.
func (r *BookingRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
    return r.list(ctx,
        `SELECT `+bookingCols+` FROM bookings WHERE status = ? AND created_at < ? ORDER BY created_at LIMIT ?`,
        model.BookingPending, cutoff.UTC(), limit)
}

// UpdateStatusCAS transitions a booking from one status to another,
// succeeding for exactly one caller when racing. Returns false when the
// booking was not in the expected status.
func (r *BookingRepo) UpdateStatusCAS(ctx context.Context, id uint64, from, to string) (bool, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE bookings SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
        to, id, from,
    )
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// SetPaymentID records the booking's current payment attempt.
func (r *BookingRepo) SetPaymentID(ctx context.Context, id uint64, paymentID string) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE bookings SET payment_id = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
        paymentID, id,
    )
    return err
}
