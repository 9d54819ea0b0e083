package repository

import (
    "context"
    "database/sql"
    "database/sql/driver"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/go-sql-driver/mysql"
)

// ShowtimeSeatStore is the sole authority for seat state. Per showtime it
// persists the set of booked seats (booked_seats) and the set of active
// holds (seat_holds) and exposes atomic primitives over them. Every
// primitive serializes concurrent callers for the same showtime by taking
// the showtime row lock (SELECT ... FOR UPDATE) inside one transaction, so
// the booked/held sets never overlap and a partial TryHold is never
// observable.
type ShowtimeSeatStore struct {
    db *sql.DB
}

// NewShowtimeSeatStore returns a store bound to the given database.
func NewShowtimeSeatStore(db *sql.DB) *ShowtimeSeatStore { return &ShowtimeSeatStore{db: db} }

// DB exposes the underlying handle for callers that coordinate a booking
// insert and a hold acquisition inside one transaction.
func (s *ShowtimeSeatStore) DB() *sql.DB { return s.db }

// SeatSnapshot is the availability view returned by Snapshot. Expired holds
// are purged before it is built, so callers never observe stale holds.
type SeatSnapshot struct {
    ShowtimeID     uint64   `json:"showtime_id"`
    Capacity       uint32   `json:"capacity"`
    BookedSeats    []string `json:"booked_seats"`
    HeldSeats      []string `json:"held_seats"`
    AvailableCount int      `json:"available_count"`
}

const (
    maxAttempts  = 3
    retryBackoff = 50 * time.Millisecond
)

// transientErr reports whether a storage error is worth retrying: broken
// connections, deadlocks (1213) and lock wait timeouts (1205).
func transientErr(err error) bool {
    if errors.Is(err, driver.ErrBadConn) {
        return true
    }
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        return me.Number == 1205 || me.Number == 1213
    }
    return false
}

// withRetry runs fn up to maxAttempts times with linear backoff on
// transient errors. A failure that survives the loop is wrapped in
// ErrStorageUnavailable so callers can map it to 503.
func (s *ShowtimeSeatStore) withRetry(ctx context.Context, fn func() error) error {
    var err error
    for attempt := 1; attempt <= maxAttempts; attempt++ {
        err = fn()
        if err == nil || !transientErr(err) {
            return err
        }
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(time.Duration(attempt) * retryBackoff):
        }
    }
    return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// inTx opens a transaction, runs fn and commits, rolling back on error.
func (s *ShowtimeSeatStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(tx); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// lockShowtime takes the per-showtime row lock that serializes all seat
// mutation for one showtime. Returns ErrNotFound for unknown showtimes.
func lockShowtime(ctx context.Context, tx *sql.Tx, showtimeID uint64) error {
    var id uint64
    err := tx.QueryRowContext(ctx, `SELECT id FROM showtimes WHERE id = ? FOR UPDATE`, showtimeID).Scan(&id)
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    return err
}

// purgeExpiredTx removes holds for one showtime whose expires_at has
// passed, returning the number released.
func purgeExpiredTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, now time.Time) (int64, error) {
    res, err := tx.ExecContext(ctx,
        `DELETE FROM seat_holds WHERE showtime_id = ? AND expires_at <= ?`,
        showtimeID, now.UTC(),
    )
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// placeholders renders "?, ?, ?" for n parameters.
func placeholders(n int) string {
    return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func seatArgs(showtimeID uint64, seats []string) []interface{} {
    args := make([]interface{}, 0, len(seats)+1)
    args = append(args, showtimeID)
    for _, seat := range seats {
        args = append(args, seat)
    }
    return args
}

// TryHold atomically acquires holds on every requested seat. It succeeds
// only when no requested seat is booked or actively held; otherwise it
// returns the conflicting seats and leaves no state behind. Expired holds
// on the showtime are purged before the availability check so a stale hold
// never blocks a new one.
func (s *ShowtimeSeatStore) TryHold(ctx context.Context, showtimeID uint64, seats []string, bookingID, userID uint64, ttl time.Duration) ([]string, error) {
    var conflicts []string
    err := s.withRetry(ctx, func() error {
        conflicts = nil
        return s.inTx(ctx, func(tx *sql.Tx) error {
            var err error
            conflicts, err = s.TryHoldTx(ctx, tx, showtimeID, seats, bookingID, userID, ttl)
            if err != nil {
                return err
            }
            if len(conflicts) > 0 {
                return ErrConflict
            }
            return nil
        })
    })
    if errors.Is(err, ErrConflict) {
        return conflicts, nil
    }
    if err != nil {
        return nil, err
    }
    return nil, nil
}

// TryHoldTx is the transaction-scoped body of TryHold. BookingRepo uses it
// to couple hold acquisition and booking persistence in one transaction so
// an outside reader never sees one without the other. The caller owns
// commit/rollback; on a non-empty conflict list the caller must roll back.
func (s *ShowtimeSeatStore) TryHoldTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seats []string, bookingID, userID uint64, ttl time.Duration) ([]string, error) {
    if err := lockShowtime(ctx, tx, showtimeID); err != nil {
        return nil, err
    }
    now := time.Now().UTC()
    if _, err := purgeExpiredTx(ctx, tx, showtimeID, now); err != nil {
        return nil, err
    }

    ph := placeholders(len(seats))
    taken := make(map[string]struct{})
    collect := func(query string) error {
        rows, err := tx.QueryContext(ctx, query, seatArgs(showtimeID, seats)...)
        if err != nil {
            return err
        }
        defer rows.Close()
        for rows.Next() {
            var seat string
            if err := rows.Scan(&seat); err != nil {
                return err
            }
            taken[seat] = struct{}{}
        }
        return rows.Err()
    }
    if err := collect(`SELECT seat FROM booked_seats WHERE showtime_id = ? AND seat IN (` + ph + `)`); err != nil {
        return nil, err
    }
    if err := collect(`SELECT seat FROM seat_holds WHERE showtime_id = ? AND seat IN (` + ph + `)`); err != nil {
        return nil, err
    }
    if len(taken) > 0 {
        conflicts := make([]string, 0, len(taken))
        for _, seat := range seats {
            if _, ok := taken[seat]; ok {
                conflicts = append(conflicts, seat)
            }
        }
        return conflicts, nil
    }

    expiresAt := now.Add(ttl)
    query := `INSERT INTO seat_holds (showtime_id, seat, booking_id, user_id, expires_at) VALUES `
    args := make([]interface{}, 0, len(seats)*5)
    for i, seat := range seats {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?, ?)"
        args = append(args, showtimeID, seat, bookingID, userID, expiresAt)
    }
    if _, err := tx.ExecContext(ctx, query, args...); err != nil {
        return nil, err
    }
    return nil, nil
}

// Promote moves the listed seats from held into booked, removing any hold
// on those seats regardless of holder (confirm-time sweep). Re-promoting
// already-booked seats is a no-op, so Confirm stays idempotent.
func (s *ShowtimeSeatStore) Promote(ctx context.Context, showtimeID uint64, seats []string) error {
    if len(seats) == 0 {
        return nil
    }
    return s.withRetry(ctx, func() error {
        return s.inTx(ctx, func(tx *sql.Tx) error {
            if err := lockShowtime(ctx, tx, showtimeID); err != nil {
                return err
            }
            query := `INSERT IGNORE INTO booked_seats (showtime_id, seat) VALUES `
            args := make([]interface{}, 0, len(seats)*2)
            for i, seat := range seats {
                if i > 0 {
                    query += ","
                }
                query += "(?, ?)"
                args = append(args, showtimeID, seat)
            }
            if _, err := tx.ExecContext(ctx, query, args...); err != nil {
                return err
            }
            ph := placeholders(len(seats))
            _, err := tx.ExecContext(ctx,
                `DELETE FROM seat_holds WHERE showtime_id = ? AND seat IN (`+ph+`)`,
                seatArgs(showtimeID, seats)...,
            )
            return err
        })
    })
}

// Release removes holds whose seat is in the list and whose holder matches
// bookingID. Holds that are already gone are skipped, so Release is safe to
// call from cancellation, compensation and the sweeper alike.
func (s *ShowtimeSeatStore) Release(ctx context.Context, showtimeID uint64, seats []string, bookingID uint64) error {
    if len(seats) == 0 {
        return nil
    }
    return s.withRetry(ctx, func() error {
        ph := placeholders(len(seats))
        args := append(seatArgs(showtimeID, seats), bookingID)
        _, err := s.db.ExecContext(ctx,
            `DELETE FROM seat_holds WHERE showtime_id = ? AND seat IN (`+ph+`) AND booking_id = ?`,
            args...,
        )
        return err
    })
}

// Unbook reverses a promotion by removing seats from booked_seats. Used on
// the refund path when a CONFIRMED booking is cancelled.
func (s *ShowtimeSeatStore) Unbook(ctx context.Context, showtimeID uint64, seats []string) error {
    if len(seats) == 0 {
        return nil
    }
    return s.withRetry(ctx, func() error {
        ph := placeholders(len(seats))
        _, err := s.db.ExecContext(ctx,
            `DELETE FROM booked_seats WHERE showtime_id = ? AND seat IN (`+ph+`)`,
            seatArgs(showtimeID, seats)...,
        )
        return err
    })
}

// ExtendHolds re-arms the expiry of every hold owned by bookingID on the
// showtime. Returns the number of holds touched.
func (s *ShowtimeSeatStore) ExtendHolds(ctx context.Context, showtimeID, bookingID uint64, expiresAt time.Time) (int64, error) {
    var touched int64
    err := s.withRetry(ctx, func() error {
        res, err := s.db.ExecContext(ctx,
            `UPDATE seat_holds SET expires_at = ? WHERE showtime_id = ? AND booking_id = ? AND expires_at > UTC_TIMESTAMP()`,
            expiresAt.UTC(), showtimeID, bookingID,
        )
        if err != nil {
            return err
        }
        touched, err = res.RowsAffected()
        return err
    })
    return touched, err
}

// SweepExpired removes every hold with expires_at <= now. A zero showtimeID
// sweeps across all showtimes. It returns the number of holds released and
// the distinct showtimes that were affected, so callers can publish
// seat-state change events per showtime.
func (s *ShowtimeSeatStore) SweepExpired(ctx context.Context, showtimeID uint64, now time.Time) (int64, []uint64, error) {
    var released int64
    var affected []uint64
    err := s.withRetry(ctx, func() error {
        released = 0
        affected = nil

        query := `SELECT DISTINCT showtime_id FROM seat_holds WHERE expires_at <= ?`
        args := []interface{}{now.UTC()}
        if showtimeID != 0 {
            query += ` AND showtime_id = ?`
            args = append(args, showtimeID)
        }
        rows, err := s.db.QueryContext(ctx, query, args...)
        if err != nil {
            return err
        }
        for rows.Next() {
            var id uint64
            if err := rows.Scan(&id); err != nil {
                rows.Close()
                return err
            }
            affected = append(affected, id)
        }
        if err := rows.Close(); err != nil {
            return err
        }
        if len(affected) == 0 {
            return nil
        }

        del := `DELETE FROM seat_holds WHERE expires_at <= ?`
        if showtimeID != 0 {
            del += ` AND showtime_id = ?`
        }
        res, err := s.db.ExecContext(ctx, del, args...)
        if err != nil {
            return err
        }
        released, err = res.RowsAffected()
        return err
    })
    return released, affected, err
}

// Snapshot returns the availability view for one showtime. The inline purge
// of expired holds means a hold past its TTL is never reported as held,
// even before the sweeper's next tick.
func (s *ShowtimeSeatStore) Snapshot(ctx context.Context, showtimeID uint64) (*SeatSnapshot, error) {
    var snap *SeatSnapshot
    err := s.withRetry(ctx, func() error {
        return s.inTx(ctx, func(tx *sql.Tx) error {
            if err := lockShowtime(ctx, tx, showtimeID); err != nil {
                return err
            }
            if _, err := purgeExpiredTx(ctx, tx, showtimeID, time.Now().UTC()); err != nil {
                return err
            }
            var capacity uint32
            if err := tx.QueryRowContext(ctx,
                `SELECT capacity FROM showtimes WHERE id = ?`, showtimeID,
            ).Scan(&capacity); err != nil {
                return err
            }
            readSeats := func(query string) ([]string, error) {
                rows, err := tx.QueryContext(ctx, query, showtimeID)
                if err != nil {
                    return nil, err
                }
                defer rows.Close()
                seats := []string{}
                for rows.Next() {
                    var seat string
                    if err := rows.Scan(&seat); err != nil {
                        return nil, err
                    }
                    seats = append(seats, seat)
                }
                return seats, rows.Err()
            }
            booked, err := readSeats(`SELECT seat FROM booked_seats WHERE showtime_id = ? ORDER BY seat`)
            if err != nil {
                return err
            }
            held, err := readSeats(`SELECT seat FROM seat_holds WHERE showtime_id = ? ORDER BY seat`)
            if err != nil {
                return err
            }
            snap = &SeatSnapshot{
                ShowtimeID:     showtimeID,
                Capacity:       capacity,
                BookedSeats:    booked,
                HeldSeats:      held,
                AvailableCount: int(capacity) - len(booked) - len(held),
            }
            return nil
        })
    })
    if err != nil {
        return nil, err
    }
    return snap, nil
}
