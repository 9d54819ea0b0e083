package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/cinema-booking-backend/internal/model"
)

// ShowtimeRepo provides read access to the showtimes table and the single
// admin-side mutation (price update). The seat collections attached to a
// showtime are owned by ShowtimeSeatStore, not by this repository.
type ShowtimeRepo struct {
    db *sql.DB
}

// NewShowtimeRepo returns a new ShowtimeRepo bound to the given database.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span repositories, mirroring how handlers coordinate multi-table writes.
func (r *ShowtimeRepo) DB() *sql.DB { return r.db }

// GetByID loads one showtime. Returns ErrNotFound when the row is missing.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id uint64) (*model.Showtime, error) {
    const q = `SELECT id, movie_title, auditorium, starts_at, price_cents, capacity, created_at, updated_at
               FROM showtimes WHERE id = ?`
    var st model.Showtime
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &st.ID, &st.MovieTitle, &st.Auditorium, &st.StartsAt,
        &st.PriceCents, &st.Capacity, &st.CreatedAt, &st.UpdatedAt,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    return &st, nil
}

// UpdatePrice changes the unit seat price of a showtime. Bookings created
// before the change keep their frozen total; only future Creates observe
// the new price.
func (r *ShowtimeRepo) UpdatePrice(ctx context.Context, id uint64, priceCents uint32) error {
    res, err := r.db.ExecContext(ctx,
        `UPDATE showtimes SET price_cents = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
        priceCents, id,
    )
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrNotFound
    }
    return nil
}
