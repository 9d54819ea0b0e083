package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/cinema-booking-backend/internal/model"
)

// PaymentRepo persists payment attempts. The status column carries the
// exactly-once guarantee for gateway callbacks: the only way out of
// PENDING is the compare-and-set in ResolvePending, which succeeds for
// exactly one caller.
type PaymentRepo struct {
    db *sql.DB
}

// NewPaymentRepo returns a PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentCols = `id, booking_id, amount_cents, method, order_ref, transaction_id, status, paid_at, created_at, updated_at`

// Create inserts a new PENDING payment row.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
    _, err := r.db.ExecContext(ctx,
        `INSERT INTO payments (id, booking_id, amount_cents, method, order_ref, status) VALUES (?, ?, ?, ?, ?, ?)`,
        p.ID, p.BookingID, p.AmountCents, p.Method, p.OrderRef, model.PaymentPending,
    )
    if err != nil {
        return err
    }
    p.Status = model.PaymentPending
    return r.db.QueryRowContext(ctx,
        `SELECT created_at, updated_at FROM payments WHERE id = ?`, p.ID,
    ).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func scanPayment(row *sql.Row) (*model.Payment, error) {
    var p model.Payment
    var txnID sql.NullString
    var paidAt sql.NullTime
    err := row.Scan(
        &p.ID, &p.BookingID, &p.AmountCents, &p.Method, &p.OrderRef,
        &txnID, &p.Status, &paidAt, &p.CreatedAt, &p.UpdatedAt,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    if txnID.Valid {
        v := txnID.String
        p.TransactionID = &v
    }
    if paidAt.Valid {
        v := paidAt.Time
        p.PaidAt = &v
    }
    return &p, nil
}

// GetByID loads one payment.
func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*model.Payment, error) {
    return scanPayment(r.db.QueryRowContext(ctx,
        `SELECT `+paymentCols+` FROM payments WHERE id = ?`, id))
}

// GetByOrderRef resolves the payment a gateway callback refers to. The
// order_ref is unique per attempt ({bookingID}-{unixMillis}).
func (r *PaymentRepo) GetByOrderRef(ctx context.Context, orderRef string) (*model.Payment, error) {
    return scanPayment(r.db.QueryRowContext(ctx,
        `SELECT `+paymentCols+` FROM payments WHERE order_ref = ?`, orderRef))
}

// GetPendingByBooking returns the booking's PENDING payment, if any.
func (r *PaymentRepo) GetPendingByBooking(ctx context.Context, bookingID uint64) (*model.Payment, error) {
    return scanPayment(r.db.QueryRowContext(ctx,
        `SELECT `+paymentCols+` FROM payments WHERE booking_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
        bookingID, model.PaymentPending))
}

// HasCompletedByBooking reports whether the booking already has a
// COMPLETED payment (invariant: at most one).
func (r *PaymentRepo) HasCompletedByBooking(ctx context.Context, bookingID uint64) (bool, error) {
    var n int
    err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM payments WHERE booking_id = ? AND status = ?`,
        bookingID, model.PaymentCompleted,
    ).Scan(&n)
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// ResolvePending finishes a PENDING payment as COMPLETED or FAILED,
// recording the gateway transaction id and, on success, paid_at. Exactly
// one of any number of concurrent callers wins; the rest see false.
func (r *PaymentRepo) ResolvePending(ctx context.Context, id, to, transactionID string, paidAt time.Time) (bool, error) {
    var res sql.Result
    var err error
    if to == model.PaymentCompleted {
        res, err = r.db.ExecContext(ctx,
            `UPDATE payments SET status = ?, transaction_id = ?, paid_at = ?, updated_at = UTC_TIMESTAMP()
             WHERE id = ? AND status = ?`,
            to, transactionID, paidAt.UTC(), id, model.PaymentPending,
        )
    } else {
        res, err = r.db.ExecContext(ctx,
            `UPDATE payments SET status = ?, transaction_id = ?, updated_at = UTC_TIMESTAMP()
             WHERE id = ? AND status = ?`,
            to, transactionID, id, model.PaymentPending,
        )
    }
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// MarkFailed moves a PENDING payment to FAILED without a transaction id.
// Used when a new intent supersedes an abandoned one. Returns false when
// the payment was no longer PENDING, i.e. a concurrent callback resolved
// it first and the caller must not open another attempt.
func (r *PaymentRepo) MarkFailed(ctx context.Context, id string) (bool, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE payments SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
        model.PaymentFailed, id, model.PaymentPending,
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

// MarkRefunded transitions COMPLETED → REFUNDED. Returns
// ErrInvalidTransition when the payment is in any other state.
func (r *PaymentRepo) MarkRefunded(ctx context.Context, id string) (*model.Payment, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE payments SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
        model.PaymentRefunded, id, model.PaymentCompleted,
    )
    if err != nil {
        return nil, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return nil, err
    }
    if n == 0 {
        p, err := r.GetByID(ctx, id)
        if err != nil {
            return nil, err
        }
        if p.Status == model.PaymentRefunded {
            return p, nil
        }
        return nil, ErrInvalidTransition
    }
    return r.GetByID(ctx, id)
}
