package model

import "time"

// Payment lifecycle states.  A booking may accumulate several FAILED
// attempts, but at most one payment is PENDING or COMPLETED at any time.
const (
    PaymentPending   = "PENDING"
    PaymentCompleted = "COMPLETED"
    PaymentFailed    = "FAILED"
    PaymentRefunded  = "REFUNDED"
)

// Payment records one attempt to pay for a booking through an external
// gateway.  The row doubles as the de-duplication key for gateway
// callbacks: concurrent return/notify deliveries serialize on a
// compare-and-set over Status PENDING → COMPLETED|FAILED.
type Payment struct {
    ID            string     // payments.id (UUID)
    BookingID     uint64     // payments.booking_id
    AmountCents   uint32     // payments.amount_cents
    Method        string     // payments.method (card, wallet, ...)
    OrderRef      string     // payments.order_ref ("{bookingID}-{unixMillis}")
    TransactionID *string    // payments.transaction_id (gateway-scoped, nullable)
    Status        string     // payments.status
    PaidAt        *time.Time // payments.paid_at (nullable)
    CreatedAt     time.Time  // payments.created_at
    UpdatedAt     time.Time  // payments.updated_at
}
