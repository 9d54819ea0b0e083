package service

import (
    "context"
    "errors"
    "fmt"
    "net/url"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/cinema-booking-backend/internal/gateway"
    "github.com/iliyamo/cinema-booking-backend/internal/model"
    "github.com/iliyamo/cinema-booking-backend/internal/repository"
)

// ErrAmountMismatch is returned when an authenticated callback reports an
// amount different from the recorded payment. The callback is rejected and
// no state moves.
var ErrAmountMismatch = errors.New("callback amount mismatch")

// ErrGatewayNotConfigured is returned when the {gateway} path segment does
// not resolve to a configured gateway.
var ErrGatewayNotConfigured = errors.New("payment gateway not configured")

// PaymentStore is the payment persistence the coordinator drives.
type PaymentStore interface {
    Create(ctx context.Context, p *model.Payment) error
    GetByID(ctx context.Context, id string) (*model.Payment, error)
    GetByOrderRef(ctx context.Context, orderRef string) (*model.Payment, error)
    GetPendingByBooking(ctx context.Context, bookingID uint64) (*model.Payment, error)
    HasCompletedByBooking(ctx context.Context, bookingID uint64) (bool, error)
    ResolvePending(ctx context.Context, id, to, transactionID string, paidAt time.Time) (bool, error)
    MarkFailed(ctx context.Context, id string) (bool, error)
    MarkRefunded(ctx context.Context, id string) (*model.Payment, error)
}

// PaymentCoordinator owns payment attempts and gateway callbacks. It sits
// between the untrusted gateway wire format and the booking engine: nothing
// reaches the engine until the callback is authenticated and the payment
// row's compare-and-set has been won.
type PaymentCoordinator struct {
    gateways gateway.Registry
    payments PaymentStore
    bookings BookingStore
    engine   *BookingEngine
    log      *logrus.Logger
}

// NewPaymentCoordinator wires the coordinator.
func NewPaymentCoordinator(gateways gateway.Registry, payments PaymentStore, bookings BookingStore, engine *BookingEngine, log *logrus.Logger) *PaymentCoordinator {
    return &PaymentCoordinator{
        gateways: gateways,
        payments: payments,
        bookings: bookings,
        engine:   engine,
        log:      log,
    }
}

func (c *PaymentCoordinator) gateway(name string) (*gateway.Gateway, error) {
    gw, ok := c.gateways[name]
    if !ok {
        return nil, fmt.Errorf("%w: %s", ErrGatewayNotConfigured, name)
    }
    return gw, nil
}

// CreateIntent opens a payment attempt for a PENDING booking and returns
// the signed gateway redirect URL. Any previous PENDING attempt for the
// booking is superseded (marked FAILED) so at most one attempt is live. A
// booking that already has a COMPLETED payment cannot open another.
func (c *PaymentCoordinator) CreateIntent(ctx context.Context, bookingID, userID uint64, gatewayName, clientIP string) (*model.Payment, string, error) {
    gw, err := c.gateway(gatewayName)
    if err != nil {
        return nil, "", err
    }
    booking, err := c.bookings.GetByID(ctx, bookingID)
    if err != nil {
        return nil, "", err
    }
    if booking.UserID != userID {
        return nil, "", repository.ErrForbidden
    }
    if booking.Status != model.BookingPending {
        return nil, "", fmt.Errorf("%w: booking is %s", repository.ErrInvalidTransition, booking.Status)
    }
    paid, err := c.payments.HasCompletedByBooking(ctx, bookingID)
    if err != nil {
        return nil, "", err
    }
    if paid {
        return nil, "", fmt.Errorf("%w: booking already paid", repository.ErrConflict)
    }

    if prev, err := c.payments.GetPendingByBooking(ctx, bookingID); err == nil {
        won, err := c.payments.MarkFailed(ctx, prev.ID)
        if err != nil {
            return nil, "", err
        }
        if !won {
            // A concurrent callback resolved the attempt between our read
            // and the supersede; opening a second live attempt now could
            // leave a stray PENDING row next to a settled booking.
            return nil, "", fmt.Errorf("%w: payment attempt was just resolved, re-check the booking", repository.ErrConflict)
        }
        c.log.WithFields(logrus.Fields{
            "booking_id": bookingID,
            "payment_id": prev.ID,
        }).Info("payment: superseded stale intent")
    } else if !errors.Is(err, repository.ErrNotFound) {
        return nil, "", err
    }

    now := time.Now().UTC()
    payment := &model.Payment{
        ID:          uuid.NewString(),
        BookingID:   bookingID,
        AmountCents: booking.TotalPriceCents,
        Method:      gatewayName,
        OrderRef:    gateway.MakeOrderRef(bookingID, now),
        Status:      model.PaymentPending,
    }
    if err := c.payments.Create(ctx, payment); err != nil {
        return nil, "", err
    }
    if err := c.bookings.SetPaymentID(ctx, bookingID, payment.ID); err != nil {
        return nil, "", err
    }

    redirect := gw.BuildRedirectURL(gateway.Intent{
        OrderRef:    payment.OrderRef,
        AmountCents: payment.AmountCents,
        OrderInfo:   "Ticket payment for booking " + booking.Code,
        ClientIP:    clientIP,
        CreatedAt:   now,
    })
    c.log.WithFields(logrus.Fields{
        "booking_id": bookingID,
        "payment_id": payment.ID,
        "gateway":    gatewayName,
        "order_ref":  payment.OrderRef,
    }).Info("payment: intent created")
    return payment, redirect, nil
}

// CallbackOutcome is the settled result of a gateway callback, identical
// for the return and notify sources.
type CallbackOutcome struct {
    Payment   *model.Payment
    Booking   *model.Booking
    Success   bool   // payment ended COMPLETED
    Duplicate bool   // this callback lost the compare-and-set or arrived after resolution
    Message   string // human-readable result, decline reason on failure
}

// HandleCallback authenticates and settles one gateway callback. Signature
// verification happens before anything else; an unverifiable payload
// mutates nothing. Duplicate deliveries (gateway retries, both sources
// firing) converge on the first outcome without re-running side effects.
func (c *PaymentCoordinator) HandleCallback(ctx context.Context, gatewayName string, params url.Values) (*CallbackOutcome, error) {
    gw, err := c.gateway(gatewayName)
    if err != nil {
        return nil, err
    }
    cb, err := gw.ParseCallback(params)
    if err != nil {
        return nil, err
    }

    payment, err := c.payments.GetByOrderRef(ctx, cb.OrderRef)
    if errors.Is(err, repository.ErrNotFound) {
        return nil, gateway.ErrUnknownOrder
    }
    if err != nil {
        return nil, err
    }
    refBookingID, err := gateway.SplitOrderRef(cb.OrderRef)
    if err != nil || refBookingID != payment.BookingID {
        // The reference must decode to the booking the payment row claims.
        return nil, gateway.ErrUnknownOrder
    }
    if cb.AmountCents != uint64(payment.AmountCents) {
        c.log.WithFields(logrus.Fields{
            "payment_id": payment.ID,
            "reported":   cb.AmountCents,
            "expected":   payment.AmountCents,
        }).Warn("payment: callback amount mismatch")
        return nil, ErrAmountMismatch
    }

    if payment.Status != model.PaymentPending {
        return c.settledOutcome(ctx, payment)
    }

    to := model.PaymentFailed
    if cb.Success {
        to = model.PaymentCompleted
    }
    won, err := c.payments.ResolvePending(ctx, payment.ID, to, cb.TransactionID, time.Now().UTC())
    if err != nil {
        return nil, err
    }
    if !won {
        // Lost the race against a concurrent delivery of the same
        // callback; report whatever the winner recorded.
        settled, err := c.payments.GetByID(ctx, payment.ID)
        if err != nil {
            return nil, err
        }
        return c.settledOutcome(ctx, settled)
    }
    payment.Status = to
    payment.TransactionID = &cb.TransactionID

    var booking *model.Booking
    if cb.Success {
        booking, err = c.engine.Confirm(ctx, payment.BookingID)
    } else {
        // A decline only cancels a booking that is still PENDING. A booking
        // confirmed through another attempt keeps its seats; the declined
        // row just records the failed attempt.
        booking, err = c.bookings.GetByID(ctx, payment.BookingID)
        if err == nil && booking.Status == model.BookingPending {
            booking, err = c.engine.Cancel(ctx, payment.BookingID)
        }
    }
    if err != nil {
        // The payment row is already resolved; surface the engine error
        // so the gateway retries the notification and Confirm/Cancel can
        // converge idempotently.
        return nil, err
    }

    msg := "Payment completed"
    if !cb.Success {
        msg = gateway.DeclineMessage(cb.ResponseCode)
    }
    c.log.WithFields(logrus.Fields{
        "payment_id": payment.ID,
        "booking_id": payment.BookingID,
        "gateway":    gatewayName,
        "status":     payment.Status,
        "txn_id":     cb.TransactionID,
    }).Info("payment: callback settled")
    return &CallbackOutcome{
        Payment: payment,
        Booking: booking,
        Success: cb.Success,
        Message: msg,
    }, nil
}

// settledOutcome reports an already-resolved payment. For a COMPLETED
// payment it re-drives the idempotent confirmation first, so a crash
// between payment resolution and seat promotion heals on the gateway's
// next retry instead of leaving paid seats unpromoted.
func (c *PaymentCoordinator) settledOutcome(ctx context.Context, payment *model.Payment) (*CallbackOutcome, error) {
    booking, err := c.bookings.GetByID(ctx, payment.BookingID)
    if err != nil {
        return nil, err
    }
    if payment.Status == model.PaymentCompleted && booking.Status != model.BookingCancelled {
        booking, err = c.engine.Confirm(ctx, payment.BookingID)
        if err != nil {
            return nil, err
        }
    }
    msg := "Payment already processed"
    success := payment.Status == model.PaymentCompleted
    if !success {
        msg = "Payment already resolved as " + payment.Status
    }
    return &CallbackOutcome{
        Payment:   payment,
        Booking:   booking,
        Success:   success,
        Duplicate: true,
        Message:   msg,
    }, nil
}

// Refund refunds a confirmed booking's completed payment and cancels the
// booking, returning its seats to the pool. Refunding an already-refunded
// payment is a no-op.
func (c *PaymentCoordinator) Refund(ctx context.Context, bookingID uint64) (*model.Payment, *model.Booking, error) {
    booking, err := c.bookings.GetByID(ctx, bookingID)
    if err != nil {
        return nil, nil, err
    }
    if booking.PaymentID == nil {
        return nil, nil, fmt.Errorf("%w: booking has no payment", repository.ErrInvalidTransition)
    }
    payment, err := c.payments.MarkRefunded(ctx, *booking.PaymentID)
    if err != nil {
        return nil, nil, err
    }
    booking, err = c.engine.Cancel(ctx, bookingID)
    if err != nil {
        return nil, nil, err
    }
    c.log.WithFields(logrus.Fields{
        "booking_id": bookingID,
        "payment_id": payment.ID,
    }).Info("payment: refunded")
    return payment, booking, nil
}
