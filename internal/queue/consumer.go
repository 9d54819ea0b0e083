package queue

import (
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"
)

// ReceiptSender delivers the confirmation artifacts (receipt email with the
// embedded gate QR) for one confirmed booking. Delivery is at-least-once;
// implementations must tolerate duplicates.
type ReceiptSender interface {
    SendReceipt(ev BookingConfirmedEvent) error
}

// StartBookingConsumer connects to RabbitMQ, declares the durable
// booking.confirmed queue and consumes it, handing each event to the
// receipt sender. It runs a reconnect loop with exponential backoff and
// never returns under normal operation; processing errors are logged and
// the offending message rejected without requeue so the consumer keeps
// draining.
func StartBookingConsumer(log *logrus.Logger, sender ReceiptSender) {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(brokerURL())
        if err != nil {
            log.WithError(err).WithField("retry_in", backoff.String()).Warn("booking-consumer: dial failed")
            time.Sleep(backoff)
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        if err := consumeLoop(conn, log, sender); err != nil {
            log.WithError(err).Warn("booking-consumer: consume loop ended, reconnecting")
            time.Sleep(2 * time.Second)
        }
    }
}

func consumeLoop(conn *amqp.Connection, log *logrus.Logger, sender ReceiptSender) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.WithError(err).Warn("booking-consumer: set QoS failed")
    }

    if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(BookingConfirmedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        var ev BookingConfirmedEvent
        if err := json.Unmarshal(d.Body, &ev); err != nil {
            log.WithError(err).Warn("booking-consumer: bad payload")
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        if err := sender.SendReceipt(ev); err != nil {
            log.WithError(err).WithField("booking_id", ev.BookingID).Warn("booking-consumer: receipt delivery failed")
            _ = d.Nack(false, false)
            continue
        }
        log.WithFields(logrus.Fields{
            "booking_id": ev.BookingID,
            "code":       ev.BookingCode,
        }).Info("booking-consumer: receipt sent")
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}
