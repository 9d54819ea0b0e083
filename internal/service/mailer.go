package service

import (
    "errors"
    "fmt"
    "io"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/sirupsen/logrus"
    gomail "gopkg.in/gomail.v2"

    "github.com/iliyamo/cinema-booking-backend/internal/queue"
    "github.com/iliyamo/cinema-booking-backend/internal/utils"
)

// ErrMailerNotConfigured is returned when SMTP settings are missing; the
// consumer logs it and drops the message instead of retrying forever.
var ErrMailerNotConfigured = errors.New("smtp not configured")

// Mailer sends booking receipt emails with the embedded gate QR. It
// implements queue.ReceiptSender; delivery is at-least-once so a duplicate
// event just re-sends the same receipt.
type Mailer struct {
    host string
    port int
    user string
    pass string
    from string
    log  *logrus.Logger
}

// NewMailerFromEnv reads the SMTP_* environment. A mailer with an empty
// host is returned as-is and fails fast on send.
func NewMailerFromEnv(log *logrus.Logger) *Mailer {
    port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
    if port == 0 {
        port = 587
    }
    from := os.Getenv("SMTP_FROM")
    if from == "" {
        from = os.Getenv("SMTP_USER")
    }
    return &Mailer{
        host: os.Getenv("SMTP_HOST"),
        port: port,
        user: os.Getenv("SMTP_USER"),
        pass: os.Getenv("SMTP_PASS"),
        from: from,
        log:  log,
    }
}

// SendReceipt renders and sends the confirmation email for one confirmed
// booking.
func (m *Mailer) SendReceipt(ev queue.BookingConfirmedEvent) error {
    if m.host == "" {
        return ErrMailerNotConfigured
    }
    if ev.UserEmail == "" {
        return fmt.Errorf("booking %d: no recipient address", ev.BookingID)
    }

    png, err := utils.QRCodePNG(utils.QRPayload{
        BookingID:   ev.BookingID,
        BookingCode: ev.BookingCode,
        UserID:      ev.UserID,
        ShowtimeID:  ev.ShowtimeID,
        Seats:       ev.Seats,
        TotalPrice:  ev.TotalPriceCents,
        Timestamp:   time.Now().UTC().Unix(),
    })
    if err != nil {
        return fmt.Errorf("render qr: %w", err)
    }

    msg := gomail.NewMessage()
    msg.SetHeader("From", m.from)
    msg.SetHeader("To", ev.UserEmail)
    msg.SetHeader("Subject", "Your tickets for "+ev.MovieTitle+" ("+ev.BookingCode+")")
    msg.Embed("ticket-qr.png", gomail.SetCopyFunc(func(w io.Writer) error {
        _, err := w.Write(png)
        return err
    }))
    msg.SetBody("text/html", receiptHTML(ev))

    dialer := gomail.NewDialer(m.host, m.port, m.user, m.pass)
    if err := dialer.DialAndSend(msg); err != nil {
        return fmt.Errorf("smtp send: %w", err)
    }
    m.log.WithFields(logrus.Fields{
        "booking_id": ev.BookingID,
        "to":         ev.UserEmail,
    }).Info("mailer: receipt sent")
    return nil
}

func receiptHTML(ev queue.BookingConfirmedEvent) string {
    var b strings.Builder
    b.WriteString("<h2>Booking confirmed</h2>")
    b.WriteString("<p>Code: <strong>" + ev.BookingCode + "</strong></p>")
    b.WriteString("<p>" + ev.MovieTitle + " &mdash; " + ev.Auditorium + "</p>")
    b.WriteString("<p>Starts at: " + ev.StartsAt + "</p>")
    b.WriteString("<p>Seats: " + strings.Join(ev.Seats, ", ") + "</p>")
    fmt.Fprintf(&b, "<p>Total: %d.%02d</p>", ev.TotalPriceCents/100, ev.TotalPriceCents%100)
    b.WriteString(`<p>Show this QR code at the gate:</p><img src="cid:ticket-qr.png" alt="ticket QR">`)
    return b.String()
}
