package utils

import (
    "encoding/json"
    "errors"
    "time"

    qrcode "github.com/skip2/go-qrcode"
)

// QRValidity is how long a booking QR payload stays accepted at the gate.
const QRValidity = 30 * 24 * time.Hour

// QRPayload is the compact JSON encoded into a booking's QR code. It is
// self-contained so gate staff can cross-check it against the booking
// record without trusting the client.
type QRPayload struct {
    BookingID   uint64   `json:"bookingId"`
    BookingCode string   `json:"bookingCode"`
    UserID      uint64   `json:"userId"`
    ShowtimeID  uint64   `json:"showtimeId"`
    Seats       []string `json:"seats"`
    TotalPrice  uint32   `json:"totalPrice"`
    Timestamp   int64    `json:"timestamp"`
}

// ErrQRExpired is returned when the payload timestamp is older than
// QRValidity.
var ErrQRExpired = errors.New("qr code expired")

// EncodeQRPayload renders the payload JSON.
func EncodeQRPayload(p QRPayload) ([]byte, error) {
    return json.Marshal(p)
}

// QRCodePNG renders the payload as a 256x256 PNG for embedding in receipt
// emails.
func QRCodePNG(p QRPayload) ([]byte, error) {
    body, err := EncodeQRPayload(p)
    if err != nil {
        return nil, err
    }
    return qrcode.Encode(string(body), qrcode.Medium, 256)
}

// DecodeQRPayload parses a scanned payload and enforces the validity
// window against now.
func DecodeQRPayload(body []byte, now time.Time) (*QRPayload, error) {
    var p QRPayload
    if err := json.Unmarshal(body, &p); err != nil {
        return nil, err
    }
    issued := time.Unix(p.Timestamp, 0)
    if now.Sub(issued) > QRValidity {
        return nil, ErrQRExpired
    }
    return &p, nil
}
