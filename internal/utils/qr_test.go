package utils

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func samplePayload(issued time.Time) QRPayload {
    return QRPayload{
        BookingID:   42,
        BookingCode: "AB12CD34",
        UserID:      7,
        ShowtimeID:  3,
        Seats:       []string{"A1", "A2"},
        TotalPrice:  2400,
        Timestamp:   issued.Unix(),
    }
}

func TestQRPayloadRoundTrip(t *testing.T) {
    now := time.Now().UTC()
    body, err := EncodeQRPayload(samplePayload(now))
    require.NoError(t, err)

    got, err := DecodeQRPayload(body, now)
    require.NoError(t, err)
    assert.Equal(t, uint64(42), got.BookingID)
    assert.Equal(t, "AB12CD34", got.BookingCode)
    assert.Equal(t, []string{"A1", "A2"}, got.Seats)
}

func TestDecodeQRPayloadExpired(t *testing.T) {
    issued := time.Now().UTC().Add(-QRValidity - time.Hour)
    body, err := EncodeQRPayload(samplePayload(issued))
    require.NoError(t, err)

    _, err = DecodeQRPayload(body, time.Now().UTC())
    assert.ErrorIs(t, err, ErrQRExpired)
}

func TestDecodeQRPayloadWithinWindow(t *testing.T) {
    issued := time.Now().UTC().Add(-QRValidity + time.Hour)
    body, err := EncodeQRPayload(samplePayload(issued))
    require.NoError(t, err)

    _, err = DecodeQRPayload(body, time.Now().UTC())
    assert.NoError(t, err)
}

func TestQRCodePNG(t *testing.T) {
    png, err := QRCodePNG(samplePayload(time.Now().UTC()))
    require.NoError(t, err)
    // PNG magic bytes.
    require.Greater(t, len(png), 8)
    assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
