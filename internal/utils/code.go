package utils

import "crypto/rand"

// codeAlphabet is the character set for booking codes: uppercase letters
// and digits, 36 symbols.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// BookingCodeLen is the fixed length of a booking code.
const BookingCodeLen = 8

// NewBookingCode returns a random 8-character uppercase alphanumeric code.
// Bytes >= 252 are rejected so every symbol stays equally likely
// (252 = 7 * 36, the largest multiple of the alphabet size below 256).
func NewBookingCode() (string, error) {
    const max = byte(252)
    out := make([]byte, 0, BookingCodeLen)
    buf := make([]byte, 16)
    for len(out) < BookingCodeLen {
        if _, err := rand.Read(buf); err != nil {
            return "", err
        }
        for _, b := range buf {
            if b >= max {
                continue
            }
            out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
            if len(out) == BookingCodeLen {
                break
            }
        }
    }
    return string(out), nil
}
