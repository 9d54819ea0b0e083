// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// booking engine, the payment coordinator and the HTTP handlers to
// distinguish between failure scenarios without string matching.
package repository

import "errors"

// ErrNotFound is returned when an entity lookup misses. Handlers translate
// this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an operation cannot proceed because of
// conflicting state, such as requesting seats that are already booked or
// held. Handlers translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrDuplicateCode is returned when a booking insert collides with an
// existing booking_code on the unique index. The engine retries code
// generation a bounded number of times before surfacing ErrConflict.
var ErrDuplicateCode = errors.New("duplicate booking code")

// ErrInvalidTransition is returned when a booking or payment state machine
// rule is violated, e.g. confirming a CANCELLED booking.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrStorageUnavailable wraps persistent storage failures that survived the
// internal retry loop. Handlers translate this into HTTP 503.
var ErrStorageUnavailable = errors.New("storage unavailable")
