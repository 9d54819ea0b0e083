// Package handler implements the HTTP surface: auth, seat snapshots, the
// booking lifecycle, payment callbacks and QR verification.
package handler

import (
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/cinema-booking-backend/internal/gateway"
    "github.com/iliyamo/cinema-booking-backend/internal/repository"
    "github.com/iliyamo/cinema-booking-backend/internal/service"
)

// errorEnvelope is the uniform error body every non-2xx response carries.
type errorEnvelope struct {
    StatusCode int         `json:"statusCode"`
    Message    interface{} `json:"message"`
    Timestamp  string      `json:"timestamp"`
    Path       string      `json:"path"`
}

// statusFor maps domain errors to HTTP status codes. Unknown errors are
// internal.
func statusFor(err error) int {
    switch {
    case errors.Is(err, service.ErrValidation):
        return http.StatusBadRequest
    case errors.Is(err, gateway.ErrInvalidSignature):
        return http.StatusBadRequest
    case errors.Is(err, service.ErrAmountMismatch):
        return http.StatusBadRequest
    case errors.Is(err, repository.ErrNotFound), errors.Is(err, gateway.ErrUnknownOrder):
        return http.StatusNotFound
    case errors.Is(err, service.ErrGatewayNotConfigured):
        return http.StatusNotFound
    case errors.Is(err, repository.ErrForbidden):
        return http.StatusForbidden
    case errors.Is(err, repository.ErrInvalidTransition):
        return http.StatusBadRequest
    case errors.Is(err, repository.ErrConflict):
        return http.StatusConflict
    case errors.Is(err, repository.ErrStorageUnavailable):
        return http.StatusServiceUnavailable
    default:
        return http.StatusInternalServerError
    }
}

// NewHTTPErrorHandler builds the echo error handler that renders every
// error as the envelope. Handlers return domain errors directly; the
// mapping to status codes lives here, in one place.
func NewHTTPErrorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }
        status := 0
        var message interface{}

        var he *echo.HTTPError
        if errors.As(err, &he) {
            status = he.Code
            message = he.Message
        } else {
            status = statusFor(err)
            message = err.Error()
        }
        var conflict *service.SeatConflictError
        if errors.As(err, &conflict) {
            message = echo.Map{"error": "seats unavailable", "seats": conflict.Seats}
        }
        if status == http.StatusInternalServerError {
            log.WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
            message = "internal server error"
        }

        env := errorEnvelope{
            StatusCode: status,
            Message:    message,
            Timestamp:  time.Now().UTC().Format(time.RFC3339),
            Path:       c.Request().URL.Path,
        }
        if c.Request().Method == http.MethodHead {
            _ = c.NoContent(status)
            return
        }
        _ = c.JSON(status, env)
    }
}
