package handler

import (
    "errors"
    "net/http"
    "net/url"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-booking-backend/internal/gateway"
    "github.com/iliyamo/cinema-booking-backend/internal/middleware"
    "github.com/iliyamo/cinema-booking-backend/internal/repository"
    "github.com/iliyamo/cinema-booking-backend/internal/service"
)

// PaymentHandler serves intent creation and the two gateway callback
// sources. The return callback answers the user agent with a redirect to
// the frontend; the notify callback answers the gateway server with its
// RspCode acknowledgment format.
type PaymentHandler struct {
    Payments    *service.PaymentCoordinator
    FrontendURL string
}

func NewPaymentHandler(payments *service.PaymentCoordinator, frontendURL string) *PaymentHandler {
    return &PaymentHandler{Payments: payments, FrontendURL: frontendURL}
}

type createIntentReq struct {
    BookingID uint64 `json:"booking_id"`
}

// CreateIntent opens a payment attempt and returns the gateway redirect
// URL the client should send the user to.
func (h *PaymentHandler) CreateIntent(c echo.Context) error {
    var req createIntentReq
    if err := c.Bind(&req); err != nil || req.BookingID == 0 {
        return echo.NewHTTPError(http.StatusBadRequest, "booking_id required")
    }
    payment, redirect, err := h.Payments.CreateIntent(
        c.Request().Context(), req.BookingID, middleware.UserID(c), c.Param("gateway"), c.RealIP())
    if err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "payment":      payment,
        "redirect_url": redirect,
    })
}

// Return handles the user-agent callback: settle the payment, then send
// the browser to the frontend result page. Errors also land on the failure
// page so the user never sees a bare API error after paying.
func (h *PaymentHandler) Return(c echo.Context) error {
    outcome, err := h.Payments.HandleCallback(c.Request().Context(), c.Param("gateway"), c.QueryParams())
    if err != nil {
        return c.Redirect(http.StatusFound, h.failedURL(err.Error()))
    }
    if outcome.Success {
        return c.Redirect(http.StatusFound, h.successURL(outcome.Booking.ID))
    }
    return c.Redirect(http.StatusFound, h.failedURL(outcome.Message))
}

func (h *PaymentHandler) successURL(bookingID uint64) string {
    q := url.Values{}
    q.Set("bookingId", strconv.FormatUint(bookingID, 10))
    return h.FrontendURL + "/payment/success?" + q.Encode()
}

func (h *PaymentHandler) failedURL(message string) string {
    q := url.Values{}
    q.Set("message", message)
    return h.FrontendURL + "/payment/failed?" + q.Encode()
}

// Notify handles the server-to-server callback. The gateway retries until
// it receives RspCode 00, so every terminal outcome (including duplicates)
// must acknowledge with 00/02 and only genuine rejections use error codes.
func (h *PaymentHandler) Notify(c echo.Context) error {
    params := c.QueryParams()
    if len(params) == 0 {
        if form, err := c.FormParams(); err == nil {
            params = form
        }
    }
    outcome, err := h.Payments.HandleCallback(c.Request().Context(), c.Param("gateway"), params)
    if err != nil {
        return c.JSON(http.StatusOK, notifyAck(err))
    }
    if outcome.Duplicate {
        return c.JSON(http.StatusOK, echo.Map{"RspCode": "02", "Message": "Order already confirmed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"RspCode": "00", "Message": "Confirm success"})
}

// notifyAck maps a callback error to the gateway's acknowledgment codes.
func notifyAck(err error) echo.Map {
    switch {
    case errors.Is(err, gateway.ErrInvalidSignature):
        return echo.Map{"RspCode": "97", "Message": "Invalid signature"}
    case errors.Is(err, gateway.ErrUnknownOrder), errors.Is(err, repository.ErrNotFound):
        return echo.Map{"RspCode": "01", "Message": "Order not found"}
    case errors.Is(err, service.ErrAmountMismatch):
        return echo.Map{"RspCode": "04", "Message": "Invalid amount"}
    default:
        return echo.Map{"RspCode": "99", "Message": "Unknown error"}
    }
}
