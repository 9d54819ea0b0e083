// Package gateway implements the wire contract of the external payment
// gateway: redirect-URL construction for payment intents and signature
// verification for return/notification callbacks. The gateway is untrusted;
// every inbound callback must pass HMAC verification before any state is
// touched.
package gateway

import (
    "crypto/hmac"
    "crypto/sha256"
    "crypto/sha512"
    "encoding/hex"
    "errors"
    "fmt"
    "hash"
    "net/url"
    "os"
    "strconv"
    "strings"
    "time"
)

// ErrInvalidSignature is returned when a callback's secure hash does not
// match the payload. Callers must not mutate any state on this error.
var ErrInvalidSignature = errors.New("invalid signature")

// ErrUnknownOrder is returned when a callback carries an order reference
// that cannot be parsed or resolved.
var ErrUnknownOrder = errors.New("unknown order")

// Signature algorithms supported by the gateway contract. The bank-redirect
// gateway signs with HMAC-SHA512; the wallet variant with HMAC-SHA256.
const (
    AlgoHMACSHA512 = "HMACSHA512"
    AlgoHMACSHA256 = "HMACSHA256"
)

// Parameter names of the gateway wire format.
const (
    paramVersion    = "vnp_Version"
    paramCommand    = "vnp_Command"
    paramTmnCode    = "vnp_TmnCode"
    paramAmount     = "vnp_Amount"
    paramCurrency   = "vnp_CurrCode"
    paramTxnRef     = "vnp_TxnRef"
    paramOrderInfo  = "vnp_OrderInfo"
    paramCreateDate = "vnp_CreateDate"
    paramIPAddr     = "vnp_IpAddr"
    paramReturnURL  = "vnp_ReturnUrl"
    paramRspCode    = "vnp_ResponseCode"
    paramTxnNo      = "vnp_TransactionNo"
    paramSecureHash = "vnp_SecureHash"
)

// RspCodeSuccess is the gateway's zero result code.
const RspCodeSuccess = "00"

// dateLayout is the gateway's native yyyyMMddHHmmss format, UTC-naive.
const dateLayout = "20060102150405"

// Config carries one gateway's credentials and endpoints, loaded from the
// per-gateway environment triple.
type Config struct {
    Name       string // path segment selecting this gateway ("vnpay", "wallet")
    TmnCode    string // terminal/merchant code
    HashSecret string // HMAC key
    PayURL     string // gateway-hosted payment page
    ReturnURL  string // where the gateway redirects the user agent back to
    Algo       string // AlgoHMACSHA512 or AlgoHMACSHA256
}

// Gateway signs outbound intents and verifies inbound callbacks for one
// configured gateway.
type Gateway struct {
    cfg Config
}

func New(cfg Config) *Gateway { return &Gateway{cfg: cfg} }

// Name returns the path segment this gateway is mounted under.
func (g *Gateway) Name() string { return g.cfg.Name }

// Registry maps the {gateway} path segment to a configured Gateway.
type Registry map[string]*Gateway

// LoadFromEnv builds the registry from environment triples:
// VNP_TMN_CODE/VNP_HASH_SECRET/VNP_URL/VNP_RETURN_URL for the bank-redirect
// gateway and WALLET_* for the wallet variant. Gateways with an empty
// secret are left unconfigured.
func LoadFromEnv() Registry {
    reg := Registry{}
    add := func(name, prefix, algo string) {
        cfg := Config{
            Name:       name,
            TmnCode:    os.Getenv(prefix + "_TMN_CODE"),
            HashSecret: os.Getenv(prefix + "_HASH_SECRET"),
            PayURL:     os.Getenv(prefix + "_URL"),
            ReturnURL:  os.Getenv(prefix + "_RETURN_URL"),
            Algo:       algo,
        }
        if cfg.HashSecret != "" {
            reg[name] = New(cfg)
        }
    }
    add("vnpay", "VNP", AlgoHMACSHA512)
    add("wallet", "WALLET", AlgoHMACSHA256)
    return reg
}

func (g *Gateway) mac() hash.Hash {
    if g.cfg.Algo == AlgoHMACSHA256 {
        return hmac.New(sha256.New, []byte(g.cfg.HashSecret))
    }
    return hmac.New(sha512.New, []byte(g.cfg.HashSecret))
}

// Sign computes the hex HMAC over the URL-form-encoded, alphabetically
// sorted parameter list, excluding the signature field itself.
// url.Values.Encode already sorts by key, which is exactly the canonical
// form the gateway expects.
func (g *Gateway) Sign(params url.Values) string {
    clean := url.Values{}
    for k, vs := range params {
        if k == paramSecureHash {
            continue
        }
        for _, v := range vs {
            clean.Add(k, v)
        }
    }
    mac := g.mac()
    mac.Write([]byte(clean.Encode()))
    return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the callback's secure hash using a constant-time
// comparison.
func (g *Gateway) Verify(params url.Values) bool {
    got, err := hex.DecodeString(params.Get(paramSecureHash))
    if err != nil || len(got) == 0 {
        return false
    }
    want, err := hex.DecodeString(g.Sign(params))
    if err != nil {
        return false
    }
    return hmac.Equal(got, want)
}

// Intent is the outbound half of a payment attempt.
type Intent struct {
    OrderRef    string
    AmountCents uint32
    OrderInfo   string
    ClientIP    string
    CreatedAt   time.Time
}

// BuildRedirectURL renders the signed gateway-hosted payment URL for an
// intent. Amounts are multiplied by 100 per the gateway's "× 100" minor
// unit encoding; dates use the gateway's yyyyMMddHHmmss format.
func (g *Gateway) BuildRedirectURL(in Intent) string {
    params := url.Values{}
    params.Set(paramVersion, "2.1.0")
    params.Set(paramCommand, "pay")
    params.Set(paramTmnCode, g.cfg.TmnCode)
    params.Set(paramAmount, strconv.FormatUint(uint64(in.AmountCents)*100, 10))
    params.Set(paramCurrency, "VND")
    params.Set(paramTxnRef, in.OrderRef)
    params.Set(paramOrderInfo, in.OrderInfo)
    params.Set(paramCreateDate, in.CreatedAt.UTC().Format(dateLayout))
    params.Set(paramIPAddr, in.ClientIP)
    params.Set(paramReturnURL, g.cfg.ReturnURL)
    sig := g.Sign(params)
    return g.cfg.PayURL + "?" + params.Encode() + "&" + paramSecureHash + "=" + sig
}

// Callback is the authenticated content of a return or notification
// callback.
type Callback struct {
    OrderRef      string
    TransactionID string
    ResponseCode  string
    AmountCents   uint64
    Success       bool
}

// ParseCallback authenticates and decodes a callback. It returns
// ErrInvalidSignature before reading anything else out of the payload, so
// forged parameters never influence control flow.
func (g *Gateway) ParseCallback(params url.Values) (*Callback, error) {
    if !g.Verify(params) {
        return nil, ErrInvalidSignature
    }
    ref := params.Get(paramTxnRef)
    if ref == "" {
        return nil, ErrUnknownOrder
    }
    amount, _ := strconv.ParseUint(params.Get(paramAmount), 10, 64)
    code := params.Get(paramRspCode)
    return &Callback{
        OrderRef:      ref,
        TransactionID: params.Get(paramTxnNo),
        ResponseCode:  code,
        AmountCents:   amount / 100,
        Success:       code == RspCodeSuccess,
    }, nil
}

// MakeOrderRef renders the gateway-scoped order reference
// "{bookingID}-{unixMillis}".
func MakeOrderRef(bookingID uint64, at time.Time) string {
    return fmt.Sprintf("%d-%d", bookingID, at.UnixMilli())
}

// SplitOrderRef recovers the booking id from an order reference.
func SplitOrderRef(ref string) (uint64, error) {
    idPart, _, ok := strings.Cut(ref, "-")
    if !ok {
        return 0, ErrUnknownOrder
    }
    id, err := strconv.ParseUint(idPart, 10, 64)
    if err != nil || id == 0 {
        return 0, ErrUnknownOrder
    }
    return id, nil
}

// DeclineMessage translates a non-zero gateway result code into the message
// shown on the failure page.
func DeclineMessage(code string) string {
    switch code {
    case "07":
        return "Transaction flagged as suspicious by the gateway"
    case "09":
        return "Card or account not registered for online payment"
    case "10":
        return "Card verification failed too many times"
    case "11":
        return "Payment window expired"
    case "12":
        return "Card or account is locked"
    case "13":
        return "Wrong one-time password"
    case "24":
        return "Payment cancelled by the customer"
    case "51":
        return "Insufficient funds"
    case "65":
        return "Daily transaction limit exceeded"
    default:
        return "Payment was declined by the gateway (code " + code + ")"
    }
}
