package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature is returned when a VNPay callback fails verification.
var ErrBadSignature = errors.New("payments: vnpay signature mismatch")

const (
	vnpayVersion     = "2.1.0"
	vnpayDateLayout  = "20060102150405"
	vnpayPaymentTTL  = 15 * time.Minute
	vnpayAmountScale = 100
)

// IPN response codes understood by VNPay.
const (
	IPNConfirmed        = "00"
	IPNOrderNotFound    = "01"
	IPNAlreadyConfirmed = "02"
	IPNInvalidAmount    = "04"
	IPNBadSignature     = "97"
	IPNUnknownError     = "99"
)

var vnpayZone = time.FixedZone("ICT", 7*60*60)

// VNPayConfig holds merchant credentials.
type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

// VNPay signs payment URLs and verifies callbacks.
type VNPay struct {
	cfg VNPayConfig
}

func NewVNPay(cfg VNPayConfig) *VNPay {
	return &VNPay{cfg: cfg}
}

// Configured reports whether merchant credentials are present.
func (v *VNPay) Configured() bool {
	return v != nil && v.cfg.TmnCode != "" && v.cfg.HashSecret != "" && v.cfg.PayURL != ""
}

// PayRequest describes one payment URL.
type PayRequest struct {
	TxnRef    string
	Amount    int64
	OrderInfo string
	IPAddr    string
	CreatedAt time.Time
}

// PayURL builds the signed redirect URL for req.
func (v *VNPay) PayURL(req PayRequest) (string, error) {
	if !v.Configured() {
		return "", errors.New("payments: vnpay not configured")
	}
	created := req.CreatedAt.In(vnpayZone)
	ip := req.IPAddr
	if ip == "" {
		ip = "127.0.0.1"
	}
	params := url.Values{}
	params.Set("vnp_Version", vnpayVersion)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", v.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*vnpayAmountScale, 10))
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", req.TxnRef)
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_ReturnUrl", v.cfg.ReturnURL)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", created.Format(vnpayDateLayout))
	params.Set("vnp_ExpireDate", created.Add(vnpayPaymentTTL).Format(vnpayDateLayout))

	query := canonicalQuery(params)
	return v.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + v.sign(query), nil
}

// Callback is a verified VNPay return or IPN request.
type Callback struct {
	TxnRef            string
	Amount            int64
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
}

// Succeeded reports whether VNPay captured the payment.
func (c Callback) Succeeded() bool {
	return c.ResponseCode == "00" && (c.TransactionStatus == "" || c.TransactionStatus == "00")
}

// Outcome maps the callback to a reconciliation outcome.
func (c Callback) Outcome() Outcome {
	if c.Succeeded() {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// EventID identifies the callback for duplicate detection.
func (c Callback) EventID() string {
	return c.TxnRef + ":" + c.TransactionNo
}

// Verify checks the signature of a callback query and parses it.
func (v *VNPay) Verify(query url.Values) (Callback, error) {
	if v == nil || v.cfg.HashSecret == "" {
		return Callback{}, ErrBadSignature
	}
	got := strings.ToLower(query.Get("vnp_SecureHash"))
	signed := url.Values{}
	for k, vals := range query {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" || !strings.HasPrefix(k, "vnp_") {
			continue
		}
		if len(vals) > 0 && vals[0] != "" {
			signed.Set(k, vals[0])
		}
	}
	want := v.sign(canonicalQuery(signed))
	if got == "" || !hmac.Equal([]byte(got), []byte(want)) {
		return Callback{}, ErrBadSignature
	}

	cb := Callback{
		TxnRef:            query.Get("vnp_TxnRef"),
		ResponseCode:      query.Get("vnp_ResponseCode"),
		TransactionStatus: query.Get("vnp_TransactionStatus"),
		TransactionNo:     query.Get("vnp_TransactionNo"),
		BankCode:          query.Get("vnp_BankCode"),
	}
	if raw := query.Get("vnp_Amount"); raw != "" {
		scaled, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("payments: vnpay amount %q: %w", raw, err)
		}
		cb.Amount = scaled / vnpayAmountScale
	}
	if cb.TxnRef == "" {
		return Callback{}, errors.New("payments: vnpay callback without vnp_TxnRef")
	}
	return cb, nil
}

func (v *VNPay) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(v.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery encodes params sorted by key with form encoding, the
// representation VNPay signs.
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}
