// Package razorpay implements the Razorpay payment gateway.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/payment"
)

// DefaultBaseURL is the Razorpay API root.
const DefaultBaseURL = "https://api.razorpay.com"

// Payload keys returned by Razorpay Checkout.
const (
	KeyOrderID   = "razorpay_order_id"
	KeyPaymentID = "razorpay_payment_id"
	KeySignature = "razorpay_signature"
)

var (
	_ payment.Gateway = (*Gateway)(nil)

	paiseFactor = decimal.NewFromInt(100)
)

// Config holds API credentials.
type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// Gateway creates Razorpay orders and verifies checkout signatures.
type Gateway struct {
	keyID   string
	secret  []byte
	baseURL string
	http    *http.Client
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(g *Gateway) { g.http = h }
}

// WithTelemetry instruments outbound requests.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(g *Gateway) {
		g.http.Transport = otelhttp.NewTransport(g.http.Transport,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		)
	}
}

// New creates a Gateway.
func New(cfg Config, opts ...Option) *Gateway {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g := &Gateway{
		keyID:   cfg.KeyID,
		secret:  []byte(cfg.KeySecret),
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: timeout, Transport: http.DefaultTransport},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) Method() payment.Method { return payment.MethodRazorpay }

// toPaise converts a rupee amount to integer paise.
func toPaise(amount decimal.Decimal) int64 {
	return amount.Mul(paiseFactor).Round(0).IntPart()
}

// CreateIntent creates a Razorpay order for the amount.
func (g *Gateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(toPaise(req.Amount)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(req.Currency) })
		e.Field("receipt", func(e *jx.Encoder) { e.Str(req.OrderID) })
		e.Field("notes", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("order_id", func(e *jx.Encoder) { e.Str(req.OrderID) })
			})
		})
	})

	data, err := g.do(ctx, http.MethodPost, "/v1/orders", e.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	ro, err := decodeOrder(data)
	if err != nil {
		return nil, err
	}
	if ro.ID == "" {
		return nil, errors.New("create order: response has no id")
	}

	return &payment.Intent{
		ID:       ro.ID,
		Method:   payment.MethodRazorpay,
		Amount:   req.Amount,
		Currency: req.Currency,
		ClientParams: map[string]string{
			"key":           g.keyID,
			"order_id":      ro.ID,
			"amount":        fmt.Sprint(ro.Amount),
			"currency":      req.Currency,
			"prefill_name":  req.Customer.Name,
			"prefill_email": req.Customer.Email,
			"prefill_phone": req.Customer.Phone,
			"receipt":       req.OrderID,
		},
	}, nil
}

// Verify authenticates a checkout payload. The provider order in the payload
// must be the stored intent, the remote order amount must match the intent,
// and the signature must be HMAC-SHA256 of "order_id|payment_id" under the
// key secret.
func (g *Gateway) Verify(ctx context.Context, intent payment.Intent, payload payment.Payload) (*payment.Confirmation, error) {
	orderID := payload[KeyOrderID]
	paymentID := payload[KeyPaymentID]
	signature := payload[KeySignature]

	if orderID == "" || paymentID == "" || signature == "" {
		return nil, errors.Wrap(payment.ErrSignatureMismatch, "incomplete payload")
	}
	if orderID != intent.ID {
		return nil, errors.Wrap(payment.ErrSignatureMismatch, "payload is for another order")
	}
	if !validSignature(g.secret, orderID, paymentID, signature) {
		return nil, errors.Wrap(payment.ErrSignatureMismatch, "signature")
	}

	data, err := g.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch order")
	}
	ro, err := decodeOrder(data)
	if err != nil {
		return nil, err
	}
	if want := toPaise(intent.Amount); ro.Amount != want {
		zctx.From(ctx).Warn("Razorpay amount mismatch",
			zap.String("razorpay_order_id", orderID),
			zap.Int64("remote", ro.Amount),
			zap.Int64("expected", want),
		)
		return nil, errors.Wrap(payment.ErrSignatureMismatch, "amount")
	}
	return &payment.Confirmation{PaymentID: paymentID}, nil
}

func sign(secret []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret []byte, orderID, paymentID, signature string) bool {
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(sign(secret, orderID, paymentID))
	return hmac.Equal(got, want)
}

type remoteOrder struct {
	ID     string
	Amount int64
	Status string
}

func decodeOrder(data []byte) (remoteOrder, error) {
	var ro remoteOrder
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			ro.ID, err = d.Str()
		case "amount":
			ro.Amount, err = d.Int64()
		case "status":
			ro.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return remoteOrder{}, errors.Wrap(err, "decode order")
	}
	return ro, nil
}

// APIError is a non-2xx response from Razorpay.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("razorpay: status %d: %s: %s", e.Status, e.Code, e.Description)
}

func (g *Gateway) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, r)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.SetBasicAuth(g.keyID, string(g.secret))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode/100 != 2 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// decodeAPIError reads {"error":{"code":...,"description":...}}.
func decodeAPIError(status int, data []byte) *APIError {
	e := &APIError{Status: status}
	_ = jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "error" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "code":
				e.Code, err = d.Str()
			case "description":
				e.Description, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	})
	return e
}
