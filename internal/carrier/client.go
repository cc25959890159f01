// Package carrier is a client for the Shiprocket shipping platform.
package carrier

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://apiv2.shiprocket.in"

const maxErrorBody = 512

var (
	_ order.Carrier       = (*Client)(nil)
	_ shipping.RateSource = (*Client)(nil)
)

// Config holds carrier credentials and endpoints.
type Config struct {
	BaseURL  string
	Email    string
	Password string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// Client calls the carrier API with a cached login token.
type Client struct {
	baseURL  string
	email    string
	password string

	http   *http.Client
	tokens TokenStore
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTokenStore replaces the in-memory token cache.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.tokens = s }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock overrides time.Now for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithTelemetry instruments outbound requests.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(c *Client) {
		c.http.Transport = otelhttp.NewTransport(c.http.Transport,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		)
	}
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:  strings.TrimRight(base, "/"),
		email:    cfg.Email,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout, Transport: http.DefaultTransport},
		tokens:   NewMemoryTokenStore(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// token returns a cached token with more than refreshMargin left, or logs in.
// Concurrent misses may each log in; the last write wins.
func (c *Client) token(ctx context.Context) (string, error) {
	lg := zctx.From(ctx)

	t, ok, err := c.tokens.Get(ctx)
	if err != nil {
		lg.Warn("Read carrier token cache", zap.Error(err))
	}
	if ok && t.usable(c.now()) {
		return t.Value, nil
	}

	value, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	t = Token{Value: value, ExpiresAt: c.now().Add(tokenTTL)}
	if err := c.tokens.Set(ctx, t); err != nil {
		lg.Warn("Write carrier token cache", zap.Error(err))
	}
	return value, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("email", func(e *jx.Encoder) { e.Str(c.email) })
		e.Field("password", func(e *jx.Encoder) { e.Str(c.password) })
	})

	data, status, err := c.send(ctx, http.MethodPost, "/v1/external/auth/login", e.Bytes(), "")
	if err != nil {
		return "", errors.Wrap(err, "login")
	}
	if status/100 != 2 {
		return "", &APIError{Op: "login", Status: status, Body: truncate(data)}
	}
	return parseToken(data)
}

// call performs an authenticated request. A 401 drops the cached token and
// retries once with a fresh login.
func (c *Client) call(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		data, status, err := c.send(ctx, method, path, body, tok)
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		if status == http.StatusUnauthorized && attempt == 0 {
			if err := c.tokens.Delete(ctx); err != nil {
				zctx.From(ctx).Warn("Drop carrier token", zap.Error(err))
			}
			continue
		}
		if status/100 != 2 {
			return data, &APIError{Op: op, Status: status, Body: truncate(data)}
		}
		return data, nil
	}
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) ([]byte, int, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "read response")
	}
	return data, resp.StatusCode, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
