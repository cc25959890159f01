// Package payment defines the gateway abstraction used by checkout.
package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Method is the customer's chosen payment method.
type Method string

const (
	MethodCOD      Method = "cod"
	MethodRazorpay Method = "razorpay"
	MethodPhonePe  Method = "phonepe"
)

var (
	// ErrUnknownMethod is returned for a method string that is not recognised.
	ErrUnknownMethod = errors.New("unknown payment method")
	// ErrMethodUnavailable is returned for a recognised method with no
	// configured gateway.
	ErrMethodUnavailable = errors.New("payment method unavailable")
	// ErrSignatureMismatch is returned when a provider payload fails
	// verification against the stored intent.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
)

// ParseMethod parses a user-supplied method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodCOD, MethodRazorpay, MethodPhonePe:
		return m, nil
	default:
		return "", errors.Wrap(ErrUnknownMethod, s)
	}
}

// Customer is passed to gateways for prefill.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// IntentRequest asks a gateway to create a remote payment for an order.
type IntentRequest struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
	Customer Customer
}

// Intent is a remote payment created by a gateway.
type Intent struct {
	ID       string          `json:"id"`
	Method   Method          `json:"method"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	// ClientParams are handed to the storefront to open the provider's checkout.
	ClientParams map[string]string `json:"client_params,omitempty"`
}

// Payload is the provider-supplied data returned to the storefront after
// the customer pays.
type Payload map[string]string

// Confirmation is a verified payment.
type Confirmation struct {
	PaymentID string
}

// Gateway is a payment provider adapter.
type Gateway interface {
	Method() Method
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// Verify checks payload against the stored intent. It returns
	// ErrSignatureMismatch when the payload does not authenticate.
	Verify(ctx context.Context, intent Intent, payload Payload) (*Confirmation, error)
}

// Registry resolves gateways by method.
type Registry struct {
	gateways map[Method]Gateway
}

// NewRegistry creates a Registry with the given gateways.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Method]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Method()] = g
	}
	return r
}

// Get returns the gateway for m, or ErrMethodUnavailable.
func (r *Registry) Get(m Method) (Gateway, error) {
	if r != nil {
		if g, ok := r.gateways[m]; ok {
			return g, nil
		}
	}
	return nil, errors.Wrapf(ErrMethodUnavailable, "%s", m)
}
