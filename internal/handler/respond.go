package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/address"
	"github.com/teakspice/storefront/internal/domain/cart"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/product"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

// badRequest is a malformed request body or parameter.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &badRequest{msg: "invalid request body: " + err.Error()}
	}
	return nil
}

// fail maps a domain error to a status and error body. Unclassified errors
// are logged and answered with 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var (
		bad       *badRequest
		invalid   *order.ValidationError
		addrErr   *address.ValidationError
		oos       *cart.OutOfStockError
		payErr    *order.PaymentError
		transErr  *order.TransitionError
		cancelErr *order.CancellationError
		fulfilErr *order.FulfillmentError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: bad.msg}
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, errorBody{Code: invalid.Code, Message: invalid.Message, Field: invalid.Field}
	case errors.As(err, &addrErr):
		return http.StatusUnprocessableEntity, errorBody{Code: order.CodeInvalidAddress, Message: addrErr.Reason, Field: addrErr.Field}
	case errors.As(err, &oos):
		return http.StatusConflict, errorBody{Code: order.CodeOutOfStock, Message: oos.Error(), Field: oos.VariantID}
	case errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, errorBody{Code: "INVALID_QUANTITY", Message: err.Error()}
	case errors.Is(err, cart.ErrItemNotInCart):
		return http.StatusNotFound, errorBody{Code: "ITEM_NOT_IN_CART", Message: err.Error()}
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "PRODUCT_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, address.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "ADDRESS_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "ORDER_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, payment.ErrUnknownMethod):
		return http.StatusBadRequest, errorBody{Code: "UNKNOWN_PAYMENT_METHOD", Message: err.Error()}
	case errors.Is(err, payment.ErrMethodUnavailable):
		return http.StatusUnprocessableEntity, errorBody{Code: "PAYMENT_METHOD_UNAVAILABLE", Message: err.Error()}
	case errors.As(err, &payErr):
		return http.StatusPaymentRequired, errorBody{Code: "PAYMENT_FAILED", Message: payErr.Err.Error(), OrderID: payErr.OrderID}
	case errors.Is(err, order.ErrNotAwaitingPayment):
		return http.StatusConflict, errorBody{Code: "NOT_AWAITING_PAYMENT", Message: err.Error()}
	case errors.As(err, &transErr):
		return http.StatusConflict, errorBody{Code: "INVALID_TRANSITION", Message: transErr.Error()}
	case errors.Is(err, order.ErrStateConflict):
		return http.StatusConflict, errorBody{Code: "STATE_CONFLICT", Message: err.Error()}
	case errors.As(err, &cancelErr):
		return http.StatusBadGateway, errorBody{Code: "CANCELLATION_FAILED", Message: cancelErr.Err.Error(), OrderID: cancelErr.OrderID}
	case errors.Is(err, order.ErrNotShippable):
		return http.StatusConflict, errorBody{Code: "NOT_SHIPPABLE", Message: err.Error()}
	case errors.Is(err, order.ErrNoShipment):
		return http.StatusNotFound, errorBody{Code: "NO_SHIPMENT", Message: err.Error()}
	case errors.As(err, &fulfilErr):
		return http.StatusBadGateway, errorBody{Code: "FULFILLMENT_FAILED", Message: fulfilErr.Error(), OrderID: fulfilErr.OrderID}
	default:
		return http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal server error"}
	}
}

// rejectionBody describes a coupon that did not apply.
type rejectionBody struct {
	Code      string `json:"code"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	Shortfall string `json:"shortfall,omitempty"`
}

func newRejectionBody(r *coupon.Rejection) *rejectionBody {
	if r == nil {
		return nil
	}
	b := &rejectionBody{Code: r.Code, Reason: string(r.Reason), Message: r.Message}
	if r.Reason == coupon.ReasonMinPurchaseNotMet {
		b.Shortfall = r.Shortfall.StringFixed(2)
	}
	return b
}
