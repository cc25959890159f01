// Package handler exposes the storefront checkout API over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teakspice/storefront/internal/domain/auth"
	"github.com/teakspice/storefront/internal/domain/cart"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/settings"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

// Carts is the cart service.
type Carts interface {
	Snapshot(ctx context.Context, userID string) (*cart.Snapshot, error)
	AddItem(ctx context.Context, userID, productID, variantID string, qty int) (*cart.Snapshot, error)
	UpdateItem(ctx context.Context, userID, variantID string, qty int) (*cart.Snapshot, error)
	RemoveItem(ctx context.Context, userID, variantID string) (*cart.Snapshot, error)
}

// Coupons validates codes and lists the storefront-visible ones.
type Coupons interface {
	coupon.Validator
	Available(ctx context.Context) ([]coupon.Rule, error)
}

// Orders is the checkout and order lifecycle service.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	VerifyPayment(ctx context.Context, orderID, userID string, payload payment.Payload) (*order.Order, error)
	RetryPayment(ctx context.Context, orderID, userID string) (*order.Order, *payment.Intent, error)
	Get(ctx context.Context, orderID, userID string) (*order.Order, error)
	AdvanceStatus(ctx context.Context, orderID string, to order.Status) (*order.Order, error)
	Cancel(ctx context.Context, orderID string) (*order.Order, error)
}

// Fulfillment drives carrier shipments from the admin routes.
type Fulfillment interface {
	CreateShipment(ctx context.Context, orderID string) (*order.Shipment, error)
	Track(ctx context.Context, orderID string) (*order.Shipment, *order.Tracking, error)
}

// History answers the first-purchase question for coupon previews.
type History interface {
	HasCompletedOrder(ctx context.Context, userID string) (bool, error)
}

// Quoter computes shipping fees.
type Quoter interface {
	Calculate(ctx context.Context, cfg shipping.Config, req shipping.Request) shipping.Quote
}

// Deps are the collaborators of Handler.
type Deps struct {
	Carts       Carts
	Coupons     Coupons
	Orders      Orders
	Fulfillment Fulfillment
	History     History
	Shipping    Quoter
	Settings    settings.Repository
}

// Handler serves the /api routes.
type Handler struct {
	Deps
	now func() time.Time
}

// New creates a Handler.
func New(deps Deps) *Handler {
	return &Handler{Deps: deps, now: time.Now}
}

// Router mounts the API under /api behind sec. Admin routes additionally
// require the admin scope.
func (h *Handler) Router(sec *Security) chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(sec.Authenticate)

		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addCartItem)
		r.Patch("/cart/items/{variantID}", h.updateCartItem)
		r.Delete("/cart/items/{variantID}", h.removeCartItem)

		r.Get("/coupons", h.listCoupons)
		r.Post("/coupons/validate", h.validateCoupon)
		r.Post("/shipping/quote", h.quoteShipping)

		r.Post("/checkout", h.checkout)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/payment/verify", h.verifyPayment)
		r.Post("/orders/{id}/payment/retry", h.retryPayment)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireScope(auth.ScopeAdmin))
			r.Post("/orders/{id}/status", h.advanceStatus)
			r.Post("/orders/{id}/shipment", h.createShipment)
			r.Post("/orders/{id}/cancel", h.cancelOrder)
			r.Get("/orders/{id}/tracking", h.trackOrder)
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

// identity returns the caller set by Security.Authenticate.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
