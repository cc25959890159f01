package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teakspice/storefront/internal/domain/auth"
	"github.com/teakspice/storefront/internal/domain/cart"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/settings"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

var pepper = []byte("test-pepper")

// --- Mocks ---

type mockSessions struct {
	byHash map[string]*auth.Session
	err    error
}

func (m *mockSessions) FindByHash(_ context.Context, hash string) (*auth.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return s, nil
}

func (m *mockSessions) Create(_ context.Context, s *auth.Session) error {
	m.byHash[s.TokenHash] = s
	return nil
}

type mockCarts struct {
	snap *cart.Snapshot
	err  error

	added cart.Item
}

func (m *mockCarts) Snapshot(context.Context, string) (*cart.Snapshot, error) { return m.snap, m.err }

func (m *mockCarts) AddItem(_ context.Context, _, productID, variantID string, qty int) (*cart.Snapshot, error) {
	m.added = cart.Item{ProductID: productID, VariantID: variantID, Quantity: qty}
	return m.snap, m.err
}

func (m *mockCarts) UpdateItem(context.Context, string, string, int) (*cart.Snapshot, error) {
	return m.snap, m.err
}

func (m *mockCarts) RemoveItem(context.Context, string, string) (*cart.Snapshot, error) {
	return m.snap, m.err
}

type mockCoupons struct {
	discount  *coupon.Discount
	err       error
	available []coupon.Rule

	customer coupon.Customer
}

func (m *mockCoupons) Validate(_ context.Context, _ string, _ []coupon.Item, c coupon.Customer) (*coupon.Discount, error) {
	m.customer = c
	return m.discount, m.err
}

func (m *mockCoupons) Available(context.Context) ([]coupon.Rule, error) { return m.available, nil }

type mockOrders struct {
	result *order.PlaceOrderResult
	order  *order.Order
	intent *payment.Intent
	err    error

	placed  order.PlaceOrderRequest
	getUser string
	status  order.Status
}

func (m *mockOrders) PlaceOrder(_ context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error) {
	m.placed = req
	return m.result, m.err
}

func (m *mockOrders) VerifyPayment(context.Context, string, string, payment.Payload) (*order.Order, error) {
	return m.order, m.err
}

func (m *mockOrders) RetryPayment(context.Context, string, string) (*order.Order, *payment.Intent, error) {
	return m.order, m.intent, m.err
}

func (m *mockOrders) Get(_ context.Context, _, userID string) (*order.Order, error) {
	m.getUser = userID
	return m.order, m.err
}

func (m *mockOrders) AdvanceStatus(_ context.Context, _ string, to order.Status) (*order.Order, error) {
	m.status = to
	return m.order, m.err
}

func (m *mockOrders) Cancel(context.Context, string) (*order.Order, error) { return m.order, m.err }

type mockFulfillment struct {
	shipment *order.Shipment
	tracking *order.Tracking
	err      error
}

func (m *mockFulfillment) CreateShipment(context.Context, string) (*order.Shipment, error) {
	return m.shipment, m.err
}

func (m *mockFulfillment) Track(context.Context, string) (*order.Shipment, *order.Tracking, error) {
	return m.shipment, m.tracking, m.err
}

type mockHistory struct{ completed bool }

func (m mockHistory) HasCompletedOrder(context.Context, string) (bool, error) { return m.completed, nil }

type mockQuoter struct{ req shipping.Request }

func (m *mockQuoter) Calculate(_ context.Context, _ shipping.Config, req shipping.Request) shipping.Quote {
	m.req = req
	return shipping.Quote{Fee: decimal.NewFromInt(50), Message: "standard delivery"}
}

type mockSettings struct{}

func (mockSettings) Get(context.Context) (*settings.Settings, error) {
	s := settings.Default()
	return &s, nil
}

func (mockSettings) Save(context.Context, *settings.Settings) error { return nil }

// --- Helpers ---

type fixture struct {
	carts       *mockCarts
	coupons     *mockCoupons
	orders      *mockOrders
	fulfillment *mockFulfillment
	quoter      *mockQuoter
	sessions    *mockSessions
	router      http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		carts:       &mockCarts{snap: sampleSnapshot()},
		coupons:     &mockCoupons{},
		orders:      &mockOrders{},
		fulfillment: &mockFulfillment{},
		quoter:      &mockQuoter{},
		sessions:    &mockSessions{byHash: map[string]*auth.Session{}},
	}
	past := time.Now().Add(-time.Hour)
	for token, s := range map[string]*auth.Session{
		"customer-token": {ID: "s1", Identity: auth.Identity{UserID: "u1", Email: "asha@example.com"}},
		"admin-token":    {ID: "s2", Identity: auth.Identity{UserID: "ops", Scopes: []string{auth.ScopeAdmin}}},
		"expired-token":  {ID: "s3", Identity: auth.Identity{UserID: "u9"}, ExpiresAt: &past},
	} {
		s.TokenHash = HashToken(pepper, token)
		require.NoError(t, f.sessions.Create(context.Background(), s))
	}

	h := New(Deps{
		Carts:       f.carts,
		Coupons:     f.coupons,
		Orders:      f.orders,
		Fulfillment: f.fulfillment,
		History:     mockHistory{completed: true},
		Shipping:    f.quoter,
		Settings:    mockSettings{},
	})
	f.router = h.Router(NewSecurity(f.sessions, pepper))
	return f
}

func sampleSnapshot() *cart.Snapshot {
	return &cart.Snapshot{
		UserID: "u1",
		Lines: []cart.Line{{
			ProductID: "garam-masala", CategoryID: "spices", VariantID: "gm-100", ProductName: "Garam Masala",
			Quantity: 2, UnitPrice: decimal.NewFromInt(120), Subtotal: decimal.NewFromInt(240),
			WeightKg: decimal.RequireFromString("0.1"), Stock: 10,
		}},
		Subtotal: decimal.NewFromInt(240),
	}
}

func sampleOrder() *order.Order {
	return &order.Order{
		ID:          "ord-1",
		UserID:      "u1",
		Status:      order.StatusPending,
		Subtotal:    decimal.NewFromInt(240),
		ShippingFee: decimal.NewFromInt(50),
		TotalAmount: decimal.NewFromInt(290),
		Payment:     order.Payment{Method: payment.MethodRazorpay, Status: order.PaymentPending, IntentID: "order_X"},
		Notes:       []order.Note{{Kind: order.NoteCoupon, Message: "cap reached"}},
	}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	for _, tt := range []struct {
		name   string
		token  string
		path   string
		status int
		code   string
	}{
		{"missing token", "", "/api/cart", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown token", "nope", "/api/cart", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"expired session", "expired-token", "/api/cart", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"customer", "customer-token", "/api/cart", http.StatusOK, ""},
		{"customer on admin route", "customer-token", "/api/admin/orders/ord-1/tracking", http.StatusForbidden, "FORBIDDEN"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, http.MethodGet, tt.path, tt.token, "")
			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
		})
	}

	t.Run("repository failure", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.err = errors.New("db down")
		w, _ := f.do(t, http.MethodGet, "/api/cart", "customer-token", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCartRoutes(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/api/cart", "customer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "240", body["subtotal"])
	assert.EqualValues(t, 2, body["total_quantity"])

	w, _ = f.do(t, http.MethodPost, "/api/cart/items", "customer-token",
		`{"product_id":"garam-masala","variant_id":"gm-100","quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cart.Item{ProductID: "garam-masala", VariantID: "gm-100", Quantity: 3}, f.carts.added)

	w, body = f.do(t, http.MethodPost, "/api/cart/items", "customer-token", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", body["code"])

	f.carts.err = &cart.OutOfStockError{VariantID: "gm-100", Requested: 12, Available: 10}
	w, body = f.do(t, http.MethodPatch, "/api/cart/items/gm-100", "customer-token", `{"quantity":12}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "OUT_OF_STOCK", body["code"])
	assert.Equal(t, "gm-100", body["field"])

	f.carts.err = cart.ErrItemNotInCart
	w, body = f.do(t, http.MethodDelete, "/api/cart/items/gm-999", "customer-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ITEM_NOT_IN_CART", body["code"])
}

func TestValidateCoupon(t *testing.T) {
	t.Run("applies", func(t *testing.T) {
		f := newFixture(t)
		f.coupons.discount = &coupon.Discount{
			Code: "WELCOME10", Amount: decimal.NewFromInt(24), EligibleSubtotal: decimal.NewFromInt(240),
		}
		w, body := f.do(t, http.MethodPost, "/api/coupons/validate", "customer-token", `{"code":"welcome10"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, "24", body["discount"])
		assert.Equal(t, coupon.Customer{UserID: "u1", HasCompletedPriorOrder: true}, f.coupons.customer)
	})

	t.Run("rejected with shortfall", func(t *testing.T) {
		f := newFixture(t)
		f.coupons.err = &coupon.Rejection{
			Code: "BIG500", Reason: coupon.ReasonMinPurchaseNotMet, Message: "add more", Shortfall: decimal.NewFromInt(260),
		}
		w, body := f.do(t, http.MethodPost, "/api/coupons/validate", "customer-token", `{"code":"BIG500"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, body["valid"])
		rej := body["rejection"].(map[string]any)
		assert.Equal(t, "MIN_PURCHASE_NOT_MET", rej["reason"])
		assert.Equal(t, "260.00", rej["shortfall"])
	})

	t.Run("empty cart", func(t *testing.T) {
		f := newFixture(t)
		f.carts.snap = &cart.Snapshot{UserID: "u1"}
		w, body := f.do(t, http.MethodPost, "/api/coupons/validate", "customer-token", `{"code":"X"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, order.CodeEmptyCart, body["code"])
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		f.coupons.err = errors.New("connection reset")
		w, body := f.do(t, http.MethodPost, "/api/coupons/validate", "customer-token", `{"code":"X"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "INTERNAL", body["code"])
	})
}

func TestListCoupons(t *testing.T) {
	f := newFixture(t)
	f.coupons.available = []coupon.Rule{{Code: "WELCOME10", DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(10)}}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/coupons", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out []couponResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "WELCOME10", out[0].Code)
	assert.False(t, out[0].MaxDiscount.Valid)
}

func TestQuoteShipping(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/shipping/quote", "customer-token", `{"pincode":"5600"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, order.CodeInvalidAddress, body["code"])

	w, body = f.do(t, http.MethodPost, "/api/shipping/quote", "customer-token", `{"pincode":"560001","payment_method":"cod"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "50", body["fee"])
	assert.True(t, f.quoter.req.COD)
	assert.True(t, decimal.NewFromInt(240).Equal(f.quoter.req.CartTotal))
	assert.True(t, decimal.RequireFromString("0.2").Equal(f.quoter.req.WeightKg))
}

func TestCheckout(t *testing.T) {
	t.Run("gateway payment with rejected coupon", func(t *testing.T) {
		f := newFixture(t)
		f.orders.result = &order.PlaceOrderResult{
			Order:           sampleOrder(),
			Intent:          &payment.Intent{ID: "order_X", Method: payment.MethodRazorpay, Amount: decimal.NewFromInt(290), Currency: "INR"},
			CouponRejection: &coupon.Rejection{Code: "OLD", Reason: coupon.ReasonExpired, Message: "expired"},
		}
		w, body := f.do(t, http.MethodPost, "/api/checkout", "customer-token",
			`{"address_id":"a1","payment_method":"Razorpay","coupon_code":"old"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		assert.Equal(t, order.PlaceOrderRequest{
			UserID: "u1", Email: "asha@example.com", AddressID: "a1",
			PaymentMethod: payment.MethodRazorpay, CouponCode: "old",
		}, f.orders.placed)

		o := body["order"].(map[string]any)
		assert.Equal(t, "ord-1", o["id"])
		assert.Equal(t, "290", o["total_amount"])
		assert.NotContains(t, o, "notes")
		assert.Equal(t, "order_X", body["payment_intent"].(map[string]any)["id"])
		assert.Equal(t, "EXPIRED", body["coupon_rejection"].(map[string]any)["reason"])
	})

	for _, tt := range []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"unknown method", `{"address_id":"a1","payment_method":"barter"}`, nil, http.StatusBadRequest, "UNKNOWN_PAYMENT_METHOD"},
		{"missing address", `{"payment_method":"cod"}`, nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"malformed body", `{`, nil, http.StatusBadRequest, "BAD_REQUEST"},
		{
			"empty cart", `{"address_id":"a1","payment_method":"cod"}`,
			&order.ValidationError{Code: order.CodeEmptyCart, Message: "cart is empty"},
			http.StatusUnprocessableEntity, order.CodeEmptyCart,
		},
		{
			"gateway unavailable", `{"address_id":"a1","payment_method":"phonepe"}`,
			errors.Wrap(payment.ErrMethodUnavailable, "phonepe"),
			http.StatusUnprocessableEntity, "PAYMENT_METHOD_UNAVAILABLE",
		},
		{
			"intent failed after placement", `{"address_id":"a1","payment_method":"razorpay"}`,
			&order.PaymentError{OrderID: "ord-2", Step: "create_intent", Err: errors.New("gateway timeout")},
			http.StatusPaymentRequired, "PAYMENT_FAILED",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.orders.err = tt.err
			w, body := f.do(t, http.MethodPost, "/api/checkout", "customer-token", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	f.orders.order = sampleOrder()

	w, body := f.do(t, http.MethodGet, "/api/orders/ord-1", "customer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", f.orders.getUser)
	assert.NotContains(t, body, "notes")
	assert.Equal(t, "razorpay", body["payment"].(map[string]any)["method"])

	w, body = f.do(t, http.MethodGet, "/api/orders/ord-1", "admin-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.orders.getUser)
	assert.Len(t, body["notes"], 1)

	f.orders.err = order.ErrNotFound
	w, body = f.do(t, http.MethodGet, "/api/orders/ord-x", "customer-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", body["code"])
}

func TestPaymentRoutes(t *testing.T) {
	f := newFixture(t)
	confirmed := sampleOrder()
	confirmed.Status = order.StatusConfirmed
	confirmed.Payment.Status = order.PaymentCompleted
	f.orders.order = confirmed

	w, body := f.do(t, http.MethodPost, "/api/orders/ord-1/payment/verify", "customer-token",
		`{"razorpay_order_id":"order_X","razorpay_payment_id":"pay_1","razorpay_signature":"ab"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", body["status"])

	f.orders.err = &order.PaymentError{OrderID: "ord-1", Step: "verify", Err: payment.ErrSignatureMismatch}
	w, body = f.do(t, http.MethodPost, "/api/orders/ord-1/payment/verify", "customer-token", `{}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "ord-1", body["order_id"])

	f.orders.err = order.ErrNotAwaitingPayment
	w, body = f.do(t, http.MethodPost, "/api/orders/ord-1/payment/retry", "customer-token", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_AWAITING_PAYMENT", body["code"])

	f.orders.err = nil
	f.orders.order = sampleOrder()
	f.orders.intent = &payment.Intent{ID: "order_Y"}
	w, body = f.do(t, http.MethodPost, "/api/orders/ord-1/payment/retry", "customer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order_Y", body["payment_intent"].(map[string]any)["id"])
}

func TestAdminRoutes(t *testing.T) {
	t.Run("advance status", func(t *testing.T) {
		f := newFixture(t)
		f.orders.order = sampleOrder()
		w, _ := f.do(t, http.MethodPost, "/api/admin/orders/ord-1/status", "admin-token", `{"status":"processing"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, order.StatusProcessing, f.orders.status)

		w, body := f.do(t, http.MethodPost, "/api/admin/orders/ord-1/status", "admin-token", `{"status":"lost"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "BAD_REQUEST", body["code"])

		f.orders.err = &order.TransitionError{From: order.StatusDelivered, To: order.StatusShipped}
		w, body = f.do(t, http.MethodPost, "/api/admin/orders/ord-1/status", "admin-token", `{"status":"shipped"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "INVALID_TRANSITION", body["code"])
	})

	t.Run("cancel refused by carrier", func(t *testing.T) {
		f := newFixture(t)
		f.orders.err = &order.CancellationError{OrderID: "ord-1", Err: errors.New("already picked up")}
		w, body := f.do(t, http.MethodPost, "/api/admin/orders/ord-1/cancel", "admin-token", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "CANCELLATION_FAILED", body["code"])
		assert.Equal(t, "already picked up", body["message"])
	})

	t.Run("shipment", func(t *testing.T) {
		f := newFixture(t)
		f.fulfillment.shipment = &order.Shipment{CarrierOrderID: "9001", ShipmentID: "7001", AWBCode: "1410111"}
		w, body := f.do(t, http.MethodPost, "/api/admin/orders/ord-1/shipment", "admin-token", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1410111", body["awb_code"])

		f.fulfillment.err = &order.FulfillmentError{OrderID: "ord-1", Op: "assign_awb", Err: errors.New("no courier")}
		w, body = f.do(t, http.MethodPost, "/api/admin/orders/ord-1/shipment", "admin-token", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "FULFILLMENT_FAILED", body["code"])

		f.fulfillment.err = order.ErrNotShippable
		w, _ = f.do(t, http.MethodPost, "/api/admin/orders/ord-1/shipment", "admin-token", "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("tracking", func(t *testing.T) {
		f := newFixture(t)
		f.fulfillment.shipment = &order.Shipment{AWBCode: "1410111", TrackingStatus: "IN TRANSIT"}
		f.fulfillment.tracking = &order.Tracking{Status: "IN TRANSIT", ETD: "2026-03-04"}
		w, body := f.do(t, http.MethodGet, "/api/admin/orders/ord-1/tracking", "admin-token", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "IN TRANSIT", body["tracking"].(map[string]any)["status"])

		f.fulfillment.err = order.ErrNoShipment
		w, body = f.do(t, http.MethodGet, "/api/admin/orders/ord-1/tracking", "admin-token", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NO_SHIPMENT", body["code"])
	})
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	w, body := f.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}
