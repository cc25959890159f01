package order

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/teakspice/storefront/internal/domain/address"
	"github.com/teakspice/storefront/internal/domain/cart"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/settings"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

type memOrders struct {
	mu        sync.Mutex
	orders    map[string]*Order
	completed map[string]bool
	createErr error
	// noteSlack leaves spare capacity in returned Notes, as decoding a
	// JSON array usually does.
	noteSlack bool
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*Order), completed: make(map[string]bool)}
}

func (m *memOrders) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := o.Clone()
	if m.noteSlack {
		c.Notes = slices.Grow(c.Notes, 8)
	}
	return c, nil
}

func (m *memOrders) UpdateState(_ context.Context, o *Order, expected Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expected {
		return ErrStateConflict
	}
	stored.Status = o.Status
	stored.Payment = o.Payment
	stored.UpdatedAt = o.UpdatedAt
	return nil
}

func (m *memOrders) SetShipment(_ context.Context, id string, s *Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	sh := *s
	stored.Shipment = &sh
	return nil
}

func (m *memOrders) AddNote(_ context.Context, id string, n Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	stored.Notes = append(stored.Notes, n)
	return nil
}

func (m *memOrders) HasCompletedOrder(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed[userID], nil
}

func (m *memOrders) all() []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	return out
}

type memCarts struct {
	mu      sync.Mutex
	snaps   map[string]*cart.Snapshot
	cleared []string
}

func (m *memCarts) Snapshot(_ context.Context, userID string) (*cart.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.snaps[userID]; ok {
		return s, nil
	}
	return &cart.Snapshot{UserID: userID, Subtotal: decimal.Zero}, nil
}

func (m *memCarts) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, userID)
	return nil
}

// memCoupons redeems under a lock, standing in for a conditional update.
type memCoupons struct {
	mu          sync.Mutex
	rules       map[string]*coupon.Rule
	redemptions []coupon.Redemption
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memCoupons) ListVisible(context.Context) ([]coupon.Rule, error) { return nil, nil }

func (m *memCoupons) CountUserRedemptions(_ context.Context, code, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.redemptions {
		if r.Code == code && r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memCoupons) Redeem(_ context.Context, red coupon.Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[red.Code]
	if !ok {
		return coupon.ErrNotFound
	}
	if r.PerUserLimit > 0 {
		used := 0
		for _, prev := range m.redemptions {
			if prev.Code == red.Code && prev.UserID == red.UserID {
				used++
			}
		}
		if used >= r.PerUserLimit {
			return coupon.ErrUserLimitReached
		}
	}
	if r.MaxUsage > 0 && r.UsageCount >= r.MaxUsage {
		return coupon.ErrUsageExhausted
	}
	r.UsageCount++
	m.redemptions = append(m.redemptions, red)
	return nil
}

func (m *memCoupons) usage(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules[code].UsageCount
}

type memStock struct {
	mu    sync.Mutex
	stock map[string]int
}

func (m *memStock) DecrementStock(_ context.Context, variantID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stock[variantID] < qty {
		return errors.New("insufficient stock")
	}
	m.stock[variantID] -= qty
	return nil
}

type memSettings struct {
	s settings.Settings
}

func (m *memSettings) Get(context.Context) (*settings.Settings, error) {
	s := m.s
	return &s, nil
}

func (m *memSettings) Save(_ context.Context, s *settings.Settings) error {
	m.s = *s
	return nil
}

type memAddresses struct {
	mu    sync.Mutex
	saved []address.Address
	err   error
}

func (m *memAddresses) Get(_ context.Context, userID, id string) (*address.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.saved {
		if a.ID == id && a.UserID == userID {
			return &a, nil
		}
	}
	return nil, address.ErrNotFound
}

func (m *memAddresses) List(_ context.Context, userID string) ([]address.Address, error) {
	return nil, nil
}

func (m *memAddresses) Save(_ context.Context, a *address.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, *a)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (n *recordingNotifier) OrderConfirmed(_ context.Context, o *Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, o.ID)
	return n.err
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.orders)
}

// fakeGateway accepts payloads whose signature is "good".
type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	created   int
}

func (g *fakeGateway) Method() payment.Method { return payment.MethodRazorpay }

func (g *fakeGateway) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created++
	return &payment.Intent{
		ID:           "rp_" + req.OrderID,
		Method:       payment.MethodRazorpay,
		Amount:       req.Amount,
		Currency:     req.Currency,
		ClientParams: map[string]string{"key": "rzp_test"},
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, intent payment.Intent, p payment.Payload) (*payment.Confirmation, error) {
	if p["order_id"] != intent.ID || p["signature"] != "good" {
		return nil, payment.ErrSignatureMismatch
	}
	return &payment.Confirmation{PaymentID: p["payment_id"]}, nil
}

type fakeCarrier struct {
	mu sync.Mutex

	createErr error
	awbErr    error
	cancelErr error
	noLabel   bool
	noPickup  bool
	tracking  *Tracking
	rec       *shipping.Recommendation

	created    int
	awbCourier int
	cancelled  []string
}

func (c *fakeCarrier) CreateOrder(_ context.Context, req ShipmentRequest) (*CarrierOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created++
	return &CarrierOrder{OrderID: "co-" + req.Order.ID, ShipmentID: "sh-" + req.Order.ID, Status: "NEW"}, nil
}

func (c *fakeCarrier) RecommendCourier(context.Context, shipping.RateRequest) (*shipping.Recommendation, error) {
	return c.rec, nil
}

func (c *fakeCarrier) AssignAWB(_ context.Context, shipmentID string, courierID int) (*AWB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.awbErr != nil {
		return nil, c.awbErr
	}
	c.awbCourier = courierID
	return &AWB{Code: "AWB-" + strings.TrimPrefix(shipmentID, "sh-"), CourierID: courierID, CourierName: "Delhivery"}, nil
}

func (c *fakeCarrier) GenerateLabel(_ context.Context, shipmentID string) string {
	if c.noLabel {
		return ""
	}
	return "https://labels.example/" + shipmentID + ".pdf"
}

func (c *fakeCarrier) SchedulePickup(context.Context, string) bool { return !c.noPickup }

func (c *fakeCarrier) TrackShipment(context.Context, string) *Tracking { return c.tracking }

func (c *fakeCarrier) CancelShipment(_ context.Context, carrierOrderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelErr != nil {
		return c.cancelErr
	}
	c.cancelled = append(c.cancelled, carrierOrderID)
	return nil
}
