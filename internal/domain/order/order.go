package order

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/teakspice/storefront/internal/domain/address"
	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

var (
	// ErrNotFound is returned when the order does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("order not found")
	// ErrStateConflict is returned by Repository.UpdateState when the stored
	// status no longer matches the expected one.
	ErrStateConflict = errors.New("order state changed concurrently")
	// ErrNotAwaitingPayment is returned when verifying or retrying payment on
	// an order that is not waiting for a gateway payment.
	ErrNotAwaitingPayment = errors.New("order is not awaiting payment")
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failure")
)

// Validation failure codes.
const (
	CodeEmptyCart      = "EMPTY_CART"
	CodeOutOfStock     = "OUT_OF_STOCK"
	CodeInvalidAddress = "INVALID_ADDRESS"
)

// ValidationError is a checkout input problem. No order is created.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PaymentError reports a failed payment step on an already placed order.
// The order stays pending and payment can be retried.
type PaymentError struct {
	OrderID string
	Step    string
	Err     error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("order %s: payment %s: %v", e.OrderID, e.Step, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// CancellationError reports that the carrier did not cancel a shipment, so
// the order was left unchanged.
type CancellationError struct {
	OrderID string
	Err     error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("order %s: cancel shipment: %v", e.OrderID, e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// FulfillmentError reports a failed carrier step. It never reverses the
// order status.
type FulfillmentError struct {
	OrderID string
	Op      string
	Err     error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("order %s: fulfillment %s: %v", e.OrderID, e.Op, e.Err)
}

func (e *FulfillmentError) Unwrap() error { return e.Err }

// Item is an immutable order line captured at placement.
type Item struct {
	ProductID    string            `json:"product_id"`
	ProductName  string            `json:"product_name"`
	CategoryID   string            `json:"category_id"`
	VariantID    string            `json:"variant_id"`
	SKU          string            `json:"sku,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Quantity     int               `json:"quantity"`
	PriceAtOrder decimal.Decimal   `json:"price_at_order"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	WeightKg     decimal.Decimal   `json:"weight_kg"`
}

// Payment tracks the payment side of an order.
type Payment struct {
	Method    payment.Method `json:"method"`
	Status    PaymentStatus  `json:"status"`
	IntentID  string         `json:"intent_id,omitempty"`
	PaymentID string         `json:"payment_id,omitempty"`
}

// Shipment is the carrier-side record attached to an order.
type Shipment struct {
	CarrierOrderID  string    `json:"carrier_order_id"`
	ShipmentID      string    `json:"shipment_id"`
	AWBCode         string    `json:"awb_code,omitempty"`
	CourierID       int       `json:"courier_id,omitempty"`
	CourierName     string    `json:"courier_name,omitempty"`
	LabelURL        string    `json:"label_url,omitempty"`
	PickupScheduled bool      `json:"pickup_scheduled"`
	TrackingStatus  string    `json:"tracking_status,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NoteKind classifies an order annotation.
type NoteKind string

const (
	NoteCoupon       NoteKind = "coupon"
	NoteStock        NoteKind = "stock"
	NotePayment      NoteKind = "payment"
	NoteFulfillment  NoteKind = "fulfillment"
	NoteNotification NoteKind = "notification"
	NoteAddress      NoteKind = "address"
	NoteStatus       NoteKind = "status"
)

// Note is an append-only annotation recording a failure or event after the
// order was placed.
type Note struct {
	At      time.Time `json:"at"`
	Kind    NoteKind  `json:"kind"`
	Message string    `json:"message"`
}

// Order is the durable record of a checkout.
type Order struct {
	ID              string
	UserID          string
	Email           string
	Items           []Item
	ShippingAddress address.Address
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	ShippingFee     decimal.Decimal
	TotalAmount     decimal.Decimal
	CouponCode      string
	ShippingQuote   shipping.Quote
	Status          Status
	Payment         Payment
	Shipment        *Shipment
	Notes           []Note
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TotalQuantity returns the number of units in the order.
func (o *Order) TotalQuantity() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Clone returns a copy of o that shares no slices, maps or pointers with it.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	for i := range c.Items {
		c.Items[i].Attributes = maps.Clone(c.Items[i].Attributes)
	}
	c.Notes = slices.Clone(o.Notes)
	if o.Shipment != nil {
		sh := *o.Shipment
		c.Shipment = &sh
	}
	return &c
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateState writes Status, Payment and UpdatedAt when the stored status
	// equals expected, and returns ErrStateConflict otherwise.
	UpdateState(ctx context.Context, o *Order, expected Status) error
	SetShipment(ctx context.Context, id string, s *Shipment) error
	AddNote(ctx context.Context, id string, n Note) error
	// HasCompletedOrder reports whether the user has an order that was
	// confirmed and not cancelled.
	HasCompletedOrder(ctx context.Context, userID string) (bool, error)
}
