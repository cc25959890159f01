package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/teakspice/storefront/internal/domain/address"
	"github.com/teakspice/storefront/internal/domain/cart"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

type cartResponse struct {
	Lines         []cart.Line     `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalQuantity int             `json:"total_quantity"`
}

func newCartResponse(s *cart.Snapshot) cartResponse {
	lines := s.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartResponse{Lines: lines, Subtotal: s.Subtotal, TotalQuantity: s.TotalQuantity()}
}

type couponResponse struct {
	Code              string              `json:"code"`
	Description       string              `json:"description,omitempty"`
	DiscountType      coupon.DiscountType `json:"discount_type"`
	Value             decimal.Decimal     `json:"value"`
	MinPurchase       decimal.Decimal     `json:"min_purchase"`
	MaxDiscount       decimal.NullDecimal `json:"max_discount"`
	ValidUntil        *time.Time          `json:"valid_until,omitempty"`
	FirstPurchaseOnly bool                `json:"first_purchase_only"`
}

func newCouponResponse(r coupon.Rule) couponResponse {
	return couponResponse{
		Code:              r.Code,
		Description:       r.Description,
		DiscountType:      r.DiscountType,
		Value:             r.Value,
		MinPurchase:       r.MinPurchase,
		MaxDiscount:       r.MaxDiscount,
		ValidUntil:        r.ValidUntil,
		FirstPurchaseOnly: r.FirstPurchaseOnly,
	}
}

type couponValidation struct {
	Valid            bool            `json:"valid"`
	Code             string          `json:"code"`
	Discount         decimal.Decimal `json:"discount"`
	EligibleSubtotal decimal.Decimal `json:"eligible_subtotal"`
	Description      string          `json:"description,omitempty"`
	Rejection        *rejectionBody  `json:"rejection,omitempty"`
}

type paymentResponse struct {
	Method    payment.Method      `json:"method"`
	Status    order.PaymentStatus `json:"status"`
	PaymentID string              `json:"payment_id,omitempty"`
}

type orderResponse struct {
	ID              string          `json:"id"`
	Status          order.Status    `json:"status"`
	Items           []order.Item    `json:"items"`
	ShippingAddress address.Address `json:"shipping_address"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	ShippingQuote   shipping.Quote  `json:"shipping_quote"`
	Payment         paymentResponse `json:"payment"`
	Shipment        *order.Shipment `json:"shipment,omitempty"`
	Notes           []order.Note    `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// newOrderResponse renders o. Notes are internal annotations and are only
// shown to admins.
func newOrderResponse(o *order.Order, withNotes bool) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		Status:          o.Status,
		Items:           o.Items,
		ShippingAddress: o.ShippingAddress,
		Subtotal:        o.Subtotal,
		DiscountAmount:  o.DiscountAmount,
		ShippingFee:     o.ShippingFee,
		TotalAmount:     o.TotalAmount,
		CouponCode:      o.CouponCode,
		ShippingQuote:   o.ShippingQuote,
		Payment: paymentResponse{
			Method:    o.Payment.Method,
			Status:    o.Payment.Status,
			PaymentID: o.Payment.PaymentID,
		},
		Shipment:  o.Shipment,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if withNotes {
		resp.Notes = o.Notes
	}
	return resp
}

type checkoutRequest struct {
	AddressID     string           `json:"address_id"`
	Address       *address.Address `json:"address"`
	SaveAddress   bool             `json:"save_address"`
	PaymentMethod string           `json:"payment_method"`
	CouponCode    string           `json:"coupon_code"`
}

type checkoutResponse struct {
	Order           orderResponse   `json:"order"`
	Payment         *payment.Intent `json:"payment_intent,omitempty"`
	CouponRejection *rejectionBody  `json:"coupon_rejection,omitempty"`
}

type retryResponse struct {
	Order   orderResponse   `json:"order"`
	Payment *payment.Intent `json:"payment_intent"`
}

type trackingResponse struct {
	Shipment *order.Shipment `json:"shipment"`
	Tracking *order.Tracking `json:"tracking"`
}
