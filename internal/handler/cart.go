package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/teakspice/storefront/internal/domain/cart"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Carts.Snapshot(r.Context(), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(snap))
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.ProductID == "" || req.VariantID == "" {
		fail(w, r, &badRequest{msg: "product_id and variant_id are required"})
		return
	}
	snap, err := h.Carts.AddItem(r.Context(), identity(r).UserID, req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	snap, err := h.Carts.UpdateItem(r.Context(), identity(r).UserID, chi.URLParam(r, "variantID"), req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Carts.RemoveItem(r.Context(), identity(r).UserID, chi.URLParam(r, "variantID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Coupons.Available(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]couponResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, newCouponResponse(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

// validateCoupon previews a code against the current cart. A coupon that does
// not apply is a normal answer, not an error.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	id := identity(r)
	ctx := r.Context()

	snap, err := h.Carts.Snapshot(ctx, id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if snap.Empty() {
		fail(w, r, &order.ValidationError{Code: order.CodeEmptyCart, Message: "cart is empty"})
		return
	}
	prior, err := h.History.HasCompletedOrder(ctx, id.UserID)
	if err != nil {
		fail(w, r, errors.Wrap(err, "check order history"))
		return
	}

	d, err := h.Coupons.Validate(ctx, req.Code, snap.CouponItems(), coupon.Customer{UserID: id.UserID, HasCompletedPriorOrder: prior})
	if rej, ok := coupon.AsRejection(err); ok {
		writeJSON(w, http.StatusOK, couponValidation{
			Code:      rej.Code,
			Rejection: newRejectionBody(rej),
		})
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, couponValidation{
		Valid:            true,
		Code:             d.Code,
		Discount:         d.Amount,
		EligibleSubtotal: d.EligibleSubtotal,
		Description:      d.Description,
	})
}

type quoteRequest struct {
	Pincode       string `json:"pincode"`
	PaymentMethod string `json:"payment_method"`
}

// quoteShipping prices delivery of the current cart to a pincode.
func (h *Handler) quoteShipping(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if !shipping.ValidPincode(req.Pincode) {
		fail(w, r, &order.ValidationError{Code: order.CodeInvalidAddress, Field: "pincode", Message: "pincode must be 6 digits"})
		return
	}
	ctx := r.Context()

	snap, err := h.Carts.Snapshot(ctx, identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if snap.Empty() {
		fail(w, r, &order.ValidationError{Code: order.CodeEmptyCart, Message: "cart is empty"})
		return
	}
	st, err := h.Settings.Get(ctx)
	if err != nil {
		fail(w, r, errors.Wrap(err, "load settings"))
		return
	}
	cfg := st.ShippingConfig()
	quote := h.Shipping.Calculate(ctx, cfg, shipping.Request{
		CartTotal: snap.Subtotal,
		Pincode:   req.Pincode,
		WeightKg:  snap.WeightKg(cfg.DefaultWeightKg),
		COD:       payment.Method(req.PaymentMethod) == payment.MethodCOD,
	})
	writeJSON(w, http.StatusOK, quote)
}

var (
	_ Carts   = (*cart.Service)(nil)
	_ Coupons = (*coupon.RepoValidator)(nil)
)
