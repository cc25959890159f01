package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teakspice/storefront/internal/domain/auth"
	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/payment"
)

var _ Orders = (*order.Service)(nil)

// checkout places an order for the caller's cart. A coupon that did not
// apply is reported alongside the placed order.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	method, err := payment.ParseMethod(req.PaymentMethod)
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.AddressID == "" && req.Address == nil {
		fail(w, r, &badRequest{msg: "address_id or address is required"})
		return
	}

	id := identity(r)
	res, err := h.Orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:        id.UserID,
		Email:         id.Email,
		AddressID:     req.AddressID,
		Address:       req.Address,
		SaveAddress:   req.SaveAddress,
		PaymentMethod: method,
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		Order:           newOrderResponse(res.Order, false),
		Payment:         res.Intent,
		CouponRejection: newRejectionBody(res.CouponRejection),
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	owner := id.UserID
	if id.HasScope(auth.ScopeAdmin) {
		owner = ""
	}
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"), owner)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o, owner == ""))
}

// verifyPayment accepts the gateway's client-side callback fields as a flat
// string object.
func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var payload payment.Payload
	if err := decode(w, r, &payload); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.Orders.VerifyPayment(r.Context(), chi.URLParam(r, "id"), identity(r).UserID, payload)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o, false))
}

func (h *Handler) retryPayment(w http.ResponseWriter, r *http.Request) {
	o, intent, err := h.Orders.RetryPayment(r.Context(), chi.URLParam(r, "id"), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, retryResponse{Order: newOrderResponse(o, false), Payment: intent})
}
