package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teakspice/storefront/internal/domain/order"
)

var _ Fulfillment = (*order.Fulfillment)(nil)

func (h *Handler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		fail(w, r, &badRequest{msg: err.Error()})
		return
	}
	o, err := h.Orders.AdvanceStatus(r.Context(), chi.URLParam(r, "id"), to)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o, true))
}

// createShipment runs the carrier steps. A failed step has already been
// noted on the order and answers 502.
func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	if h.Fulfillment == nil {
		writeError(w, http.StatusServiceUnavailable, "CARRIER_DISABLED", "no carrier is configured")
		return
	}
	sh, err := h.Fulfillment.CreateShipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o, true))
}

func (h *Handler) trackOrder(w http.ResponseWriter, r *http.Request) {
	if h.Fulfillment == nil {
		writeError(w, http.StatusServiceUnavailable, "CARRIER_DISABLED", "no carrier is configured")
		return
	}
	sh, tr, err := h.Fulfillment.Track(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackingResponse{Shipment: sh, Tracking: tr})
}
