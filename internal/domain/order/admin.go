package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/payment"
)

// AdvanceStatus moves an order forward along the lifecycle. Moving to
// cancelled goes through Cancel.
//
// Entering processing in manual fulfillment mode creates the shipment;
// delivering a cash-on-delivery order completes its payment.
func (s *Service) AdvanceStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	if to == StatusCancelled {
		return s.Cancel(ctx, orderID)
	}

	o, err := s.Get(ctx, orderID, "")
	if err != nil {
		return nil, err
	}
	from := o.Status
	if !from.CanTransitionTo(to) {
		return nil, &TransitionError{From: from, To: to}
	}

	if to == StatusConfirmed {
		if err := s.confirm(ctx, o, from); err != nil {
			return nil, errors.Wrap(err, "confirm order")
		}
		s.note(ctx, o, NoteStatus, "confirmed manually")
		return o, nil
	}

	o.Status = to
	if to == StatusDelivered && o.Payment.Method == payment.MethodCOD && o.Payment.Status == PaymentPending {
		o.Payment.Status = PaymentCompleted
	}
	o.UpdatedAt = s.now()
	if err := s.Orders.UpdateState(ctx, o, from); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	lg.Info("Order status changed", zap.String("from", string(from)), zap.String("to", string(to)))

	if to == StatusProcessing && o.Shipment == nil && s.Fulfillment != nil {
		st, err := s.Settings.Get(ctx)
		if err != nil {
			lg.Error("Load settings for fulfillment", zap.Error(err))
			return o, nil
		}
		if !st.AutoFulfill() {
			sh, err := s.Fulfillment.CreateShipment(ctx, o.ID)
			if err != nil {
				lg.Warn("Shipment creation failed", zap.Error(err))
			}
			if sh != nil {
				o.Shipment = sh
			}
		}
	}
	return o, nil
}

// Cancel cancels the order. An existing carrier shipment is cancelled first;
// if the carrier refuses, a *CancellationError is returned and the order is
// left unchanged. A completed payment is marked refunded.
func (s *Service) Cancel(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Get(ctx, orderID, "")
	if err != nil {
		return nil, err
	}
	from := o.Status
	if !from.CanTransitionTo(StatusCancelled) {
		return nil, &TransitionError{From: from, To: StatusCancelled}
	}

	if o.Shipment != nil && o.Shipment.CarrierOrderID != "" {
		if s.Fulfillment == nil {
			return nil, &CancellationError{OrderID: o.ID, Err: errors.New("no carrier configured")}
		}
		if err := s.Fulfillment.CancelShipment(ctx, o); err != nil {
			return nil, &CancellationError{OrderID: o.ID, Err: err}
		}
	}

	o.Status = StatusCancelled
	if o.Payment.Status == PaymentCompleted {
		o.Payment.Status = PaymentRefunded
	}
	o.UpdatedAt = s.now()
	if err := s.Orders.UpdateState(ctx, o, from); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	s.note(ctx, o, NoteStatus, "cancelled from "+string(from))
	zctx.From(ctx).Info("Order cancelled", zap.String("order_id", o.ID))
	return o, nil
}
