package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/coupon"
)

// confirm moves o to confirmed and schedules the post-confirmation work.
func (s *Service) confirm(ctx context.Context, o *Order, expected Status) error {
	o.Status = StatusConfirmed
	o.UpdatedAt = s.now()
	if err := s.Orders.UpdateState(ctx, o, expected); err != nil {
		return err
	}
	s.afterConfirm(ctx, o)
	return nil
}

// afterConfirm runs coupon redemption, stock decrement, notification and
// automatic fulfillment in the background on a private copy of o. The request
// context is detached so the work survives the response being written.
func (s *Service) afterConfirm(ctx context.Context, o *Order) {
	snapshot := o.Clone()
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.onConfirmed(ctx, snapshot)
	}()
}

func (s *Service) onConfirmed(ctx context.Context, o *Order) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	if o.CouponCode != "" {
		err := s.Redeemer.Redeem(ctx, coupon.Redemption{Code: o.CouponCode, UserID: o.UserID, OrderID: o.ID})
		switch {
		case errors.Is(err, coupon.ErrUsageExhausted):
			lg.Warn("Coupon usage cap reached at redemption", zap.String("coupon", o.CouponCode))
			s.note(ctx, o, NoteCoupon, "coupon "+o.CouponCode+" hit its usage cap before redemption")
		case errors.Is(err, coupon.ErrUserLimitReached):
			lg.Warn("Coupon per-user limit reached at redemption", zap.String("coupon", o.CouponCode))
			s.note(ctx, o, NoteCoupon, "coupon "+o.CouponCode+" exceeded the per-user limit for "+o.UserID)
		case err != nil:
			lg.Error("Redeem coupon", zap.String("coupon", o.CouponCode), zap.Error(err))
			s.note(ctx, o, NoteCoupon, "coupon redemption failed: "+err.Error())
		}
	}

	for _, it := range o.Items {
		if err := s.Stock.DecrementStock(ctx, it.VariantID, it.Quantity); err != nil {
			lg.Warn("Decrement stock", zap.String("variant_id", it.VariantID), zap.Error(err))
			s.note(ctx, o, NoteStock, "stock not decremented for "+it.VariantID+": "+err.Error())
		}
	}

	if s.Notifier != nil {
		if err := s.Notifier.OrderConfirmed(ctx, o); err != nil {
			lg.Warn("Send order confirmation", zap.Error(err))
			s.note(ctx, o, NoteNotification, "confirmation not sent: "+err.Error())
		}
	}

	if s.Fulfillment == nil {
		return
	}
	st, err := s.Settings.Get(ctx)
	if err != nil {
		lg.Error("Load settings for fulfillment", zap.Error(err))
		return
	}
	if !st.AutoFulfill() {
		return
	}
	if _, err := s.Fulfillment.CreateShipment(ctx, o.ID); err != nil {
		lg.Warn("Automatic shipment creation failed", zap.Error(err))
	}
}

// Drain waits for background work started by confirmations to finish, or
// for ctx to be done.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
