package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teakspice/storefront/internal/domain/address"
	"github.com/teakspice/storefront/internal/domain/cart"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/settings"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

// Carts provides the cart snapshot checkout prices against.
type Carts interface {
	Snapshot(ctx context.Context, userID string) (*cart.Snapshot, error)
	Clear(ctx context.Context, userID string) error
}

// Quoter computes shipping fees.
type Quoter interface {
	Calculate(ctx context.Context, cfg shipping.Config, req shipping.Request) shipping.Quote
}

// Redeemer records a coupon redemption atomically.
type Redeemer interface {
	Redeem(ctx context.Context, r coupon.Redemption) error
}

// StockKeeper decrements variant stock.
type StockKeeper interface {
	DecrementStock(ctx context.Context, variantID string, qty int) error
}

// Notifier sends order confirmations. Failures are logged only.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *Order) error
}

// Deps are the collaborators of Service.
type Deps struct {
	Carts       Carts
	Coupons     coupon.Validator
	Redeemer    Redeemer
	Shipping    Quoter
	Stock       StockKeeper
	Settings    settings.Repository
	Addresses   address.Repository
	Orders      Repository
	Payments    *payment.Registry
	Notifier    Notifier
	Fulfillment *Fulfillment
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID string
	Email  string
	// AddressID selects a saved address; otherwise Address is used.
	AddressID     string
	Address       *address.Address
	SaveAddress   bool
	PaymentMethod payment.Method
	CouponCode    string
}

// PlaceOrderResult holds the output of a placed order.
type PlaceOrderResult struct {
	Order *Order
	// Intent is set for gateway payments; the storefront completes payment
	// with it and then calls VerifyPayment.
	Intent *payment.Intent
	// CouponRejection is set when the supplied coupon did not apply. The order
	// was placed without a discount.
	CouponRejection *coupon.Rejection
}

// Service orchestrates checkout: pricing, persistence, payment and the
// post-confirmation side effects.
type Service struct {
	Deps

	currency string
	now      func() time.Time
	newID    func() string
	tracer   trace.Tracer
	metrics  *metrics

	wg sync.WaitGroup
}

// NewService creates an order Service.
func NewService(deps Deps, opts ...Option) (*Service, error) {
	o := buildOptions(opts)
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}
	return &Service{
		Deps:     deps,
		currency: o.currency,
		now:      o.now,
		newID:    o.newID,
		tracer:   o.tracerProvider.Tracer(instrumentationName),
		metrics:  m,
	}, nil
}

// PlaceOrder runs checkout for the user's current cart.
//
// The order is persisted before any payment gateway call. Failures after
// that point are recorded on the order rather than undone.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("payment_method", string(req.PaymentMethod))),
	)
	defer func() { endSpan(span, rerr) }()

	var gw payment.Gateway
	if req.PaymentMethod != payment.MethodCOD {
		g, err := s.Payments.Get(req.PaymentMethod)
		if err != nil {
			return nil, err
		}
		gw = g
	}

	addr, err := s.resolveAddress(ctx, req)
	if err != nil {
		return nil, err
	}

	snap, err := s.Carts.Snapshot(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot cart")
	}
	if snap.Empty() {
		return nil, &ValidationError{Code: CodeEmptyCart, Message: "cart is empty"}
	}
	for _, l := range snap.Lines {
		if l.Quantity > l.Stock {
			return nil, &ValidationError{
				Code:    CodeOutOfStock,
				Field:   l.VariantID,
				Message: fmt.Sprintf("only %d of %s left in stock", l.Stock, l.ProductName),
			}
		}
	}

	st, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}
	shipCfg := st.ShippingConfig()

	var (
		discount  *coupon.Discount
		rejection *coupon.Rejection
		quote     shipping.Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	if code := coupon.Canonical(req.CouponCode); code != "" {
		g.Go(func() error {
			prior, err := s.Orders.HasCompletedOrder(gctx, req.UserID)
			if err != nil {
				return errors.Wrap(err, "check order history")
			}
			d, err := s.Coupons.Validate(gctx, code, snap.CouponItems(), coupon.Customer{
				UserID:                 req.UserID,
				HasCompletedPriorOrder: prior,
			})
			if r, ok := coupon.AsRejection(err); ok {
				rejection = r
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "validate coupon")
			}
			discount = d
			return nil
		})
	}
	g.Go(func() error {
		quote = s.Shipping.Calculate(gctx, shipCfg, shipping.Request{
			CartTotal: snap.Subtotal,
			Pincode:   addr.Pincode,
			WeightKg:  snap.WeightKg(shipCfg.DefaultWeightKg),
			COD:       req.PaymentMethod == payment.MethodCOD,
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if rejection != nil {
		s.metrics.couponRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(rejection.Reason))))
	}
	if quote.Degraded {
		s.metrics.shippingDegraded.Add(ctx, 1)
	}

	o := s.newOrder(req, snap, addr, discount, quote)
	if err := s.Orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	span.SetAttributes(attribute.String("order_id", o.ID))
	s.metrics.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(req.PaymentMethod))))

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	lg.Info("Order placed",
		zap.String("payment_method", string(req.PaymentMethod)),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)

	if req.SaveAddress && req.AddressID == "" {
		a := addr
		a.ID = s.newID()
		a.CreatedAt = o.CreatedAt
		if err := s.Addresses.Save(ctx, &a); err != nil {
			lg.Warn("Save address failed", zap.Error(err))
			s.note(ctx, o, NoteAddress, "address not saved: "+err.Error())
		}
	}
	if err := s.Carts.Clear(ctx, req.UserID); err != nil {
		lg.Warn("Clear cart failed", zap.Error(err))
	}

	res := &PlaceOrderResult{Order: o, CouponRejection: rejection}
	if gw == nil {
		if err := s.confirm(ctx, o, StatusPending); err != nil {
			return nil, errors.Wrap(err, "confirm order")
		}
		return res, nil
	}

	intent, err := s.createIntent(ctx, gw, o)
	if err != nil {
		return nil, err
	}
	res.Intent = intent
	return res, nil
}

func (s *Service) resolveAddress(ctx context.Context, req PlaceOrderRequest) (address.Address, error) {
	if req.AddressID != "" {
		a, err := s.Addresses.Get(ctx, req.UserID, req.AddressID)
		if errors.Is(err, address.ErrNotFound) {
			return address.Address{}, &ValidationError{Code: CodeInvalidAddress, Field: "address_id", Message: "address not found"}
		}
		if err != nil {
			return address.Address{}, errors.Wrap(err, "get address")
		}
		return *a, nil
	}
	if req.Address == nil {
		return address.Address{}, &ValidationError{Code: CodeInvalidAddress, Field: "address", Message: "required"}
	}

	a := *req.Address
	a.UserID = req.UserID
	a.Normalize()
	if err := a.Validate(); err != nil {
		var ve *address.ValidationError
		if errors.As(err, &ve) {
			return address.Address{}, &ValidationError{Code: CodeInvalidAddress, Field: ve.Field, Message: ve.Reason}
		}
		return address.Address{}, err
	}
	return a, nil
}

func (s *Service) newOrder(
	req PlaceOrderRequest,
	snap *cart.Snapshot,
	addr address.Address,
	discount *coupon.Discount,
	quote shipping.Quote,
) *Order {
	items := make([]Item, len(snap.Lines))
	for i, l := range snap.Lines {
		items[i] = Item{
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			CategoryID:   l.CategoryID,
			VariantID:    l.VariantID,
			SKU:          l.SKU,
			Attributes:   l.Attributes,
			Quantity:     l.Quantity,
			PriceAtOrder: l.UnitPrice,
			Subtotal:     l.Subtotal,
			WeightKg:     l.WeightKg,
		}
	}

	discountAmount := decimal.Zero
	var couponCode string
	if discount != nil {
		discountAmount = discount.Amount
		couponCode = discount.Code
	}

	total := snap.Subtotal.Sub(discountAmount).Add(quote.Fee)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now()
	return &Order{
		ID:              s.newID(),
		UserID:          req.UserID,
		Email:           req.Email,
		Items:           items,
		ShippingAddress: addr,
		Subtotal:        snap.Subtotal.Round(2),
		DiscountAmount:  discountAmount.Round(2),
		ShippingFee:     quote.Fee.Round(2),
		TotalAmount:     total.Round(2),
		CouponCode:      couponCode,
		ShippingQuote:   quote,
		Status:          StatusPending,
		Payment:         Payment{Method: req.PaymentMethod, Status: PaymentPending},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *Service) createIntent(ctx context.Context, gw payment.Gateway, o *Order) (*payment.Intent, error) {
	intent, err := gw.CreateIntent(ctx, payment.IntentRequest{
		OrderID:  o.ID,
		Amount:   o.TotalAmount,
		Currency: s.currency,
		Customer: payment.Customer{
			Name:  o.ShippingAddress.FullName,
			Email: o.Email,
			Phone: o.ShippingAddress.Phone,
		},
	})
	if err != nil {
		zctx.From(ctx).Warn("Create payment intent failed", zap.String("order_id", o.ID), zap.Error(err))
		o.Payment.Status = PaymentFailed
		o.UpdatedAt = s.now()
		if uerr := s.Orders.UpdateState(ctx, o, StatusPending); uerr != nil {
			zctx.From(ctx).Error("Record payment failure", zap.String("order_id", o.ID), zap.Error(uerr))
		}
		s.note(ctx, o, NotePayment, "create payment: "+err.Error())
		return nil, &PaymentError{OrderID: o.ID, Step: "create", Err: err}
	}

	o.Payment.IntentID = intent.ID
	o.Payment.Status = PaymentPending
	o.UpdatedAt = s.now()
	if err := s.Orders.UpdateState(ctx, o, StatusPending); err != nil {
		return nil, errors.Wrap(err, "store payment intent")
	}
	return intent, nil
}

// VerifyPayment checks a gateway payload against the order's payment intent.
// Only a verified payload confirms the order; a mismatch marks the payment
// failed and leaves the order pending.
func (s *Service) VerifyPayment(ctx context.Context, orderID, userID string, payload payment.Payload) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.VerifyPayment", trace.WithAttributes(attribute.String("order_id", orderID)))
	defer func() { endSpan(span, rerr) }()

	o, err := s.Get(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status == PaymentCompleted {
		return o, nil
	}
	if o.Payment.Method == payment.MethodCOD || o.Status != StatusPending || o.Payment.IntentID == "" {
		return nil, ErrNotAwaitingPayment
	}

	gw, err := s.Payments.Get(o.Payment.Method)
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	conf, err := gw.Verify(ctx, payment.Intent{
		ID:       o.Payment.IntentID,
		Method:   o.Payment.Method,
		Amount:   o.TotalAmount,
		Currency: s.currency,
	}, payload)
	if err != nil {
		if !errors.Is(err, payment.ErrSignatureMismatch) {
			return nil, errors.Wrap(err, "verify payment")
		}
		lg.Warn("Payment verification failed", zap.Error(err))
		o.Payment.Status = PaymentFailed
		o.UpdatedAt = s.now()
		if uerr := s.Orders.UpdateState(ctx, o, StatusPending); uerr != nil {
			lg.Error("Record payment failure", zap.Error(uerr))
		}
		s.note(ctx, o, NotePayment, "verification failed: "+err.Error())
		return nil, &PaymentError{OrderID: o.ID, Step: "verify", Err: err}
	}

	o.Payment.Status = PaymentCompleted
	o.Payment.PaymentID = conf.PaymentID
	if err := s.confirm(ctx, o, StatusPending); err != nil {
		if errors.Is(err, ErrStateConflict) {
			// Another request confirmed it first.
			return s.Get(ctx, orderID, userID)
		}
		return nil, errors.Wrap(err, "confirm order")
	}
	lg.Info("Payment verified", zap.String("payment_id", conf.PaymentID))
	return o, nil
}

// RetryPayment creates a fresh gateway intent for a pending, unpaid order.
func (s *Service) RetryPayment(ctx context.Context, orderID, userID string) (*Order, *payment.Intent, error) {
	o, err := s.Get(ctx, orderID, userID)
	if err != nil {
		return nil, nil, err
	}
	if o.Payment.Method == payment.MethodCOD || o.Status != StatusPending || o.Payment.Status == PaymentCompleted {
		return nil, nil, ErrNotAwaitingPayment
	}
	gw, err := s.Payments.Get(o.Payment.Method)
	if err != nil {
		return nil, nil, err
	}
	intent, err := s.createIntent(ctx, gw, o)
	if err != nil {
		return nil, nil, err
	}
	return o, intent, nil
}

// Get returns the order. A non-empty userID must own the order.
func (s *Service) Get(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if userID != "" && o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) note(ctx context.Context, o *Order, kind NoteKind, msg string) {
	n := Note{At: s.now(), Kind: kind, Message: msg}
	if err := s.Orders.AddNote(ctx, o.ID, n); err != nil {
		zctx.From(ctx).Error("Add order note", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	o.Notes = append(o.Notes, n)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
