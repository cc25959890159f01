package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/settings"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

var (
	// ErrNotShippable is returned when creating a shipment for an order that
	// is not confirmed or processing.
	ErrNotShippable = errors.New("order cannot be shipped in its current status")
	// ErrNoShipment is returned when tracking an order without an AWB.
	ErrNoShipment = errors.New("order has no shipment")
)

// ShipmentRequest is what the carrier needs to create a shipment.
type ShipmentRequest struct {
	Order           *Order
	Warehouse       settings.Warehouse
	Parcel          settings.Parcel
	DefaultWeightKg decimal.Decimal
}

// CarrierOrder is the carrier's record of a created order.
type CarrierOrder struct {
	OrderID    string
	ShipmentID string
	Status     string
}

// AWB is an assigned tracking number.
type AWB struct {
	Code        string
	CourierID   int
	CourierName string
}

// TrackingEvent is one scan in the carrier's tracking history.
type TrackingEvent struct {
	At       time.Time `json:"at"`
	Status   string    `json:"status"`
	Location string    `json:"location,omitempty"`
}

// Tracking is the carrier's current view of a shipment.
type Tracking struct {
	Status string          `json:"status"`
	ETD    string          `json:"etd,omitempty"`
	Events []TrackingEvent `json:"events,omitempty"`
}

// Carrier is the shipping carrier used for fulfillment.
//
// GenerateLabel, SchedulePickup and TrackShipment degrade to an empty result
// on failure. CancelShipment reports every failure.
type Carrier interface {
	CreateOrder(ctx context.Context, req ShipmentRequest) (*CarrierOrder, error)
	RecommendCourier(ctx context.Context, req shipping.RateRequest) (*shipping.Recommendation, error)
	AssignAWB(ctx context.Context, shipmentID string, courierID int) (*AWB, error)
	GenerateLabel(ctx context.Context, shipmentID string) string
	SchedulePickup(ctx context.Context, shipmentID string) bool
	TrackShipment(ctx context.Context, awb string) *Tracking
	CancelShipment(ctx context.Context, carrierOrderID string) error
}

// Fulfillment creates, tracks and cancels carrier shipments for orders.
// Carrier failures are attached to the order as notes and never change the
// order status.
type Fulfillment struct {
	orders   Repository
	carrier  Carrier
	settings settings.Repository

	now     func() time.Time
	tracer  trace.Tracer
	metrics *metrics
}

// NewFulfillment creates a Fulfillment.
func NewFulfillment(orders Repository, carrier Carrier, st settings.Repository, opts ...Option) (*Fulfillment, error) {
	o := buildOptions(opts)
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}
	return &Fulfillment{
		orders:   orders,
		carrier:  carrier,
		settings: st,
		now:      o.now,
		tracer:   o.tracerProvider.Tracer(instrumentationName),
		metrics:  m,
	}, nil
}

// CreateShipment registers the order with the carrier, assigns an AWB and
// requests a label and pickup. It resumes from a partially created shipment
// and returns an existing complete one unchanged.
func (f *Fulfillment) CreateShipment(ctx context.Context, orderID string) (_ *Shipment, rerr error) {
	ctx, span := f.tracer.Start(ctx, "order.CreateShipment", trace.WithAttributes(attribute.String("order_id", orderID)))
	defer func() { endSpan(span, rerr) }()

	o, err := f.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.Status != StatusConfirmed && o.Status != StatusProcessing {
		return nil, ErrNotShippable
	}
	if o.Shipment != nil && o.Shipment.AWBCode != "" {
		return o.Shipment, nil
	}

	st, err := f.settings.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}
	shipCfg := st.ShippingConfig()
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	sh := o.Shipment
	if sh == nil || sh.CarrierOrderID == "" {
		co, err := f.carrier.CreateOrder(ctx, ShipmentRequest{
			Order:           o,
			Warehouse:       st.Warehouse,
			Parcel:          st.Parcel,
			DefaultWeightKg: shipCfg.DefaultWeightKg,
		})
		if err != nil {
			return nil, f.fail(ctx, o, "create_order", err)
		}
		sh = &Shipment{CarrierOrderID: co.OrderID, ShipmentID: co.ShipmentID, TrackingStatus: co.Status}
		if err := f.save(ctx, o, sh); err != nil {
			return nil, err
		}
		lg.Info("Carrier order created", zap.String("carrier_order_id", co.OrderID))
	}

	courierID := o.ShippingQuote.CourierID
	if courierID == 0 {
		rec, err := f.carrier.RecommendCourier(ctx, shipping.RateRequest{
			PickupPincode:   shipCfg.WarehousePincode,
			DeliveryPincode: o.ShippingAddress.Pincode,
			WeightKg:        orderWeight(o.Items, shipCfg.DefaultWeightKg),
			COD:             o.Payment.Method == payment.MethodCOD,
			DeclaredValue:   o.TotalAmount,
		})
		switch {
		case err != nil:
			lg.Warn("Courier recommendation failed, letting the carrier choose", zap.Error(err))
		case rec != nil:
			courierID = rec.CourierID
		}
	}

	awb, err := f.carrier.AssignAWB(ctx, sh.ShipmentID, courierID)
	if err != nil {
		return sh, f.fail(ctx, o, "assign_awb", err)
	}
	sh.AWBCode = awb.Code
	sh.CourierID = awb.CourierID
	sh.CourierName = awb.CourierName

	if url := f.carrier.GenerateLabel(ctx, sh.ShipmentID); url != "" {
		sh.LabelURL = url
	} else {
		f.record(ctx, o, "generate_label", "label was not generated")
	}
	sh.PickupScheduled = f.carrier.SchedulePickup(ctx, sh.ShipmentID)
	if !sh.PickupScheduled {
		f.record(ctx, o, "schedule_pickup", "pickup was not scheduled")
	}

	if err := f.save(ctx, o, sh); err != nil {
		return nil, err
	}
	lg.Info("Shipment created", zap.String("awb", sh.AWBCode), zap.String("courier", sh.CourierName))
	return sh, nil
}

// Track refreshes the tracking status of the order's shipment. When the
// carrier is unreachable the stored shipment is returned with nil Tracking.
func (f *Fulfillment) Track(ctx context.Context, orderID string) (*Shipment, *Tracking, error) {
	o, err := f.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get order")
	}
	if o.Shipment == nil || o.Shipment.AWBCode == "" {
		return nil, nil, ErrNoShipment
	}

	sh := o.Shipment
	tr := f.carrier.TrackShipment(ctx, sh.AWBCode)
	if tr == nil {
		return sh, nil, nil
	}
	if tr.Status != "" && tr.Status != sh.TrackingStatus {
		sh.TrackingStatus = tr.Status
		if err := f.save(ctx, o, sh); err != nil {
			return nil, nil, err
		}
	}
	return sh, tr, nil
}

// CancelShipment cancels the order's carrier order.
func (f *Fulfillment) CancelShipment(ctx context.Context, o *Order) error {
	if o.Shipment == nil || o.Shipment.CarrierOrderID == "" {
		return nil
	}
	if err := f.carrier.CancelShipment(ctx, o.Shipment.CarrierOrderID); err != nil {
		f.metrics.fulfillmentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "cancel")))
		f.note(ctx, o, "shipment cancellation failed: "+err.Error())
		return err
	}
	sh := *o.Shipment
	sh.TrackingStatus = "CANCELED"
	return f.save(ctx, o, &sh)
}

func (f *Fulfillment) save(ctx context.Context, o *Order, sh *Shipment) error {
	sh.UpdatedAt = f.now()
	if err := f.orders.SetShipment(ctx, o.ID, sh); err != nil {
		return errors.Wrap(err, "store shipment")
	}
	o.Shipment = sh
	return nil
}

func (f *Fulfillment) fail(ctx context.Context, o *Order, op string, err error) error {
	zctx.From(ctx).Warn("Fulfillment step failed",
		zap.String("order_id", o.ID),
		zap.String("op", op),
		zap.Error(err),
	)
	f.metrics.fulfillmentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	f.note(ctx, o, op+": "+err.Error())
	return &FulfillmentError{OrderID: o.ID, Op: op, Err: err}
}

func (f *Fulfillment) record(ctx context.Context, o *Order, op, msg string) {
	f.metrics.fulfillmentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	f.note(ctx, o, op+": "+msg)
}

func (f *Fulfillment) note(ctx context.Context, o *Order, msg string) {
	n := Note{At: f.now(), Kind: NoteFulfillment, Message: msg}
	if err := f.orders.AddNote(ctx, o.ID, n); err != nil {
		zctx.From(ctx).Error("Add order note", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	o.Notes = append(o.Notes, n)
}

func orderWeight(items []Item, fallback decimal.Decimal) decimal.Decimal {
	w := decimal.Zero
	for _, it := range items {
		unit := it.WeightKg
		if !unit.IsPositive() {
			unit = fallback
		}
		w = w.Add(unit.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return w
}
