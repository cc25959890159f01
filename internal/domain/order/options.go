package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/teakspice/storefront/internal/domain/order"

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	currency       string
	now            func() time.Time
	newID          func() string
}

// Option configures Service and Fulfillment.
type Option func(*options)

// WithTracerProvider sets the tracer provider for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for checkout metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithCurrency sets the ISO currency code passed to payment gateways.
func WithCurrency(c string) Option {
	return func(o *options) { o.currency = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(f func() string) Option {
	return func(o *options) { o.newID = f }
}

func buildOptions(opts []Option) options {
	o := options{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
		currency:       "INR",
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type metrics struct {
	placed              metric.Int64Counter
	couponRejections    metric.Int64Counter
	shippingDegraded    metric.Int64Counter
	fulfillmentFailures metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(instrumentationName)

	var (
		m   metrics
		err error
	)
	if m.placed, err = meter.Int64Counter("checkout.orders.placed",
		metric.WithDescription("Orders persisted by checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if m.couponRejections, err = meter.Int64Counter("checkout.coupon.rejections",
		metric.WithDescription("Coupons rejected during checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "coupon rejections counter")
	}
	if m.shippingDegraded, err = meter.Int64Counter("checkout.shipping.degraded",
		metric.WithDescription("Realtime shipping quotes that fell back to the flat rate"),
	); err != nil {
		return nil, errors.Wrap(err, "shipping degraded counter")
	}
	if m.fulfillmentFailures, err = meter.Int64Counter("checkout.fulfillment.failures",
		metric.WithDescription("Failed carrier operations"),
	); err != nil {
		return nil, errors.Wrap(err, "fulfillment failures counter")
	}
	return &m, nil
}
