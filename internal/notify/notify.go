// Package notify publishes order lifecycle events.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/order"
)

// EventOrderConfirmed is the event type header value for confirmations.
const EventOrderConfirmed = "order.confirmed"

var (
	_ order.Notifier = (*Kafka)(nil)
	_ order.Notifier = Log{}
)

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes order events to a topic, keyed by order id.
type Kafka struct {
	w   MessageWriter
	now func() time.Time
}

// NewKafkaWriter creates a writer for the topic on the given brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewKafka creates a Kafka notifier.
func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{w: w, now: time.Now}
}

// OrderConfirmed publishes an order.confirmed event.
func (k *Kafka) OrderConfirmed(ctx context.Context, o *order.Order) error {
	msg := kafka.Message{
		Key:   []byte(o.ID),
		Value: encodeConfirmed(o, k.now()),
		Time:  k.now(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(EventOrderConfirmed)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "publish order.confirmed")
	}
	zctx.From(ctx).Debug("Published order event",
		zap.String("order_id", o.ID),
		zap.String("event", EventOrderConfirmed),
	)
	return nil
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	return k.w.Close()
}

func encodeConfirmed(o *order.Order, at time.Time) []byte {
	var e jx.Encoder
	str := func(k, v string) { e.Field(k, func(e *jx.Encoder) { e.Str(v) }) }
	e.ObjStart()
	str("type", EventOrderConfirmed)
	str("occurred_at", at.UTC().Format(time.RFC3339))
	str("order_id", o.ID)
	str("user_id", o.UserID)
	str("email", o.Email)
	str("status", string(o.Status))
	str("payment_method", string(o.Payment.Method))
	str("payment_status", string(o.Payment.Status))
	str("total_amount", o.TotalAmount.StringFixed(2))
	if o.CouponCode != "" {
		str("coupon_code", o.CouponCode)
	}
	e.Field("items", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					e.Field("variant_id", func(e *jx.Encoder) { e.Str(it.VariantID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(it.ProductName) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
				})
			}
		})
	})
	e.ObjEnd()
	return e.Bytes()
}

// Log writes order events to the context logger. It is used when no broker
// is configured.
type Log struct{}

func (Log) OrderConfirmed(ctx context.Context, o *order.Order) error {
	zctx.From(ctx).Info("Order confirmed",
		zap.String("order_id", o.ID),
		zap.String("email", o.Email),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)
	return nil
}
