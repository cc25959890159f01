package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teakspice/storefront/internal/domain/address"
	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/shipping"
)

var _ order.Repository = (*OrderRepository)(nil)

// orderDoc keeps the snapshot types as embedded documents with the driver's
// default lower-case keys.
type orderDoc struct {
	ID              string          `bson:"_id"`
	UserID          string          `bson:"userId"`
	Email           string          `bson:"email"`
	Items           []order.Item    `bson:"items"`
	ShippingAddress address.Address `bson:"shippingAddress"`
	Subtotal        decimal.Decimal `bson:"subtotal"`
	DiscountAmount  decimal.Decimal `bson:"discountAmount"`
	ShippingFee     decimal.Decimal `bson:"shippingFee"`
	TotalAmount     decimal.Decimal `bson:"totalAmount"`
	CouponCode      string          `bson:"couponCode"`
	ShippingQuote   shipping.Quote  `bson:"shippingQuote"`
	Status          string          `bson:"status"`
	Payment         order.Payment   `bson:"payment"`
	Shipment        *order.Shipment `bson:"shipment"`
	Notes           []order.Note    `bson:"notes"`
	CreatedAt       time.Time       `bson:"createdAt"`
	UpdatedAt       time.Time       `bson:"updatedAt"`
}

func newOrderDoc(o *order.Order) orderDoc {
	return orderDoc{
		ID:              o.ID,
		UserID:          o.UserID,
		Email:           o.Email,
		Items:           nonNil(o.Items),
		ShippingAddress: o.ShippingAddress,
		Subtotal:        o.Subtotal,
		DiscountAmount:  o.DiscountAmount,
		ShippingFee:     o.ShippingFee,
		TotalAmount:     o.TotalAmount,
		CouponCode:      o.CouponCode,
		ShippingQuote:   o.ShippingQuote,
		Status:          string(o.Status),
		Payment:         o.Payment,
		Shipment:        o.Shipment,
		Notes:           nonNil(o.Notes),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (d orderDoc) domain() *order.Order {
	return &order.Order{
		ID:              d.ID,
		UserID:          d.UserID,
		Email:           d.Email,
		Items:           d.Items,
		ShippingAddress: d.ShippingAddress,
		Subtotal:        d.Subtotal,
		DiscountAmount:  d.DiscountAmount,
		ShippingFee:     d.ShippingFee,
		TotalAmount:     d.TotalAmount,
		CouponCode:      d.CouponCode,
		ShippingQuote:   d.ShippingQuote,
		Status:          order.Status(d.Status),
		Payment:         d.Payment,
		Shipment:        d.Shipment,
		Notes:           d.Notes,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// OrderRepository implements order.Repository backed by MongoDB.
type OrderRepository struct {
	col *mongo.Collection
}

// NewOrderRepository returns an OrderRepository on db.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{col: db.Collection(colOrders)}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if _, err := r.col.InsertOne(ctx, newOrderDoc(o)); err != nil {
		return errors.Wrapf(err, "create order %s", o.ID)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var d orderDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if isNotFound(err) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return d.domain(), nil
}

// UpdateState matches on the expected status so concurrent transitions
// cannot both apply.
func (r *OrderRepository) UpdateState(ctx context.Context, o *order.Order, expected order.Status) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": o.ID, "status": string(expected)},
		bson.M{"$set": bson.M{
			"status":    string(o.Status),
			"payment":   o.Payment,
			"updatedAt": o.UpdatedAt,
		}},
	)
	if err != nil {
		return errors.Wrapf(err, "update order %s", o.ID)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": o.ID}, options.Count().SetLimit(1))
	if err != nil {
		return errors.Wrapf(err, "check order %s", o.ID)
	}
	if n == 0 {
		return order.ErrNotFound
	}
	return order.ErrStateConflict
}

func (r *OrderRepository) SetShipment(ctx context.Context, id string, s *order.Shipment) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"shipment": s}})
}

func (r *OrderRepository) AddNote(ctx context.Context, id string, n order.Note) error {
	return r.update(ctx, id, bson.M{"$push": bson.M{"notes": n}})
}

func (r *OrderRepository) update(ctx context.Context, id string, upd bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, upd)
	if err != nil {
		return errors.Wrapf(err, "update order %s", id)
	}
	if res.MatchedCount == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) HasCompletedOrder(ctx context.Context, userID string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"userId": userID,
		"status": bson.M{"$in": bson.A{
			string(order.StatusConfirmed),
			string(order.StatusProcessing),
			string(order.StatusShipped),
			string(order.StatusDelivered),
		}},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, "check completed orders")
	}
	return n > 0, nil
}
