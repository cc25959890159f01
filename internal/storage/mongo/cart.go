package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teakspice/storefront/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

type cartItemDoc struct {
	ProductID string `bson:"productId"`
	VariantID string `bson:"variantId"`
	Quantity  int    `bson:"quantity"`
}

type cartDoc struct {
	UserID    string        `bson:"_id"`
	Items     []cartItemDoc `bson:"items"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

// CartRepository stores one document per user.
type CartRepository struct {
	col *mongo.Collection
}

// NewCartRepository returns a CartRepository on db.
func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{col: db.Collection(colCarts)}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var d cartDoc
	err := r.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&d)
	if isNotFound(err) {
		return &cart.Cart{UserID: userID}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get cart of %s", userID)
	}
	c := &cart.Cart{UserID: userID, UpdatedAt: d.UpdatedAt}
	for _, it := range d.Items {
		c.Items = append(c.Items, cart.Item{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return c, nil
}

func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	d := cartDoc{UserID: c.UserID, Items: []cartItemDoc{}, UpdatedAt: c.UpdatedAt}
	for _, it := range c.Items {
		d.Items = append(d.Items, cartItemDoc{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}
	if _, err := r.col.ReplaceOne(ctx, bson.M{"_id": c.UserID}, d, options.Replace().SetUpsert(true)); err != nil {
		return errors.Wrapf(err, "save cart of %s", c.UserID)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return errors.Wrapf(err, "clear cart of %s", userID)
	}
	return nil
}
