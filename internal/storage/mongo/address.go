package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teakspice/storefront/internal/domain/address"
)

var _ address.Repository = (*AddressRepository)(nil)

type addressDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Label     string    `bson:"label,omitempty"`
	FullName  string    `bson:"fullName"`
	Phone     string    `bson:"phone"`
	Email     string    `bson:"email,omitempty"`
	Line1     string    `bson:"line1"`
	Line2     string    `bson:"line2,omitempty"`
	City      string    `bson:"city"`
	State     string    `bson:"state"`
	Pincode   string    `bson:"pincode"`
	Country   string    `bson:"country"`
	IsDefault bool      `bson:"isDefault"`
	CreatedAt time.Time `bson:"createdAt"`
}

// AddressRepository implements address.Repository backed by MongoDB.
type AddressRepository struct {
	col *mongo.Collection
}

// NewAddressRepository returns an AddressRepository on db.
func NewAddressRepository(db *mongo.Database) *AddressRepository {
	return &AddressRepository{col: db.Collection(colAddresses)}
}

func (r *AddressRepository) Get(ctx context.Context, userID, id string) (*address.Address, error) {
	var d addressDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&d); err != nil {
		if isNotFound(err) {
			return nil, address.ErrNotFound
		}
		return nil, errors.Wrap(err, "get address")
	}
	a := address.Address(d)
	return &a, nil
}

func (r *AddressRepository) List(ctx context.Context, userID string) ([]address.Address, error) {
	cur, err := r.col.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "isDefault", Value: -1}, {Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	var docs []addressDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode addresses")
	}
	out := make([]address.Address, 0, len(docs))
	for _, d := range docs {
		out = append(out, address.Address(d))
	}
	return out, nil
}

// Save clears the default flag on the user's other addresses before writing
// a default address.
func (r *AddressRepository) Save(ctx context.Context, a *address.Address) error {
	if a.IsDefault {
		if _, err := r.col.UpdateMany(ctx,
			bson.M{"userId": a.UserID, "_id": bson.M{"$ne": a.ID}, "isDefault": true},
			bson.M{"$set": bson.M{"isDefault": false}},
		); err != nil {
			return errors.Wrap(err, "clear default address")
		}
	}
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": a.ID, "userId": a.UserID},
		addressDoc(*a),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrapf(err, "save address %s", a.ID)
	}
	return nil
}
