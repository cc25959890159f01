// Package mongo implements the storefront repositories on MongoDB.
//
// Money is stored as Decimal128 through codecs registered on the client.
// Counters that must not exceed a cap are updated with a conditional filter
// in a single UpdateOne.
package mongo

import (
	"context"
	"reflect"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	colProducts    = "products"
	colCarts       = "carts"
	colCoupons     = "coupons"
	colRedemptions = "coupon_redemptions"
	colUserUsage   = "coupon_user_usage"
	colOrders      = "orders"
	colAddresses   = "addresses"
	colSettings    = "settings"
	colSessions    = "sessions"
)

var (
	tDecimal     = reflect.TypeOf(decimal.Decimal{})
	tNullDecimal = reflect.TypeOf(decimal.NullDecimal{})
)

// Registry returns a BSON registry that stores decimals as Decimal128.
func Registry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(tDecimal, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(tDecimal, bsoncodec.ValueDecoderFunc(decodeDecimal))
	reg.RegisterTypeEncoder(tNullDecimal, bsoncodec.ValueEncoderFunc(encodeNullDecimal))
	reg.RegisterTypeDecoder(tNullDecimal, bsoncodec.ValueDecoderFunc(decodeNullDecimal))
	return reg
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	p, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, errors.Wrapf(err, "decimal %s", d)
	}
	return p, nil
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if val.Type() != tDecimal {
		return bsoncodec.ValueEncoderError{Name: "encodeDecimal", Types: []reflect.Type{tDecimal}, Received: val}
	}
	p, err := toDecimal128(val.Interface().(decimal.Decimal))
	if err != nil {
		return err
	}
	return vw.WriteDecimal128(p)
}

func encodeNullDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if val.Type() != tNullDecimal {
		return bsoncodec.ValueEncoderError{Name: "encodeNullDecimal", Types: []reflect.Type{tNullDecimal}, Received: val}
	}
	nd := val.Interface().(decimal.NullDecimal)
	if !nd.Valid {
		return vw.WriteNull()
	}
	p, err := toDecimal128(nd.Decimal)
	if err != nil {
		return err
	}
	return vw.WriteDecimal128(p)
}

// readDecimal accepts Decimal128 and, for documents written by hand, strings
// and numbers.
func readDecimal(vr bsonrw.ValueReader) (decimal.Decimal, bool, error) {
	switch vr.Type() {
	case bsontype.Decimal128:
		p, err := vr.ReadDecimal128()
		if err != nil {
			return decimal.Zero, false, err
		}
		d, err := decimal.NewFromString(p.String())
		return d, true, err
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return decimal.Zero, false, err
		}
		d, err := decimal.NewFromString(s)
		return d, true, err
	case bsontype.Double:
		f, err := vr.ReadDouble()
		return decimal.NewFromFloat(f), true, err
	case bsontype.Int32:
		i, err := vr.ReadInt32()
		return decimal.NewFromInt32(i), true, err
	case bsontype.Int64:
		i, err := vr.ReadInt64()
		return decimal.NewFromInt(i), true, err
	case bsontype.Null:
		return decimal.Zero, false, vr.ReadNull()
	case bsontype.Undefined:
		return decimal.Zero, false, vr.ReadUndefined()
	default:
		return decimal.Zero, false, errors.Errorf("cannot decode %s into decimal", vr.Type())
	}
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tDecimal {
		return bsoncodec.ValueDecoderError{Name: "decodeDecimal", Types: []reflect.Type{tDecimal}, Received: val}
	}
	d, _, err := readDecimal(vr)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(d))
	return nil
}

func decodeNullDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tNullDecimal {
		return bsoncodec.ValueDecoderError{Name: "decodeNullDecimal", Types: []reflect.Type{tNullDecimal}, Received: val}
	}
	d, ok, err := readDecimal(vr)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(decimal.NullDecimal{Decimal: d, Valid: ok}))
	return nil
}

// Connect opens a client with the decimal registry and pings it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetRegistry(Registry()).
		SetServerSelectionTimeout(10*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping")
	}
	return client, nil
}

// EnsureIndexes creates the indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for col, models := range map[string][]mongo.IndexModel{
		colRedemptions: {{Keys: bson.D{{Key: "code", Value: 1}, {Key: "userId", Value: 1}}}},
		colOrders:      {{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		colAddresses:   {{Keys: bson.D{{Key: "userId", Value: 1}}}},
		colSessions: {{
			Keys:    bson.D{{Key: "tokenHash", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		colProducts: {{Keys: bson.D{{Key: "variants.id", Value: 1}}}},
	} {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "create indexes on %s", col)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
