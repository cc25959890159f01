package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teakspice/storefront/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

type couponDoc struct {
	Code                 string              `bson:"_id"`
	Description          string              `bson:"description"`
	DiscountType         string              `bson:"discountType"`
	Value                decimal.Decimal     `bson:"value"`
	MinPurchase          decimal.Decimal     `bson:"minPurchase"`
	MaxDiscount          decimal.NullDecimal `bson:"maxDiscount"`
	MaxUsage             int                 `bson:"maxUsage"`
	UsageCount           int                 `bson:"usageCount"`
	PerUserLimit         int                 `bson:"perUserLimit"`
	ValidFrom            *time.Time          `bson:"validFrom"`
	ValidUntil           *time.Time          `bson:"validUntil"`
	FirstPurchaseOnly    bool                `bson:"firstPurchaseOnly"`
	Active               bool                `bson:"active"`
	ShowToUser           bool                `bson:"showToUser"`
	ApplicableCategories []string            `bson:"applicableCategories"`
	ApplicableProducts   []string            `bson:"applicableProducts"`
	ApplicableUsers      []string            `bson:"applicableUsers"`
}

func (d couponDoc) domain() coupon.Rule {
	return coupon.Rule{
		Code:                 d.Code,
		Description:          d.Description,
		DiscountType:         coupon.DiscountType(d.DiscountType),
		Value:                d.Value,
		MinPurchase:          d.MinPurchase,
		MaxDiscount:          d.MaxDiscount,
		MaxUsage:             d.MaxUsage,
		UsageCount:           d.UsageCount,
		PerUserLimit:         d.PerUserLimit,
		ValidFrom:            d.ValidFrom,
		ValidUntil:           d.ValidUntil,
		FirstPurchaseOnly:    d.FirstPurchaseOnly,
		Active:               d.Active,
		ShowToUser:           d.ShowToUser,
		ApplicableCategories: d.ApplicableCategories,
		ApplicableProducts:   d.ApplicableProducts,
		ApplicableUsers:      d.ApplicableUsers,
	}
}

// CouponRepository implements coupon.Repository backed by MongoDB.
type CouponRepository struct {
	coupons     *mongo.Collection
	redemptions *mongo.Collection
	userUsage   *mongo.Collection
	now         func() time.Time
}

// NewCouponRepository returns a CouponRepository on db.
func NewCouponRepository(db *mongo.Database) *CouponRepository {
	return &CouponRepository{
		coupons:     db.Collection(colCoupons),
		redemptions: db.Collection(colRedemptions),
		userUsage:   db.Collection(colUserUsage),
		now:         time.Now,
	}
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	var d couponDoc
	if err := r.coupons.FindOne(ctx, bson.M{"_id": coupon.Canonical(code)}).Decode(&d); err != nil {
		if isNotFound(err) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c := d.domain()
	return &c, nil
}

func (r *CouponRepository) ListVisible(ctx context.Context) ([]coupon.Rule, error) {
	cur, err := r.coupons.Find(ctx,
		bson.M{"active": true, "showToUser": true},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	var docs []couponDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode coupons")
	}
	out := make([]coupon.Rule, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.domain())
	}
	return out, nil
}

func (r *CouponRepository) CountUserRedemptions(ctx context.Context, code, userID string) (int, error) {
	n, err := r.redemptions.CountDocuments(ctx, bson.M{"code": coupon.Canonical(code), "userId": userID})
	if err != nil {
		return 0, errors.Wrap(err, "count redemptions")
	}
	return int(n), nil
}

// Redeem claims the (code, order) redemption record first so a repeated call
// for the same order is a no-op. It then takes a slot in the user's counter
// and increments usageCount, each with a filter that only matches below its
// limit. Claims taken before a refusal are released.
func (r *CouponRepository) Redeem(ctx context.Context, rd coupon.Redemption) error {
	code := coupon.Canonical(rd.Code)
	id := code + "|" + rd.OrderID

	var limits struct {
		PerUserLimit int `bson:"perUserLimit"`
	}
	err := r.coupons.FindOne(ctx, bson.M{"_id": code},
		options.FindOne().SetProjection(bson.M{"perUserLimit": 1}),
	).Decode(&limits)
	if err != nil {
		if isNotFound(err) {
			return coupon.ErrNotFound
		}
		return errors.Wrap(err, "find coupon")
	}

	res, err := r.redemptions.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": bson.M{
			"code":       code,
			"userId":     rd.UserID,
			"orderId":    rd.OrderID,
			"redeemedAt": r.now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrap(err, "record redemption")
	}
	if res.UpsertedCount == 0 {
		return nil
	}
	release := func(cause error) error {
		if _, err := r.redemptions.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return errors.Wrap(err, "release redemption")
		}
		return cause
	}

	userKey := code + "|" + rd.UserID
	if limits.PerUserLimit > 0 {
		ok, err := r.takeUserSlot(ctx, userKey, code, rd.UserID, limits.PerUserLimit)
		if err != nil {
			return release(errors.Wrap(err, "count user redemption"))
		}
		if !ok {
			return release(coupon.ErrUserLimitReached)
		}
	}

	inc, err := r.coupons.UpdateOne(ctx,
		bson.M{
			"_id": code,
			"$or": bson.A{
				bson.M{"maxUsage": 0},
				bson.M{"$expr": bson.M{"$lt": bson.A{"$usageCount", "$maxUsage"}}},
			},
		},
		bson.M{"$inc": bson.M{"usageCount": 1}},
	)
	if err == nil && inc.MatchedCount == 1 {
		return nil
	}
	if err != nil {
		err = errors.Wrap(err, "increment usage")
	} else {
		err = coupon.ErrUsageExhausted
	}
	if limits.PerUserLimit > 0 {
		if _, derr := r.userUsage.UpdateOne(ctx, bson.M{"_id": userKey}, bson.M{"$inc": bson.M{"count": -1}}); derr != nil {
			return errors.Wrap(derr, "release user redemption")
		}
	}
	return release(err)
}

// takeUserSlot increments the user's redemption counter when it is below
// limit. A counter at the limit makes the upsert collide with the existing
// document; a collision can also come from a concurrent first insert, so it
// is tried once more before reporting the limit.
func (r *CouponRepository) takeUserSlot(ctx context.Context, key, code, userID string, limit int) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		_, err := r.userUsage.UpdateOne(ctx,
			bson.M{"_id": key, "count": bson.M{"$lt": limit}},
			bson.M{
				"$inc":         bson.M{"count": 1},
				"$setOnInsert": bson.M{"code": code, "userId": userID},
			},
			options.Update().SetUpsert(true),
		)
		if err == nil {
			return true, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return false, err
		}
	}
	return false, nil
}

// Upsert inserts or replaces a coupon definition, keeping the usage counter
// of an existing coupon.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Rule) error {
	code := coupon.Canonical(c.Code)
	fields := bson.M{
		"description":          c.Description,
		"discountType":         string(c.DiscountType),
		"value":                c.Value,
		"minPurchase":          c.MinPurchase,
		"maxDiscount":          c.MaxDiscount,
		"maxUsage":             c.MaxUsage,
		"perUserLimit":         c.PerUserLimit,
		"validFrom":            c.ValidFrom,
		"validUntil":           c.ValidUntil,
		"firstPurchaseOnly":    c.FirstPurchaseOnly,
		"active":               c.Active,
		"showToUser":           c.ShowToUser,
		"applicableCategories": nonNil(c.ApplicableCategories),
		"applicableProducts":   nonNil(c.ApplicableProducts),
		"applicableUsers":      nonNil(c.ApplicableUsers),
	}
	_, err := r.coupons.UpdateOne(ctx,
		bson.M{"_id": code},
		bson.M{"$set": fields, "$setOnInsert": bson.M{"usageCount": c.UsageCount}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %s", code)
	}
	return nil
}
