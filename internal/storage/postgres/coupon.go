package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teakspice/storefront/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

const selectCoupons = `SELECT code, description, discount_type, value, min_purchase, max_discount,
	max_usage, usage_count, per_user_limit, valid_from, valid_until, first_purchase_only,
	active, show_to_user, applicable_categories, applicable_products, applicable_users
	FROM coupons`

func scanCoupon(row pgx.CollectableRow) (coupon.Rule, error) {
	var c coupon.Rule
	err := row.Scan(
		&c.Code, &c.Description, &c.DiscountType, &c.Value, &c.MinPurchase, &c.MaxDiscount,
		&c.MaxUsage, &c.UsageCount, &c.PerUserLimit, &c.ValidFrom, &c.ValidUntil, &c.FirstPurchaseOnly,
		&c.Active, &c.ShowToUser, &c.ApplicableCategories, &c.ApplicableProducts, &c.ApplicableUsers,
	)
	return c, err
}

// FindByCode returns the coupon with the canonical code, active or not.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, selectCoupons+` WHERE code = $1`, coupon.Canonical(code))
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, coupon.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "scan coupon %q", code)
	}
	return &c, nil
}

func (r *CouponRepository) ListVisible(ctx context.Context) ([]coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, selectCoupons+` WHERE active AND show_to_user ORDER BY code`)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	out, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, errors.Wrap(err, "scan coupons")
	}
	return out, nil
}

func (r *CouponRepository) CountUserRedemptions(ctx context.Context, code, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM coupon_redemptions WHERE code = $1 AND user_id = $2`,
		coupon.Canonical(code), userID,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count redemptions")
	}
	return n, nil
}

// Redeem records the redemption and increments usage_count in one
// transaction. The coupon row is locked first, so the per-user count and the
// conditional increment are never raced by another redemption of the same
// code. Redeeming the same order twice is a no-op.
func (r *CouponRepository) Redeem(ctx context.Context, rd coupon.Redemption) error {
	code := coupon.Canonical(rd.Code)
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var perUser int
		err := tx.QueryRow(ctx,
			`SELECT per_user_limit FROM coupons WHERE code = $1 FOR UPDATE`, code,
		).Scan(&perUser)
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock coupon")
		}

		if ok, err := exists(ctx, tx,
			`SELECT EXISTS (SELECT 1 FROM coupon_redemptions WHERE code = $1 AND order_id = $2)`,
			code, rd.OrderID,
		); err != nil {
			return errors.Wrap(err, "check redemption")
		} else if ok {
			return nil
		}

		if perUser > 0 {
			var used int
			if err := tx.QueryRow(ctx,
				`SELECT count(*) FROM coupon_redemptions WHERE code = $1 AND user_id = $2`,
				code, rd.UserID,
			).Scan(&used); err != nil {
				return errors.Wrap(err, "count redemptions")
			}
			if used >= perUser {
				return coupon.ErrUserLimitReached
			}
		}

		tag, err := tx.Exec(ctx, `
			UPDATE coupons SET usage_count = usage_count + 1
			WHERE code = $1 AND (max_usage = 0 OR usage_count < max_usage)`, code)
		if err != nil {
			return errors.Wrap(err, "increment usage")
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrUsageExhausted
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO coupon_redemptions (code, order_id, user_id) VALUES ($1, $2, $3)`,
			code, rd.OrderID, rd.UserID,
		); err != nil {
			return errors.Wrap(err, "record redemption")
		}
		return nil
	})
}

// Upsert inserts or replaces a coupon definition. The usage counter of an
// existing coupon is kept.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Rule) error {
	strs := func(s []string) []string {
		if s == nil {
			return []string{}
		}
		return s
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO coupons (code, description, discount_type, value, min_purchase, max_discount,
			max_usage, usage_count, per_user_limit, valid_from, valid_until, first_purchase_only,
			active, show_to_user, applicable_categories, applicable_products, applicable_users)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_purchase = EXCLUDED.min_purchase,
			max_discount = EXCLUDED.max_discount,
			max_usage = EXCLUDED.max_usage,
			per_user_limit = EXCLUDED.per_user_limit,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			first_purchase_only = EXCLUDED.first_purchase_only,
			active = EXCLUDED.active,
			show_to_user = EXCLUDED.show_to_user,
			applicable_categories = EXCLUDED.applicable_categories,
			applicable_products = EXCLUDED.applicable_products,
			applicable_users = EXCLUDED.applicable_users`,
		coupon.Canonical(c.Code), c.Description, string(c.DiscountType), c.Value, c.MinPurchase, c.MaxDiscount,
		c.MaxUsage, c.UsageCount, c.PerUserLimit, c.ValidFrom, c.ValidUntil, c.FirstPurchaseOnly,
		c.Active, c.ShowToUser, strs(c.ApplicableCategories), strs(c.ApplicableProducts), strs(c.ApplicableUsers),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %s", c.Code)
	}
	return nil
}
