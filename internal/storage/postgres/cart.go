package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teakspice/storefront/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores carts as one JSONB row per user.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	c := &cart.Cart{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT items, updated_at FROM carts WHERE user_id = $1`, userID,
	).Scan(&c.Items, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get cart of %s", userID)
	}
	return c, nil
}

func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO carts (user_id, items, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`,
		c.UserID, items, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "save cart of %s", c.UserID)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return errors.Wrapf(err, "clear cart of %s", userID)
	}
	return nil
}
