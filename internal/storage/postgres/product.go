package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/teakspice/storefront/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const (
	selectProducts = `SELECT id, name, category_id, description, images, variation_types, active FROM products`
	selectVariants = `SELECT id, product_id, attributes, regular_price, sale_price, stock, sku, weight_kg
		FROM variants`
)

// GetByID returns a product with its variants, or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	ps, err := r.load(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, product.ErrNotFound
	}
	return &ps[0], nil
}

// GetByIDs returns the products that exist among ids, in no particular order.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.load(ctx, ids)
}

func (r *ProductRepository) load(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, selectProducts+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Product, error) {
		var p product.Product
		err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Description, &p.Images, &p.VariationTypes, &p.Active)
		return p, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	if len(products) == 0 {
		return nil, nil
	}

	rows, err = r.pool.Query(ctx, selectVariants+` WHERE product_id = ANY($1) ORDER BY product_id, position`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query variants")
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, errors.Wrap(err, "scan variants")
	}

	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	for _, v := range variants {
		if p, ok := byID[v.ProductID]; ok {
			p.Variants = append(p.Variants, v)
		}
	}
	return products, nil
}

func scanVariant(row pgx.CollectableRow) (product.Variant, error) {
	var v product.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.Attributes, &v.RegularPrice, &v.SalePrice, &v.Stock, &v.SKU, &v.WeightKg)
	return v, err
}

// DecrementStock subtracts qty from the variant only when enough units remain.
func (r *ProductRepository) DecrementStock(ctx context.Context, variantID string, qty int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE variants SET stock = stock - $2 WHERE id = $1 AND stock >= $2`, variantID, qty)
	if err != nil {
		return errors.Wrapf(err, "decrement stock of %s", variantID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := exists(ctx, r.pool, `SELECT EXISTS (SELECT 1 FROM variants WHERE id = $1)`, variantID)
	if err != nil {
		return errors.Wrapf(err, "check variant %s", variantID)
	}
	if !ok {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

// Upsert inserts or replaces a product and its variants.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	if err := p.ValidateVariants(); err != nil {
		return err
	}
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		images := p.Images
		if images == nil {
			images = []string{}
		}
		vts := p.VariationTypes
		if vts == nil {
			vts = []product.VariationType{}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO products (id, name, category_id, description, images, variation_types, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				category_id = EXCLUDED.category_id,
				description = EXCLUDED.description,
				images = EXCLUDED.images,
				variation_types = EXCLUDED.variation_types,
				active = EXCLUDED.active`,
			p.ID, p.Name, p.CategoryID, p.Description, images, vts, p.Active,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		ids := make([]string, 0, len(p.Variants))
		for i, v := range p.Variants {
			attrs := v.Attributes
			if attrs == nil {
				attrs = map[string]string{}
			}
			var sale *decimal.Decimal
			if v.SalePrice.Valid {
				sale = &v.SalePrice.Decimal
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO variants (id, product_id, position, attributes, regular_price, sale_price, stock, sku, weight_kg)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO UPDATE SET
					product_id = EXCLUDED.product_id,
					position = EXCLUDED.position,
					attributes = EXCLUDED.attributes,
					regular_price = EXCLUDED.regular_price,
					sale_price = EXCLUDED.sale_price,
					stock = EXCLUDED.stock,
					sku = EXCLUDED.sku,
					weight_kg = EXCLUDED.weight_kg`,
				v.ID, p.ID, i, attrs, v.RegularPrice, sale, v.Stock, v.SKU, v.WeightKg,
			); err != nil {
				return errors.Wrapf(err, "upsert variant %s", v.ID)
			}
			ids = append(ids, v.ID)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM variants WHERE product_id = $1 AND NOT (id = ANY($2))`, p.ID, ids); err != nil {
			return errors.Wrapf(err, "prune variants of %s", p.ID)
		}
		return nil
	})
}
