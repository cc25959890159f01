package mongo

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teakspice/storefront/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

type variationTypeDoc struct {
	Name    string   `bson:"name"`
	Options []string `bson:"options"`
}

type variantDoc struct {
	ID           string              `bson:"id"`
	Attributes   map[string]string   `bson:"attributes"`
	RegularPrice decimal.Decimal     `bson:"regularPrice"`
	SalePrice    decimal.NullDecimal `bson:"salePrice"`
	Stock        int                 `bson:"stock"`
	SKU          string              `bson:"sku,omitempty"`
	WeightKg     decimal.Decimal     `bson:"weightKg"`
}

// productDoc embeds variants so a stock decrement is a single-document update.
type productDoc struct {
	ID             string             `bson:"_id"`
	Name           string             `bson:"name"`
	CategoryID     string             `bson:"categoryId"`
	Description    string             `bson:"description,omitempty"`
	Images         []string           `bson:"images"`
	VariationTypes []variationTypeDoc `bson:"variationTypes"`
	Variants       []variantDoc       `bson:"variants"`
	Active         bool               `bson:"active"`
}

func (d productDoc) domain() product.Product {
	p := product.Product{
		ID:          d.ID,
		Name:        d.Name,
		CategoryID:  d.CategoryID,
		Description: d.Description,
		Images:      d.Images,
		Active:      d.Active,
	}
	for _, vt := range d.VariationTypes {
		p.VariationTypes = append(p.VariationTypes, product.VariationType{Name: vt.Name, Options: vt.Options})
	}
	for _, v := range d.Variants {
		p.Variants = append(p.Variants, product.Variant{
			ID:           v.ID,
			ProductID:    d.ID,
			Attributes:   v.Attributes,
			RegularPrice: v.RegularPrice,
			SalePrice:    v.SalePrice,
			Stock:        v.Stock,
			SKU:          v.SKU,
			WeightKg:     v.WeightKg,
		})
	}
	return p
}

func newProductDoc(p *product.Product) productDoc {
	d := productDoc{
		ID:          p.ID,
		Name:        p.Name,
		CategoryID:  p.CategoryID,
		Description: p.Description,
		Images:      nonNil(p.Images),
		Active:      p.Active,
	}
	for _, vt := range p.VariationTypes {
		d.VariationTypes = append(d.VariationTypes, variationTypeDoc{Name: vt.Name, Options: vt.Options})
	}
	for _, v := range p.Variants {
		d.Variants = append(d.Variants, variantDoc{
			ID:           v.ID,
			Attributes:   v.Attributes,
			RegularPrice: v.RegularPrice,
			SalePrice:    v.SalePrice,
			Stock:        v.Stock,
			SKU:          v.SKU,
			WeightKg:     v.WeightKg,
		})
	}
	d.VariationTypes = nonNil(d.VariationTypes)
	d.Variants = nonNil(d.Variants)
	return d
}

// ProductRepository implements product.Repository backed by MongoDB.
type ProductRepository struct {
	col *mongo.Collection
}

// NewProductRepository returns a ProductRepository on db.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{col: db.Collection(colProducts)}
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var d productDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if isNotFound(err) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %s", id)
	}
	p := d.domain()
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errors.Wrap(err, "find products")
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	out := make([]product.Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.domain())
	}
	return out, nil
}

// DecrementStock matches the variant only while it has qty units left.
func (r *ProductRepository) DecrementStock(ctx context.Context, variantID string, qty int) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"variants": bson.M{"$elemMatch": bson.M{"id": variantID, "stock": bson.M{"$gte": qty}}}},
		bson.M{"$inc": bson.M{"variants.$.stock": -qty}},
	)
	if err != nil {
		return errors.Wrapf(err, "decrement stock of %s", variantID)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"variants.id": variantID}, options.Count().SetLimit(1))
	if err != nil {
		return errors.Wrapf(err, "check variant %s", variantID)
	}
	if n == 0 {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

// Upsert replaces the product document.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	if err := p.ValidateVariants(); err != nil {
		return err
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": p.ID}, newProductDoc(p), options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "upsert product %s", p.ID)
	}
	return nil
}
