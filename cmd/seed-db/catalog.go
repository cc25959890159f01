package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/product"
	"github.com/teakspice/storefront/internal/domain/settings"
)

// catalog is the seed file layout.
type catalog struct {
	Products []productJSON      `json:"products"`
	Coupons  []couponJSON       `json:"coupons"`
	Settings *settings.Settings `json:"settings"`
}

type variationTypeJSON struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

type variantJSON struct {
	ID           string              `json:"id"`
	SKU          string              `json:"sku"`
	Attributes   map[string]string   `json:"attributes"`
	RegularPrice decimal.Decimal     `json:"regular_price"`
	SalePrice    decimal.NullDecimal `json:"sale_price"`
	Stock        int                 `json:"stock"`
	WeightKg     decimal.Decimal     `json:"weight_kg"`
}

type productJSON struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	CategoryID     string              `json:"category_id"`
	Description    string              `json:"description"`
	Images         []string            `json:"images"`
	VariationTypes []variationTypeJSON `json:"variation_types"`
	Variants       []variantJSON       `json:"variants"`
	Inactive       bool                `json:"inactive"`
}

type couponJSON struct {
	Code                 string              `json:"code"`
	Description          string              `json:"description"`
	DiscountType         coupon.DiscountType `json:"discount_type"`
	Value                decimal.Decimal     `json:"value"`
	MinPurchase          decimal.Decimal     `json:"min_purchase"`
	MaxDiscount          decimal.NullDecimal `json:"max_discount"`
	MaxUsage             int                 `json:"max_usage"`
	PerUserLimit         int                 `json:"per_user_limit"`
	ValidFrom            *time.Time          `json:"valid_from"`
	ValidUntil           *time.Time          `json:"valid_until"`
	FirstPurchaseOnly    bool                `json:"first_purchase_only"`
	Inactive             bool                `json:"inactive"`
	Hidden               bool                `json:"hidden"`
	ApplicableCategories []string            `json:"applicable_categories"`
	ApplicableProducts   []string            `json:"applicable_products"`
	ApplicableUsers      []string            `json:"applicable_users"`
}

func loadCatalog(path string) (*catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	var c catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	return &c, nil
}

// toProduct converts and validates a catalog entry.
func (p productJSON) toProduct() (*product.Product, error) {
	out := &product.Product{
		ID:          p.ID,
		Name:        p.Name,
		CategoryID:  p.CategoryID,
		Description: p.Description,
		Images:      p.Images,
		Active:      !p.Inactive,
	}
	for _, vt := range p.VariationTypes {
		out.VariationTypes = append(out.VariationTypes, product.VariationType{Name: vt.Name, Options: vt.Options})
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, product.Variant{
			ID:           v.ID,
			ProductID:    p.ID,
			Attributes:   v.Attributes,
			RegularPrice: v.RegularPrice,
			SalePrice:    v.SalePrice,
			Stock:        v.Stock,
			SKU:          v.SKU,
			WeightKg:     v.WeightKg,
		})
	}
	if err := out.ValidateVariants(); err != nil {
		return nil, errors.Wrapf(err, "product %s", p.ID)
	}
	return out, nil
}

func (c couponJSON) toRule() (*coupon.Rule, error) {
	switch c.DiscountType {
	case coupon.DiscountPercentage, coupon.DiscountFixed:
	default:
		return nil, errors.Errorf("coupon %s: unknown discount type %q", c.Code, c.DiscountType)
	}
	return &coupon.Rule{
		Code:                 coupon.Canonical(c.Code),
		Description:          c.Description,
		DiscountType:         c.DiscountType,
		Value:                c.Value,
		MinPurchase:          c.MinPurchase,
		MaxDiscount:          c.MaxDiscount,
		MaxUsage:             c.MaxUsage,
		PerUserLimit:         c.PerUserLimit,
		ValidFrom:            c.ValidFrom,
		ValidUntil:           c.ValidUntil,
		FirstPurchaseOnly:    c.FirstPurchaseOnly,
		Active:               !c.Inactive,
		ShowToUser:           !c.Hidden,
		ApplicableCategories: c.ApplicableCategories,
		ApplicableProducts:   c.ApplicableProducts,
		ApplicableUsers:      c.ApplicableUsers,
	}, nil
}
