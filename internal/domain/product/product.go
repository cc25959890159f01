package product

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product or variant does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a conditional stock decrement
	// finds fewer units than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is a catalog entry. The purchasable unit is the Variant.
type Product struct {
	ID             string
	Name           string
	CategoryID     string
	Description    string
	Images         []string
	VariationTypes []VariationType
	Variants       []Variant
	Active         bool
}

// VariationType is a named option list, e.g. "Size": ["100g", "250g"].
type VariationType struct {
	Name    string
	Options []string
}

// Variant is the priced, stocked unit of a Product.
type Variant struct {
	ID           string
	ProductID    string
	Attributes   map[string]string
	RegularPrice decimal.Decimal
	SalePrice    decimal.NullDecimal
	Stock        int
	SKU          string
	// WeightKg is optional; zero means the merchant default weight applies.
	WeightKg decimal.Decimal
}

// UnitPrice returns the sale price when it is set, positive and lower than the
// regular price, otherwise the regular price.
func (v Variant) UnitPrice() decimal.Decimal {
	if v.SalePrice.Valid && v.SalePrice.Decimal.IsPositive() && v.SalePrice.Decimal.LessThan(v.RegularPrice) {
		return v.SalePrice.Decimal
	}
	return v.RegularPrice
}

// Variant returns the variant with the given id.
func (p *Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// InvalidVariantError reports a variant whose attributes are not a complete
// assignment over the product's variation types.
type InvalidVariantError struct {
	VariantID string
	Reason    string
}

func (e *InvalidVariantError) Error() string {
	return fmt.Sprintf("variant %s: %s", e.VariantID, e.Reason)
}

// ValidateVariants checks that the product has at least one variant and that
// every variant assigns exactly one known option to each variation type.
func (p *Product) ValidateVariants() error {
	if len(p.Variants) == 0 {
		return errors.Errorf("product %s has no variants", p.ID)
	}

	options := make(map[string]map[string]struct{}, len(p.VariationTypes))
	for _, vt := range p.VariationTypes {
		set := make(map[string]struct{}, len(vt.Options))
		for _, o := range vt.Options {
			set[o] = struct{}{}
		}
		options[vt.Name] = set
	}

	for _, v := range p.Variants {
		if v.Stock < 0 {
			return &InvalidVariantError{VariantID: v.ID, Reason: "negative stock"}
		}
		if len(v.Attributes) != len(options) {
			return &InvalidVariantError{
				VariantID: v.ID,
				Reason:    fmt.Sprintf("expected %d attributes, got %d", len(options), len(v.Attributes)),
			}
		}
		for name, value := range v.Attributes {
			set, ok := options[name]
			if !ok {
				return &InvalidVariantError{VariantID: v.ID, Reason: fmt.Sprintf("unknown variation type %q", name)}
			}
			if _, ok := set[value]; !ok {
				return &InvalidVariantError{VariantID: v.ID, Reason: fmt.Sprintf("unknown option %q for %q", value, name)}
			}
		}
	}
	return nil
}

// Combinations generates every attribute assignment over the variation types,
// in declaration order. It returns a single empty assignment when the product
// has no variation types.
func (p *Product) Combinations() []map[string]string {
	out := []map[string]string{{}}
	for _, vt := range p.VariationTypes {
		next := make([]map[string]string, 0, len(out)*len(vt.Options))
		for _, base := range out {
			for _, opt := range vt.Options {
				m := make(map[string]string, len(base)+1)
				for k, v := range base {
					m[k] = v
				}
				m[vt.Name] = opt
				next = append(next, m)
			}
		}
		out = next
	}
	return out
}

// AttributeKey renders attributes in a stable order for display and logging.
func AttributeKey(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += k + ": " + attrs[k]
	}
	return s
}

// Repository defines catalog reads and stock mutation.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// DecrementStock subtracts qty from the variant's stock only when at least
	// qty units remain. It returns ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, variantID string, qty int) error
}
