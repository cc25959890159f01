// Package cart holds the per-user shopping cart and the immutable snapshot
// that checkout prices against.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/teakspice/storefront/internal/domain/coupon"
)

var (
	// ErrInvalidQuantity is returned when a quantity below one is requested.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrItemNotInCart is returned when updating or removing an absent variant.
	ErrItemNotInCart = errors.New("item not in cart")
)

// OutOfStockError reports a requested quantity above the variant's stock.
type OutOfStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("variant %s: requested %d, only %d in stock", e.VariantID, e.Requested, e.Available)
}

// Item is a stored cart line: a reference plus a quantity. Prices are resolved
// from the catalog every time a snapshot is taken.
type Item struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// Cart is the mutable, per-user cart.
type Cart struct {
	UserID    string
	Items     []Item
	UpdatedAt time.Time
}

func (c *Cart) find(variantID string) int {
	for i, it := range c.Items {
		if it.VariantID == variantID {
			return i
		}
	}
	return -1
}

// Line is one priced line of a Snapshot.
type Line struct {
	ProductID   string            `json:"product_id"`
	ProductName string            `json:"product_name"`
	CategoryID  string            `json:"category_id"`
	VariantID   string            `json:"variant_id"`
	SKU         string            `json:"sku,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Quantity    int               `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	WeightKg    decimal.Decimal   `json:"weight_kg"`
	Stock       int               `json:"-"`
}

// Snapshot is an immutable, priced view of a cart.
type Snapshot struct {
	UserID   string
	Lines    []Line
	Subtotal decimal.Decimal
}

// Empty reports whether the snapshot has no lines.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Lines) == 0
}

// TotalQuantity returns the sum of line quantities.
func (s *Snapshot) TotalQuantity() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

// WeightKg sums line weights, using fallback per unit for lines without one.
func (s *Snapshot) WeightKg(fallback decimal.Decimal) decimal.Decimal {
	w := decimal.Zero
	for _, l := range s.Lines {
		unit := l.WeightKg
		if !unit.IsPositive() {
			unit = fallback
		}
		w = w.Add(unit.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return w
}

// CouponItems returns the lines in the shape coupon evaluation prices against.
func (s *Snapshot) CouponItems() []coupon.Item {
	if s == nil {
		return nil
	}
	items := make([]coupon.Item, len(s.Lines))
	for i, l := range s.Lines {
		items[i] = coupon.Item{
			ProductID:  l.ProductID,
			CategoryID: l.CategoryID,
			Price:      l.UnitPrice,
			Quantity:   l.Quantity,
		}
	}
	return items
}

// Repository persists carts keyed by user.
type Repository interface {
	// Get returns the user's cart, or an empty cart when none is stored.
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, userID string) error
}
