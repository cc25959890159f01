package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/teakspice/storefront/internal/domain/product"
)

// Service implements cart mutations and snapshotting.
type Service struct {
	carts    Repository
	products product.Repository
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products, now: time.Now}
}

// AddItem adds qty units of a variant, merging with an existing line for the
// same variant. The resulting quantity must not exceed stock.
func (s *Service) AddItem(ctx context.Context, userID, productID, variantID string, qty int) (*Snapshot, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	v, err := s.lookupVariant(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	want := qty
	idx := c.find(variantID)
	if idx >= 0 {
		want += c.Items[idx].Quantity
	}
	if want > v.Stock {
		return nil, &OutOfStockError{VariantID: variantID, Requested: want, Available: v.Stock}
	}

	if idx >= 0 {
		c.Items[idx].Quantity = want
	} else {
		c.Items = append(c.Items, Item{ProductID: productID, VariantID: variantID, Quantity: qty})
	}
	return s.save(ctx, c)
}

// UpdateItem sets the quantity of a variant already in the cart.
func (s *Service) UpdateItem(ctx context.Context, userID, variantID string, qty int) (*Snapshot, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	idx := c.find(variantID)
	if idx < 0 {
		return nil, ErrItemNotInCart
	}

	v, err := s.lookupVariant(ctx, c.Items[idx].ProductID, variantID)
	if err != nil {
		return nil, err
	}
	if qty > v.Stock {
		return nil, &OutOfStockError{VariantID: variantID, Requested: qty, Available: v.Stock}
	}

	c.Items[idx].Quantity = qty
	return s.save(ctx, c)
}

// RemoveItem drops a variant from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, variantID string) (*Snapshot, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	idx := c.find(variantID)
	if idx < 0 {
		return nil, ErrItemNotInCart
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return s.save(ctx, c)
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.carts.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Snapshot prices the user's cart against the current catalog. Lines whose
// product or variant no longer exists are left out.
func (s *Service) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return s.price(ctx, c)
}

func (s *Service) save(ctx context.Context, c *Cart) (*Snapshot, error) {
	c.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return s.price(ctx, c)
}

func (s *Service) lookupVariant(ctx context.Context, productID, variantID string) (product.Variant, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return product.Variant{}, product.ErrNotFound
		}
		return product.Variant{}, errors.Wrap(err, "get product")
	}
	v, ok := p.Variant(variantID)
	if !ok || !p.Active {
		return product.Variant{}, product.ErrNotFound
	}
	return v, nil
}

func (s *Service) price(ctx context.Context, c *Cart) (*Snapshot, error) {
	snap := &Snapshot{UserID: c.UserID, Subtotal: decimal.Zero}
	if len(c.Items) == 0 {
		return snap, nil
	}

	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	for _, it := range c.Items {
		p, ok := byID[it.ProductID]
		if !ok || !p.Active {
			continue
		}
		v, ok := p.Variant(it.VariantID)
		if !ok {
			continue
		}
		unit := v.UnitPrice()
		line := Line{
			ProductID:   p.ID,
			ProductName: p.Name,
			CategoryID:  p.CategoryID,
			VariantID:   v.ID,
			SKU:         v.SKU,
			Attributes:  v.Attributes,
			Quantity:    it.Quantity,
			UnitPrice:   unit,
			Subtotal:    unit.Mul(decimal.NewFromInt(int64(it.Quantity))),
			WeightKg:    v.WeightKg,
			Stock:       v.Stock,
		}
		snap.Lines = append(snap.Lines, line)
		snap.Subtotal = snap.Subtotal.Add(line.Subtotal)
	}
	return snap, nil
}
