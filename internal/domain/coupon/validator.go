package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator validates a coupon code against a cart and returns the computed
// discount. A coupon that does not apply is reported as a *Rejection.
type Validator interface {
	Validate(ctx context.Context, code string, items []Item, c Customer) (*Discount, error)
}

var _ Validator = (*RepoValidator)(nil)

// RepoValidator implements Validator by looking up coupon rules from a
// Repository and evaluating them against the cart.
//
// Validation never mutates usage counters; redemption happens only once the
// order is confirmed.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon, checks it against the customer and cart, and
// computes the discount.
func (v *RepoValidator) Validate(ctx context.Context, code string, items []Item, c Customer) (*Discount, error) {
	code = Canonical(code)
	if code == "" {
		return nil, reject(code, ReasonNotFound, "enter a coupon code")
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, reject(code, ReasonNotFound, "coupon %s does not exist", code)
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	used := 0
	if rule.PerUserLimit > 0 && c.UserID != "" {
		used, err = v.repo.CountUserRedemptions(ctx, rule.Code, c.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "count redemptions")
		}
	}

	return Evaluate(rule, items, c, used, v.now())
}

// Available returns the storefront-visible coupons that are currently usable
// by anyone: within their validity window and below the usage cap.
func (v *RepoValidator) Available(ctx context.Context) ([]Rule, error) {
	rules, err := v.repo.ListVisible(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}

	now := v.now()
	out := rules[:0]
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
			continue
		}
		if r.ValidUntil != nil && now.After(*r.ValidUntil) {
			continue
		}
		if r.MaxUsage > 0 && r.UsageCount >= r.MaxUsage {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
