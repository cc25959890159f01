package coupon

import (
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate applies the eligibility rules to an immutable cart view, in order,
// stopping at the first failure. userRedemptions is the number of times the
// customer has already redeemed the code.
func Evaluate(rule *Rule, items []Item, c Customer, userRedemptions int, now time.Time) (*Discount, error) {
	code := rule.Code

	if !rule.Active {
		return nil, reject(code, ReasonInactive, "coupon is no longer active")
	}
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, reject(code, ReasonNotYetValid, "coupon is valid from %s", rule.ValidFrom.Format(time.DateOnly))
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, reject(code, ReasonExpired, "coupon expired on %s", rule.ValidUntil.Format(time.DateOnly))
	}
	if rule.MaxUsage > 0 && rule.UsageCount >= rule.MaxUsage {
		return nil, reject(code, ReasonUsageExhausted, "coupon usage limit reached")
	}
	if rule.PerUserLimit > 0 && userRedemptions >= rule.PerUserLimit {
		return nil, reject(code, ReasonPerUserLimit, "you have already used this coupon")
	}
	if rule.FirstPurchaseOnly && c.HasCompletedPriorOrder {
		return nil, reject(code, ReasonNotFirstPurchase, "coupon is valid on your first order only")
	}
	if len(rule.ApplicableUsers) > 0 && !slices.Contains(rule.ApplicableUsers, c.UserID) {
		return nil, reject(code, ReasonUserNotEligible, "coupon is not available for your account")
	}

	eligible, ok := eligibleSubtotal(rule, items)
	if !ok {
		return nil, reject(code, ReasonNoEligibleItems, "no items in your cart are eligible for this coupon")
	}

	if eligible.LessThan(rule.MinPurchase) {
		shortfall := rule.MinPurchase.Sub(eligible).Round(2)
		r := reject(code, ReasonMinPurchaseNotMet, "add ₹%s more to use this coupon (minimum purchase ₹%s)",
			shortfall.StringFixed(2), rule.MinPurchase.StringFixed(2))
		r.Shortfall = shortfall
		return nil, r
	}

	amount, err := computeAmount(rule, eligible)
	if err != nil {
		return nil, err
	}

	return &Discount{
		Code:             code,
		Amount:           amount,
		EligibleSubtotal: eligible,
		Description:      rule.Description,
		Coupon:           *rule,
	}, nil
}

// eligibleSubtotal sums the lines the coupon may discount. A line qualifies
// when it matches either non-empty restriction set. It reports false when
// restrictions exist and no line qualifies.
func eligibleSubtotal(rule *Rule, items []Item) (decimal.Decimal, bool) {
	restricted := len(rule.ApplicableCategories) > 0 || len(rule.ApplicableProducts) > 0

	sum := decimal.Zero
	matched := false
	for _, it := range items {
		if restricted && !lineQualifies(rule, it) {
			continue
		}
		matched = true
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if restricted && !matched {
		return decimal.Zero, false
	}
	return sum, true
}

func lineQualifies(rule *Rule, it Item) bool {
	if len(rule.ApplicableProducts) > 0 && slices.Contains(rule.ApplicableProducts, it.ProductID) {
		return true
	}
	return len(rule.ApplicableCategories) > 0 && slices.Contains(rule.ApplicableCategories, it.CategoryID)
}

// computeAmount returns the discount rounded half-up to two decimals and
// clamped to [0, eligible].
func computeAmount(rule *Rule, eligible decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = eligible.Mul(rule.Value).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(rule.Value, eligible)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	if rule.MaxDiscount.Valid && amount.GreaterThan(rule.MaxDiscount.Decimal) {
		amount = rule.MaxDiscount.Decimal
	}

	amount = amount.Round(2)
	if amount.IsNegative() {
		return decimal.Zero, nil
	}
	if amount.GreaterThan(eligible) {
		return eligible, nil
	}
	return amount, nil
}
