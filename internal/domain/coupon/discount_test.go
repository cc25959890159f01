package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestEvaluate_Amount(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		rule       Rule
		items      []Item
		wantAmount decimal.Decimal
		wantErr    string
	}{
		{
			name:       "percentage",
			rule:       Rule{DiscountType: DiscountPercentage, Value: d("18")},
			items:      []Item{{ProductID: "p1", Price: d("50"), Quantity: 2}},
			wantAmount: d("18"),
		},
		{
			name:       "percentage rounds half up",
			rule:       Rule{DiscountType: DiscountPercentage, Value: d("15")},
			items:      []Item{{ProductID: "p1", Price: d("0.99"), Quantity: 1}},
			wantAmount: d("0.15"),
		},
		{
			name:       "percentage capped by max discount",
			rule:       Rule{DiscountType: DiscountPercentage, Value: d("50"), MaxDiscount: decimal.NewNullDecimal(d("100"))},
			items:      []Item{{ProductID: "p1", Price: d("1000"), Quantity: 1}},
			wantAmount: d("100"),
		},
		{
			name:       "percentage above 100 clamps to subtotal",
			rule:       Rule{DiscountType: DiscountPercentage, Value: d("150")},
			items:      []Item{{ProductID: "p1", Price: d("80"), Quantity: 1}},
			wantAmount: d("80"),
		},
		{
			name:       "fixed",
			rule:       Rule{DiscountType: DiscountFixed, Value: d("9")},
			items:      []Item{{ProductID: "p1", Price: d("100"), Quantity: 1}},
			wantAmount: d("9"),
		},
		{
			name:       "fixed larger than subtotal",
			rule:       Rule{DiscountType: DiscountFixed, Value: d("500")},
			items:      []Item{{ProductID: "p1", Price: d("120"), Quantity: 1}},
			wantAmount: d("120"),
		},
		{
			name:       "negative value floors at zero",
			rule:       Rule{DiscountType: DiscountFixed, Value: d("-10")},
			items:      []Item{{ProductID: "p1", Price: d("120"), Quantity: 1}},
			wantAmount: decimal.Zero,
		},
		{
			name: "category restriction discounts matching lines only",
			rule: Rule{DiscountType: DiscountPercentage, Value: d("10"), ApplicableCategories: []string{"pickles"}},
			items: []Item{
				{ProductID: "mango-pickle", CategoryID: "pickles", Price: d("200"), Quantity: 2},
				{ProductID: "garam-masala", CategoryID: "spices", Price: d("500"), Quantity: 1},
			},
			wantAmount: d("40"),
		},
		{
			name: "product or category match qualifies",
			rule: Rule{
				DiscountType:         DiscountFixed,
				Value:                d("1000"),
				ApplicableCategories: []string{"pickles"},
				ApplicableProducts:   []string{"garam-masala"},
			},
			items: []Item{
				{ProductID: "mango-pickle", CategoryID: "pickles", Price: d("200"), Quantity: 1},
				{ProductID: "garam-masala", CategoryID: "spices", Price: d("500"), Quantity: 1},
				{ProductID: "ghee", CategoryID: "dairy", Price: d("700"), Quantity: 1},
			},
			wantAmount: d("700"),
		},
		{
			name:    "unsupported type",
			rule:    Rule{DiscountType: "bogo", Value: d("1")},
			items:   []Item{{ProductID: "p1", Price: d("10"), Quantity: 1}},
			wantErr: "unsupported discount type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			rule.Code = "TEST"
			rule.Active = true

			got, err := Evaluate(&rule, tt.items, Customer{}, 0, now)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.wantAmount.Equal(got.Amount), "expected %s, got %s", tt.wantAmount, got.Amount)
		})
	}
}

func TestEvaluate_AmountWithinBounds(t *testing.T) {
	now := time.Now()
	prices := []string{"0.01", "0.99", "1", "49.5", "333.33", "999.99", "1000", "12345.67"}
	rules := []Rule{
		{DiscountType: DiscountFixed, Value: d("100")},
		{DiscountType: DiscountFixed, Value: d("0.5")},
		{DiscountType: DiscountPercentage, Value: d("33.3")},
		{DiscountType: DiscountPercentage, Value: d("100")},
		{DiscountType: DiscountPercentage, Value: d("12.5"), MaxDiscount: decimal.NewNullDecimal(d("40"))},
	}

	for _, r := range rules {
		for _, p := range prices {
			for qty := 1; qty <= 3; qty++ {
				rule := r
				rule.Code = "BOUNDS"
				rule.Active = true
				items := []Item{{ProductID: "p1", Price: d(p), Quantity: qty}}

				got, err := Evaluate(&rule, items, Customer{}, 0, now)
				require.NoError(t, err)

				sub := d(p).Mul(decimal.NewFromInt(int64(qty)))
				assert.False(t, got.Amount.IsNegative())
				assert.True(t, got.Amount.LessThanOrEqual(sub), "%s > %s", got.Amount, sub)
				assert.True(t, got.Amount.Equal(got.Amount.Round(2)))
				if rule.DiscountType == DiscountFixed {
					assert.True(t, decimal.Min(rule.Value, sub).Round(2).Equal(got.Amount))
				}
			}
		}
	}
}

func TestEvaluate_DoesNotMutateRule(t *testing.T) {
	rule := Rule{Code: "SAVE10", DiscountType: DiscountPercentage, Value: d("10"), Active: true, UsageCount: 3}
	got, err := Evaluate(&rule, []Item{{ProductID: "p1", Price: d("100"), Quantity: 1}}, Customer{}, 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, rule.UsageCount)
	assert.Equal(t, "SAVE10", got.Coupon.Code)
	assert.True(t, d("100").Equal(got.EligibleSubtotal))
}
