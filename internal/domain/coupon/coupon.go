package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the eligible subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, capped at the eligible subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned by repositories when no coupon has the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrUsageExhausted is returned by Repository.Redeem when the global
	// usage cap was reached before the increment could be applied.
	ErrUsageExhausted = errors.New("coupon usage limit reached")
	// ErrUserLimitReached is returned by Repository.Redeem when the user
	// already holds perUserLimit redemptions of the coupon.
	ErrUserLimitReached = errors.New("coupon per-user limit reached")
	// ErrRejected matches every *Rejection via errors.Is.
	ErrRejected = errors.New("coupon rejected")
)

// Reason is the machine-readable cause of a coupon rejection.
type Reason string

const (
	ReasonNotFound          Reason = "NOT_FOUND"
	ReasonInactive          Reason = "INACTIVE"
	ReasonExpired           Reason = "EXPIRED"
	ReasonNotYetValid       Reason = "NOT_YET_VALID"
	ReasonUsageExhausted    Reason = "USAGE_EXHAUSTED"
	ReasonPerUserLimit      Reason = "PER_USER_LIMIT"
	ReasonNotFirstPurchase  Reason = "NOT_FIRST_PURCHASE"
	ReasonUserNotEligible   Reason = "USER_NOT_ELIGIBLE"
	ReasonNoEligibleItems   Reason = "NO_ELIGIBLE_ITEMS"
	ReasonMinPurchaseNotMet Reason = "MIN_PURCHASE_NOT_MET"
)

// Rejection is returned when a coupon cannot be applied to a cart. Checkout
// may continue without the discount.
type Rejection struct {
	Code    string
	Reason  Reason
	Message string
	// Shortfall is set for ReasonMinPurchaseNotMet.
	Shortfall decimal.Decimal
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("coupon %s rejected (%s): %s", r.Code, r.Reason, r.Message)
}

// Is makes every Rejection match ErrRejected.
func (r *Rejection) Is(target error) bool {
	return target == ErrRejected
}

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

func reject(code string, reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Rule defines a coupon's discount behaviour and eligibility constraints.
type Rule struct {
	Code         string
	Description  string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinPurchase  decimal.Decimal
	MaxDiscount  decimal.NullDecimal
	// MaxUsage is the global redemption cap; zero means unlimited.
	MaxUsage   int
	UsageCount int
	// PerUserLimit caps redemptions per user; zero means unlimited.
	PerUserLimit      int
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	FirstPurchaseOnly bool
	Active            bool
	ShowToUser        bool

	// Restriction sets; empty means unrestricted.
	ApplicableCategories []string
	ApplicableProducts   []string
	ApplicableUsers      []string
}

// Item is a cart line as seen by the coupon engine.
type Item struct {
	ProductID  string
	CategoryID string
	Price      decimal.Decimal
	Quantity   int
}

// Customer is the requesting user and their purchase history flag.
type Customer struct {
	UserID                 string
	HasCompletedPriorOrder bool
}

// Discount is the result of a successful validation.
type Discount struct {
	Code             string
	Amount           decimal.Decimal
	EligibleSubtotal decimal.Decimal
	Description      string
	Coupon           Rule
}

// Redemption records one confirmed use of a coupon.
type Redemption struct {
	Code    string
	UserID  string
	OrderID string
}

// Repository provides lookup and mutation of coupon rules.
type Repository interface {
	// FindByCode returns the coupon regardless of its active flag, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// ListVisible returns active coupons flagged for storefront display.
	ListVisible(ctx context.Context) ([]Rule, error)
	CountUserRedemptions(ctx context.Context, code, userID string) (int, error)
	// Redeem increments the usage counter only while it is below MaxUsage
	// and records the per-user redemption, atomically. It returns
	// ErrUsageExhausted when the cap has been reached and
	// ErrUserLimitReached when the user is at PerUserLimit.
	Redeem(ctx context.Context, r Redemption) error
}

// Canonical normalises a user-entered code.
func Canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
