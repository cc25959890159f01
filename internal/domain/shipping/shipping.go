// Package shipping computes the shipping fee for a cart using the merchant's
// configured strategy.
package shipping

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy selects how shipping fees are computed.
type Strategy string

const (
	StrategyFreeThreshold Strategy = "free_threshold"
	StrategyFlat          Strategy = "flat"
	StrategyRealtime      Strategy = "realtime"
)

const (
	// PincodeLength is the length of a valid delivery postal code.
	PincodeLength = 6
	// DefaultQuoteTimeout bounds the wait on the carrier rate API.
	DefaultQuoteTimeout = 5 * time.Second
)

var (
	// DefaultFlatRate applies when no flat rate is configured.
	DefaultFlatRate = decimal.NewFromInt(50)
	// DefaultWeightKg is the per-unit weight used when nothing better is known.
	DefaultWeightKg = decimal.RequireFromString("0.5")
)

// Config is the merchant's shipping configuration.
type Config struct {
	Strategy              Strategy            `json:"rate_calculation"`
	FreeShippingThreshold decimal.Decimal     `json:"free_shipping_threshold"`
	FlatRate              decimal.NullDecimal `json:"flat_rate"`
	WarehousePincode      string              `json:"warehouse_pincode"`
	DefaultWeightKg       decimal.Decimal     `json:"default_weight_kg"`
	// QuoteTimeout bounds the realtime carrier lookup.
	QuoteTimeout time.Duration `json:"quote_timeout"`
}

func (c Config) flatRate() decimal.Decimal {
	if c.FlatRate.Valid && !c.FlatRate.Decimal.IsNegative() {
		return c.FlatRate.Decimal
	}
	return DefaultFlatRate
}

func (c Config) quoteTimeout() time.Duration {
	if c.QuoteTimeout > 0 {
		return c.QuoteTimeout
	}
	return DefaultQuoteTimeout
}

// Request is the input of a single quote.
type Request struct {
	CartTotal decimal.Decimal
	Pincode   string
	// WeightKg is the parcel weight; zero falls back to the configured default.
	WeightKg decimal.Decimal
	COD      bool
}

// Quote is a computed shipping fee. It is never persisted on its own.
type Quote struct {
	Fee           decimal.Decimal `json:"fee"`
	IsFree        bool            `json:"is_free"`
	Message       string          `json:"message,omitempty"`
	Courier       string          `json:"courier,omitempty"`
	CourierID     int             `json:"courier_id,omitempty"`
	EstimatedDays string          `json:"estimated_days,omitempty"`
	// Degraded is set when the realtime strategy fell back to the flat rate.
	Degraded bool `json:"degraded,omitempty"`
}

// RateRequest asks the carrier for courier rates between two pincodes.
type RateRequest struct {
	PickupPincode   string
	DeliveryPincode string
	WeightKg        decimal.Decimal
	COD             bool
	DeclaredValue   decimal.Decimal
}

// Recommendation is the courier chosen for a realtime quote, with the
// platform markup already applied to Rate.
type Recommendation struct {
	CourierID     int
	CourierName   string
	Rate          decimal.Decimal
	EstimatedDays string
}

// RateSource provides courier recommendations.
type RateSource interface {
	// RecommendCourier returns nil without error when no courier qualifies.
	RecommendCourier(ctx context.Context, req RateRequest) (*Recommendation, error)
}
