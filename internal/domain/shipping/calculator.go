package shipping

import (
	"context"
	"fmt"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Calculator dispatches on Config.Strategy. It never returns an error: when
// the realtime path fails, the flat rate is quoted with Degraded set.
type Calculator struct {
	rates RateSource
}

// NewCalculator creates a Calculator. rates may be nil, in which case the
// realtime strategy always degrades.
func NewCalculator(rates RateSource) *Calculator {
	return &Calculator{rates: rates}
}

// Calculate returns the shipping quote for req under cfg.
func (c *Calculator) Calculate(ctx context.Context, cfg Config, req Request) Quote {
	switch cfg.Strategy {
	case StrategyFreeThreshold:
		return freeThreshold(cfg, req)
	case StrategyRealtime:
		return c.realtime(ctx, cfg, req)
	default:
		return flat(cfg)
	}
}

func flat(cfg Config) Quote {
	return Quote{Fee: cfg.flatRate()}
}

func degraded(cfg Config) Quote {
	q := flat(cfg)
	q.Degraded = true
	return q
}

func freeThreshold(cfg Config, req Request) Quote {
	if req.CartTotal.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		return Quote{IsFree: true, Message: "Free shipping!"}
	}
	remaining := cfg.FreeShippingThreshold.Sub(req.CartTotal).Ceil()
	return Quote{
		Fee:     cfg.flatRate(),
		Message: fmt.Sprintf("Add ₹%s more for free shipping", remaining.StringFixed(0)),
	}
}

func (c *Calculator) realtime(ctx context.Context, cfg Config, req Request) Quote {
	lg := zctx.From(ctx)

	if !ValidPincode(req.Pincode) {
		lg.Debug("Realtime shipping needs a valid pincode, using flat rate", zap.String("pincode", req.Pincode))
		return degraded(cfg)
	}
	if cfg.WarehousePincode == "" || c.rates == nil {
		lg.Warn("Realtime shipping is not configured, using flat rate")
		return degraded(cfg)
	}

	weight := req.WeightKg
	if !weight.IsPositive() {
		weight = cfg.DefaultWeightKg
	}
	if !weight.IsPositive() {
		weight = DefaultWeightKg
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.quoteTimeout())
	defer cancel()

	rec, err := c.rates.RecommendCourier(ctx, RateRequest{
		PickupPincode:   cfg.WarehousePincode,
		DeliveryPincode: req.Pincode,
		WeightKg:        weight,
		COD:             req.COD,
		DeclaredValue:   req.CartTotal,
	})
	if err != nil {
		lg.Warn("Carrier rate lookup failed, using flat rate", zap.Error(err))
		return degraded(cfg)
	}
	if rec == nil {
		lg.Info("No courier qualifies, using flat rate", zap.String("pincode", req.Pincode))
		return degraded(cfg)
	}

	return Quote{
		Fee:           rec.Rate,
		IsFree:        rec.Rate.IsZero(),
		Courier:       rec.CourierName,
		CourierID:     rec.CourierID,
		EstimatedDays: rec.EstimatedDays,
	}
}

// ValidPincode reports whether s is exactly PincodeLength digits.
func ValidPincode(s string) bool {
	if len(s) != PincodeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
