package carrier

import (
	"context"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/shipping"
)

const (
	// minCourierRating filters out poorly rated couriers from recommendations.
	minCourierRating = 3.0

	serviceabilityPath = "/v1/external/courier/serviceability/"
)

// markup is applied on top of the carrier's rate before it is shown to
// customers.
var markup = decimal.RequireFromString("1.1")

func rateQuery(req shipping.RateRequest) string {
	weight := req.WeightKg
	if !weight.IsPositive() {
		weight = shipping.DefaultWeightKg
	}
	q := url.Values{}
	q.Set("pickup_postcode", req.PickupPincode)
	q.Set("delivery_postcode", req.DeliveryPincode)
	q.Set("weight", weight.String())
	if req.COD {
		q.Set("cod", "1")
	} else {
		q.Set("cod", "0")
	}
	if req.DeclaredValue.IsPositive() {
		q.Set("declared_value", req.DeclaredValue.StringFixed(2))
	}
	return q.Encode()
}

// CheckServiceability reports whether any courier delivers between the two
// pincodes. A rejected request is reported as not serviceable.
func (c *Client) CheckServiceability(ctx context.Context, req shipping.RateRequest) (*Serviceability, error) {
	data, err := c.call(ctx, "serviceability", http.MethodGet, serviceabilityPath+"?"+rateQuery(req), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			zctx.From(ctx).Debug("Pincode not serviceable",
				zap.String("delivery_pincode", req.DeliveryPincode),
				zap.Int("status", apiErr.Status),
			)
			return &Serviceability{}, nil
		}
		return nil, err
	}
	couriers, err := parseCouriers(data)
	if err != nil {
		return nil, err
	}
	return &Serviceability{Serviceable: len(couriers) > 0, Couriers: couriers}, nil
}

// GetShippingRates lists courier quotes, cheapest first.
func (c *Client) GetShippingRates(ctx context.Context, req shipping.RateRequest) (*Rates, error) {
	s, err := c.CheckServiceability(ctx, req)
	if err != nil {
		return nil, err
	}
	couriers := s.Couriers
	sort.SliceStable(couriers, func(i, j int) bool {
		return couriers[i].Rate.LessThan(couriers[j].Rate)
	})
	return &Rates{Available: len(couriers) > 0, Couriers: couriers}, nil
}

// GetRecommendedCourier picks the cheapest courier rated at least
// minCourierRating and applies the markup. When no courier meets the rating
// it returns nil, or the cheapest courier overall if fallback is set.
func (c *Client) GetRecommendedCourier(ctx context.Context, req shipping.RateRequest, fallback bool) (*shipping.Recommendation, error) {
	rates, err := c.GetShippingRates(ctx, req)
	if err != nil {
		return nil, err
	}
	if !rates.Available {
		return nil, nil
	}

	for _, cr := range rates.Couriers {
		if cr.Rating >= minCourierRating {
			return recommend(cr), nil
		}
	}
	if fallback {
		return recommend(rates.Couriers[0]), nil
	}
	return nil, nil
}

// RecommendCourier implements shipping.RateSource.
func (c *Client) RecommendCourier(ctx context.Context, req shipping.RateRequest) (*shipping.Recommendation, error) {
	return c.GetRecommendedCourier(ctx, req, false)
}

func recommend(cr Courier) *shipping.Recommendation {
	days := cr.EstimatedDays
	if days == "" {
		days = cr.ETD
	}
	return &shipping.Recommendation{
		CourierID:     cr.ID,
		CourierName:   cr.Name,
		Rate:          cr.Rate.Mul(markup).Round(0),
		EstimatedDays: days,
	}
}
