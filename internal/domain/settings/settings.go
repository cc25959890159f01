// Package settings holds merchant configuration consumed by checkout and
// fulfillment.
package settings

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/teakspice/storefront/internal/domain/shipping"
)

// FulfillmentMode selects when a carrier shipment is created.
type FulfillmentMode string

const (
	// FulfillmentManual leaves shipment creation to the merchant, triggered
	// when the order moves to processing.
	FulfillmentManual FulfillmentMode = "manual"
	// FulfillmentAutomatic creates the shipment as soon as the order is confirmed.
	FulfillmentAutomatic FulfillmentMode = "automatic"
)

// Warehouse is the pickup location registered with the carrier.
type Warehouse struct {
	// PickupLocation is the carrier-side nickname of the warehouse.
	PickupLocation string `json:"pickup_location"`
	ContactName    string `json:"contact_name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	Pincode        string `json:"pincode"`
	Country        string `json:"country"`
}

// Parcel holds default package dimensions in centimetres.
type Parcel struct {
	LengthCm  decimal.Decimal `json:"length_cm"`
	BreadthCm decimal.Decimal `json:"breadth_cm"`
	HeightCm  decimal.Decimal `json:"height_cm"`
}

// Settings is the merchant configuration document.
type Settings struct {
	Shipping    shipping.Config `json:"shipping"`
	Warehouse   Warehouse       `json:"warehouse"`
	Parcel      Parcel          `json:"parcel"`
	Fulfillment FulfillmentMode `json:"fulfillment_mode"`
	StoreName   string          `json:"store_name"`
}

// Default returns the configuration used before a merchant saves any.
func Default() Settings {
	return Settings{
		Shipping: shipping.Config{
			Strategy:              shipping.StrategyFreeThreshold,
			FreeShippingThreshold: decimal.NewFromInt(499),
			FlatRate:              decimal.NewNullDecimal(shipping.DefaultFlatRate),
			DefaultWeightKg:       shipping.DefaultWeightKg,
		},
		Parcel: Parcel{
			LengthCm:  decimal.NewFromInt(20),
			BreadthCm: decimal.NewFromInt(15),
			HeightCm:  decimal.NewFromInt(10),
		},
		Fulfillment: FulfillmentManual,
		Warehouse:   Warehouse{Country: "India"},
	}
}

// ShippingConfig returns the shipping configuration with the warehouse
// pincode filled in when it was not set explicitly.
func (s Settings) ShippingConfig() shipping.Config {
	cfg := s.Shipping
	if cfg.WarehousePincode == "" {
		cfg.WarehousePincode = s.Warehouse.Pincode
	}
	if !cfg.DefaultWeightKg.IsPositive() {
		cfg.DefaultWeightKg = shipping.DefaultWeightKg
	}
	return cfg
}

// AutoFulfill reports whether shipments are created on confirmation.
func (s Settings) AutoFulfill() bool {
	return s.Fulfillment == FulfillmentAutomatic
}

// Repository loads and stores the settings document.
type Repository interface {
	// Get returns the stored settings, or Default() when none were saved.
	Get(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}
