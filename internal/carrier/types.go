package carrier

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Courier is one courier option quoted by the carrier platform.
type Courier struct {
	ID            int
	Name          string
	Rate          decimal.Decimal
	Rating        float64
	EstimatedDays string
	ETD           string
	COD           bool
}

// Serviceability is the result of a serviceability check.
type Serviceability struct {
	Serviceable bool
	Couriers    []Courier
}

// Rates lists courier quotes sorted by rate, cheapest first.
type Rates struct {
	Available bool
	Couriers  []Courier
}

// APIError is a non-2xx response from the carrier.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("carrier %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("carrier %s: status %d: %s", e.Op, e.Status, e.Body)
}
