// Package address models user delivery addresses.
package address

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/teakspice/storefront/internal/domain/shipping"
)

// ErrNotFound is returned when the address does not exist for the user.
var ErrNotFound = errors.New("address not found")

// ValidationError reports a missing or malformed address field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("address %s: %s", e.Field, e.Reason)
}

// Address is a user's postal address. At most one address per user is
// the default; repositories enforce this on write.
type Address struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Label     string    `json:"label,omitempty"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Line1     string    `json:"line1"`
	Line2     string    `json:"line2,omitempty"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Pincode   string    `json:"pincode"`
	Country   string    `json:"country"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// Normalize trims whitespace and fills the default country.
func (a *Address) Normalize() {
	for _, f := range []*string{&a.Label, &a.FullName, &a.Phone, &a.Email, &a.Line1, &a.Line2, &a.City, &a.State, &a.Pincode, &a.Country} {
		*f = strings.TrimSpace(*f)
	}
	if a.Country == "" {
		a.Country = "India"
	}
}

// Validate checks the fields a carrier needs to deliver.
func (a *Address) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"phone", a.Phone},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"pincode", a.Pincode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Reason: "required"}
		}
	}
	if !shipping.ValidPincode(a.Pincode) {
		return &ValidationError{Field: "pincode", Reason: fmt.Sprintf("must be %d digits", shipping.PincodeLength)}
	}
	return nil
}

// Repository persists addresses.
type Repository interface {
	Get(ctx context.Context, userID, id string) (*Address, error)
	List(ctx context.Context, userID string) ([]Address, error)
	// Save inserts or updates the address. Saving a default address clears
	// the flag on the user's other addresses.
	Save(ctx context.Context, a *Address) error
}
