package order

import (
	"fmt"
	"strings"
)

// Address is the shipping destination captured with an order.
type Address struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
	Phone   string `json:"phone"`
}

// AddressFieldError is a field-level validation failure, surfaced to the
// client before any external call is made.
type AddressFieldError struct {
	Field   string
	Message string
}

func (e *AddressFieldError) Error() string {
	return fmt.Sprintf("shipping address %s: %s", e.Field, e.Message)
}

// Validate checks the address for presence and minimum lengths.
func (a Address) Validate() error {
	checks := []struct {
		field  string
		value  string
		minLen int
	}{
		{"name", a.Name, 2},
		{"street", a.Street, 5},
		{"city", a.City, 2},
		{"state", a.State, 2},
		{"zip_code", a.ZipCode, 4},
		{"country", a.Country, 2},
		{"phone", a.Phone, 7},
	}
	for _, c := range checks {
		v := strings.TrimSpace(c.value)
		if v == "" {
			return &AddressFieldError{Field: c.field, Message: "required"}
		}
		if len(v) < c.minLen {
			return &AddressFieldError{Field: c.field, Message: fmt.Sprintf("must be at least %d characters", c.minLen)}
		}
	}
	return nil
}
