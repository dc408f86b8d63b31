package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
)

var (
	// ErrInvalidCode is returned when no coupon exists for the given code.
	ErrInvalidCode = errors.New("invalid coupon code")
	// ErrInactive is returned when the coupon has been deactivated by an admin.
	ErrInactive = errors.New("coupon is not active")
	// ErrExpired is returned when the coupon's expiry date has passed.
	ErrExpired = errors.New("coupon has expired")
)

// BelowMinimumError indicates the order subtotal does not meet the coupon's
// minimum purchase requirement. It carries the required minimum so the
// rejection message can surface it to the customer.
type BelowMinimumError struct {
	MinPurchase decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("order subtotal below the coupon minimum of %s", e.MinPurchase.StringFixed(2))
}

// Coupon is a code-based discount rule. Codes are stored upper-case; use
// NormalizeCode before any lookup or write.
type Coupon struct {
	Code          string
	DiscountType  pricing.DiscountType
	DiscountValue decimal.Decimal
	ExpiryDate    time.Time
	MinPurchase   decimal.Decimal
	IsActive      bool
}

// Applied holds a successfully validated coupon together with the discount
// amount it yields for the quoted subtotal.
type Applied struct {
	Coupon   Coupon
	Discount decimal.Decimal
}

// Repository provides lookup of coupons by their normalized code.
type Repository interface {
	// FindByCode returns the coupon for the given upper-cased code, or
	// ErrInvalidCode when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// ListCodes returns every known coupon code, used to warm the lookup filter.
	ListCodes(ctx context.Context) ([]string, error)
}

// NormalizeCode upper-cases and trims a client-supplied coupon code.
// Normalization is applied both at write time and at lookup time, so codes
// are case-insensitive everywhere.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
