// Package pricing computes checkout totals: subtotal, shipping fee, coupon
// discount, and the final charge amount. All arithmetic uses decimals; float
// money never enters the pipeline.
package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineItem is a product/quantity pair priced for checkout. UnitPrice is the
// live catalog price at the time of computation, not the price the client
// captured when the item was added to the cart.
type LineItem struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// ShippingSettings is the store-wide shipping configuration.
// A FreeShippingThreshold of zero disables free shipping entirely.
type ShippingSettings struct {
	DefaultFee            decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// SettingsSource provides the current store-wide shipping configuration.
// The settings row is an admin-editable singleton; checkout reads it fresh on
// every quote so admin changes apply immediately.
type SettingsSource interface {
	ShippingSettings(ctx context.Context) (ShippingSettings, error)
}

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Subtotal returns the sum of unit price times quantity across all items.
// An empty cart has a zero subtotal.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum
}

// Shipping returns the shipping fee for the given subtotal. The fee is waived
// when a free-shipping threshold is configured and the subtotal meets it.
func Shipping(subtotal decimal.Decimal, settings ShippingSettings) decimal.Decimal {
	if settings.FreeShippingThreshold.IsPositive() &&
		subtotal.GreaterThanOrEqual(settings.FreeShippingThreshold) {
		return decimal.Zero
	}
	return settings.DefaultFee
}

// Discount returns the discount amount for the given type and value against
// the subtotal. Fixed discounts are capped at the subtotal so an oversized
// coupon can never drive the total negative.
func Discount(subtotal decimal.Decimal, discountType DiscountType, value decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch discountType {
	case DiscountPercentage:
		amount = subtotal.Mul(value).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(value, subtotal)
	default:
		return decimal.Zero
	}
	return floorAtZero(amount)
}

// Total combines subtotal, shipping, and discount into the final charge
// amount, floored at zero and rounded half-up to two decimal places. This is
// the only place rounding happens; intermediate values keep full precision.
func Total(subtotal, shipping, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shipping).Sub(discount)
	return floorAtZero(total).Round(2)
}

// MinorUnits converts an amount to the smallest currency unit (paise/cents)
// for the payment gateway, rounding half-up.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
