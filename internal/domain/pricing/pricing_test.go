package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestSubtotal(t *testing.T) {
	tests := []struct {
		name  string
		items []LineItem
		want  decimal.Decimal
	}{
		{
			name:  "empty cart is zero",
			items: nil,
			want:  decimal.Zero,
		},
		{
			name: "single item",
			items: []LineItem{
				{ProductID: "p1", UnitPrice: d("100"), Quantity: 2},
			},
			want: d("200"),
		},
		{
			name: "multiple items",
			items: []LineItem{
				{ProductID: "p1", UnitPrice: d("1250.50"), Quantity: 2},
				{ProductID: "p2", UnitPrice: d("349.99"), Quantity: 1},
			},
			want: d("2850.99"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Subtotal(tt.items)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestShipping(t *testing.T) {
	settings := ShippingSettings{
		DefaultFee:            d("50"),
		FreeShippingThreshold: d("1000"),
	}

	tests := []struct {
		name     string
		subtotal decimal.Decimal
		settings ShippingSettings
		want     decimal.Decimal
	}{
		{name: "zero subtotal pays fee", subtotal: d("0"), settings: settings, want: d("50")},
		{name: "just below threshold pays fee", subtotal: d("999"), settings: settings, want: d("50")},
		{name: "at threshold is free", subtotal: d("1000"), settings: settings, want: decimal.Zero},
		{name: "above threshold is free", subtotal: d("1500"), settings: settings, want: decimal.Zero},
		{
			name:     "zero threshold disables free shipping",
			subtotal: d("99999"),
			settings: ShippingSettings{DefaultFee: d("50"), FreeShippingThreshold: decimal.Zero},
			want:     d("50"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Shipping(tt.subtotal, tt.settings)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name         string
		subtotal     decimal.Decimal
		discountType DiscountType
		value        decimal.Decimal
		want         decimal.Decimal
	}{
		{name: "10 percent", subtotal: d("200"), discountType: DiscountPercentage, value: d("10"), want: d("20")},
		{name: "100 percent equals subtotal", subtotal: d("250"), discountType: DiscountPercentage, value: d("100"), want: d("250")},
		{name: "fixed under subtotal", subtotal: d("800"), discountType: DiscountFixed, value: d("100"), want: d("100")},
		{name: "fixed capped at subtotal", subtotal: d("800"), discountType: DiscountFixed, value: d("1000"), want: d("800")},
		{name: "unknown type is zero", subtotal: d("800"), discountType: "bogus", value: d("50"), want: decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discount(tt.subtotal, tt.discountType, tt.value)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestTotal(t *testing.T) {
	tests := []struct {
		name                         string
		subtotal, shipping, discount decimal.Decimal
		want                         decimal.Decimal
	}{
		{name: "no coupon", subtotal: d("200"), shipping: d("50"), discount: d("0"), want: d("250")},
		{name: "with discount", subtotal: d("200"), shipping: d("50"), discount: d("20"), want: d("230")},
		{name: "free shipping", subtotal: d("1200"), shipping: d("0"), discount: d("0"), want: d("1200")},
		{name: "floored at zero", subtotal: d("100"), shipping: d("0"), discount: d("500"), want: decimal.Zero},
		{name: "rounded half up", subtotal: d("99.995"), shipping: d("0"), discount: d("0"), want: d("100.00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Total(tt.subtotal, tt.shipping, tt.discount)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestTotalNeverNegative(t *testing.T) {
	// Any combination of non-negative inputs must produce a non-negative total.
	values := []decimal.Decimal{d("0"), d("0.01"), d("99.99"), d("10000")}
	for _, sub := range values {
		for _, ship := range values {
			for _, disc := range values {
				got := Total(sub, ship, disc)
				assert.False(t, got.IsNegative(),
					"total negative for subtotal=%s shipping=%s discount=%s", sub, ship, disc)
			}
		}
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(25000), MinorUnits(d("250")))
	assert.Equal(t, int64(104999), MinorUnits(d("1049.99")))
	assert.Equal(t, int64(100), MinorUnits(d("0.995")))
}
