package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
)

type mockCouponRepo struct {
	coupon     *Coupon
	err        error
	lookedUp   []string
	listedCode []string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.lookedUp = append(m.lookedUp, code)
	if m.err != nil {
		return nil, m.err
	}
	return m.coupon, nil
}

func (m *mockCouponRepo) ListCodes(_ context.Context) ([]string, error) {
	return m.listedCode, nil
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name         string
		repo         *mockCouponRepo
		code         string
		subtotal     decimal.Decimal
		wantDiscount decimal.Decimal
		wantErr      error
		wantBelowMin bool
	}{
		{
			name: "valid percentage coupon",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:          "SAVE10",
				DiscountType:  pricing.DiscountPercentage,
				DiscountValue: d("10"),
				ExpiryDate:    future,
				IsActive:      true,
			}},
			code:         "SAVE10",
			subtotal:     d("200"),
			wantDiscount: d("20"),
		},
		{
			name: "valid fixed coupon capped at subtotal",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:          "FLAT1000",
				DiscountType:  pricing.DiscountFixed,
				DiscountValue: d("1000"),
				ExpiryDate:    future,
				IsActive:      true,
			}},
			code:         "FLAT1000",
			subtotal:     d("800"),
			wantDiscount: d("800"),
		},
		{
			name:     "unknown code",
			repo:     &mockCouponRepo{err: ErrInvalidCode},
			code:     "BOGUS",
			subtotal: d("100"),
			wantErr:  ErrInvalidCode,
		},
		{
			name:     "empty code",
			repo:     &mockCouponRepo{},
			code:     "   ",
			subtotal: d("100"),
			wantErr:  ErrInvalidCode,
		},
		{
			name: "inactive coupon",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:          "PAUSED",
				DiscountType:  pricing.DiscountFixed,
				DiscountValue: d("50"),
				ExpiryDate:    future,
				IsActive:      false,
			}},
			code:     "PAUSED",
			subtotal: d("100"),
			wantErr:  ErrInactive,
		},
		{
			name: "expired coupon rejected even when active",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:          "OLD",
				DiscountType:  pricing.DiscountPercentage,
				DiscountValue: d("10"),
				ExpiryDate:    past,
				IsActive:      true,
			}},
			code:     "OLD",
			subtotal: d("100"),
			wantErr:  ErrExpired,
		},
		{
			name: "subtotal below minimum purchase",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:          "MIN1000",
				DiscountType:  pricing.DiscountPercentage,
				DiscountValue: d("10"),
				ExpiryDate:    future,
				MinPurchase:   d("1000"),
				IsActive:      true,
			}},
			code:         "MIN1000",
			subtotal:     d("999"),
			wantBelowMin: true,
		},
		{
			name: "subtotal exactly at minimum purchase",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:          "MIN1000",
				DiscountType:  pricing.DiscountPercentage,
				DiscountValue: d("10"),
				ExpiryDate:    future,
				MinPurchase:   d("1000"),
				IsActive:      true,
			}},
			code:         "MIN1000",
			subtotal:     d("1000"),
			wantDiscount: d("100"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo, nil)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code, tt.subtotal)

			if tt.wantBelowMin {
				var bme *BelowMinimumError
				require.ErrorAs(t, err, &bme)
				assert.Contains(t, err.Error(), "minimum")
				return
			}
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, tt.wantDiscount.Equal(got.Discount),
				"expected discount %s, got %s", tt.wantDiscount, got.Discount)
		})
	}
}

func TestRepoValidator_NormalizesCode(t *testing.T) {
	repo := &mockCouponRepo{coupon: &Coupon{
		Code:          "SAVE10",
		DiscountType:  pricing.DiscountPercentage,
		DiscountValue: d("10"),
		ExpiryDate:    time.Now().Add(time.Hour),
		IsActive:      true,
	}}

	v := NewRepoValidator(repo, nil)
	_, err := v.Validate(context.Background(), "  save10 ", d("100"))

	require.NoError(t, err)
	require.Len(t, repo.lookedUp, 1)
	assert.Equal(t, "SAVE10", repo.lookedUp[0])
}

func TestRepoValidator_FilterSkipsLookup(t *testing.T) {
	repo := &mockCouponRepo{listedCode: []string{"SAVE10", "FLAT50"}}
	filter, err := WarmCodeFilter(context.Background(), repo)
	require.NoError(t, err)

	v := NewRepoValidator(repo, filter)

	_, err = v.Validate(context.Background(), "DEFINITELYNOTACODE", d("100"))
	require.ErrorIs(t, err, ErrInvalidCode)
	assert.Empty(t, repo.lookedUp, "filtered code must not reach the repository")
}

func TestCodeFilter_AddAndContain(t *testing.T) {
	f := NewCodeFilter(10)
	f.Add("newcode")
	assert.True(t, f.MayContain("NEWCODE"))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(ErrInvalidCode))
	assert.True(t, IsRejection(ErrInactive))
	assert.True(t, IsRejection(ErrExpired))
	assert.True(t, IsRejection(&BelowMinimumError{MinPurchase: d("100")}))
	assert.False(t, IsRejection(context.DeadlineExceeded))
}
