package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
)

// Validator validates a coupon code against the order subtotal at the current
// time and returns the applied discount. Validation always happens
// server-side at the moment of use; client-cached coupon state is never
// trusted.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Applied, error)
}

// RepoValidator implements Validator by looking up coupons from a Repository.
// An optional CodeFilter short-circuits lookups for codes that are known not
// to exist, saving a database round trip per garbage code.
type RepoValidator struct {
	repo   Repository
	filter *CodeFilter
	now    func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
// The filter may be nil, in which case every lookup hits the repository.
func NewRepoValidator(repo Repository, filter *CodeFilter) *RepoValidator {
	return &RepoValidator{repo: repo, filter: filter, now: time.Now}
}

// Validate checks the coupon business rules in order, short-circuiting on the
// first failure: code exists, coupon is active, not expired, subtotal meets
// the minimum purchase. On success it returns the coupon with the discount
// amount computed for the given subtotal.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Applied, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, ErrInvalidCode
	}

	// Bloom filter: a definitive "no" avoids the lookup; a "maybe" (including
	// false positives) falls through to the repository.
	if v.filter != nil && !v.filter.MayContain(normalized) {
		return nil, ErrInvalidCode
	}

	c, err := v.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.IsActive {
		return nil, ErrInactive
	}
	if v.now().After(c.ExpiryDate) {
		return nil, ErrExpired
	}
	if subtotal.LessThan(c.MinPurchase) {
		return nil, &BelowMinimumError{MinPurchase: c.MinPurchase}
	}

	discount := pricing.Discount(subtotal, c.DiscountType, c.DiscountValue)
	return &Applied{Coupon: *c, Discount: discount}, nil
}

// IsRejection reports whether err is an expected business-rule rejection
// rather than an infrastructure failure. Rejections are user-facing outcomes
// and are never logged as system errors.
func IsRejection(err error) bool {
	var bme *BelowMinimumError
	return errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrInactive) ||
		errors.Is(err, ErrExpired) ||
		errors.As(err, &bme)
}
