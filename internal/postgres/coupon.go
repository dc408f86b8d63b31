package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurelia-jewels/checkout-api/internal/domain/coupon"
	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, discount_value, expiry_date, min_purchase, is_active
		FROM coupons WHERE code = $1`

	listCouponCodesSQL = `SELECT code FROM coupons`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, discount_value, expiry_date, min_purchase, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			expiry_date = EXCLUDED.expiry_date,
			min_purchase = EXCLUDED.min_purchase,
			is_active = EXCLUDED.is_active`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized (upper-case) code.
// Returns coupon.ErrInvalidCode when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := r.pool.QueryRow(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code)).Scan(
		&c.Code, &discountType, &c.DiscountValue, &c.ExpiryDate, &c.MinPurchase, &c.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCode
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c.DiscountType = pricing.DiscountType(discountType)
	return &c, nil
}

// ListCodes returns every known coupon code.
func (r *CouponRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupon codes")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
}

// Upsert creates or replaces a coupon. Codes are normalized upper-case at
// write time. Used by the seed and promo-ingest tools.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		coupon.NormalizeCode(c.Code), string(c.DiscountType), c.DiscountValue,
		c.ExpiryDate, c.MinPurchase, c.IsActive,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	return nil
}
