package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
)

const (
	getSettingsSQL = `SELECT default_fee, free_shipping_threshold FROM shipping_settings WHERE id = 1`

	putSettingsSQL = `INSERT INTO shipping_settings (id, default_fee, free_shipping_threshold)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			default_fee = EXCLUDED.default_fee,
			free_shipping_threshold = EXCLUDED.free_shipping_threshold`
)

var _ pricing.SettingsSource = (*SettingsRepository)(nil)

// SettingsRepository reads the shipping settings singleton. The migration
// guarantees the row exists.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// ShippingSettings returns the current store-wide shipping configuration.
func (r *SettingsRepository) ShippingSettings(ctx context.Context) (pricing.ShippingSettings, error) {
	var s pricing.ShippingSettings
	err := r.pool.QueryRow(ctx, getSettingsSQL).Scan(&s.DefaultFee, &s.FreeShippingThreshold)
	if err != nil {
		return pricing.ShippingSettings{}, errors.Wrap(err, "load shipping settings")
	}
	return s, nil
}

// Put replaces the shipping settings singleton. Used by the seed tool; admin
// edits go through the out-of-scope back-office service.
func (r *SettingsRepository) Put(ctx context.Context, s pricing.ShippingSettings) error {
	if _, err := r.pool.Exec(ctx, putSettingsSQL, s.DefaultFee, s.FreeShippingThreshold); err != nil {
		return errors.Wrap(err, "store shipping settings")
	}
	return nil
}
