package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurelia-jewels/checkout-api/internal/domain/order"
)

const (
	// maxTxAttempts bounds the automatic retries on serialization failures
	// before surfacing order.ErrTxConflict.
	maxTxAttempts = 3
	retryBackoff  = 25 * time.Millisecond
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, items, subtotal, shipping_fee, discount, total,
		 coupon_code, payment_status, payment_reference, payment_order_id, status, shipping_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (payment_reference) DO NOTHING
		RETURNING created_at`

	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	productNameSQL = `SELECT name FROM products WHERE id = $1`

	selectOrderSQL = `SELECT id, user_id, items, subtotal, shipping_fee, discount, total,
		coupon_code, payment_status, payment_reference, payment_order_id, status, shipping_address, created_at
		FROM orders`

	updateOrderStatusSQL = `UPDATE orders SET status = $2
		WHERE id = $1 AND status NOT IN ('delivered', 'cancelled')`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateWithStockDecrement inserts the order and decrements stock for every
// line item inside one serializable transaction. The whole transaction is
// retried on serialization failures; business-rule failures (duplicate
// payment reference, missing product, insufficient stock) abort immediately
// and leave nothing persisted.
func (r *OrderRepository) CreateWithStockDecrement(ctx context.Context, o *order.Order) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff << attempt):
			}
		}

		lastErr = r.settleOnce(ctx, o)
		if lastErr == nil || !isSerializationFailure(lastErr) {
			return lastErr
		}
	}
	return errors.Wrap(order.ErrTxConflict, lastErr.Error())
}

// settleOnce runs a single attempt of the settlement transaction.
func (r *OrderRepository) settleOnce(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	addressJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Insert the order first. A payment reference that is already settled
	// hits the unique constraint and returns no row: the duplicate callback
	// must not decrement stock a second time.
	var createdAt time.Time
	err = tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Subtotal, o.ShippingFee, o.Discount, o.Total,
		o.CouponCode, o.PaymentStatus, o.PaymentReference, o.PaymentOrderID, string(o.Status), addressJSON,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrDuplicatePayment
		}
		return errors.Wrapf(err, "insert order %q", o.ID)
	}

	// Conditional decrement per line item. Zero rows means the product is
	// gone or the remaining stock cannot cover the quantity; either way the
	// whole transaction aborts.
	for _, item := range o.Items {
		tag, err := tx.Exec(ctx, decrementStockSQL, item.ProductID, item.Quantity)
		if err != nil {
			return errors.Wrapf(err, "decrement stock for %q", item.ProductID)
		}
		if tag.RowsAffected() == 0 {
			return r.stockFailure(ctx, tx, item)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit order transaction")
	}

	o.CreatedAt = createdAt
	return nil
}

// stockFailure distinguishes a vanished product from insufficient stock for
// the line item that failed its conditional decrement.
func (r *OrderRepository) stockFailure(ctx context.Context, tx pgx.Tx, item order.Item) error {
	var name string
	err := tx.QueryRow(ctx, productNameSQL, item.ProductID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return &order.ProductNotFoundError{ProductID: item.ProductID}
	}
	if err != nil {
		return errors.Wrapf(err, "inspect product %q", item.ProductID)
	}
	return &order.InsufficientStockError{
		ProductID:   item.ProductID,
		ProductName: name,
		Requested:   item.Quantity,
	}
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderSQL+` WHERE id = $1`, id)
}

// GetByPaymentReference returns the order settled for the given payment
// reference.
func (r *OrderRepository) GetByPaymentReference(ctx context.Context, ref string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderSQL+` WHERE payment_reference = $1`, ref)
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}
	return &o, nil
}

// UpdateStatus transitions an order's lifecycle state. Terminal orders
// (delivered, cancelled) are never transitioned further.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	if !status.Valid() {
		return errors.Errorf("invalid order status %q", status)
	}

	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return errors.Wrapf(err, "update order %q status", id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return errors.Errorf("order %q is in a terminal state", id)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		status      string
		itemsJSON   []byte
		addressJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &o.Subtotal, &o.ShippingFee, &o.Discount, &o.Total,
		&o.CouponCode, &o.PaymentStatus, &o.PaymentReference, &o.PaymentOrderID, &status, &addressJSON, &o.CreatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, errors.Wrap(err, "unmarshal order items")
	}
	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return order.Order{}, errors.Wrap(err, "unmarshal shipping address")
	}
	return o, nil
}

// isSerializationFailure reports whether err is a Postgres serialization or
// deadlock failure, which is safe to retry as a whole new transaction.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
