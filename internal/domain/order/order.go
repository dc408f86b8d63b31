package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the admin-visible order lifecycle state. Orders are created as
// StatusProcessing; StatusDelivered and StatusCancelled are terminal.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Item is a single line item frozen into an order at settlement time. Name
// and UnitPrice are captured from the live product record during the order
// transaction, not from client-supplied cart state.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Order is a settled purchase. Created exactly once per successful payment;
// immutable afterwards except for Status transitions made by admins.
type Order struct {
	ID               string
	UserID           string
	Items            []Item
	Subtotal         decimal.Decimal
	ShippingFee      decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
	CouponCode       string
	PaymentStatus    string
	PaymentReference string
	PaymentOrderID   string
	Status           Status
	ShippingAddress  Address
	CreatedAt        time.Time
}

// Sentinel errors for order placement.
var (
	// ErrEmptyItems is returned for a cart with no line items.
	ErrEmptyItems = errors.New("items required")
	// ErrDuplicatePayment is returned by the repository when an order with the
	// same payment reference already exists. Callers treat it as a successful
	// no-op and return the existing order.
	ErrDuplicatePayment = errors.New("payment reference already settled")
	// ErrTxConflict is returned when the order transaction kept colliding with
	// concurrent checkouts after exhausting its retry budget. The operation is
	// safe to retry from the top.
	ErrTxConflict = errors.New("order transaction conflict, try again")
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a cart references a product that no longer
// exists in the catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates a product does not have enough stock to
// satisfy the requested quantity. The product name is included so the error
// can be shown to the customer as-is.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("not enough stock for %q (requested %d)", name, e.Requested)
}

// IsRejection reports whether err is an expected business-rule rejection of
// the order rather than an infrastructure failure.
func IsRejection(err error) bool {
	var (
		iq  *InvalidQuantityError
		pnf *ProductNotFoundError
		ins *InsufficientStockError
	)
	return errors.Is(err, ErrEmptyItems) ||
		errors.As(err, &iq) ||
		errors.As(err, &pnf) ||
		errors.As(err, &ins)
}

// Repository defines persistence operations for orders.
//
// CreateWithStockDecrement is the atomic settlement operation: within a
// single store transaction it inserts the order and decrements stock for
// every line item, such that either both effects are visible or neither is.
// It returns ErrDuplicatePayment when o.PaymentReference was already settled,
// a *ProductNotFoundError or *InsufficientStockError when a line item cannot
// be satisfied, and ErrTxConflict when concurrent-commit retries exhaust.
type Repository interface {
	CreateWithStockDecrement(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPaymentReference(ctx context.Context, ref string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
