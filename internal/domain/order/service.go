package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aurelia-jewels/checkout-api/internal/domain/audit"
	"github.com/aurelia-jewels/checkout-api/internal/domain/coupon"
	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
	"github.com/aurelia-jewels/checkout-api/internal/domain/product"
)

// CartItem is a client-submitted cart line. Only the product reference and
// quantity are trusted; prices are always re-read from the catalog.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Quote is the server-computed pricing breakdown for a cart.
type Quote struct {
	Items      []pricing.LineItem
	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	CouponCode string
	// CouponRejection carries the business-rule rejection for the submitted
	// coupon code, when any. A rejected coupon never fails the quote; the
	// customer can proceed without it.
	CouponRejection error
}

// PlaceOrderRequest holds the input for settling an order after the payment
// gateway confirmed the charge.
type PlaceOrderRequest struct {
	UserID           string
	UserName         string
	Items            []CartItem
	CouponCode       string
	PaymentReference string
	PaymentOrderID   string
	Address          Address
}

// PlaceOrderResult holds the settled order. Duplicate is true when the
// payment reference had already been settled and the existing order was
// returned instead of creating a second one.
type PlaceOrderResult struct {
	Order     *Order
	Duplicate bool
}

// Service encapsulates checkout pricing and order settlement. All pricing is
// recomputed server-side from live catalog prices and the current shipping
// settings; client-supplied totals are never trusted.
type Service struct {
	products product.Repository
	coupons  coupon.Validator
	orders   Repository
	settings pricing.SettingsSource
	auditor  audit.Logger

	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
// The meter registers checkout outcome counters; pass an otel noop meter in
// tests.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	orders Repository,
	settings pricing.SettingsSource,
	auditor audit.Logger,
	meter metric.Meter,
) (*Service, error) {
	placed, err := meter.Int64Counter("checkout.orders.placed")
	if err != nil {
		return nil, errors.Wrap(err, "register placed counter")
	}
	failed, err := meter.Int64Counter("checkout.orders.failed")
	if err != nil {
		return nil, errors.Wrap(err, "register failed counter")
	}
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		settings: settings,
		auditor:  auditor,
		placed:   placed,
		failed:   failed,
	}, nil
}

// Quote prices the cart: live product prices, shipping from the current
// settings, and the optional coupon. Coupon rejections are reported in the
// quote instead of failing it.
func (s *Service) Quote(ctx context.Context, items []CartItem, couponCode string) (*Quote, error) {
	lines, _, err := s.priceItems(ctx, items)
	if err != nil {
		return nil, err
	}
	subtotal := pricing.Subtotal(lines)

	settings, err := s.settings.ShippingSettings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load shipping settings")
	}
	shipping := pricing.Shipping(subtotal, settings)

	q := &Quote{
		Items:    lines,
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: decimal.Zero,
	}

	if couponCode != "" {
		applied, err := s.coupons.Validate(ctx, couponCode, subtotal)
		switch {
		case err == nil:
			q.Discount = applied.Discount
			q.CouponCode = applied.Coupon.Code
		case coupon.IsRejection(err):
			q.CouponRejection = err
		default:
			return nil, errors.Wrap(err, "validate coupon")
		}
	}

	q.Total = pricing.Total(q.Subtotal, q.Shipping, q.Discount)
	return q, nil
}

// PlaceOrder settles a paid checkout: it re-validates the coupon, recomputes
// all pricing, and runs the atomic stock-decrement-plus-order-write
// transaction. A duplicate payment reference returns the existing order as a
// no-op. On success exactly one audit entry is emitted, best-effort, outside
// the transaction.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.PaymentReference == "" {
		return nil, errors.New("payment reference required")
	}
	if err := req.Address.Validate(); err != nil {
		return nil, err
	}

	lines, products, err := s.priceItems(ctx, req.Items)
	if err != nil {
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "validation")))
		return nil, err
	}
	subtotal := pricing.Subtotal(lines)

	settings, err := s.settings.ShippingSettings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load shipping settings")
	}
	shipping := pricing.Shipping(subtotal, settings)

	// Coupon re-validation at settlement time. Unlike Quote, a rejection here
	// fails the placement: the charged amount was computed with the discount,
	// so a silently vanished coupon would mean a total mismatch.
	discount := decimal.Zero
	couponCode := ""
	if req.CouponCode != "" {
		applied, err := s.coupons.Validate(ctx, req.CouponCode, subtotal)
		if err != nil {
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "coupon")))
			return nil, err
		}
		discount = applied.Discount
		couponCode = applied.Coupon.Code
	}

	o := &Order{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		Items:            buildItems(lines, products),
		Subtotal:         subtotal.Round(2),
		ShippingFee:      shipping.Round(2),
		Discount:         discount.Round(2),
		Total:            pricing.Total(subtotal, shipping, discount),
		CouponCode:       couponCode,
		PaymentStatus:    "paid",
		PaymentReference: req.PaymentReference,
		PaymentOrderID:   req.PaymentOrderID,
		Status:           StatusProcessing,
		ShippingAddress:  req.Address,
	}

	if err := s.orders.CreateWithStockDecrement(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			existing, getErr := s.orders.GetByPaymentReference(ctx, req.PaymentReference)
			if getErr != nil {
				return nil, errors.Wrap(getErr, "load order for settled payment")
			}
			return &PlaceOrderResult{Order: existing, Duplicate: true}, nil
		}
		if IsRejection(err) {
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "stock")))
			return nil, err
		}
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "store")))
		return nil, errors.Wrap(err, "create order")
	}

	s.placed.Add(ctx, 1)
	s.auditor.Log(ctx, audit.Entry{
		UserID:     req.UserID,
		UserName:   req.UserName,
		Action:     audit.ActionCreate,
		EntityType: "order",
		EntityID:   o.ID,
		Details:    fmt.Sprintf("order total %s, %d items", o.Total.StringFixed(2), len(o.Items)),
	})

	return &PlaceOrderResult{Order: o}, nil
}

// priceItems validates cart lines and prices them from the live catalog in a
// single batch read.
func (s *Service) priceItems(ctx context.Context, items []CartItem) ([]pricing.LineItem, map[string]product.Product, error) {
	if len(items) == 0 {
		return nil, nil, ErrEmptyItems
	}

	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]pricing.LineItem, len(items))
	for i, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		lines[i] = pricing.LineItem{
			ProductID: p.ID,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
		}
	}
	return lines, byID, nil
}

func buildItems(lines []pricing.LineItem, products map[string]product.Product) []Item {
	items := make([]Item, len(lines))
	for i, line := range lines {
		items[i] = Item{
			ProductID: line.ProductID,
			Name:      products[line.ProductID].Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		}
	}
	return items
}
