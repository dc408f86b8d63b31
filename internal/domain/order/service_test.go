package order

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/aurelia-jewels/checkout-api/internal/domain/audit"
	"github.com/aurelia-jewels/checkout-api/internal/domain/coupon"
	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
	"github.com/aurelia-jewels/checkout-api/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCouponValidator struct {
	applied *coupon.Applied
	err     error
}

func (m *mockCouponValidator) Validate(_ context.Context, _ string, _ decimal.Decimal) (*coupon.Applied, error) {
	return m.applied, m.err
}

// memOrderRepo honors the same contract as the Postgres repository: the
// stock check, decrement, and order insert happen under one lock, the
// payment reference is unique, and nothing persists on failure.
type memOrderRepo struct {
	mu     sync.Mutex
	stock  map[string]int
	names  map[string]string
	orders map[string]*Order
	byRef  map[string]*Order
	err    error
}

func newMemOrderRepo(products map[string]product.Product) *memOrderRepo {
	stock := make(map[string]int, len(products))
	names := make(map[string]string, len(products))
	for id, p := range products {
		stock[id] = p.Stock
		names[id] = p.Name
	}
	return &memOrderRepo{
		stock:  stock,
		names:  names,
		orders: make(map[string]*Order),
		byRef:  make(map[string]*Order),
	}
}

func (m *memOrderRepo) CreateWithStockDecrement(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byRef[o.PaymentReference]; ok {
		return ErrDuplicatePayment
	}
	for _, item := range o.Items {
		available, ok := m.stock[item.ProductID]
		if !ok {
			return &ProductNotFoundError{ProductID: item.ProductID}
		}
		if available < item.Quantity {
			return &InsufficientStockError{
				ProductID:   item.ProductID,
				ProductName: m.names[item.ProductID],
				Requested:   item.Quantity,
			}
		}
	}
	for _, item := range o.Items {
		m.stock[item.ProductID] -= item.Quantity
	}
	m.orders[o.ID] = o
	m.byRef[o.PaymentReference] = o
	return nil
}

func (m *memOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *memOrderRepo) GetByPaymentReference(_ context.Context, ref string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *memOrderRepo) UpdateStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	return nil
}

type staticSettings struct {
	settings pricing.ShippingSettings
}

func (s *staticSettings) ShippingSettings(_ context.Context) (pricing.ShippingSettings, error) {
	return s.settings, nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAuditor) Log(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAuditor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testProducts(ps ...product.Product) map[string]product.Product {
	byID := make(map[string]product.Product, len(ps))
	for _, p := range ps {
		byID[p.ID] = p
	}
	return byID
}

func ring(id string, price string, stock int) product.Product {
	return product.Product{
		ID:       id,
		Name:     "Gold Ring " + id,
		Category: "rings",
		Price:    d(price),
		Stock:    stock,
	}
}

type serviceDeps struct {
	products map[string]product.Product
	coupons  coupon.Validator
	orders   Repository
	settings pricing.ShippingSettings
	auditor  *recordingAuditor
}

func newTestService(t *testing.T, deps serviceDeps) *Service {
	t.Helper()
	if deps.coupons == nil {
		deps.coupons = &mockCouponValidator{}
	}
	if deps.orders == nil {
		deps.orders = newMemOrderRepo(deps.products)
	}
	if deps.auditor == nil {
		deps.auditor = &recordingAuditor{}
	}
	if deps.settings.DefaultFee.IsZero() && deps.settings.FreeShippingThreshold.IsZero() {
		deps.settings = pricing.ShippingSettings{DefaultFee: d("50"), FreeShippingThreshold: d("1000")}
	}

	svc, err := NewService(
		&mockProductRepo{byID: deps.products},
		deps.coupons,
		deps.orders,
		&staticSettings{settings: deps.settings},
		deps.auditor,
		noop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	return svc
}

func validAddress() Address {
	return Address{
		Name:    "Priya Sharma",
		Street:  "14 Marine Drive",
		City:    "Mumbai",
		State:   "MH",
		ZipCode: "400001",
		Country: "IN",
		Phone:   "9876543210",
	}
}

// --- Quote tests ---

func TestQuote_NoCoupon(t *testing.T) {
	// Cart [{price:100, qty:2}] with {fee:50, threshold:1000}.
	products := testProducts(ring("p1", "100", 10))
	svc := newTestService(t, serviceDeps{products: products})

	q, err := svc.Quote(context.Background(), []CartItem{{ProductID: "p1", Quantity: 2}}, "")
	require.NoError(t, err)

	assert.True(t, d("200").Equal(q.Subtotal), "subtotal %s", q.Subtotal)
	assert.True(t, d("50").Equal(q.Shipping), "shipping %s", q.Shipping)
	assert.True(t, q.Discount.IsZero())
	assert.True(t, d("250").Equal(q.Total), "total %s", q.Total)
}

func TestQuote_WithPercentageCoupon(t *testing.T) {
	products := testProducts(ring("p1", "100", 10))
	cv := &mockCouponValidator{applied: &coupon.Applied{
		Coupon:   coupon.Coupon{Code: "SAVE10"},
		Discount: d("20"),
	}}
	svc := newTestService(t, serviceDeps{products: products, coupons: cv})

	q, err := svc.Quote(context.Background(), []CartItem{{ProductID: "p1", Quantity: 2}}, "SAVE10")
	require.NoError(t, err)

	assert.True(t, d("20").Equal(q.Discount))
	assert.True(t, d("230").Equal(q.Total), "total %s", q.Total)
	assert.Equal(t, "SAVE10", q.CouponCode)
}

func TestQuote_FreeShippingAboveThreshold(t *testing.T) {
	products := testProducts(ring("p1", "1200", 5))
	svc := newTestService(t, serviceDeps{products: products})

	q, err := svc.Quote(context.Background(), []CartItem{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)

	assert.True(t, q.Shipping.IsZero(), "shipping %s", q.Shipping)
	assert.True(t, d("1200").Equal(q.Total), "total %s", q.Total)
}

func TestQuote_CouponRejectionIsNonFatal(t *testing.T) {
	products := testProducts(ring("p1", "100", 10))
	cv := &mockCouponValidator{err: coupon.ErrExpired}
	svc := newTestService(t, serviceDeps{products: products, coupons: cv})

	q, err := svc.Quote(context.Background(), []CartItem{{ProductID: "p1", Quantity: 1}}, "OLD")
	require.NoError(t, err)

	require.ErrorIs(t, q.CouponRejection, coupon.ErrExpired)
	assert.True(t, q.Discount.IsZero())
	assert.True(t, d("150").Equal(q.Total), "total without coupon %s", q.Total)
}

func TestQuote_EmptyCart(t *testing.T) {
	svc := newTestService(t, serviceDeps{products: testProducts()})

	_, err := svc.Quote(context.Background(), nil, "")
	require.ErrorIs(t, err, ErrEmptyItems)
}

// --- PlaceOrder tests ---

func TestPlaceOrder_Success(t *testing.T) {
	products := testProducts(ring("p1", "100", 5))
	repo := newMemOrderRepo(products)
	auditor := &recordingAuditor{}
	svc := newTestService(t, serviceDeps{products: products, orders: repo, auditor: auditor})

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:           "u1",
		UserName:         "Priya",
		Items:            []CartItem{{ProductID: "p1", Quantity: 2}},
		PaymentReference: "pay_001",
		PaymentOrderID:   "order_abc",
		Address:          validAddress(),
	})

	require.NoError(t, err)
	require.NotNil(t, result.Order)
	assert.False(t, result.Duplicate)
	assert.True(t, d("250").Equal(result.Order.Total), "total %s", result.Order.Total)
	assert.Equal(t, StatusProcessing, result.Order.Status)
	assert.Equal(t, "paid", result.Order.PaymentStatus)

	// Exactly one order, one stock decrement per line, one audit entry.
	assert.Len(t, repo.orders, 1)
	assert.Equal(t, 3, repo.stock["p1"])
	assert.Equal(t, 1, auditor.count())
}

func TestPlaceOrder_LivePriceIsAuthoritative(t *testing.T) {
	// The order freezes the catalog price at settlement, whatever the client
	// cart claimed.
	products := testProducts(ring("p1", "149.99", 5))
	repo := newMemOrderRepo(products)
	svc := newTestService(t, serviceDeps{products: products, orders: repo})

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:           "u1",
		Items:            []CartItem{{ProductID: "p1", Quantity: 1}},
		PaymentReference: "pay_002",
		Address:          validAddress(),
	})

	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1)
	assert.True(t, d("149.99").Equal(result.Order.Items[0].UnitPrice))
	assert.Equal(t, "Gold Ring p1", result.Order.Items[0].Name)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	products := testProducts(ring("p1", "100", 0))
	repo := newMemOrderRepo(products)
	auditor := &recordingAuditor{}
	svc := newTestService(t, serviceDeps{products: products, orders: repo, auditor: auditor})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:           "u1",
		Items:            []CartItem{{ProductID: "p1", Quantity: 1}},
		PaymentReference: "pay_003",
		Address:          validAddress(),
	})

	var ins *InsufficientStockError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, "p1", ins.ProductID)

	// Nothing persisted, no audit entry for a failed order.
	assert.Empty(t, repo.orders)
	assert.Equal(t, 0, repo.stock["p1"])
	assert.Equal(t, 0, auditor.count())
}

func TestPlaceOrder_ProductRemovedFromCatalog(t *testing.T) {
	svc := newTestService(t, serviceDeps{products: testProducts()})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:           "u1",
		Items:            []CartItem{{ProductID: "ghost", Quantity: 1}},
		PaymentReference: "pay_004",
		Address:          validAddress(),
	})

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "ghost", pnf.ProductID)
}

func TestPlaceOrder_DuplicatePaymentReferenceIsNoOp(t *testing.T) {
	products := testProducts(ring("p1", "100", 5))
	repo := newMemOrderRepo(products)
	auditor := &recordingAuditor{}
	svc := newTestService(t, serviceDeps{products: products, orders: repo, auditor: auditor})

	req := PlaceOrderRequest{
		UserID:           "u1",
		Items:            []CartItem{{ProductID: "p1", Quantity: 1}},
		PaymentReference: "pay_dup",
		Address:          validAddress(),
	}

	first, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	second, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	// One order, one decrement, one audit entry total.
	assert.Len(t, repo.orders, 1)
	assert.Equal(t, 4, repo.stock["p1"])
	assert.Equal(t, 1, auditor.count())
}

func TestPlaceOrder_ExpiredCouponFailsSettlement(t *testing.T) {
	products := testProducts(ring("p1", "100", 5))
	cv := &mockCouponValidator{err: coupon.ErrExpired}
	svc := newTestService(t, serviceDeps{products: products, coupons: cv})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:           "u1",
		Items:            []CartItem{{ProductID: "p1", Quantity: 1}},
		CouponCode:       "OLD",
		PaymentReference: "pay_005",
		Address:          validAddress(),
	})

	require.ErrorIs(t, err, coupon.ErrExpired)
}

func TestPlaceOrder_InvalidAddress(t *testing.T) {
	products := testProducts(ring("p1", "100", 5))
	svc := newTestService(t, serviceDeps{products: products})

	addr := validAddress()
	addr.ZipCode = ""

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:           "u1",
		Items:            []CartItem{{ProductID: "p1", Quantity: 1}},
		PaymentReference: "pay_006",
		Address:          addr,
	})

	var fe *AddressFieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "zip_code", fe.Field)
}

func TestPlaceOrder_MissingPaymentReference(t *testing.T) {
	products := testProducts(ring("p1", "100", 5))
	svc := newTestService(t, serviceDeps{products: products})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:  "u1",
		Items:   []CartItem{{ProductID: "p1", Quantity: 1}},
		Address: validAddress(),
	})
	require.Error(t, err)
}

func TestPlaceOrder_StoreError(t *testing.T) {
	products := testProducts(ring("p1", "100", 5))
	repo := newMemOrderRepo(products)
	repo.err = errors.New("connection reset")
	svc := newTestService(t, serviceDeps{products: products, orders: repo})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:           "u1",
		Items:            []CartItem{{ProductID: "p1", Quantity: 1}},
		PaymentReference: "pay_007",
		Address:          validAddress(),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

// Two concurrent checkouts contending for the last unit: exactly one
// succeeds, the other gets InsufficientStockError, and stock ends at zero.
func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	for range 20 {
		products := testProducts(ring("p1", "100", 1))
		repo := newMemOrderRepo(products)
		svc := newTestService(t, serviceDeps{products: products, orders: repo})

		results := make([]error, 2)
		var wg sync.WaitGroup
		for i := range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
					UserID:           "u1",
					Items:            []CartItem{{ProductID: "p1", Quantity: 1}},
					PaymentReference: "pay_race_" + string(rune('a'+i)),
					Address:          validAddress(),
				})
				results[i] = err
			}()
		}
		wg.Wait()

		var successes, stockFailures int
		for _, err := range results {
			var ins *InsufficientStockError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &ins):
				stockFailures++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, successes, "exactly one checkout must win")
		assert.Equal(t, 1, stockFailures, "the loser must see insufficient stock")
		assert.Equal(t, 0, repo.stock["p1"], "stock must end at zero, never negative")
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusProcessing.Valid())
	assert.False(t, Status("unknown").Valid())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}
