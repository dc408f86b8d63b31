package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurelia-jewels/checkout-api/internal/domain/coupon"
	"github.com/aurelia-jewels/checkout-api/internal/domain/order"
	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
	"github.com/aurelia-jewels/checkout-api/internal/payment"
)

// supportMessage is returned when the payment was captured but the order
// could not be settled. The payment reference is logged for manual
// reconciliation; an automatic refund is deliberately not attempted.
const supportMessage = "payment received but order could not be created, please contact support"

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type quoteRequest struct {
	Items      []cartItemRequest `json:"items"`
	CouponCode string            `json:"coupon_code,omitempty"`
}

type quoteResponse struct {
	Subtotal   string `json:"subtotal"`
	Shipping   string `json:"shipping"`
	Discount   string `json:"discount"`
	Total      string `json:"total"`
	CouponCode string `json:"coupon_code,omitempty"`
	// CouponRejection explains why the submitted coupon was not applied.
	// Present only when a code was submitted and rejected; the quote itself
	// is still valid without the discount.
	CouponRejection string `json:"coupon_rejection,omitempty"`
}

type intentRequest struct {
	Items      []cartItemRequest `json:"items"`
	CouponCode string            `json:"coupon_code,omitempty"`
	Address    order.Address     `json:"shipping_address"`
}

type intentResponse struct {
	GatewayOrderID string        `json:"gateway_order_id"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
	KeyID          string        `json:"key_id"`
	Quote          quoteResponse `json:"quote"`
}

type confirmRequest struct {
	GatewayOrderID string            `json:"gateway_order_id"`
	PaymentID      string            `json:"payment_id"`
	Signature      string            `json:"signature"`
	Items          []cartItemRequest `json:"items"`
	CouponCode     string            `json:"coupon_code,omitempty"`
	Address        order.Address     `json:"shipping_address"`
}

type orderResponse struct {
	ID              string        `json:"id"`
	Items           []order.Item  `json:"items"`
	Subtotal        string        `json:"subtotal"`
	ShippingFee     string        `json:"shipping_fee"`
	Discount        string        `json:"discount"`
	Total           string        `json:"total"`
	CouponCode      string        `json:"coupon_code,omitempty"`
	Status          order.Status  `json:"status"`
	ShippingAddress order.Address `json:"shipping_address"`
	CreatedAt       time.Time     `json:"created_at"`
}

// QuoteCheckout handles POST /checkout/quote. It prices the cart without any
// side effects; a rejected coupon is reported in the response, not as an
// error.
func (h *Handler) QuoteCheckout(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := h.orders.Quote(r.Context(), toCartItems(req.Items), req.CouponCode)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

// CreateIntent handles POST /checkout/intent. It validates the shipping
// address, recomputes the totals server-side, and registers a payment order
// with the gateway for the exact amount. Unlike the quote endpoint a coupon
// rejection fails the intent: the customer must see the price they will be
// charged.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Address.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	q, err := h.orders.Quote(r.Context(), toCartItems(req.Items), req.CouponCode)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	if req.CouponCode != "" && q.CouponRejection != nil {
		writeError(w, http.StatusUnprocessableEntity, q.CouponRejection.Error())
		return
	}

	remote, err := h.gateway.CreateOrder(r.Context(), pricing.MinorUnits(q.Total), uuid.New().String())
	if err != nil {
		var ge *payment.GatewayError
		if errors.As(err, &ge) && ge.Retryable {
			writeError(w, http.StatusServiceUnavailable, "payment gateway unavailable, try again")
			return
		}
		zctx.From(r.Context()).Error("create payment order", zap.Error(err))
		writeError(w, http.StatusBadGateway, "payment gateway rejected the order")
		return
	}

	writeJSON(w, http.StatusOK, intentResponse{
		GatewayOrderID: remote.GatewayOrderID,
		Amount:         remote.Amount,
		Currency:       remote.Currency,
		KeyID:          remote.KeyID,
		Quote:          toQuoteResponse(q),
	})
}

// ConfirmCheckout handles POST /checkout/confirm. The gateway signature is
// verified before anything else; only then is the order settled. A repeated
// callback for an already-settled payment returns the existing order with 200.
func (h *Handler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.gateway.VerifySignature(req.GatewayOrderID, req.PaymentID, req.Signature) {
		writeError(w, http.StatusBadRequest, "payment signature verification failed")
		return
	}

	user, _ := UserFrom(r.Context())
	result, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:           user.ID,
		UserName:         user.Name,
		Items:            toCartItems(req.Items),
		CouponCode:       req.CouponCode,
		PaymentReference: req.PaymentID,
		PaymentOrderID:   req.GatewayOrderID,
		Address:          req.Address,
	})
	if err != nil {
		h.writeSettlementError(w, r, req.PaymentID, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, toOrderResponse(result.Order))
}

// writeCheckoutError maps pre-payment errors: business rejections get 422,
// everything else is an internal failure.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	if order.IsRejection(err) || coupon.IsRejection(err) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	zctx.From(r.Context()).Error("checkout failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// writeSettlementError maps post-payment errors. At this point the customer
// has been charged, so anything that is not a clean rejection or a transient
// conflict is surfaced with the support message and logged with the payment
// reference for reconciliation.
func (h *Handler) writeSettlementError(w http.ResponseWriter, r *http.Request, paymentID string, err error) {
	var afe *order.AddressFieldError
	switch {
	case errors.As(err, &afe), order.IsRejection(err), coupon.IsRejection(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrTxConflict):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		zctx.From(r.Context()).Error("settlement failed after captured payment",
			zap.String("payment_reference", paymentID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, supportMessage)
	}
}

func toCartItems(items []cartItemRequest) []order.CartItem {
	out := make([]order.CartItem, len(items))
	for i, item := range items {
		out[i] = order.CartItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return out
}

func toQuoteResponse(q *order.Quote) quoteResponse {
	resp := quoteResponse{
		Subtotal:   q.Subtotal.StringFixed(2),
		Shipping:   q.Shipping.StringFixed(2),
		Discount:   q.Discount.StringFixed(2),
		Total:      q.Total.StringFixed(2),
		CouponCode: q.CouponCode,
	}
	if q.CouponRejection != nil {
		resp.CouponRejection = q.CouponRejection.Error()
	}
	return resp
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		Items:           o.Items,
		Subtotal:        o.Subtotal.StringFixed(2),
		ShippingFee:     o.ShippingFee.StringFixed(2),
		Discount:        o.Discount.StringFixed(2),
		Total:           o.Total.StringFixed(2),
		CouponCode:      o.CouponCode,
		Status:          o.Status,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
	}
}
