// Package handler exposes the checkout pipeline over HTTP. Handlers decode
// JSON requests, delegate to the domain services, and map domain errors to
// status codes; no business rules live here.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurelia-jewels/checkout-api/internal/domain/order"
	"github.com/aurelia-jewels/checkout-api/internal/domain/product"
	"github.com/aurelia-jewels/checkout-api/internal/payment"
)

// Gateway is the slice of the payment client the handlers need. Satisfied by
// *payment.Client; tests substitute a stub.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, receipt string) (*payment.RemoteOrder, error)
	VerifySignature(gatewayOrderID, paymentID, signature string) bool
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler serves the storefront checkout API.
type Handler struct {
	products     product.Repository
	orders       *order.Service
	gateway      Gateway
	auth         *Authenticator
	imageBaseURL string
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, products product.Repository, orders *order.Service, gateway Gateway, auth *Authenticator) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		gateway:      gateway,
		auth:         auth,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the API router. Catalog reads and quotes are public; intent
// and confirm require an authenticated session.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{productID}", h.GetProduct)
	r.Post("/checkout/quote", h.QuoteCheckout)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Post("/checkout/intent", h.CreateIntent)
		r.Post("/checkout/confirm", h.ConfirmCheckout)
	})

	return r
}

// errorResponse is the JSON body for all non-2xx responses.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}
