// Package payment bridges checkout totals to the external hosted-payment
// gateway. The service creates remote payment orders server-side and verifies
// the gateway's success-callback signature; the hosted payment UI itself
// belongs to the gateway.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
)

const defaultTimeout = 10 * time.Second

// Config holds the gateway credentials and endpoint.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Currency  string
	Timeout   time.Duration
}

// RemoteOrder is the gateway's handle for a registered payment intent. The
// client opens the hosted payment UI against GatewayOrderID; the amount is in
// minor currency units and always comes from the server-side pricing
// computation.
type RemoteOrder struct {
	GatewayOrderID string
	Amount         int64
	Currency       string
	KeyID          string
}

// GatewayError is a failed gateway call. Retryable distinguishes transient
// transport/server failures from definitive rejections: a retryable error
// means "try again", a non-retryable one means the payment intent was refused.
type GatewayError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("payment gateway unreachable: %s", e.Message)
	}
	return fmt.Sprintf("payment gateway error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to the payment gateway's REST API using basic auth with the
// key pair. Construct it once at startup and inject it; there are no
// package-level connections.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a gateway client. Timeout defaults to 10s when unset.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type gatewayErrorResponse struct {
	Error struct {
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder registers a payment intent for the exact amount in minor
// currency units. The amount is validated as positive before any network
// call; it must be the server-computed total, never a client-supplied one.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, receipt string) (*RemoteOrder, error) {
	if amountMinor <= 0 {
		return nil, errors.Errorf("payment amount must be positive, got %d", amountMinor)
	}

	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinor,
		Currency: c.cfg.Currency,
		Receipt:  receipt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode order request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build order request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &GatewayError{Message: err.Error(), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, decodeGatewayError(resp)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode order response")
	}
	if out.ID == "" {
		return nil, errors.New("gateway returned an empty order id")
	}

	return &RemoteOrder{
		GatewayOrderID: out.ID,
		Amount:         out.Amount,
		Currency:       out.Currency,
		KeyID:          c.cfg.KeyID,
	}, nil
}

// decodeGatewayError maps a non-2xx gateway response to a GatewayError.
// Server-side failures are retryable; client errors are definitive.
func decodeGatewayError(resp *http.Response) *GatewayError {
	msg := "request failed"
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(raw) > 0 {
		var ge gatewayErrorResponse
		if json.Unmarshal(raw, &ge) == nil && ge.Error.Description != "" {
			msg = ge.Error.Description
		}
	}
	return &GatewayError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Retryable:  resp.StatusCode >= http.StatusInternalServerError,
	}
}
