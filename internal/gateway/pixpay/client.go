// Package pixpay is the HTTP client for the PIX payment provider. It covers
// the two calls checkout needs: creating a payment for an order and polling
// its status. The provider owns the payment's source of truth; no retries
// happen here, every re-attempt is user-initiated upstream.
package pixpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mercadino/storefront/internal/checkout"
	"github.com/mercadino/storefront/internal/domain/payment"
)

// Compile-time check: the client serves checkout's gateway contract.
var _ checkout.PaymentGateway = (*Client)(nil)

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("payment provider returned %d: %s", e.Code, e.Body)
}

// Client talks to the payment provider over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client. Transport is instrumented with otelhttp.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CreatePayment initiates a payment for the order and returns the provider's
// payment record, PIX fields included.
func (c *Client) CreatePayment(ctx context.Context, req checkout.CreatePaymentRequest) (*payment.Payment, error) {
	body, err := json.Marshal(map[string]any{
		"orderId":       req.OrderID,
		"amount":        req.Amount,
		"currency":      req.Currency,
		"paymentMethod": req.Method,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	p := &payment.Payment{OrderID: req.OrderID, Currency: req.Currency, Method: req.Method}
	if err := decodePayment(raw, p); err != nil {
		return nil, errors.Wrap(err, "decode payment")
	}
	return p, nil
}

// PaymentStatus fetches the provider-side status of a payment.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (payment.Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/payments/"+paymentID+"/pix-status", nil)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	raw, err := c.do(httpReq)
	if err != nil {
		return "", err
	}

	var status payment.Status
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		status = payment.Status(s)
		return nil
	}); err != nil {
		return "", errors.Wrap(err, "decode status")
	}
	if !status.Valid() {
		return "", errors.Errorf("unknown payment status %q", status)
	}
	return status, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "payment provider request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

// decodePayment fills p from the provider's JSON payload.
func decodePayment(raw []byte, p *payment.Payment) error {
	d := jx.DecodeBytes(raw)
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			s, err := d.Str()
			p.ID = s
			return err
		case "status":
			s, err := d.Str()
			p.Status = payment.Status(s)
			return err
		case "amount":
			num, err := d.Num()
			if err != nil {
				return err
			}
			// jx.Num keeps the raw token; providers send both 12.5 and "12.5".
			s := string(num)
			if len(s) >= 2 && s[0] == '"' {
				s = s[1 : len(s)-1]
			}
			amount, err := decimal.NewFromString(s)
			if err != nil {
				return errors.Wrap(err, "parse amount")
			}
			p.Amount = amount
			return nil
		case "pixCode":
			s, err := d.Str()
			p.PixCode = s
			return err
		case "pixQrCode":
			s, err := d.Str()
			p.PixQrCode = s
			return err
		case "pixExpiresAt":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return errors.Wrap(err, "parse pixExpiresAt")
			}
			p.PixExpiresAt = &ts
			return nil
		default:
			return d.Skip()
		}
	})
}
