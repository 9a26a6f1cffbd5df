// Package postal looks up Brazilian postal codes (CEP) against the ViaCEP
// service to pre-fill address drafts. Lookups are best-effort: callers treat
// every failure as non-fatal and leave the draft untouched.
package postal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mercadino/storefront/internal/domain/address"
)

// ErrNotFound is returned for syntactically valid codes the service does not
// know, and ErrInvalidCode for codes that are not 8 digits.
var (
	ErrNotFound    = errors.New("postal code not found")
	ErrInvalidCode = errors.New("postal code must be 8 digits")
)

// StatusError is returned for non-2xx ViaCEP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("postal lookup returned %d", e.Code)
}

// Result is the address fragment a lookup yields.
type Result struct {
	Street string
	City   string
	State  string
}

// Client queries ViaCEP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client. An empty baseURL targets the public ViaCEP endpoint.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://viacep.com.br"
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Lookup resolves an 8-digit code to street/city/state. Non-digit separators
// in code are tolerated and stripped.
func (c *Client) Lookup(ctx context.Context, code string) (*Result, error) {
	clean := address.DigitsOnly(code)
	if len(clean) != 8 {
		return nil, ErrInvalidCode
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ws/"+clean+"/json/", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "postal lookup request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	var (
		res      Result
		notFound bool
	)
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "logradouro":
			s, err := d.Str()
			res.Street = s
			return err
		case "localidade":
			s, err := d.Str()
			res.City = s
			return err
		case "uf":
			s, err := d.Str()
			res.State = s
			return err
		case "erro":
			// ViaCEP signals unknown codes with {"erro": true} (or "true").
			switch d.Next() {
			case jx.Bool:
				v, err := d.Bool()
				notFound = v
				return err
			default:
				s, err := d.Str()
				notFound = s == "true"
				return err
			}
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	if notFound {
		return nil, ErrNotFound
	}
	return &res, nil
}
