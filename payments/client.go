package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alovak/fakepay/internal/tracing"
	"github.com/alovak/fakepay/payments/models"
)

// Client calls the payment service HTTP API.
type Client struct {
	Base string
	HTTP *http.Client
}

func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{Base: strings.TrimRight(base, "/"), HTTP: hc}
}

func (c *Client) Authorize(ctx context.Context, amount int64) (models.AuthorizationResult, error) {
	var result models.AuthorizationResult
	err := c.post(ctx, "/payments/authorize", models.AuthorizationRequest{Amount: amount}, &result)
	return result, err
}

func (c *Client) Complete(ctx context.Context, token string) (models.CompletionResult, error) {
	var result models.CompletionResult
	err := c.post(ctx, "/payments/complete", models.CompletionRequest{AuthToken: token}, &result)
	return result, err
}

func (c *Client) GetPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+"/payments/methods", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("payment methods", resp)
	}
	var methods []models.PaymentMethod
	if err := json.NewDecoder(resp.Body).Decode(&methods); err != nil {
		return nil, fmt.Errorf("decode payment methods: %w", err)
	}
	return methods, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 422 carries a structured decline
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return statusError(path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	tracing.Inject(req.Context(), req.Header)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", models.ErrServiceUnavailable, err)
	}
	return resp, nil
}

func statusError(what string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err := fmt.Errorf("%s status=%d body=%s", what, resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %v", models.ErrServiceUnavailable, err)
	}
	return err
}
