// Package paddle is a minimal REST client for the Paddle Billing API,
// covering only the endpoints the purchase processor reads.
package paddle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
)

// APIError carries the HTTP status of a failed Paddle call so callers can
// classify retryability.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paddle api: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient: 5xx and 429.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Customer is the subset of Paddle's customer object the processor reads.
type Customer struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	MarketingConsent bool   `json:"marketing_consent"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg *cfgpkg.Config) *Client {
	return &Client{
		baseURL: cfg.Paddle.BaseURL,
		apiKey:  cfg.Paddle.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// GetCustomer fetches a customer profile by Paddle customer id.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	url := fmt.Sprintf("%s/customers/%s", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport-level failures are treated as transient.
		return nil, &APIError{StatusCode: http.StatusServiceUnavailable, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var envelope struct {
		Data Customer `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}
	return &envelope.Data, nil
}
