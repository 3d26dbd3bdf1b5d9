// Package revenuecat is a minimal REST client for the RevenueCat API v2,
// covering the customer entitlement lookup used by the migration flow.
package revenuecat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
)

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("revenuecat api: status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Entitlement is one active entitlement of a customer. A nil ExpiresAt means
// the entitlement never expires (lifetime purchase).
type Entitlement struct {
	EntitlementID string     `json:"entitlement_id"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

type Client struct {
	baseURL   string
	apiKey    string
	projectID string
	http      *http.Client
}

func NewClient(cfg *cfgpkg.Config) *Client {
	return &Client{
		baseURL:   cfg.RevenueCat.BaseURL,
		apiKey:    cfg.RevenueCat.APIKey,
		projectID: cfg.RevenueCat.ProjectID,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// GetActiveEntitlements fetches the active entitlements of an app user.
func (c *Client) GetActiveEntitlements(ctx context.Context, appUserID string) ([]Entitlement, error) {
	url := fmt.Sprintf("%s/projects/%s/customers/%s", c.baseURL, c.projectID, appUserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
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
		ActiveEntitlements struct {
			Items []Entitlement `json:"items"`
		} `json:"active_entitlements"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}
	return envelope.ActiveEntitlements.Items, nil
}
