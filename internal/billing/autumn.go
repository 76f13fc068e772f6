package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/podiumhq/podium/internal/config"
)

// Client talks to the Autumn billing API. It is a thin pass-through: one
// check per reservation attempt, no automatic retries. Transport and
// validation failures are returned as errors and mapped to a stable denial
// reason by the usage service.
type Client struct {
	baseURL   string
	apiKey    string
	featureID string
	http      *http.Client
}

// CheckResult is Autumn's entitlement decision. Data carries the decision
// payload verbatim for display (balances, preview, upgrade options).
type CheckResult struct {
	Allowed bool            `json:"allowed"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func NewClient(cfg config.BillingConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		featureID: cfg.FeatureID,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether the billing collaborator is usable. The ledger
// answers autumn_not_configured without a network call when this is false.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// FeatureID returns the configured metered feature id.
func (c *Client) FeatureID() string {
	return c.featureID
}

// Check asks Autumn whether the user may consume one unit of the feature.
func (c *Client) Check(ctx context.Context, userID, featureID string) (*CheckResult, error) {
	body, err := c.post(ctx, "/check", map[string]any{
		"customer_id": userID,
		"feature_id":  featureID,
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding check response: %w", err)
	}

	return &CheckResult{Allowed: result.Allowed, Data: json.RawMessage(body)}, nil
}

// Track records one unit of paid usage. Failures here are reported to the
// caller as a non-fatal track error; the completed message is never rolled
// back over a tracking failure.
func (c *Client) Track(ctx context.Context, userID, featureID string, value int) error {
	_, err := c.post(ctx, "/track", map[string]any{
		"customer_id": userID,
		"feature_id":  featureID,
		"value":       value,
	})
	return err
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling autumn %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading autumn %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("autumn request failed", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("autumn %s returned status %d", path, resp.StatusCode)
	}

	return body, nil
}
