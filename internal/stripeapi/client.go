// Package stripeapi is a minimal read-only client for the Stripe REST API.
// The webhook payload for checkout sessions in subscription mode does not
// carry plan details, so the reconciler fetches the subscription directly.
package stripeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiBase is the default Stripe API base URL. Overridable in tests via
// Config.BaseURL.
const apiBase = "https://api.stripe.com"

type Config struct {
	SecretKey string
	BaseURL   string
}

type Client struct {
	httpClient *http.Client
	secretKey  string
	baseURL    string
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = apiBase
	}
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		secretKey:  cfg.SecretKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Subscription is the subset of Stripe's subscription object the
// reconcilers read.
type Subscription struct {
	ID         string
	Status     string
	CustomerID string
	PriceID    string
	Interval   string
	Metadata   map[string]string
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
	Items    struct {
		Data []struct {
			Price struct {
				ID        string `json:"id"`
				Recurring struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("stripeapi: empty subscription id")
	}

	url := c.baseURL + "/v1/subscriptions/" + subscriptionID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripeapi: get subscription: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stripeapi: get subscription %s: status %d", subscriptionID, resp.StatusCode)
	}

	var payload subscriptionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("stripeapi: decode subscription: %w", err)
	}

	sub := &Subscription{
		ID:         payload.ID,
		Status:     payload.Status,
		CustomerID: payload.Customer,
		Metadata:   payload.Metadata,
	}
	if len(payload.Items.Data) > 0 {
		sub.PriceID = payload.Items.Data[0].Price.ID
		sub.Interval = payload.Items.Data[0].Price.Recurring.Interval
	}
	return sub, nil
}
