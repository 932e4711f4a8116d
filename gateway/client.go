package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"paysync-backend/models"

	"github.com/shopspring/decimal"
)

// PollResult is one bounded-time-window transaction listing.
type PollResult struct {
	Records     []models.GatewayRecord `json:"records"`
	WindowStart time.Time              `json:"windowStart"`
	WindowEnd   time.Time              `json:"windowEnd"`
}

// Balance is the provider-reported account balance.
type Balance struct {
	FundIn  decimal.Decimal `json:"fundIn"`
	FundOut decimal.Decimal `json:"fundOut"`
}

// Client is the gateway surface the poller consumes. The wire protocol
// behind it is the provider's business; this contract is just the shape of
// the data coming back.
type Client interface {
	ListTransactions(ctx context.Context, from, to time.Time) (PollResult, error)
	Balance(ctx context.Context) (Balance, error)
}

// HTTPClient talks JSON to the provider's polling API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ListTransactions(ctx context.Context, from, to time.Time) (PollResult, error) {
	var out PollResult
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	if err := c.get(ctx, "/v1/transactions?"+q.Encode(), &out); err != nil {
		return PollResult{}, err
	}
	return out, nil
}

func (c *HTTPClient) Balance(ctx context.Context) (Balance, error) {
	var out Balance
	if err := c.get(ctx, "/v1/balance", &out); err != nil {
		return Balance{}, err
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway request %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway response %s: %w", path, err)
	}
	return nil
}
