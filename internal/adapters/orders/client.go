// Package orders resolves order IDs into planner input, either from an
// order-source HTTP API or from a local JSON file.
package orders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

const (
	defaultRatePerSec = 10
	// IDs per request; the API rejects longer queries.
	batchSize = 50

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client is the order-source HTTP client with rate limiting and retries.
// It implements ports.OrderSource.
type Client struct {
	http    *http.Client
	base    string
	apiKey  string
	limiter *rate.Limiter
}

// NewClient returns a Client for baseURL. ratePerSec <= 0 uses the default.
func NewClient(baseURL, apiKey string, ratePerSec float64) *Client {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 5),
	}
}

// FetchListings resolves listing IDs, preserving their order.
func (c *Client) FetchListings(ctx context.Context, ids []string) ([]domain.ListingDetail, error) {
	raw, err := c.fetch(ctx, "listing", ids)
	if err != nil {
		return nil, fmt.Errorf("orders.FetchListings: %w", err)
	}
	out, err := mapListings(raw)
	if err != nil {
		return nil, fmt.Errorf("orders.FetchListings: %w", err)
	}
	return out, nil
}

// FetchBids resolves offer IDs, preserving their order.
func (c *Client) FetchBids(ctx context.Context, ids []string) ([]domain.BidDetail, error) {
	raw, err := c.fetch(ctx, "offer", ids)
	if err != nil {
		return nil, fmt.Errorf("orders.FetchBids: %w", err)
	}
	out, err := mapBids(raw)
	if err != nil {
		return nil, fmt.Errorf("orders.FetchBids: %w", err)
	}
	return out, nil
}

// fetch asks for ids in batches and returns them in the requested order.
func (c *Client) fetch(ctx context.Context, side string, ids []string) ([]orderDTO, error) {
	byID := make(map[string]orderDTO, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		q := url.Values{}
		q.Set("side", side)
		q.Set("ids", strings.Join(ids[start:end], ","))

		var resp ordersResponse
		if err := c.get(ctx, c.base+"/v1/orders?"+q.Encode(), &resp); err != nil {
			return nil, err
		}
		for _, o := range resp.Orders {
			byID[o.ID] = o
		}
	}

	out := make([]orderDTO, 0, len(ids))
	var missing []string
	for _, id := range ids {
		o, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, o)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: unknown %s ids %s", domain.ErrInvalidOrder, side, strings.Join(missing, ","))
	}
	return out, nil
}

// get performs a rate-limited GET with retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		return c.http.Do(req)
	}, out)
}

// doWithRetry runs fn with exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("orders: rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}
		if err := sonnet.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep waits out the backoff for attempt, or until ctx is done.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
