// Package jupiter is a client for the Jupiter price API. Prices are
// converted from USD to SOL per token using the SOL quote from the same
// response.
package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// ChunkSize is the largest number of ids sent in one request.
const ChunkSize = 30

// SOLMint is the wrapped SOL mint used as the conversion reference.
const SOLMint = "So11111111111111111111111111111111111111112"

// Client is the REST client for the Jupiter price endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	solMint    string
	httpClient *http.Client
}

var (
	_ domain.PriceSource       = (*Client)(nil)
	_ domain.BatchPriceFetcher = (*Client)(nil)
)

// NewClient creates a Jupiter client.
//
// baseURL is the API root, e.g. "https://lite-api.jup.ag". apiKey is optional.
func NewClient(baseURL, apiKey, solMint string, timeout time.Duration) *Client {
	if solMint == "" {
		solMint = SOLMint
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		solMint: solMint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// priceEntry is one token in the price response.
type priceEntry struct {
	USDPrice float64 `json:"usdPrice"`
	Price    float64 `json:"price,omitempty"`
}

func (e priceEntry) usd() float64 {
	if e.USDPrice > 0 {
		return e.USDPrice
	}
	return e.Price
}

// Name implements domain.PriceSource.
func (c *Client) Name() string { return "jupiter" }

// FetchPrice implements domain.PriceSource.
func (c *Client) FetchPrice(ctx context.Context, mint string) (float64, bool) {
	prices, err := c.FetchPrices(ctx, []string{mint})
	if err != nil {
		return 0, false
	}
	p, ok := prices[mint]
	return p, ok && p > 0
}

// FetchPrices implements domain.BatchPriceFetcher. Mints without a quote are
// absent from the result.
func (c *Client) FetchPrices(ctx context.Context, mints []string) (map[string]float64, error) {
	out := make(map[string]float64, len(mints))
	for start := 0; start < len(mints); start += ChunkSize {
		end := min(start+ChunkSize, len(mints))
		if err := c.fetchChunk(ctx, mints[start:end], out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (c *Client) fetchChunk(ctx context.Context, chunk []string, out map[string]float64) error {
	ids := append([]string{c.solMint}, chunk...)
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))

	body, err := c.doGet(ctx, "/price/v3?"+params.Encode())
	if err != nil {
		return fmt.Errorf("jupiter: get prices: %w", err)
	}
	entries, err := decodePrices(body)
	if err != nil {
		return fmt.Errorf("jupiter: decode prices: %w", err)
	}

	sol := entries[c.solMint].usd()
	if sol <= 0 {
		return fmt.Errorf("jupiter: %w: no SOL reference price", domain.ErrNoPrice)
	}
	for _, mint := range chunk {
		if usd := entries[mint].usd(); usd > 0 {
			out[mint] = usd / sol
		}
	}
	return nil
}

// decodePrices accepts both the flat v3 shape and the older {"data": {...}}
// envelope.
func decodePrices(body []byte) (map[string]priceEntry, error) {
	var wrapped struct {
		Data map[string]priceEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var flat map[string]*priceEntry
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, err
	}
	out := make(map[string]priceEntry, len(flat))
	for k, v := range flat {
		if v != nil {
			out[k] = *v
		}
	}
	return out, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
