package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
)

// ChunkSize is the largest number of token addresses per request.
const ChunkSize = 30

// Client is the REST client for DexScreener.
type Client struct {
	baseURL    string
	solMint    string
	clock      clock.Clock
	httpClient *http.Client
}

var (
	_ domain.MarketDataProvider = (*Client)(nil)
	_ domain.PriceSource        = (*Client)(nil)
	_ domain.BatchPriceFetcher  = (*Client)(nil)
)

// NewClient creates a DexScreener client.
//
// baseURL is the API root, e.g. "https://api.dexscreener.com".
func NewClient(baseURL, solMint string, c clock.Clock, timeout time.Duration) *Client {
	if c == nil {
		c = clock.Real{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		solMint: solMint,
		clock:   c,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name implements domain.PriceSource.
func (c *Client) Name() string { return "dexscreener" }

// TokenInfo implements domain.MarketDataProvider using the highest-liquidity
// pair whose base token is mint.
func (c *Client) TokenInfo(ctx context.Context, mint string) (domain.TokenInfo, error) {
	pairs, err := c.tokenPairs(ctx, []string{mint})
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("dexscreener: token info %s: %w", mint, err)
	}
	best := bestPairs(pairs, "")[mint]
	if best == nil {
		return domain.TokenInfo{}, fmt.Errorf("dexscreener: token info %s: %w", mint, domain.ErrNotFound)
	}
	info := best.ToDomainTokenInfo(c.solMint, c.clock.Now())
	if info.Price <= 0 {
		// The deepest pair is not SOL-quoted; take the price from the
		// deepest one that is.
		if sol := bestPairs(pairs, c.solMint)[mint]; sol != nil {
			info.Price = sol.NativePrice()
		}
	}
	return info, nil
}

// FetchPrice implements domain.PriceSource.
func (c *Client) FetchPrice(ctx context.Context, mint string) (float64, bool) {
	prices, err := c.FetchPrices(ctx, []string{mint})
	if err != nil {
		return 0, false
	}
	p, ok := prices[mint]
	return p, ok && p > 0
}

// FetchPrices implements domain.BatchPriceFetcher using priceNative of the
// deepest SOL-quoted pair per mint.
func (c *Client) FetchPrices(ctx context.Context, mints []string) (map[string]float64, error) {
	out := make(map[string]float64, len(mints))
	for start := 0; start < len(mints); start += ChunkSize {
		end := min(start+ChunkSize, len(mints))
		pairs, err := c.tokenPairs(ctx, mints[start:end])
		if err != nil {
			return out, fmt.Errorf("dexscreener: prices: %w", err)
		}
		for mint, p := range bestPairs(pairs, c.solMint) {
			if price := p.NativePrice(); price > 0 {
				out[mint] = price
			}
		}
	}
	return out, nil
}

func (c *Client) tokenPairs(ctx context.Context, mints []string) ([]APIPair, error) {
	escaped := make([]string, len(mints))
	for i, m := range mints {
		escaped[i] = url.PathEscape(m)
	}
	body, err := c.doGet(ctx, "/latest/dex/tokens/"+strings.Join(escaped, ","))
	if err != nil {
		return nil, err
	}
	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}
	return resp.Pairs, nil
}

// bestPairs picks the highest-liquidity Solana pair per base token. A
// non-empty quote restricts candidates to pairs quoted in that token.
func bestPairs(pairs []APIPair, quote string) map[string]*APIPair {
	best := make(map[string]*APIPair)
	for i := range pairs {
		p := &pairs[i]
		if p.ChainID != "" && p.ChainID != "solana" {
			continue
		}
		if quote != "" && p.QuoteToken.Address != quote {
			continue
		}
		cur := best[p.BaseToken.Address]
		if cur == nil || p.Liquidity.USD > cur.Liquidity.USD {
			best[p.BaseToken.Address] = p
		}
	}
	return best
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

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
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
