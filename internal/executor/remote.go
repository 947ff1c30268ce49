package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/convexbot/internal/crypto"
	"github.com/alanyoungcy/convexbot/internal/domain"
)

// Remote is the live venue: a client for the execution sidecar, which holds
// the wallet, builds and signs transactions, and reports fills.
type Remote struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
}

var (
	_ Venue         = (*Remote)(nil)
	_ BalanceReader = (*Remote)(nil)
)

// NewRemote creates a sidecar client. auth may be nil for an unauthenticated
// local sidecar.
func NewRemote(baseURL string, auth *crypto.HMACAuth, timeout time.Duration) *Remote {
	return &Remote{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		auth: auth,
	}
}

// swapResponse is the sidecar reply to POST /swap.
type swapResponse struct {
	Success        bool    `json:"success"`
	FilledSizeSOL  float64 `json:"filled_size_sol"`
	FilledPrice    float64 `json:"filled_price"`
	TokenAmountRaw uint64  `json:"token_amount_raw"`
	NoBalance      bool    `json:"no_balance"`
	Retryable      bool    `json:"retryable"`
	Signature      string  `json:"signature"`
	Error          string  `json:"error"`
}

// Name implements Venue.
func (r *Remote) Name() string { return "remote" }

// Swap implements Venue.
func (r *Remote) Swap(ctx context.Context, o Order) (domain.Fill, error) {
	body, err := r.doRequest(ctx, http.MethodPost, "/swap", o)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("executor/remote: swap %s: %w", o.Mint, err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Fill{}, fmt.Errorf("executor/remote: decode swap: %w", err)
	}
	switch {
	case resp.NoBalance:
		return domain.Fill{}, fmt.Errorf("executor/remote: %w: %s", ErrNoBalance, o.Mint)
	case !resp.Success && resp.Retryable:
		return domain.Fill{}, fmt.Errorf("executor/remote: %w: %s", ErrTransient, resp.Error)
	case !resp.Success:
		return domain.Fill{}, fmt.Errorf("executor/remote: swap rejected: %s", resp.Error)
	}

	return domain.Fill{
		Success:        true,
		FilledSizeSOL:  resp.FilledSizeSOL,
		FilledPrice:    resp.FilledPrice,
		TokenAmountRaw: resp.TokenAmountRaw,
		Signature:      resp.Signature,
	}, nil
}

// BalanceSOL implements BalanceReader.
func (r *Remote) BalanceSOL(ctx context.Context) (float64, error) {
	body, err := r.doRequest(ctx, http.MethodGet, "/balance", nil)
	if err != nil {
		return 0, fmt.Errorf("executor/remote: balance: %w", err)
	}
	var resp struct {
		BalanceSOL float64 `json:"balance_sol"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("executor/remote: decode balance: %w", err)
	}
	return resp.BalanceSOL, nil
}

func (r *Remote) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var (
		bodyReader io.Reader
		bodyStr    string
	)
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(raw)
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.auth != nil {
		for k, v := range r.auth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", ErrTransient, err)
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
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrTransient, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
