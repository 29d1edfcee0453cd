package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	finnhubBaseURL      = "https://finnhub.io/api/v1"
	providerHTTPTimeout = 10 * time.Second
)

// Quote is an ephemeral price snapshot. It is never persisted; its
// lifetime is bounded by the quote cache TTL.
type Quote struct {
	Symbol        string    `json:"symbol"`
	CurrentPrice  float64   `json:"current_price"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Open          float64   `json:"open"`
	PreviousClose float64   `json:"previous_close"`
	PercentChange float64   `json:"percent_change"`
	Volume        int64     `json:"volume"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// QuoteFetcher is the upstream provider boundary
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)
}

// FinnhubClient fetches real-time quotes from the Finnhub HTTP API
type FinnhubClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewFinnhubClient creates a new Finnhub quote client
func NewFinnhubClient(apiKey string) *FinnhubClient {
	return &FinnhubClient{
		apiKey:  apiKey,
		baseURL: finnhubBaseURL,
		httpClient: &http.Client{
			Timeout: providerHTTPTimeout,
		},
	}
}

// finnhubQuote mirrors the provider's /quote payload
type finnhubQuote struct {
	Current       float64 `json:"c"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	PercentChange float64 `json:"dp"`
	Volume        int64   `json:"v"`
	Timestamp     int64   `json:"t"`
}

// FetchQuote fetches a real-time quote for one symbol. Upstream failures
// map onto the typed errors: HTTP 429 -> ErrRateLimited, an all-zero
// payload -> ErrSymbolNotFound, deadline -> ErrProviderTimeout.
func (c *FinnhubClient) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building quote request for %s: %w", symbol, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("fetching quote for %s: %w", symbol, ErrProviderTimeout)
		}
		return nil, fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("fetching quote for %s: %w", symbol, ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching quote for %s: provider returned status %d", symbol, resp.StatusCode)
	}

	var raw finnhubQuote
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding quote for %s: %w", symbol, err)
	}

	// Finnhub answers unknown symbols with an all-zero payload
	if raw.Current == 0 && raw.PreviousClose == 0 {
		return nil, fmt.Errorf("fetching quote for %s: %w", symbol, ErrSymbolNotFound)
	}

	percentChange := raw.PercentChange
	if percentChange == 0 && raw.PreviousClose != 0 {
		percentChange = (raw.Current - raw.PreviousClose) / raw.PreviousClose * 100
	}

	return &Quote{
		Symbol:        symbol,
		CurrentPrice:  raw.Current,
		High:          raw.High,
		Low:           raw.Low,
		Open:          raw.Open,
		PreviousClose: raw.PreviousClose,
		PercentChange: percentChange,
		Volume:        raw.Volume,
		FetchedAt:     time.Now(),
	}, nil
}

// isTimeout reports whether err is a context deadline or network timeout
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
