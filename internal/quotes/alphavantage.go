package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAlphaVantageBaseURL is the public Alpha Vantage host.
const DefaultAlphaVantageBaseURL = "https://www.alphavantage.co"

// errRateLimited is retryable; Alpha Vantage reports throttling in the body with HTTP 200.
var errRateLimited = errors.New("alphavantage rate limited")

// AlphaVantageProvider reads GLOBAL_QUOTE prices.
type AlphaVantageProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewAlphaVantageProvider creates a provider against baseURL (DefaultAlphaVantageBaseURL when empty)
func NewAlphaVantageProvider(baseURL, apiKey string, timeout time.Duration) *AlphaVantageProvider {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageBaseURL
	}
	return &AlphaVantageProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  newHTTPClient(timeout),
	}
}

// Name implements Provider
func (p *AlphaVantageProvider) Name() string { return "alphavantage" }

type globalQuoteResponse struct {
	GlobalQuote struct {
		Price         string `json:"05. price"`
		PreviousClose string `json:"08. previous close"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// Quote implements Provider
func (p *AlphaVantageProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to build alphavantage request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("alphavantage request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, statusError(p.Name(), symbol, resp.StatusCode)
	}

	var body globalQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("failed to decode alphavantage response: %w", err)
	}
	switch {
	case body.Note != "" || body.Information != "":
		return Quote{}, fmt.Errorf("%w: %s%s", errRateLimited, body.Note, body.Information)
	case body.ErrorMessage != "":
		return Quote{}, fmt.Errorf("%w: alphavantage: %s", ErrQuoteUnavailable, body.ErrorMessage)
	case body.GlobalQuote.Price == "":
		return Quote{}, fmt.Errorf("%w: alphavantage has no price for %s", ErrQuoteUnavailable, symbol)
	}

	price, err := decimal.NewFromString(body.GlobalQuote.Price)
	if err != nil || !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: alphavantage price %q for %s", ErrQuoteUnavailable, body.GlobalQuote.Price, symbol)
	}

	q := Quote{
		Symbol:    symbol,
		Price:     price,
		Source:    p.Name(),
		FetchedAt: time.Now(),
	}
	if pc, err := decimal.NewFromString(body.GlobalQuote.PreviousClose); err == nil && pc.IsPositive() {
		q.PrevClose = decimal.NewNullDecimal(pc)
	}
	return q, nil
}
