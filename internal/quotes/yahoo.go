package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultYahooBaseURL is the public chart API host.
const DefaultYahooBaseURL = "https://query2.finance.yahoo.com"

// YahooProvider reads the regular market price from the Yahoo chart API.
type YahooProvider struct {
	baseURL string
	client  *http.Client
}

// NewYahooProvider creates a provider against baseURL (DefaultYahooBaseURL when empty)
func NewYahooProvider(baseURL string, timeout time.Duration) *YahooProvider {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &YahooProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

// Name implements Provider
func (p *YahooProvider) Name() string { return "yahoo" }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				ChartPreviousClose *float64 `json:"chartPreviousClose"`
				PreviousClose      *float64 `json:"previousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote implements Provider
func (p *YahooProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", p.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to build yahoo request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("yahoo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, statusError(p.Name(), symbol, resp.StatusCode)
	}

	var body yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("failed to decode yahoo response: %w", err)
	}
	if body.Chart.Error != nil {
		return Quote{}, fmt.Errorf("%w: yahoo %s: %s", ErrQuoteUnavailable, body.Chart.Error.Code, body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 || body.Chart.Result[0].Meta.RegularMarketPrice == nil {
		return Quote{}, fmt.Errorf("%w: yahoo has no price for %s", ErrQuoteUnavailable, symbol)
	}

	meta := body.Chart.Result[0].Meta
	price, err := priceFromFloat(symbol, *meta.RegularMarketPrice)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		Symbol:    symbol,
		Price:     price,
		Source:    p.Name(),
		FetchedAt: time.Now(),
	}
	prev := meta.ChartPreviousClose
	if prev == nil {
		prev = meta.PreviousClose
	}
	if prev != nil {
		if pc, err := priceFromFloat(symbol, *prev); err == nil {
			q.PrevClose = decimal.NewNullDecimal(pc)
		}
	}
	return q, nil
}
