// Package quotes resolves live prices from upstream market-data providers.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

// ErrQuoteUnavailable is returned when a provider has no usable price for a symbol.
// It is never retried against the same provider.
var ErrQuoteUnavailable = errors.New("quote unavailable")

var hundred = decimal.NewFromInt(100)

// Quote is a point-in-time price of one symbol.
type Quote struct {
	Symbol    string              `json:"symbol"`
	Price     decimal.Decimal     `json:"price"`
	PrevClose decimal.NullDecimal `json:"prev_close"`
	Source    string              `json:"source"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// ChangePercent is the move from the previous close, when known.
func (q Quote) ChangePercent() decimal.NullDecimal {
	if !q.PrevClose.Valid || !q.PrevClose.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	pct := q.Price.Sub(q.PrevClose.Decimal).Div(q.PrevClose.Decimal).Mul(hundred)
	return decimal.NewNullDecimal(pct)
}

// Provider fetches a single quote from one upstream source.
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// Source resolves quotes for a set of symbols, tolerating partial failure.
type Source interface {
	Fetch(ctx context.Context, symbols []string) Result
}

// priceFromFloat accepts finite positive prices only
func priceFromFloat(symbol string, f float64) (decimal.Decimal, error) {
	p, err := ledger.DecimalFromFloat(f)
	if err != nil || !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s price %v", ErrQuoteUnavailable, symbol, f)
	}
	return p, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// statusError marks upstream responses; 404 means the symbol is unknown upstream.
func statusError(provider, symbol string, status int) error {
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s returned 404 for %s", ErrQuoteUnavailable, provider, symbol)
	}
	return fmt.Errorf("%s returned status %d for %s", provider, status, symbol)
}
