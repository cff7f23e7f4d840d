// Package ledger implements average-cost accounting for a set of holdings and
// derives live valuation from a point-in-time quote map.
//
// Every function in this package is pure and safe for concurrent use.
package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// AvgPricePlaces is the number of fractional digits kept on a merged average price.
const AvgPricePlaces = 4

var (
	// ErrInvalidTrade is returned for a trade with a non-positive quantity or price.
	ErrInvalidTrade = errors.New("invalid trade")
	// ErrInvalidInput is returned for holdings or numbers that cannot be valued.
	ErrInvalidInput = errors.New("invalid input")
)

var hundred = decimal.NewFromInt(100)

// Holding is a position in one instrument.
type Holding struct {
	Symbol      string          `json:"symbol"`
	Shares      decimal.Decimal `json:"shares"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
}

// CostBasis returns AvgBuyPrice * Shares.
func (h Holding) CostBasis() decimal.Decimal {
	return h.AvgBuyPrice.Mul(h.Shares)
}

// Validate checks the holding invariants.
func (h Holding) Validate() error {
	if h.Shares.IsNegative() {
		return fmt.Errorf("%w: %s has negative shares %s", ErrInvalidInput, h.Symbol, h.Shares)
	}
	if h.AvgBuyPrice.IsNegative() {
		return fmt.Errorf("%w: %s has negative average price %s", ErrInvalidInput, h.Symbol, h.AvgBuyPrice)
	}
	return nil
}

// Quotes maps a symbol to its latest known price. Missing and non-positive
// entries mean the price is unknown.
type Quotes map[string]decimal.Decimal

// Price returns the usable price for symbol.
func (q Quotes) Price(symbol string) (decimal.Decimal, bool) {
	p, ok := q[symbol]
	if !ok || !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}

// DecimalFromFloat converts f, rejecting NaN and infinities.
func DecimalFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: non-finite number %v", ErrInvalidInput, f)
	}
	return decimal.NewFromFloat(f), nil
}
