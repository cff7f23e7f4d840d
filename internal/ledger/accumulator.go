package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Trade limits. They match the NUMERIC columns holdings and trades are stored in,
// so an accepted trade persists without rounding or overflow.
const (
	QuantityPlaces = 8
	PricePlaces    = AvgPricePlaces
)

var (
	maxShares    = decimal.New(1, 12)
	maxPrice     = decimal.New(1, 16)
	maxTradeCost = decimal.New(1, 16)
)

// ApplyBuy merges a buy of qty units at price into existing and returns the
// resulting holding. A nil existing holding opens a new position; symbol is
// taken from existing when present.
//
// The merged average is rounded to AvgPricePlaces fractional digits. Trades
// finer than QuantityPlaces/PricePlaces or too large to store fail with
// ErrInvalidTrade.
func ApplyBuy(existing *Holding, symbol string, qty, price decimal.Decimal) (Holding, error) {
	if !qty.IsPositive() {
		return Holding{}, fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidTrade, qty)
	}
	if !price.IsPositive() {
		return Holding{}, fmt.Errorf("%w: price must be positive, got %s", ErrInvalidTrade, price)
	}

	if err := checkTradeLimits(qty, price); err != nil {
		return Holding{}, err
	}

	if existing == nil {
		return Holding{Symbol: symbol, Shares: qty, AvgBuyPrice: price}, nil
	}
	if err := existing.Validate(); err != nil {
		return Holding{}, err
	}

	totalCost := existing.CostBasis().Add(price.Mul(qty))
	newShares := existing.Shares.Add(qty)
	if newShares.GreaterThanOrEqual(maxShares) {
		return Holding{}, fmt.Errorf("%w: holding of %s would exceed %s shares", ErrInvalidTrade, newShares, maxShares)
	}

	return Holding{
		Symbol:      existing.Symbol,
		Shares:      newShares,
		AvgBuyPrice: totalCost.Div(newShares).Round(AvgPricePlaces),
	}, nil
}

func checkTradeLimits(qty, price decimal.Decimal) error {
	if !qty.Round(QuantityPlaces).Equal(qty) {
		return fmt.Errorf("%w: quantity %s has more than %d decimal places", ErrInvalidTrade, qty, QuantityPlaces)
	}
	if !price.Round(PricePlaces).Equal(price) {
		return fmt.Errorf("%w: price %s has more than %d decimal places", ErrInvalidTrade, price, PricePlaces)
	}
	if qty.GreaterThanOrEqual(maxShares) {
		return fmt.Errorf("%w: quantity %s must be below %s", ErrInvalidTrade, qty, maxShares)
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return fmt.Errorf("%w: price %s must be below %s", ErrInvalidTrade, price, maxPrice)
	}
	if qty.Mul(price).GreaterThanOrEqual(maxTradeCost) {
		return fmt.Errorf("%w: trade cost %s must be below %s", ErrInvalidTrade, qty.Mul(price), maxTradeCost)
	}
	return nil
}
