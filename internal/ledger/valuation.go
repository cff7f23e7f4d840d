package ledger

import (
	"github.com/shopspring/decimal"
)

// PricedHolding is a holding valued against a quote. Unknown values have
// Valid set to false.
type PricedHolding struct {
	Holding
	CurrentPrice decimal.NullDecimal `json:"current_price"`
	CurrentValue decimal.NullDecimal `json:"current_value"`
	CostBasis    decimal.Decimal     `json:"cost_basis"`
	GainAbs      decimal.NullDecimal `json:"gain_abs"`
	GainPct      decimal.NullDecimal `json:"gain_pct"`
}

// Priced reports whether a usable quote was available for the holding.
func (p PricedHolding) Priced() bool {
	return p.CurrentPrice.Valid
}

// Totals aggregates a priced holdings set. Holdings without a price add their
// cost basis to TotalCost but nothing to TotalValue, and mark the totals Partial.
type Totals struct {
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	TotalGainAbs  decimal.Decimal `json:"total_gain_abs"`
	TotalGainPct  decimal.Decimal `json:"total_gain_pct"`
	Partial       bool            `json:"partial"`
	UnpricedCount int             `json:"unpriced_count"`
}

// Project values each holding against quotes, preserving input order.
func Project(holdings []Holding, quotes Quotes) ([]PricedHolding, error) {
	priced := make([]PricedHolding, 0, len(holdings))
	for _, h := range holdings {
		if err := h.Validate(); err != nil {
			return nil, err
		}
		priced = append(priced, price(h, quotes))
	}
	return priced, nil
}

func price(h Holding, quotes Quotes) PricedHolding {
	ph := PricedHolding{
		Holding:   h,
		CostBasis: h.CostBasis(),
	}

	p, ok := quotes.Price(h.Symbol)
	if !ok {
		return ph
	}

	value := p.Mul(h.Shares)
	gain := value.Sub(ph.CostBasis)
	ph.CurrentPrice = known(p)
	ph.CurrentValue = known(value)
	ph.GainAbs = known(gain)
	if ph.CostBasis.IsPositive() {
		ph.GainPct = known(gain.Div(ph.CostBasis).Mul(hundred))
	}
	return ph
}

// Aggregate sums a priced holdings set.
func Aggregate(priced []PricedHolding) Totals {
	t := Totals{
		TotalValue: decimal.Zero,
		TotalCost:  decimal.Zero,
	}
	for _, p := range priced {
		t.TotalCost = t.TotalCost.Add(p.CostBasis)
		if !p.CurrentValue.Valid {
			t.UnpricedCount++
			continue
		}
		t.TotalValue = t.TotalValue.Add(p.CurrentValue.Decimal)
	}

	t.Partial = t.UnpricedCount > 0
	t.TotalGainAbs = t.TotalValue.Sub(t.TotalCost)
	t.TotalGainPct = decimal.Zero
	if t.TotalCost.IsPositive() {
		t.TotalGainPct = t.TotalGainAbs.Div(t.TotalCost).Mul(hundred)
	}
	return t
}

func known(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
