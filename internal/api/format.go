package api

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/portfolio"
)

// unknownDisplay marks a value that could not be computed
const unknownDisplay = "—"

type rowDisplay struct {
	AvgBuyPrice  string `json:"avg_buy_price"`
	CurrentPrice string `json:"current_price"`
	CurrentValue string `json:"current_value"`
	CostBasis    string `json:"cost_basis"`
	GainAbs      string `json:"gain_abs"`
	GainPct      string `json:"gain_pct"`
}

type valuationRow struct {
	ledger.PricedHolding
	Display rowDisplay `json:"display"`
}

type totalsDisplay struct {
	TotalValue   string `json:"total_value"`
	TotalCost    string `json:"total_cost"`
	TotalGainAbs string `json:"total_gain_abs"`
	TotalGainPct string `json:"total_gain_pct"`
}

type valuationTotals struct {
	ledger.Totals
	Display totalsDisplay `json:"display"`
}

type valuationResponse struct {
	Holdings    []valuationRow  `json:"holdings"`
	Totals      valuationTotals `json:"totals"`
	Stale       bool            `json:"stale"`
	Unavailable []string        `json:"unavailable"`
	Sort        ledger.SortKey  `json:"sort"`
	Dir         ledger.SortDir  `json:"dir"`
	Currency    string          `json:"currency"`
}

func newValuationResponse(v *portfolio.Valuation, key ledger.SortKey, dir ledger.SortDir, currency string) valuationResponse {
	rows := make([]valuationRow, 0, len(v.Rows))
	for _, p := range v.Rows {
		rows = append(rows, valuationRow{
			PricedHolding: p,
			Display: rowDisplay{
				AvgBuyPrice:  formatMoney(p.AvgBuyPrice, currency),
				CurrentPrice: formatNullMoney(p.CurrentPrice, currency),
				CurrentValue: formatNullMoney(p.CurrentValue, currency),
				CostBasis:    formatMoney(p.CostBasis, currency),
				GainAbs:      formatNullMoney(p.GainAbs, currency),
				GainPct:      formatNullPercent(p.GainPct),
			},
		})
	}

	return valuationResponse{
		Holdings: rows,
		Totals: valuationTotals{
			Totals: v.Totals,
			Display: totalsDisplay{
				TotalValue:   formatMoney(v.Totals.TotalValue, currency),
				TotalCost:    formatMoney(v.Totals.TotalCost, currency),
				TotalGainAbs: formatMoney(v.Totals.TotalGainAbs, currency),
				TotalGainPct: formatPercent(v.Totals.TotalGainPct),
			},
		},
		Stale:       v.Stale,
		Unavailable: v.Unavailable,
		Sort:        key,
		Dir:         dir,
		Currency:    currency,
	}
}

// formatMoney renders amount in the currency's minor units. Unknown currency
// codes fall back to two decimals.
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

func formatNullMoney(amount decimal.NullDecimal, currency string) string {
	if !amount.Valid {
		return unknownDisplay
	}
	return formatMoney(amount.Decimal, currency)
}

func formatPercent(pct decimal.Decimal) string {
	return pct.StringFixed(2) + "%"
}

func formatNullPercent(pct decimal.NullDecimal) string {
	if !pct.Valid {
		return unknownDisplay
	}
	return formatPercent(pct.Decimal)
}
