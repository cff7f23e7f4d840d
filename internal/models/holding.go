package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

// Holding represents a stored position of one owner in one symbol
type Holding struct {
	ID          int             `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Symbol      string          `json:"symbol"`
	Shares      decimal.Decimal `json:"shares"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Ledger returns the engine view of the holding
func (h *Holding) Ledger() ledger.Holding {
	return ledger.Holding{
		Symbol:      h.Symbol,
		Shares:      h.Shares,
		AvgBuyPrice: h.AvgBuyPrice,
	}
}

// Apply copies engine results onto the stored holding
func (h *Holding) Apply(l ledger.Holding) {
	h.Symbol = l.Symbol
	h.Shares = l.Shares
	h.AvgBuyPrice = l.AvgBuyPrice
}

// LedgerHoldings converts stored holdings for valuation
func LedgerHoldings(holdings []*Holding) []ledger.Holding {
	out := make([]ledger.Holding, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, h.Ledger())
	}
	return out
}

// NormalizeSymbol uppercases raw and appends suffix unless it already carries one.
// An empty suffix leaves the symbol as typed.
func NormalizeSymbol(raw, suffix string) string {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" || suffix == "" {
		return sym
	}
	suffix = strings.ToUpper(suffix)
	if strings.HasSuffix(sym, suffix) || strings.Contains(sym, ".") {
		return sym
	}
	return sym + suffix
}
