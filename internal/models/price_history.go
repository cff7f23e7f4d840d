package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot represents the last observed price of a symbol on a day
type PriceSnapshot struct {
	ID        int                 `json:"id"`
	Symbol    string              `json:"symbol"`
	Date      time.Time           `json:"date"`
	Price     decimal.Decimal     `json:"price"`
	PrevClose decimal.NullDecimal `json:"prev_close"`
	Source    string              `json:"source"`
	CreatedAt time.Time           `json:"created_at"`
}
