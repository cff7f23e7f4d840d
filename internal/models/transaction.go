package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade type constants
const (
	TradeTypeBuy  = "BUY"
	TradeTypeSell = "SELL"
)

// Trade source constants
const (
	SourceManual = "manual"
	SourceKafka  = "kafka"
)

// Transaction is an immutable trade record appended for every applied buy
type Transaction struct {
	ID         int             `json:"id"`
	OwnerID    string          `json:"owner_id"`
	HoldingID  int             `json:"holding_id"`
	Symbol     string          `json:"symbol"`
	TradeType  string          `json:"trade_type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	OrderID    string          `json:"order_id,omitempty"`
	Source     string          `json:"source"`
	ExecutedAt time.Time       `json:"executed_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Trade is a buy to be applied to a holding
type Trade struct {
	Symbol     string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	OrderID    string
	Source     string
	ExecutedAt time.Time
}

// TradeEvent represents a trade detected by an upstream broker integration
type TradeEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      TradeEventData `json:"data"`
}

// TradeEventData holds the trade fields as sent by the broker integration
type TradeEventData struct {
	OwnerID      string  `json:"owner_id"`
	OrderID      string  `json:"order_id"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Quantity     string  `json:"quantity"`
	AveragePrice string  `json:"average_price"`
	ExecutedAt   *string `json:"executed_at,omitempty"`
}
