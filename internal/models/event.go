package models

import "time"

// Portfolio event type constants
const (
	EventHoldingUpdated = "HOLDING_UPDATED"
	EventTradeDetected  = "TRADE_DETECTED"
)

// PortfolioEvent represents a Kafka event for holding changes
type PortfolioEvent struct {
	EventID     string       `json:"event_id"`
	EventType   string       `json:"event_type"`
	OwnerID     string       `json:"owner_id"`
	Symbol      string       `json:"symbol"`
	Holding     *Holding     `json:"holding,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}
