// Package events provides in-process event emission for ledger changes.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	TradeRecorded       EventType = "TRADE_RECORDED"
	TradeDeleted        EventType = "TRADE_DELETED"
	TransferRecorded    EventType = "TRANSFER_RECORDED"
	TransferDeleted     EventType = "TRANSFER_DELETED"
	HoldingsResynced    EventType = "HOLDINGS_RESYNCED"
	PortfolioCreated    EventType = "PORTFOLIO_CREATED"
	PortfolioRecomputed EventType = "PORTFOLIO_RECOMPUTED"
	PriceUnavailable    EventType = "PRICE_UNAVAILABLE"
	ErrorOccurred       EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type the bus can carry
var AllTypes = []EventType{
	TradeRecorded,
	TradeDeleted,
	TransferRecorded,
	TransferDeleted,
	HoldingsResynced,
	PortfolioCreated,
	PortfolioRecomputed,
	PriceUnavailable,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
