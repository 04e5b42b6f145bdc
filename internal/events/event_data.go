package events

import (
	"encoding/json"
)

// EventData is implemented by every typed event payload
type EventData interface {
	EventType() EventType
}

// TradeRecordedData contains data for TradeRecorded events
type TradeRecordedData struct {
	PortfolioID string `json:"portfolio_id"`
	TradeID     int64  `json:"trade_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	Source      string `json:"source,omitempty"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

func (d *TradeRecordedData) EventType() EventType {
	return TradeRecorded
}

// TradeDeletedData contains data for TradeDeleted events
type TradeDeletedData struct {
	PortfolioID string `json:"portfolio_id"`
	TradeID     int64  `json:"trade_id"`
}

func (d *TradeDeletedData) EventType() EventType {
	return TradeDeleted
}

// TransferRecordedData contains data for TransferRecorded events
type TransferRecordedData struct {
	PortfolioID string `json:"portfolio_id"`
	TransferID  int64  `json:"transfer_id"`
	Type        string `json:"type"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

func (d *TransferRecordedData) EventType() EventType {
	return TransferRecorded
}

// TransferDeletedData contains data for TransferDeleted events
type TransferDeletedData struct {
	PortfolioID string `json:"portfolio_id"`
	TransferID  int64  `json:"transfer_id"`
}

func (d *TransferDeletedData) EventType() EventType {
	return TransferDeleted
}

// HoldingsResyncedData contains data for HoldingsResynced events
type HoldingsResyncedData struct {
	PortfolioID string `json:"portfolio_id"`
	Removed     int64  `json:"removed"`
	Inserted    int    `json:"inserted"`
}

func (d *HoldingsResyncedData) EventType() EventType {
	return HoldingsResynced
}

// PortfolioCreatedData contains data for PortfolioCreated events
type PortfolioCreatedData struct {
	PortfolioID string `json:"portfolio_id"`
	Name        string `json:"name"`
	QuoteAsset  string `json:"quote_asset"`
}

func (d *PortfolioCreatedData) EventType() EventType {
	return PortfolioCreated
}

// PortfolioRecomputedData contains data for PortfolioRecomputed events
type PortfolioRecomputedData struct {
	PortfolioID     string `json:"portfolio_id"`
	TotalInvested   string `json:"total_invested"`
	CurrentValue    string `json:"current_value"`
	ProfitLoss      string `json:"profit_loss"`
	OpenPositions   int    `json:"open_positions"`
	ClosedPositions int    `json:"closed_positions"`
	Unpriced        int    `json:"unpriced"`
	Warnings        int    `json:"warnings"`
	DurationMs      int64  `json:"duration_ms"`
}

func (d *PortfolioRecomputedData) EventType() EventType {
	return PortfolioRecomputed
}

// PriceUnavailableData contains data for PriceUnavailable events
type PriceUnavailableData struct {
	PortfolioID string   `json:"portfolio_id"`
	Symbols     []string `json:"symbols"`
	Reason      string   `json:"reason,omitempty"`
}

func (d *PriceUnavailableData) EventType() EventType {
	return PriceUnavailable
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// convertEventDataToMap flattens typed data into the map carried by Event
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}
