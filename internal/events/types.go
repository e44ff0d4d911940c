// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Trade lifecycle events
	TradeExecuted EventType = "trade.executed"
	TradeDenied   EventType = "trade.denied"
	TradeFailed   EventType = "trade.failed"

	// Position events
	PositionOpened EventType = "position.opened"
	PositionClosed EventType = "position.closed"
	ExitTriggered  EventType = "exit.triggered"

	// Scan events
	ScanCompleted EventType = "scan.completed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TradeExecutedEvent is emitted after a swap settles.
type TradeExecutedEvent struct {
	BaseEvent
	Mint      string
	Symbol    string
	Side      string // "buy" or "sell"
	AmountSOL float64
	TxID      string
}

// TradeDeniedEvent is emitted when the safety gate or scorer rejects a trade.
type TradeDeniedEvent struct {
	BaseEvent
	Mint   string
	Symbol string
	Side   string
	Reason string
}

// TradeFailedEvent is emitted when an approved trade fails at execution.
type TradeFailedEvent struct {
	BaseEvent
	Mint   string
	Symbol string
	Side   string
	Error  error
}

// PositionOpenedEvent is emitted when a new position is recorded.
type PositionOpenedEvent struct {
	BaseEvent
	Mint       string
	Symbol     string
	EntryPrice float64
	Amount     float64
	StopLoss   float64
	TakeProfit float64
}

// PositionClosedEvent is emitted when a position is closed.
type PositionClosedEvent struct {
	BaseEvent
	Mint       string
	Symbol     string
	ExitPrice  float64
	Proceeds   float64
	Pnl        float64
	PnlPercent float64
	HoldTime   string
}

// ExitTriggeredEvent is emitted when a price update crosses a stop level.
type ExitTriggeredEvent struct {
	BaseEvent
	Mint         string
	Symbol       string
	Reason       string // "stop_loss" or "take_profit"
	CurrentPrice float64
}

// ScanCompletedEvent is emitted after each market scan pass.
type ScanCompletedEvent struct {
	BaseEvent
	Scanned  int
	Accepted int
	Duration time.Duration
}
