// internal/position/position.go
package position

import (
	"fmt"
	"time"
)

// Position is one open holding of a traded token.
type Position struct {
	Mint         string    `json:"mint"`
	Symbol       string    `json:"symbol"`
	EntryPrice   float64   `json:"entry_price"`
	EntryTime    time.Time `json:"entry_time"`
	Amount       float64   `json:"amount"`
	CostBasis    float64   `json:"cost_basis"` // SOL paid, fees included
	CurrentPrice float64   `json:"current_price"`
	PriceKnown   bool      `json:"price_known"` // false until the first refresh
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	PnlPercent   float64   `json:"pnl_percent"`
}

// ExitReason names the trigger that fired on a price refresh.
type ExitReason string

const (
	ReasonStopLoss   ExitReason = "stop_loss"
	ReasonTakeProfit ExitReason = "take_profit"
)

// ExitSignal tells the caller whether a position should be sold.
type ExitSignal struct {
	ShouldSell bool
	Reason     ExitReason
}

// CloseResult summarizes a closed position.
type CloseResult struct {
	Mint       string  `json:"mint"`
	Symbol     string  `json:"symbol"`
	ExitPrice  float64 `json:"exit_price"`
	Pnl        float64 `json:"pnl"` // proceeds minus cost basis, SOL
	PnlPercent float64 `json:"pnl_percent"`
	HoldTime   string  `json:"hold_time"`
}

// formatHoldTime renders a duration using its largest applicable unit.
func formatHoldTime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
