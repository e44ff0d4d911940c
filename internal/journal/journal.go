// internal/journal/journal.go
package journal

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dexmind/solana-agent/internal/events"
)

// Trade is one executed trade as recorded by the journal.
type Trade struct {
	Timestamp  time.Time `json:"timestamp"`
	Mint       string    `json:"mint"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"` // "buy" or "sell"
	AmountSOL  float64   `json:"amount_sol"`
	Pnl        float64   `json:"pnl"`
	PnlPercent float64   `json:"pnl_percent"`
	HoldTime   string    `json:"hold_time,omitempty"`
	// TxID is empty on sells journaled from the close event; the matching
	// execution id is in the log stream.
	TxID string `json:"tx_id"`
}

// CSVHeaders returns the column names for CSV export.
func CSVHeaders() []string {
	return []string{"timestamp", "mint", "symbol", "action", "amount_sol", "pnl", "pnl_percent", "hold_time", "tx_id"}
}

// ToCSV renders the trade as a CSV row.
func (t Trade) ToCSV() []string {
	return []string{
		t.Timestamp.Format(time.RFC3339),
		t.Mint,
		t.Symbol,
		t.Action,
		strconv.FormatFloat(t.AmountSOL, 'f', -1, 64),
		strconv.FormatFloat(t.Pnl, 'f', -1, 64),
		strconv.FormatFloat(t.PnlPercent, 'f', -1, 64),
		t.HoldTime,
		t.TxID,
	}
}

// Journal accumulates executed trades from the event bus.
type Journal struct {
	mu     sync.Mutex
	trades []Trade
	logger *zap.Logger

	subs []events.Subscription
}

// NewJournal creates an empty trade journal.
func NewJournal(logger *zap.Logger) *Journal {
	return &Journal{logger: logger.Named("journal")}
}

// Attach subscribes the journal to trade lifecycle events.
func (j *Journal) Attach(bus *events.Bus) {
	j.subs = append(j.subs,
		bus.SubscribeFunc(events.TradeExecuted, j.onTradeExecuted),
		bus.SubscribeFunc(events.PositionClosed, j.onPositionClosed),
	)
}

// Detach removes the journal's subscriptions.
func (j *Journal) Detach() {
	for _, sub := range j.subs {
		sub.Unsubscribe()
	}
	j.subs = nil
}

func (j *Journal) onTradeExecuted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.TradeExecutedEvent)
	if !ok {
		return nil
	}
	// Sells are recorded when the close settles, with pnl attached.
	if e.Side != "buy" {
		return nil
	}

	j.record(Trade{
		Timestamp: e.Timestamp(),
		Mint:      e.Mint,
		Symbol:    e.Symbol,
		Action:    "buy",
		AmountSOL: e.AmountSOL,
		TxID:      e.TxID,
	})
	return nil
}

func (j *Journal) onPositionClosed(ctx context.Context, event events.Event) error {
	e, ok := event.(events.PositionClosedEvent)
	if !ok {
		return nil
	}

	j.record(Trade{
		Timestamp:  e.Timestamp(),
		Mint:       e.Mint,
		Symbol:     e.Symbol,
		Action:     "sell",
		AmountSOL:  e.Proceeds,
		Pnl:        e.Pnl,
		PnlPercent: e.PnlPercent,
		HoldTime:   e.HoldTime,
	})
	return nil
}

func (j *Journal) record(t Trade) {
	j.mu.Lock()
	j.trades = append(j.trades, t)
	j.mu.Unlock()

	j.logger.Debug("Trade journaled",
		zap.String("mint", t.Mint),
		zap.String("action", t.Action))
}

// Trades returns a copy of the recorded trades.
func (j *Journal) Trades() []Trade {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Trade, len(j.trades))
	copy(out, j.trades)
	return out
}

// Len returns the number of recorded trades.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.trades)
}
