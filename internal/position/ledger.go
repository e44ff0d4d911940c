// internal/position/ledger.go
package position

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ledger tracks open positions keyed by mint, with stop-loss/take-profit
// triggers and pnl computation. At most one position per mint.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]*Position
	slPct     float64
	tpPct     float64
	store     Store
	logger    *zap.Logger

	now func() time.Time
}

// NewLedger creates a ledger with the given exit thresholds in percent.
func NewLedger(slPct, tpPct float64, store Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		positions: make(map[string]*Position),
		slPct:     slPct,
		tpPct:     tpPct,
		store:     store,
		logger:    logger.Named("ledger"),
		now:       time.Now,
	}
}

// Restore loads previously persisted positions from the store. Thresholds
// saved in the document take precedence over the constructor values, so a
// restart keeps the exits the open positions were created with.
func (l *Ledger) Restore() error {
	doc, err := l.store.Load()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if doc.StopLossPct > 0 {
		l.slPct = doc.StopLossPct
	}
	if doc.TakeProfitPct > 0 {
		l.tpPct = doc.TakeProfitPct
	}

	l.positions = make(map[string]*Position, len(doc.Positions))
	for i := range doc.Positions {
		pos := doc.Positions[i]
		l.positions[pos.Mint] = &pos
	}

	if len(l.positions) > 0 {
		l.logger.Info("Positions restored",
			zap.Int("count", len(l.positions)),
			zap.Float64("stop_loss_pct", l.slPct),
			zap.Float64("take_profit_pct", l.tpPct))
	}

	return nil
}

// Open records a new position for the mint, replacing any prior one, and
// persists the ledger.
func (l *Ledger) Open(mint, symbol string, amount, entryPrice, costBasis float64) *Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := &Position{
		Mint:       mint,
		Symbol:     symbol,
		EntryPrice: entryPrice,
		EntryTime:  l.now(),
		Amount:     amount,
		CostBasis:  costBasis,
		StopLoss:   entryPrice * (1 - l.slPct/100),
		TakeProfit: entryPrice * (1 + l.tpPct/100),
	}

	if _, existed := l.positions[mint]; existed {
		l.logger.Warn("Replacing existing position", zap.String("mint", mint))
	}
	l.positions[mint] = pos

	l.logger.Info("Position opened",
		zap.String("mint", mint),
		zap.String("symbol", symbol),
		zap.Float64("entry_price", entryPrice),
		zap.Float64("amount", amount),
		zap.Float64("cost_basis_sol", costBasis),
		zap.Float64("stop_loss", pos.StopLoss),
		zap.Float64("take_profit", pos.TakeProfit))

	l.saveLocked()

	snapshot := *pos
	return &snapshot
}

// UpdatePrice refreshes the current price of a position, persists the
// ledger, and reports whether an exit trigger fired. The stop-loss check
// runs before take-profit, so a misconfigured overlap resolves
// conservatively. The bool is false when no position exists for the mint.
func (l *Ledger) UpdatePrice(mint string, currentPrice float64) (ExitSignal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[mint]
	if !ok {
		return ExitSignal{}, false
	}

	pos.CurrentPrice = currentPrice
	pos.PriceKnown = true
	pos.PnlPercent = (currentPrice - pos.EntryPrice) / pos.EntryPrice * 100

	l.saveLocked()

	if currentPrice <= pos.StopLoss {
		return ExitSignal{ShouldSell: true, Reason: ReasonStopLoss}, true
	}
	if currentPrice >= pos.TakeProfit {
		return ExitSignal{ShouldSell: true, Reason: ReasonTakeProfit}, true
	}

	return ExitSignal{}, true
}

// Close removes the position, computes realized pnl against the recorded
// cost basis, and persists the ledger. The bool is false when no position
// exists for the mint.
func (l *Ledger) Close(mint string, exitPrice, proceeds float64) (*CloseResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[mint]
	if !ok {
		return nil, false
	}

	pnl := proceeds - pos.CostBasis
	result := &CloseResult{
		Mint:       mint,
		Symbol:     pos.Symbol,
		ExitPrice:  exitPrice,
		Pnl:        pnl,
		PnlPercent: pnl / pos.CostBasis * 100,
		HoldTime:   formatHoldTime(l.now().Sub(pos.EntryTime)),
	}

	delete(l.positions, mint)

	l.logger.Info("Position closed",
		zap.String("mint", mint),
		zap.String("symbol", result.Symbol),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("pnl_sol", result.Pnl),
		zap.Float64("pnl_percent", result.PnlPercent),
		zap.String("hold_time", result.HoldTime))

	l.saveLocked()

	return result, true
}

// Get returns a copy of the position for the mint, if any.
func (l *Ledger) Get(mint string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[mint]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Count returns the number of open positions.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Snapshot returns copies of all open positions, ordered by mint.
func (l *Ledger) Snapshot() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint < out[j].Mint })
	return out
}

// Save persists the current ledger state.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Save(l.documentLocked())
}

// saveLocked persists best-effort: a failed write is a warning, never a
// rollback of the in-memory state.
func (l *Ledger) saveLocked() {
	if err := l.store.Save(l.documentLocked()); err != nil {
		l.logger.Warn("Failed to persist ledger, in-memory state kept",
			zap.Error(err))
	}
}

func (l *Ledger) documentLocked() *Document {
	doc := &Document{
		Positions:     make([]Position, 0, len(l.positions)),
		StopLossPct:   l.slPct,
		TakeProfitPct: l.tpPct,
	}
	for _, pos := range l.positions {
		doc.Positions = append(doc.Positions, *pos)
	}
	sort.Slice(doc.Positions, func(i, j int) bool {
		return doc.Positions[i].Mint < doc.Positions[j].Mint
	})
	return doc
}
