// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dexmind/solana-agent/internal/events"
	"github.com/dexmind/solana-agent/internal/position"
	"github.com/dexmind/solana-agent/internal/safety"
	"github.com/dexmind/solana-agent/internal/swap"
)

const lamportsPerSol = 1_000_000_000

// Direction is the side of a trade intent.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Intent is a request to trade one token.
type Intent struct {
	Direction Direction
	Mint      string
	Symbol    string
	// Amount is SOL to spend for a buy, raw token units to sell for a sell.
	Amount    float64
	Rationale string
}

// Kind classifies a failed decision.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotTradable     Kind = "not_tradable"
	KindPolicyDenied    Kind = "policy_denied"
	KindExecutionFailed Kind = "execution_failed"
)

// Result is the outcome of one decision. Exactly one of Position or Close
// is set on success, depending on the direction.
type Result struct {
	Success  bool
	Kind     Kind
	Reason   string
	TxID     string
	Position *position.Position
	Close    *position.CloseResult
}

// Guard is the safety policy consulted before execution.
type Guard interface {
	CanTrade(amountSOL float64) safety.Verdict
	IsTradable(ctx context.Context, mint string) safety.Verdict
	RecordTrade()
	RecordOutcome(pnl float64)
}

// Book is the position ledger the engine writes trade results into.
type Book interface {
	Open(mint, symbol string, amount, entryPrice, costBasis float64) *position.Position
	Close(mint string, exitPrice, proceeds float64) (*position.CloseResult, bool)
	Get(mint string) (position.Position, bool)
	Count() int
}

// Publisher delivers lifecycle events to whoever is listening.
type Publisher interface {
	Publish(event events.Event) error
}

// Config configures the decision engine.
type Config struct {
	MaxPositions int
	SlippageBps  int
}

// Engine turns trade intents into executed trades, with policy checks
// applied in a fixed order before any state is touched.
type Engine struct {
	cfg    Config
	guard  Guard
	book   Book
	router swap.Router
	bus    Publisher
	logger *zap.Logger
}

// New creates a decision engine.
func New(cfg Config, guard Guard, book Book, router swap.Router, bus Publisher, logger *zap.Logger) *Engine {
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 5
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = 250
	}
	return &Engine{
		cfg:    cfg,
		guard:  guard,
		book:   book,
		router: router,
		bus:    bus,
		logger: logger.Named("engine"),
	}
}

// Decide runs one intent through validation, the tradability probe, the
// safety gate, the position cap, and execution. Ledger and gate state are
// only touched after a successful swap.
func (e *Engine) Decide(ctx context.Context, intent Intent) Result {
	if result, ok := e.validate(intent); !ok {
		return e.denied(intent, result)
	}

	if err := ctx.Err(); err != nil {
		return e.denied(intent, failure(KindValidation, fmt.Sprintf("decision cancelled: %v", err)))
	}

	if verdict := e.guard.IsTradable(ctx, intent.Mint); !verdict.Allowed {
		return e.denied(intent, failure(KindNotTradable, verdict.Reason))
	}

	if verdict := e.guard.CanTrade(e.notionalSOL(intent)); !verdict.Allowed {
		return e.denied(intent, failure(KindPolicyDenied, verdict.Reason))
	}

	if intent.Direction == DirectionBuy && e.book.Count() >= e.cfg.MaxPositions {
		return e.denied(intent, failure(KindPolicyDenied,
			fmt.Sprintf("position limit reached (%d open, max %d)", e.book.Count(), e.cfg.MaxPositions)))
	}

	switch intent.Direction {
	case DirectionBuy:
		return e.executeBuy(ctx, intent)
	default:
		return e.executeSell(ctx, intent)
	}
}

// validate applies the malformed-intent checks that need no I/O.
func (e *Engine) validate(intent Intent) (Result, bool) {
	if intent.Mint == "" {
		return failure(KindValidation, "intent missing token mint"), false
	}
	if intent.Amount <= 0 {
		return failure(KindValidation, fmt.Sprintf("intent amount must be positive, got %v", intent.Amount)), false
	}
	if intent.Direction != DirectionBuy && intent.Direction != DirectionSell {
		return failure(KindValidation, fmt.Sprintf("unknown direction %q", intent.Direction)), false
	}
	if intent.Direction == DirectionSell {
		if _, ok := e.book.Get(intent.Mint); !ok {
			return failure(KindValidation, fmt.Sprintf("no open position for %s", intent.Mint)), false
		}
	}
	return Result{}, true
}

// notionalSOL is the SOL size the safety gate should judge. A sell's size
// is bounded by the position opened earlier, which already passed the
// size check, so only a buy carries a notional here.
func (e *Engine) notionalSOL(intent Intent) float64 {
	if intent.Direction == DirectionBuy {
		return intent.Amount
	}
	return 0
}

func (e *Engine) executeBuy(ctx context.Context, intent Intent) Result {
	lamports := uint64(math.Round(intent.Amount * lamportsPerSol))

	quote, err := e.router.Quote(ctx, swap.WrappedSolMint, intent.Mint, lamports, e.cfg.SlippageBps)
	if err != nil {
		return e.failed(intent, fmt.Sprintf("quote failed: %v", err))
	}
	if quote.OutAmount == 0 {
		return e.failed(intent, "quote returned zero output")
	}

	receipt, err := e.router.Execute(ctx, quote)
	if err != nil {
		return e.failed(intent, fmt.Sprintf("swap failed: %v", err))
	}

	tokens := float64(quote.OutAmount)
	entryPrice := intent.Amount / tokens

	pos := e.book.Open(intent.Mint, intent.Symbol, tokens, entryPrice, intent.Amount)
	e.guard.RecordTrade()

	e.logger.Info("Buy executed",
		zap.String("mint", intent.Mint),
		zap.String("symbol", intent.Symbol),
		zap.Float64("amount_sol", intent.Amount),
		zap.Float64("entry_price", entryPrice),
		zap.String("tx_id", receipt.TxID))

	e.publish(events.TradeExecutedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TradeExecuted, EventTime: time.Now()},
		Mint:      intent.Mint,
		Symbol:    intent.Symbol,
		Side:      string(DirectionBuy),
		AmountSOL: intent.Amount,
		TxID:      receipt.TxID,
	})
	e.publish(events.PositionOpenedEvent{
		BaseEvent:  events.BaseEvent{EventType: events.PositionOpened, EventTime: time.Now()},
		Mint:       pos.Mint,
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		Amount:     pos.Amount,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
	})

	return Result{Success: true, TxID: receipt.TxID, Position: pos}
}

func (e *Engine) executeSell(ctx context.Context, intent Intent) Result {
	quote, err := e.router.Quote(ctx, intent.Mint, swap.WrappedSolMint, uint64(intent.Amount), e.cfg.SlippageBps)
	if err != nil {
		return e.failed(intent, fmt.Sprintf("quote failed: %v", err))
	}
	if quote.OutAmount == 0 {
		return e.failed(intent, "quote returned zero output")
	}

	receipt, err := e.router.Execute(ctx, quote)
	if err != nil {
		return e.failed(intent, fmt.Sprintf("swap failed: %v", err))
	}

	proceedsSOL := float64(quote.OutAmount) / lamportsPerSol
	exitPrice := proceedsSOL / intent.Amount

	closed, ok := e.book.Close(intent.Mint, exitPrice, proceedsSOL)
	if !ok {
		// Position disappeared between validation and settlement. The swap
		// already happened, so report it with an empty close result.
		e.logger.Warn("Sell settled without a ledger position",
			zap.String("mint", intent.Mint),
			zap.String("tx_id", receipt.TxID))
		e.guard.RecordTrade()
		return Result{Success: true, TxID: receipt.TxID}
	}

	e.guard.RecordTrade()
	e.guard.RecordOutcome(closed.Pnl)

	e.logger.Info("Sell executed",
		zap.String("mint", intent.Mint),
		zap.String("symbol", closed.Symbol),
		zap.Float64("proceeds_sol", proceedsSOL),
		zap.Float64("pnl", closed.Pnl),
		zap.Float64("pnl_percent", closed.PnlPercent),
		zap.String("hold_time", closed.HoldTime),
		zap.String("tx_id", receipt.TxID))

	e.publish(events.TradeExecutedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TradeExecuted, EventTime: time.Now()},
		Mint:      intent.Mint,
		Symbol:    closed.Symbol,
		Side:      string(DirectionSell),
		AmountSOL: proceedsSOL,
		TxID:      receipt.TxID,
	})
	e.publish(events.PositionClosedEvent{
		BaseEvent:  events.BaseEvent{EventType: events.PositionClosed, EventTime: time.Now()},
		Mint:       closed.Mint,
		Symbol:     closed.Symbol,
		ExitPrice:  closed.ExitPrice,
		Proceeds:   proceedsSOL,
		Pnl:        closed.Pnl,
		PnlPercent: closed.PnlPercent,
		HoldTime:   closed.HoldTime,
	})

	return Result{Success: true, TxID: receipt.TxID, Close: closed}
}

// denied logs and publishes a pre-execution rejection. Denials are the
// steady state of a cautious agent, so they log at Info.
func (e *Engine) denied(intent Intent, result Result) Result {
	e.logger.Info("Trade denied",
		zap.String("mint", intent.Mint),
		zap.String("direction", string(intent.Direction)),
		zap.String("kind", string(result.Kind)),
		zap.String("reason", result.Reason))

	e.publish(events.TradeDeniedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TradeDenied, EventTime: time.Now()},
		Mint:      intent.Mint,
		Symbol:    intent.Symbol,
		Side:      string(intent.Direction),
		Reason:    result.Reason,
	})
	return result
}

// failed reports an execution error. Nothing was recorded in the ledger
// or the gate.
func (e *Engine) failed(intent Intent, reason string) Result {
	e.logger.Error("Trade execution failed",
		zap.String("mint", intent.Mint),
		zap.String("direction", string(intent.Direction)),
		zap.String("reason", reason))

	e.publish(events.TradeFailedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TradeFailed, EventTime: time.Now()},
		Mint:      intent.Mint,
		Symbol:    intent.Symbol,
		Side:      string(intent.Direction),
		Error:     fmt.Errorf("%s", reason),
	})
	return failure(KindExecutionFailed, reason)
}

func (e *Engine) publish(event events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(event); err != nil {
		e.logger.Debug("Event publish failed", zap.Error(err))
	}
}

func failure(kind Kind, reason string) Result {
	return Result{Kind: kind, Reason: reason}
}
