// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dexmind/solana-agent/internal/events"
	"github.com/dexmind/solana-agent/internal/position"
	"github.com/dexmind/solana-agent/internal/safety"
	"github.com/dexmind/solana-agent/internal/swap"
)

const testMint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

type fakeGuard struct {
	tradable       safety.Verdict
	canTrade       safety.Verdict
	probes         int
	sizeChecks     []float64
	tradesRecorded int
	outcomes       []float64
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{
		tradable: safety.Verdict{Allowed: true},
		canTrade: safety.Verdict{Allowed: true},
	}
}

func (g *fakeGuard) CanTrade(amountSOL float64) safety.Verdict {
	g.sizeChecks = append(g.sizeChecks, amountSOL)
	return g.canTrade
}

func (g *fakeGuard) IsTradable(ctx context.Context, mint string) safety.Verdict {
	g.probes++
	return g.tradable
}

func (g *fakeGuard) RecordTrade() { g.tradesRecorded++ }

func (g *fakeGuard) RecordOutcome(pnl float64) { g.outcomes = append(g.outcomes, pnl) }

type fakeRouter struct {
	quoteErr    error
	execErr     error
	outAmount   uint64
	quoteCalls  int
	execCalls   int
	lastQuoteIn uint64
}

func (r *fakeRouter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*swap.QuoteResult, error) {
	r.quoteCalls++
	r.lastQuoteIn = amount
	if r.quoteErr != nil {
		return nil, r.quoteErr
	}
	return &swap.QuoteResult{
		InputMint:  inputMint,
		OutputMint: outputMint,
		InAmount:   amount,
		OutAmount:  r.outAmount,
		RouteCount: 1,
	}, nil
}

func (r *fakeRouter) Execute(ctx context.Context, quote *swap.QuoteResult) (*swap.SwapReceipt, error) {
	r.execCalls++
	if r.execErr != nil {
		return nil, r.execErr
	}
	return &swap.SwapReceipt{TxID: fmt.Sprintf("tx_%d", r.execCalls)}, nil
}

type memStore struct{}

func (memStore) Save(doc *position.Document) error { return nil }
func (memStore) Load() (*position.Document, error) {
	return &position.Document{}, nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) types() []events.EventType {
	var out []events.EventType
	for _, e := range b.published {
		out = append(out, e.Type())
	}
	return out
}

type fixture struct {
	engine *Engine
	guard  *fakeGuard
	router *fakeRouter
	ledger *position.Ledger
	bus    *recordingBus
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	guard := newFakeGuard()
	router := &fakeRouter{outAmount: 1_000_000}
	ledger := position.NewLedger(15, 50, memStore{}, zaptest.NewLogger(t))
	bus := &recordingBus{}
	return &fixture{
		engine: New(cfg, guard, ledger, router, bus, zaptest.NewLogger(t)),
		guard:  guard,
		router: router,
		ledger: ledger,
		bus:    bus,
	}
}

func buyIntent(amount float64) Intent {
	return Intent{Direction: DirectionBuy, Mint: testMint, Symbol: "TEST", Amount: amount}
}

func TestDecide_RejectsMalformedIntents(t *testing.T) {
	cases := []struct {
		name   string
		intent Intent
	}{
		{"missing mint", Intent{Direction: DirectionBuy, Amount: 0.1}},
		{"zero amount", Intent{Direction: DirectionBuy, Mint: testMint}},
		{"negative amount", Intent{Direction: DirectionBuy, Mint: testMint, Amount: -1}},
		{"unknown direction", Intent{Direction: "hold", Mint: testMint, Amount: 0.1}},
		{"sell without position", Intent{Direction: DirectionSell, Mint: testMint, Amount: 100}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			result := f.engine.Decide(context.Background(), tc.intent)

			assert.False(t, result.Success)
			assert.Equal(t, KindValidation, result.Kind)
			assert.Zero(t, f.guard.probes, "probe must not run for invalid intents")
			assert.Zero(t, f.router.quoteCalls)
		})
	}
}

func TestDecide_NotTradableStopsBeforeGate(t *testing.T) {
	f := newFixture(t, Config{})
	f.guard.tradable = safety.Verdict{Allowed: false, Reason: "no route found"}

	result := f.engine.Decide(context.Background(), buyIntent(0.1))

	assert.False(t, result.Success)
	assert.Equal(t, KindNotTradable, result.Kind)
	assert.Equal(t, "no route found", result.Reason)
	assert.Empty(t, f.guard.sizeChecks, "gate must not be consulted after a failed probe")
	assert.Zero(t, f.router.quoteCalls)
	assert.Zero(t, f.ledger.Count())
	assert.Zero(t, f.guard.tradesRecorded)
}

func TestDecide_PolicyDeniedStopsBeforeExecution(t *testing.T) {
	f := newFixture(t, Config{})
	f.guard.canTrade = safety.Verdict{Allowed: false, Reason: "cooldown active, 12s remaining"}

	result := f.engine.Decide(context.Background(), buyIntent(0.1))

	assert.False(t, result.Success)
	assert.Equal(t, KindPolicyDenied, result.Kind)
	assert.Equal(t, "cooldown active, 12s remaining", result.Reason)
	assert.Zero(t, f.router.quoteCalls)
	assert.Zero(t, f.ledger.Count())
	assert.Zero(t, f.guard.tradesRecorded)
}

func TestDecide_PositionCapBlocksBuysOnly(t *testing.T) {
	f := newFixture(t, Config{MaxPositions: 2})
	f.ledger.Open("mintA", "A", 100, 1.0, 0.1)
	f.ledger.Open("mintB", "B", 100, 1.0, 0.1)

	result := f.engine.Decide(context.Background(), buyIntent(0.1))
	assert.False(t, result.Success)
	assert.Equal(t, KindPolicyDenied, result.Kind)
	assert.Contains(t, result.Reason, "position limit reached")

	// Sells pass through the cap even when the book is full.
	f.router.outAmount = 150_000_000
	sell := f.engine.Decide(context.Background(), Intent{
		Direction: DirectionSell, Mint: "mintA", Amount: 100,
	})
	assert.True(t, sell.Success)
}

func TestDecide_ExecutionFailureLeavesStateUntouched(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*fakeRouter)
	}{
		{"quote error", func(r *fakeRouter) { r.quoteErr = errors.New("jupiter timeout") }},
		{"swap error", func(r *fakeRouter) { r.execErr = errors.New("transaction failed") }},
		{"zero output", func(r *fakeRouter) { r.outAmount = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			tc.mutate(f.router)

			result := f.engine.Decide(context.Background(), buyIntent(0.1))

			assert.False(t, result.Success)
			assert.Equal(t, KindExecutionFailed, result.Kind)
			assert.Zero(t, f.ledger.Count())
			assert.Zero(t, f.guard.tradesRecorded)
			assert.Empty(t, f.guard.outcomes)
		})
	}
}

func TestDecide_SuccessfulBuyOpensPosition(t *testing.T) {
	f := newFixture(t, Config{})
	f.router.outAmount = 2_000_000

	result := f.engine.Decide(context.Background(), buyIntent(0.2))

	require.True(t, result.Success)
	require.NotNil(t, result.Position)
	assert.Equal(t, "tx_1", result.TxID)
	assert.Equal(t, testMint, result.Position.Mint)
	assert.InDelta(t, 2_000_000, result.Position.Amount, 1e-9)
	assert.InDelta(t, 0.2/2_000_000, result.Position.EntryPrice, 1e-15)
	assert.InDelta(t, 0.2, result.Position.CostBasis, 1e-9)

	assert.Equal(t, 1, f.ledger.Count())
	assert.Equal(t, 1, f.guard.tradesRecorded)
	require.Len(t, f.guard.sizeChecks, 1)
	assert.InDelta(t, 0.2, f.guard.sizeChecks[0], 1e-9)

	assert.Equal(t,
		[]events.EventType{events.TradeExecuted, events.PositionOpened},
		f.bus.types())
}

func TestDecide_BuyRoundsLamports(t *testing.T) {
	f := newFixture(t, Config{})
	f.router.outAmount = 2_000_000

	// 0.29 * 1e9 is 289999999.99... in float64; truncation would lose a
	// lamport, rounding must not.
	result := f.engine.Decide(context.Background(), buyIntent(0.29))

	require.True(t, result.Success)
	assert.Equal(t, uint64(290_000_000), f.router.lastQuoteIn)
}

func TestDecide_SuccessfulSellClosesAndRecordsOutcome(t *testing.T) {
	f := newFixture(t, Config{})
	f.ledger.Open(testMint, "TEST", 1_000_000, 0.1/1_000_000, 0.1)

	// 0.15 SOL of proceeds against a 0.1 SOL cost basis.
	f.router.outAmount = 150_000_000

	result := f.engine.Decide(context.Background(), Intent{
		Direction: DirectionSell, Mint: testMint, Amount: 1_000_000,
	})

	require.True(t, result.Success)
	require.NotNil(t, result.Close)
	assert.Nil(t, result.Position)
	assert.InDelta(t, 0.05, result.Close.Pnl, 1e-9)
	assert.InDelta(t, 50, result.Close.PnlPercent, 1e-6)

	assert.Zero(t, f.ledger.Count())
	assert.Equal(t, 1, f.guard.tradesRecorded)
	require.Len(t, f.guard.outcomes, 1)
	assert.InDelta(t, 0.05, f.guard.outcomes[0], 1e-9)

	// Sell size is judged as zero notional; entry already passed the cap.
	require.Len(t, f.guard.sizeChecks, 1)
	assert.Zero(t, f.guard.sizeChecks[0])

	assert.Equal(t,
		[]events.EventType{events.TradeExecuted, events.PositionClosed},
		f.bus.types())
}

func TestDecide_DenialPublishesEvent(t *testing.T) {
	f := newFixture(t, Config{})
	f.guard.tradable = safety.Verdict{Allowed: false, Reason: "no route found"}

	f.engine.Decide(context.Background(), buyIntent(0.1))

	require.Len(t, f.bus.published, 1)
	denied, ok := f.bus.published[0].(events.TradeDeniedEvent)
	require.True(t, ok)
	assert.Equal(t, "no route found", denied.Reason)
}

func TestDecide_CancelledContextStopsEarly(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.engine.Decide(ctx, buyIntent(0.1))

	assert.False(t, result.Success)
	assert.Zero(t, f.router.quoteCalls)
	assert.Zero(t, f.ledger.Count())
}

func TestDecide_NilBusIsSafe(t *testing.T) {
	guard := newFakeGuard()
	router := &fakeRouter{outAmount: 1_000_000}
	ledger := position.NewLedger(15, 50, memStore{}, zaptest.NewLogger(t))
	engine := New(Config{}, guard, ledger, router, nil, zaptest.NewLogger(t))

	result := engine.Decide(context.Background(), buyIntent(0.1))
	assert.True(t, result.Success)
}
