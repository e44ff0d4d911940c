// internal/agent/runner_test.go
package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dexmind/solana-agent/internal/config"
	"github.com/dexmind/solana-agent/internal/engine"
	"github.com/dexmind/solana-agent/internal/events"
	"github.com/dexmind/solana-agent/internal/market"
	"github.com/dexmind/solana-agent/internal/position"
	"github.com/dexmind/solana-agent/internal/safety"
	"github.com/dexmind/solana-agent/internal/swap"
	"github.com/dexmind/solana-agent/internal/wallet"
)

const testMint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

type stubRouter struct {
	outAmount uint64
	quoteErr  error
}

func (r *stubRouter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*swap.QuoteResult, error) {
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

func (r *stubRouter) Execute(ctx context.Context, quote *swap.QuoteResult) (*swap.SwapReceipt, error) {
	return &swap.SwapReceipt{TxID: "tx_test"}, nil
}

type nullStore struct{}

func (nullStore) Save(doc *position.Document) error { return nil }
func (nullStore) Load() (*position.Document, error) { return &position.Document{}, nil }

func testConfig() *config.Config {
	return &config.Config{
		RPCURL:                 "https://test-rpc.local",
		DryRun:                 true,
		StopLossPct:            15,
		TakeProfitPct:          50,
		MaxPositions:           5,
		SlippageBps:            250,
		MaxTradeSizeSOL:        0.5,
		CooldownSeconds:        0,
		DailyLossLimitSOL:      1.0,
		ScanIntervalSeconds:    60,
		RefreshIntervalSeconds: 15,
	}
}

func newTestRunner(t *testing.T, router swap.Router) *Runner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := testConfig()

	w := wallet.Generate()
	gate := safety.NewGate(safety.Config{
		MaxTradeSizeSOL:   cfg.MaxTradeSizeSOL,
		DailyLossLimitSOL: cfg.DailyLossLimitSOL,
		ProbeLamports:     100_000,
		ProbeSlippageBps:  cfg.SlippageBps,
	}, w, router, logger)
	ledger := position.NewLedger(cfg.StopLossPct, cfg.TakeProfitPct, nullStore{}, logger)
	bus := events.NewBus(logger, 64)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	})

	eng := engine.New(engine.Config{
		MaxPositions: cfg.MaxPositions,
		SlippageBps:  cfg.SlippageBps,
	}, gate, ledger, router, bus, logger)

	return &Runner{
		cfg:        cfg,
		logger:     logger,
		wallet:     w,
		router:     router,
		gate:       gate,
		ledger:     ledger,
		engine:     eng,
		bus:        bus,
		shutdownCh: make(chan os.Signal, 1),
	}
}

func TestRefreshOnce_AutoSellOnStopLoss(t *testing.T) {
	// Position entered at 0.1 SOL for 1M units; a full-exit quote of
	// 0.08 SOL is below the 15% stop.
	router := &stubRouter{outAmount: 80_000_000}
	r := newTestRunner(t, router)
	r.ledger.Open(testMint, "TEST", 1_000_000, 0.1/1_000_000, 0.1)

	r.refreshOnce(context.Background())

	assert.Zero(t, r.ledger.Count(), "stop-loss must close the position")
	assert.InDelta(t, -0.02, r.gate.DailyPnl(), 1e-9)
}

func TestRefreshOnce_TakeProfitClosesPosition(t *testing.T) {
	// A 0.16 SOL exit quote is above the 50% take-profit level.
	router := &stubRouter{outAmount: 160_000_000}
	r := newTestRunner(t, router)
	r.ledger.Open(testMint, "TEST", 1_000_000, 0.1/1_000_000, 0.1)

	r.refreshOnce(context.Background())

	assert.Zero(t, r.ledger.Count())
	assert.InDelta(t, 0.06, r.gate.DailyPnl(), 1e-9)
}

func TestRefreshOnce_HoldsInsideBracket(t *testing.T) {
	router := &stubRouter{outAmount: 100_000_000}
	r := newTestRunner(t, router)
	r.ledger.Open(testMint, "TEST", 1_000_000, 0.1/1_000_000, 0.1)

	r.refreshOnce(context.Background())

	assert.Equal(t, 1, r.ledger.Count())
	assert.Zero(t, r.gate.DailyPnl())
}

func TestRefreshOnce_QuoteFailureKeepsPosition(t *testing.T) {
	router := &stubRouter{quoteErr: fmt.Errorf("rpc unavailable")}
	r := newTestRunner(t, router)
	r.ledger.Open(testMint, "TEST", 1_000_000, 0.1/1_000_000, 0.1)

	r.refreshOnce(context.Background())

	assert.Equal(t, 1, r.ledger.Count())
}

func TestScanOnce_PublishesScanEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [{
			"chainId": "solana",
			"baseToken": {"address": %q, "symbol": "TEST"},
			"priceNative": "0.0001",
			"priceUsd": "0.02",
			"txns": {"h24": {"buys": 650, "sells": 350}},
			"volume": {"h24": 250000},
			"priceChange": {"h24": 42.5},
			"liquidity": {"usd": 120000},
			"marketCap": 1200000,
			"pairCreatedAt": %d
		}]}`, testMint, time.Now().Add(-48*time.Hour).UnixMilli())
	}))
	defer server.Close()

	router := &stubRouter{outAmount: 1}
	r := newTestRunner(t, router)
	r.cfg.Watchlist = []string{testMint}
	r.market = market.NewService(market.ServiceConfig{
		BaseURL: server.URL,
		Retries: 1,
		Logger:  zaptest.NewLogger(t),
	})

	done := make(chan events.Event, 1)
	r.bus.SubscribeFunc(events.ScanCompleted, func(ctx context.Context, e events.Event) error {
		done <- e
		return nil
	})

	r.scanOnce(context.Background())

	select {
	case e := <-done:
		scan, ok := e.(events.ScanCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, 1, scan.Scanned)
	case <-time.After(2 * time.Second):
		t.Fatal("scan event was not published")
	}
}

func TestResolveWallet(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("dry run generates a key", func(t *testing.T) {
		cfg := testConfig()
		w, err := resolveWallet(cfg, logger)
		require.NoError(t, err)
		assert.True(t, w.Ready())
	})

	t.Run("live without key fails", func(t *testing.T) {
		cfg := testConfig()
		cfg.DryRun = false
		_, err := resolveWallet(cfg, logger)
		assert.Error(t, err)
	})
}
