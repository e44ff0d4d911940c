// internal/agent/runner.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dexmind/solana-agent/internal/config"
	"github.com/dexmind/solana-agent/internal/engine"
	"github.com/dexmind/solana-agent/internal/events"
	"github.com/dexmind/solana-agent/internal/journal"
	"github.com/dexmind/solana-agent/internal/market"
	"github.com/dexmind/solana-agent/internal/position"
	"github.com/dexmind/solana-agent/internal/safety"
	"github.com/dexmind/solana-agent/internal/scoring"
	"github.com/dexmind/solana-agent/internal/swap"
	"github.com/dexmind/solana-agent/internal/wallet"
)

const lamportsPerSol = 1_000_000_000

// Runner wires the market feed, scorer, safety gate, ledger and decision
// engine together and drives the scan/refresh loops.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	wallet  *wallet.Wallet
	market  *market.Service
	router  swap.Router
	gate    *safety.Gate
	ledger  *position.Ledger
	engine  *engine.Engine
	bus     *events.Bus
	journal *journal.Journal

	shutdownCh chan os.Signal
}

// NewRunner builds the full component stack from configuration.
func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	w, err := resolveWallet(cfg, logger)
	if err != nil {
		return nil, err
	}

	router, err := swap.NewJupiterRouter(swap.JupiterConfig{
		APIURL: cfg.JupiterAPIURL,
		RPCURL: cfg.RPCURL,
		DryRun: cfg.DryRun,
		Signer: w,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create swap router: %w", err)
	}

	marketSvc := market.NewService(market.ServiceConfig{
		BaseURL: cfg.DexScreenerURL,
		Retries: cfg.Retries,
		Logger:  logger,
	})

	gate := safety.NewGate(safety.Config{
		MaxTradeSizeSOL:   cfg.MaxTradeSizeSOL,
		Cooldown:          time.Duration(cfg.CooldownSeconds) * time.Second,
		DailyLossLimitSOL: cfg.DailyLossLimitSOL,
		ProbeLamports:     100_000,
		ProbeSlippageBps:  cfg.SlippageBps,
	}, w, router, logger)

	store := position.NewFileStore(cfg.LedgerPath, logger)
	ledger := position.NewLedger(cfg.StopLossPct, cfg.TakeProfitPct, store, logger)
	if err := ledger.Restore(); err != nil {
		return nil, fmt.Errorf("restore ledger: %w", err)
	}

	bus := events.NewBus(logger, 64)

	jrnl := journal.NewJournal(logger)
	jrnl.Attach(bus)

	eng := engine.New(engine.Config{
		MaxPositions: cfg.MaxPositions,
		SlippageBps:  cfg.SlippageBps,
	}, gate, ledger, router, bus, logger)

	return &Runner{
		cfg:        cfg,
		logger:     logger.Named("agent"),
		wallet:     w,
		market:     marketSvc,
		router:     router,
		gate:       gate,
		ledger:     ledger,
		engine:     eng,
		bus:        bus,
		journal:    jrnl,
		shutdownCh: make(chan os.Signal, 1),
	}, nil
}

func resolveWallet(cfg *config.Config, logger *zap.Logger) (*wallet.Wallet, error) {
	if cfg.PrivateKey != "" {
		return wallet.New(cfg.PrivateKey)
	}
	if cfg.WalletsFile != "" {
		wallets, err := wallet.LoadWallets(cfg.WalletsFile)
		if err != nil {
			return nil, fmt.Errorf("load wallets: %w", err)
		}
		for name, w := range wallets {
			logger.Info("Using wallet from file", zap.String("wallet", name))
			return w, nil
		}
	}
	if cfg.DryRun {
		logger.Info("No key configured, generating throwaway wallet for dry run")
		return wallet.Generate(), nil
	}
	return nil, fmt.Errorf("no wallet configured")
}

// Engine exposes the decision engine so an external reasoning layer can
// submit intents directly.
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Bus exposes the event bus for external subscribers.
func (r *Runner) Bus() *events.Bus {
	return r.bus
}

// Run starts the scan and refresh loops and blocks until a shutdown
// signal arrives or a loop fails.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("Signal received", zap.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
	}()

	r.logger.Info("Agent starting",
		zap.String("wallet", r.wallet.PublicKey.String()),
		zap.Bool("dry_run", r.cfg.DryRun),
		zap.Int("watchlist", len(r.cfg.Watchlist)),
		zap.Int("open_positions", r.ledger.Count()))

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return r.scanLoop(gCtx)
	})

	g.Go(func() error {
		return r.refreshLoop(gCtx)
	})

	err := g.Wait()
	r.shutdown()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// shutdown flushes state before exit.
func (r *Runner) shutdown() {
	r.logger.Info("Agent shutting down")

	if err := r.ledger.Save(); err != nil {
		r.logger.Warn("Final ledger save failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.bus.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("Event bus shutdown incomplete", zap.Error(err))
	}

	if r.journal != nil && r.journal.Len() > 0 {
		exporter := journal.NewExporter(r.logger)
		if _, err := exporter.Export(r.journal.Trades(), journal.ExportOptions{
			Format:    journal.FormatCSV,
			OutputDir: filepath.Dir(r.cfg.LedgerPath),
		}); err != nil {
			r.logger.Warn("Trade export failed", zap.Error(err))
		}
	}
}

// scanLoop periodically scores the watchlist and logs the results. The
// reasoning layer consumes these to form trade intents.
func (r *Runner) scanLoop(ctx context.Context) error {
	if len(r.cfg.Watchlist) == 0 {
		r.logger.Info("Watchlist empty, scan loop idle")
		<-ctx.Done()
		return ctx.Err()
	}

	interval := time.Duration(r.cfg.ScanIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.scanOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.scanOnce(ctx)
		}
	}
}

func (r *Runner) scanOnce(ctx context.Context) {
	start := time.Now()
	accepted := 0

	for _, mint := range r.cfg.Watchlist {
		stats, err := r.market.GetStats(ctx, mint)
		if err != nil {
			r.logger.Warn("Scan skipped token",
				zap.String("mint", mint),
				zap.Error(err))
			continue
		}

		candidate := stats.Candidate()
		score, flags := scoring.Score(candidate)

		fields := []zap.Field{
			zap.String("mint", mint),
			zap.String("symbol", stats.Symbol),
			zap.Int("score", score),
			zap.Float64("liquidity_usd", stats.LiquidityUSD),
			zap.Float64("volume_24h_usd", stats.Volume24hUSD),
			zap.Bool("degraded", stats.Degraded),
		}
		if len(flags) > 0 {
			fields = append(fields, zap.Any("flags", flags))
		}
		r.logger.Info("Candidate scored", fields...)

		if score >= 70 && len(flags) == 0 {
			accepted++
		}
	}

	_ = r.bus.Publish(events.ScanCompletedEvent{
		BaseEvent: events.BaseEvent{EventType: events.ScanCompleted, EventTime: time.Now()},
		Scanned:   len(r.cfg.Watchlist),
		Accepted:  accepted,
		Duration:  time.Since(start),
	})
}

// refreshLoop reprices open positions and fires automatic exits when a
// stop level is crossed.
func (r *Runner) refreshLoop(ctx context.Context) error {
	interval := time.Duration(r.cfg.RefreshIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

func (r *Runner) refreshOnce(ctx context.Context) {
	for _, pos := range r.ledger.Snapshot() {
		price, err := r.currentPrice(ctx, pos)
		if err != nil {
			r.logger.Warn("Price refresh failed",
				zap.String("mint", pos.Mint),
				zap.Error(err))
			continue
		}

		exit, ok := r.ledger.UpdatePrice(pos.Mint, price)
		if !ok || !exit.ShouldSell {
			continue
		}

		r.logger.Info("Exit triggered",
			zap.String("mint", pos.Mint),
			zap.String("symbol", pos.Symbol),
			zap.String("reason", string(exit.Reason)),
			zap.Float64("price", price))

		_ = r.bus.Publish(events.ExitTriggeredEvent{
			BaseEvent:    events.BaseEvent{EventType: events.ExitTriggered, EventTime: time.Now()},
			Mint:         pos.Mint,
			Symbol:       pos.Symbol,
			Reason:       string(exit.Reason),
			CurrentPrice: price,
		})

		result := r.engine.Decide(ctx, engine.Intent{
			Direction: engine.DirectionSell,
			Mint:      pos.Mint,
			Symbol:    pos.Symbol,
			Amount:    pos.Amount,
			Rationale: fmt.Sprintf("automatic exit: %s", exit.Reason),
		})
		if !result.Success {
			r.logger.Warn("Automatic exit not executed",
				zap.String("mint", pos.Mint),
				zap.String("kind", string(result.Kind)),
				zap.String("reason", result.Reason))
		}
	}
}

// currentPrice values a position by quoting a full exit, so the price is
// in the same SOL-per-unit terms the entry was recorded in.
func (r *Runner) currentPrice(ctx context.Context, pos position.Position) (float64, error) {
	if pos.Amount <= 0 {
		return 0, fmt.Errorf("position has no amount")
	}

	quote, err := r.router.Quote(ctx, pos.Mint, swap.WrappedSolMint, uint64(pos.Amount), r.cfg.SlippageBps)
	if err != nil {
		return 0, err
	}
	if quote.OutAmount == 0 {
		return 0, fmt.Errorf("empty quote for %s", pos.Mint)
	}

	proceedsSOL := float64(quote.OutAmount) / lamportsPerSol
	return proceedsSOL / pos.Amount, nil
}
