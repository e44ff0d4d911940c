// internal/safety/gate.go
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dexmind/solana-agent/internal/swap"
)

// Verdict is the outcome of a safety check.
type Verdict struct {
	Allowed bool
	Reason  string
}

func allow() Verdict {
	return Verdict{Allowed: true}
}

func deny(format string, args ...any) Verdict {
	return Verdict{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// KeyHolder reports whether a signing key is available.
type KeyHolder interface {
	Ready() bool
}

// Config holds the trading safety limits.
type Config struct {
	MaxTradeSizeSOL   float64       // hard cap per trade
	Cooldown          time.Duration // minimum interval between executions
	DailyLossLimitSOL float64       // max loss inside the rolling 24h window
	ProbeLamports     uint64        // quote size used for tradability probes
	ProbeSlippageBps  int
}

// DefaultConfig returns conservative safety limits.
func DefaultConfig() Config {
	return Config{
		MaxTradeSizeSOL:   0.5,
		Cooldown:          30 * time.Second,
		DailyLossLimitSOL: 1.0,
		ProbeLamports:     100_000, // 0.0001 SOL
		ProbeSlippageBps:  250,
	}
}

// Gate enforces trading safety policy: per-trade size, cooldown between
// trades, a rolling 24h loss cap, and tradability probing.
type Gate struct {
	mu     sync.Mutex
	config Config
	keys   KeyHolder
	router swap.Router
	logger *zap.Logger

	lastTradeTime time.Time
	dailyPnl      float64
	windowStart   time.Time

	now func() time.Time
}

// NewGate creates a safety gate.
func NewGate(config Config, keys KeyHolder, router swap.Router, logger *zap.Logger) *Gate {
	g := &Gate{
		config: config,
		keys:   keys,
		router: router,
		logger: logger.Named("safety"),
		now:    time.Now,
	}
	g.windowStart = g.now()
	return g
}

// CanTrade checks whether a trade of the given SOL-equivalent size is
// allowed right now. Checks run in a fixed order and short-circuit on the
// first violation, so the returned reason is deterministic.
func (g *Gate) CanTrade(amount float64) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if g.keys == nil || !g.keys.Ready() {
		return deny("wallet not ready")
	}

	if amount > g.config.MaxTradeSizeSOL {
		return deny("trade size %.4f SOL exceeds limit %.4f SOL", amount, g.config.MaxTradeSizeSOL)
	}

	if elapsed := now.Sub(g.lastTradeTime); elapsed < g.config.Cooldown {
		remaining := g.config.Cooldown - elapsed
		return deny("cooldown active, %.0fs remaining", remaining.Seconds())
	}

	g.rollWindowLocked(now)
	if g.dailyPnl < -g.config.DailyLossLimitSOL {
		return deny("daily loss limit reached (pnl %.4f SOL, limit %.4f SOL)",
			g.dailyPnl, g.config.DailyLossLimitSOL)
	}

	return allow()
}

// RecordTrade marks a successful execution for cooldown tracking.
func (g *Gate) RecordTrade() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastTradeTime = g.now()
}

// RecordOutcome adds a realized pnl to the rolling daily total. The window
// itself is only rolled lazily on the next CanTrade call.
func (g *Gate) RecordOutcome(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dailyPnl += pnl
	g.logger.Info("Trade outcome recorded",
		zap.Float64("pnl_sol", pnl),
		zap.Float64("daily_pnl_sol", g.dailyPnl))
}

// DailyPnl returns the rolling-window pnl accumulated so far.
func (g *Gate) DailyPnl() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnl
}

// IsTradable issues one probe quote through the router and reports whether
// an executable route exists for the mint. Network failures are reported as
// not tradable with a diagnostic reason, never as an error.
func (g *Gate) IsTradable(ctx context.Context, mint string) Verdict {
	quote, err := g.router.Quote(ctx, swap.WrappedSolMint, mint,
		g.config.ProbeLamports, g.config.ProbeSlippageBps)
	if err != nil {
		g.logger.Debug("Tradability probe failed",
			zap.String("mint", mint),
			zap.Error(err))
		return deny("probe quote failed: %v", err)
	}

	if quote.RouteCount == 0 {
		return deny("no route found")
	}

	return allow()
}

// rollWindowLocked resets the daily pnl once the 24h rolling window is
// stale. Rolling, not calendar-day aligned.
func (g *Gate) rollWindowLocked(now time.Time) {
	if now.Sub(g.windowStart) > 24*time.Hour {
		g.logger.Debug("Rolling daily pnl window",
			zap.Float64("previous_daily_pnl", g.dailyPnl),
			zap.Time("previous_window_start", g.windowStart))
		g.dailyPnl = 0
		g.windowStart = now
	}
}
