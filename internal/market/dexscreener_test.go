// internal/market/dexscreener_test.go
package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dexmind/solana-agent/internal/scoring"
)

const testMint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func pairJSON(chainID string, liquidity float64, priceUSD string) string {
	return fmt.Sprintf(`{
		"chainId": %q,
		"dexId": "raydium",
		"pairAddress": "pair1",
		"baseToken": {"address": %q, "symbol": "TEST"},
		"quoteToken": {"address": "So11111111111111111111111111111111111111112", "symbol": "SOL"},
		"priceNative": "0.0001",
		"priceUsd": %q,
		"txns": {"h24": {"buys": 650, "sells": 350}},
		"volume": {"h24": 250000},
		"priceChange": {"h24": 42.5},
		"liquidity": {"usd": %f, "base": 1000, "quote": 500},
		"marketCap": 1200000,
		"fdv": 1500000,
		"pairCreatedAt": %d,
		"info": {
			"websites": [{"url": "https://test.example"}],
			"socials": [{"type": "twitter"}, {"type": "telegram"}]
		}
	}`, chainID, testMint, priceUSD, liquidity, time.Now().Add(-48*time.Hour).UnixMilli())
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc := NewService(ServiceConfig{
		BaseURL: server.URL,
		Retries: 1,
		Logger:  zaptest.NewLogger(t),
	})
	return svc, server
}

func TestGetStats_ParsesMostLiquidSolanaPair(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/"+testMint, r.URL.Path)
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [%s, %s, %s]}`,
			pairJSON("solana", 50000, "0.015"),
			pairJSON("ethereum", 900000, "0.099"),
			pairJSON("solana", 120000, "0.02"))
	})

	stats, err := svc.GetStats(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, testMint, stats.Mint)
	assert.Equal(t, "TEST", stats.Symbol)
	assert.InDelta(t, 0.02, stats.PriceUSD, 1e-9)
	assert.InDelta(t, 0.0001, stats.PriceNative, 1e-9)
	assert.InDelta(t, 120000, stats.LiquidityUSD, 1e-9)
	assert.InDelta(t, 250000, stats.Volume24hUSD, 1e-9)
	assert.InDelta(t, 42.5, stats.PriceChange24hPct, 1e-9)
	assert.InDelta(t, 1200000, stats.MarketCapUSD, 1e-9)
	assert.Equal(t, 650, stats.Buys24h)
	assert.Equal(t, 350, stats.Sells24h)
	assert.True(t, stats.HasTwitter)
	assert.True(t, stats.HasTelegram)
	assert.True(t, stats.HasWebsite)
	assert.False(t, stats.Degraded)
	assert.False(t, stats.PairCreatedAt.IsZero())
}

func TestGetStats_NoPairsIsUnavailable(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"schemaVersion": "1.0.0", "pairs": []}`)
	})

	_, err := svc.GetStats(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestGetStats_NonSolanaPairsOnlyIsUnavailable(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [%s]}`,
			pairJSON("ethereum", 900000, "0.099"))
	})

	_, err := svc.GetStats(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestGetStats_BadPriceIsUnavailable(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [%s]}`,
			pairJSON("solana", 120000, "not-a-number"))
	})

	_, err := svc.GetStats(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestGetStats_DegradedCacheFallback(t *testing.T) {
	var fail atomic.Bool
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"schemaVersion": "1.0.0", "pairs": [%s]}`,
			pairJSON("solana", 120000, "0.02"))
	})

	ctx := context.Background()

	live, err := svc.GetStats(ctx, testMint)
	require.NoError(t, err)
	assert.False(t, live.Degraded)

	fail.Store(true)

	cached, err := svc.GetStats(ctx, testMint)
	require.NoError(t, err)
	assert.True(t, cached.Degraded)
	assert.InDelta(t, live.PriceUSD, cached.PriceUSD, 1e-9)
	assert.Equal(t, live.FetchedAt, cached.FetchedAt)
}

func TestGetStats_ServerErrorWithoutCacheFails(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := svc.GetStats(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestTokenStats_Candidate(t *testing.T) {
	stats := &TokenStats{
		Mint:              testMint,
		Symbol:            "TEST",
		LiquidityUSD:      120000,
		Volume24hUSD:      250000,
		PriceChange24hPct: 42.5,
		MarketCapUSD:      1200000,
		Buys24h:           650,
		Sells24h:          350,
		PairCreatedAt:     time.Now().Add(-72 * time.Hour),
		HasTwitter:        true,
		HasWebsite:        true,
	}

	c := stats.Candidate()
	assert.Equal(t, testMint, c.Mint)
	assert.Equal(t, "TEST", c.Symbol)
	assert.InDelta(t, 72, c.AgeHours, 0.1)
	assert.True(t, c.HasTwitter)
	assert.False(t, c.HasTelegram)
	assert.True(t, c.HasWebsite)
}

func TestTokenStats_CandidateUnknownAge(t *testing.T) {
	stats := &TokenStats{Mint: testMint}

	c := stats.Candidate()
	assert.Negative(t, c.AgeHours)

	_, flags := scoring.Score(c)
	assert.False(t, scoring.HasFlag(flags, scoring.FlagJustLaunched))
}
