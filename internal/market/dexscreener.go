// internal/market/dexscreener.go
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/dexmind/solana-agent/internal/scoring"
)

const (
	defaultBaseURL = "https://api.dexscreener.com/latest/dex"
	rateLimit      = 300 // requests per minute
	solanaChain    = "solana"
)

// ErrDataUnavailable marks a provider response that could not be parsed
// into usable stats. It is distinct from "legitimately bad numbers": a
// provider outage must never masquerade as a zero-liquidity token.
var ErrDataUnavailable = errors.New("market data unavailable")

// TokenStats is the validated market snapshot for one token.
type TokenStats struct {
	Mint              string
	Symbol            string
	PriceUSD          float64
	PriceNative       float64
	LiquidityUSD      float64
	Volume24hUSD      float64
	PriceChange24hPct float64
	MarketCapUSD      float64
	Buys24h           int
	Sells24h          int
	PairCreatedAt     time.Time
	HasTwitter        bool
	HasTelegram       bool
	HasWebsite        bool

	// Degraded is true when the snapshot was served from the stale cache
	// because the provider failed. Callers can tell fallback data from
	// live data instead of guessing from the numbers.
	Degraded  bool
	FetchedAt time.Time
}

// Candidate converts the stats into a scoring candidate. When the provider
// omitted the pair creation time the age is unknown, not zero, so it is
// carried as a negative sentinel and never reads as freshly launched.
func (ts *TokenStats) Candidate() scoring.Candidate {
	ageHours := -1.0
	if !ts.PairCreatedAt.IsZero() {
		ageHours = time.Since(ts.PairCreatedAt).Hours()
	}

	return scoring.Candidate{
		Mint:              ts.Mint,
		Symbol:            ts.Symbol,
		LiquidityUSD:      ts.LiquidityUSD,
		Volume24hUSD:      ts.Volume24hUSD,
		PriceChange24hPct: ts.PriceChange24hPct,
		MarketCapUSD:      ts.MarketCapUSD,
		Buys24h:           ts.Buys24h,
		Sells24h:          ts.Sells24h,
		AgeHours:          ageHours,
		HasTwitter:        ts.HasTwitter,
		HasTelegram:       ts.HasTelegram,
		HasWebsite:        ts.HasWebsite,
	}
}

// Wire types for the DexScreener response.
type pairsResponse struct {
	SchemaVersion string     `json:"schemaVersion"`
	Pairs         []pairInfo `json:"pairs"`
}

type pairInfo struct {
	ChainID       string        `json:"chainId"`
	DexID         string        `json:"dexId"`
	PairAddress   string        `json:"pairAddress"`
	BaseToken     tokenInfo     `json:"baseToken"`
	QuoteToken    tokenInfo     `json:"quoteToken"`
	PriceNative   string        `json:"priceNative"`
	PriceUSD      string        `json:"priceUsd"`
	Txns          txnWindows    `json:"txns"`
	Volume        volumeWindows `json:"volume"`
	PriceChange   changeWindows `json:"priceChange"`
	Liquidity     liquidityInfo `json:"liquidity"`
	MarketCap     float64       `json:"marketCap"`
	FDV           float64       `json:"fdv"`
	PairCreatedAt int64         `json:"pairCreatedAt"` // unix millis
	Info          *pairMeta     `json:"info"`
}

type tokenInfo struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type txnWindows struct {
	H24 buysSells `json:"h24"`
}

type buysSells struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type volumeWindows struct {
	H24 float64 `json:"h24"`
}

type changeWindows struct {
	H24 float64 `json:"h24"`
}

type liquidityInfo struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

type pairMeta struct {
	Websites []struct {
		URL string `json:"url"`
	} `json:"websites"`
	Socials []struct {
		Type string `json:"type"`
	} `json:"socials"`
}

// Service fetches token stats from the DexScreener API.
type Service struct {
	baseURL     string
	client      *http.Client
	logger      *zap.Logger
	rateLimiter *time.Ticker
	maxTries    uint

	mu    sync.Mutex
	cache map[string]*TokenStats
}

// ServiceConfig configures the market data service.
type ServiceConfig struct {
	BaseURL string // empty means the public DexScreener endpoint
	Retries int
	Logger  *zap.Logger
}

// NewService creates a DexScreener-backed market data service.
func NewService(cfg ServiceConfig) *Service {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxTries := uint(cfg.Retries)
	if maxTries == 0 {
		maxTries = 3
	}

	return &Service{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      cfg.Logger.Named("dexscreener"),
		rateLimiter: time.NewTicker(time.Minute / rateLimit),
		maxTries:    maxTries,
		cache:       make(map[string]*TokenStats),
	}
}

// GetStats returns validated stats for a token, picking the most liquid
// Solana pair. On provider failure a cached snapshot is returned with the
// Degraded tag set; with no cache the call fails with ErrDataUnavailable.
func (s *Service) GetStats(ctx context.Context, mint string) (*TokenStats, error) {
	stats, err := s.fetchStats(ctx, mint)
	if err != nil {
		if cached := s.cachedStats(mint); cached != nil {
			s.logger.Warn("Serving degraded market data from cache",
				zap.String("mint", mint),
				zap.Time("fetched_at", cached.FetchedAt),
				zap.Error(err))
			return cached, nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.cache[mint] = stats
	s.mu.Unlock()

	snapshot := *stats
	return &snapshot, nil
}

// fetchStats performs the live request and strict parse.
func (s *Service) fetchStats(ctx context.Context, mint string) (*TokenStats, error) {
	url := fmt.Sprintf("%s/tokens/%s", s.baseURL, mint)

	response, err := s.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	// Pick the Solana pair with the deepest liquidity.
	var best *pairInfo
	for i := range response.Pairs {
		pair := &response.Pairs[i]
		if pair.ChainID != solanaChain {
			continue
		}
		if best == nil || pair.Liquidity.USD > best.Liquidity.USD {
			best = pair
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no solana pair for token %s", ErrDataUnavailable, mint)
	}

	return s.parsePair(mint, best)
}

// parsePair validates the wire pair into TokenStats. An unparsable price
// is a provider fault, not a zero.
func (s *Service) parsePair(mint string, pair *pairInfo) (*TokenStats, error) {
	priceUSD, err := strconv.ParseFloat(pair.PriceUSD, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad priceUsd %q", ErrDataUnavailable, pair.PriceUSD)
	}

	priceNative, err := strconv.ParseFloat(pair.PriceNative, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad priceNative %q", ErrDataUnavailable, pair.PriceNative)
	}

	marketCap := pair.MarketCap
	if marketCap == 0 {
		marketCap = pair.FDV
	}

	stats := &TokenStats{
		Mint:              mint,
		Symbol:            pair.BaseToken.Symbol,
		PriceUSD:          priceUSD,
		PriceNative:       priceNative,
		LiquidityUSD:      pair.Liquidity.USD,
		Volume24hUSD:      pair.Volume.H24,
		PriceChange24hPct: pair.PriceChange.H24,
		MarketCapUSD:      marketCap,
		Buys24h:           pair.Txns.H24.Buys,
		Sells24h:          pair.Txns.H24.Sells,
		FetchedAt:         time.Now(),
	}

	if pair.PairCreatedAt > 0 {
		stats.PairCreatedAt = time.UnixMilli(pair.PairCreatedAt)
	}

	if pair.Info != nil {
		stats.HasWebsite = len(pair.Info.Websites) > 0
		for _, social := range pair.Info.Socials {
			switch strings.ToLower(social.Type) {
			case "twitter":
				stats.HasTwitter = true
			case "telegram":
				stats.HasTelegram = true
			}
		}
	}

	return stats, nil
}

// cachedStats returns a degraded copy of the last good snapshot, if any.
func (s *Service) cachedStats(mint string) *TokenStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.cache[mint]
	if !ok {
		return nil
	}
	snapshot := *cached
	snapshot.Degraded = true
	return &snapshot
}

// doRequest performs one rate-limited GET with retries.
func (s *Service) doRequest(ctx context.Context, url string) (*pairsResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.rateLimiter.C:
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = 200 * time.Millisecond
	backoffPolicy.MaxInterval = 2 * time.Second

	notify := func(err error, duration time.Duration) {
		s.logger.Debug("Retrying market data request",
			zap.Error(err),
			zap.Duration("backoff", duration))
	}

	operation := func() (*pairsResponse, error) {
		return s.requestOnce(ctx, url)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(notify))
}

func (s *Service) requestOnce(ctx context.Context, url string) (*pairsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var response pairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &response, nil
}
