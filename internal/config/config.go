// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	RPCURL         string   `mapstructure:"rpc_url"`
	JupiterAPIURL  string   `mapstructure:"jupiter_api_url"`
	DexScreenerURL string   `mapstructure:"dexscreener_url"`
	PrivateKey     string   `mapstructure:"private_key"`
	WalletsFile    string   `mapstructure:"wallets_file"`
	DryRun         bool     `mapstructure:"dry_run"`
	LedgerPath     string   `mapstructure:"ledger_path"`
	Watchlist      []string `mapstructure:"watchlist"`

	StopLossPct       float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct     float64 `mapstructure:"take_profit_pct"`
	MaxPositions      int     `mapstructure:"max_positions"`
	SlippageBps       int     `mapstructure:"slippage_bps"`
	MaxTradeSizeSOL   float64 `mapstructure:"max_trade_size_sol"`
	CooldownSeconds   int     `mapstructure:"cooldown_seconds"`
	DailyLossLimitSOL float64 `mapstructure:"daily_loss_limit_sol"`

	ScanIntervalSeconds    int `mapstructure:"scan_interval_seconds"`
	RefreshIntervalSeconds int `mapstructure:"refresh_interval_seconds"`

	Retries      int    `mapstructure:"retries"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultJupiterAPIURL   = "https://quote-api.jup.ag/v6"
	DefaultLedgerPath      = "data/positions.json"
	DefaultStopLossPct     = 15.0
	DefaultTakeProfitPct   = 50.0
	DefaultMaxPositions    = 5
	DefaultSlippageBps     = 250
	DefaultMaxTradeSize    = 0.5
	DefaultCooldown        = 30
	DefaultDailyLossLimit  = 1.0
	DefaultScanInterval    = 60
	DefaultRefreshInterval = 15
	DefaultRetries         = 3
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"jupiter_api_url":          DefaultJupiterAPIURL,
		"ledger_path":              DefaultLedgerPath,
		"stop_loss_pct":            DefaultStopLossPct,
		"take_profit_pct":          DefaultTakeProfitPct,
		"max_positions":            DefaultMaxPositions,
		"slippage_bps":             DefaultSlippageBps,
		"max_trade_size_sol":       DefaultMaxTradeSize,
		"cooldown_seconds":         DefaultCooldown,
		"daily_loss_limit_sol":     DefaultDailyLossLimit,
		"scan_interval_seconds":    DefaultScanInterval,
		"refresh_interval_seconds": DefaultRefreshInterval,
		"retries":                  DefaultRetries,
		"dry_run":                  true,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("missing rpc_url in configuration")
	}
	if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if err := validateURLWithCache(cfg.JupiterAPIURL, "http"); err != nil {
		return errors.New("invalid Jupiter API URL protocol")
	}
	if cfg.DexScreenerURL != "" {
		if err := validateURLWithCache(cfg.DexScreenerURL, "http"); err != nil {
			return errors.New("invalid DexScreener URL protocol")
		}
	}
	if !cfg.DryRun && cfg.PrivateKey == "" && cfg.WalletsFile == "" {
		return errors.New("live trading requires private_key or wallets_file")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 100 {
		return errors.New("stop_loss_pct must be between 0 and 100")
	}
	if cfg.TakeProfitPct <= 0 {
		return errors.New("take_profit_pct must be positive")
	}
	if cfg.MaxPositions <= 0 {
		return errors.New("invalid max_positions")
	}
	if cfg.SlippageBps <= 0 || cfg.SlippageBps > 10000 {
		return errors.New("slippage_bps must be between 1 and 10000")
	}
	if cfg.MaxTradeSizeSOL <= 0 {
		return errors.New("max_trade_size_sol must be positive")
	}
	if cfg.CooldownSeconds < 0 {
		return errors.New("invalid cooldown_seconds")
	}
	if cfg.DailyLossLimitSOL <= 0 {
		return errors.New("daily_loss_limit_sol must be positive")
	}
	if cfg.ScanIntervalSeconds <= 0 {
		return errors.New("invalid scan_interval_seconds")
	}
	if cfg.RefreshIntervalSeconds <= 0 {
		return errors.New("invalid refresh_interval_seconds")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("SOLANA_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envKey := v.GetString("PRIVATE_KEY")
	if envKey != "" {
		cfg.PrivateKey = envKey
	}

	envRPC := v.GetString("RPC_URL")
	if envRPC != "" {
		cfg.RPCURL = envRPC
	}

	envWatchlist := v.GetString("WATCHLIST")
	if envWatchlist != "" {
		mints := strings.Split(envWatchlist, ",")
		var clean []string
		for _, mint := range mints {
			trimmed := strings.TrimSpace(mint)
			if trimmed != "" {
				clean = append(clean, trimmed)
			}
		}
		if len(clean) > 0 {
			cfg.Watchlist = clean
		}
	}
	return nil
}
