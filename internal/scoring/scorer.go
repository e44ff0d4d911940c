// internal/scoring/scorer.go
package scoring

// Candidate holds the market stats for one token under evaluation.
// It is ephemeral and recomputed on every scan.
type Candidate struct {
	Mint              string  `json:"mint"`
	Symbol            string  `json:"symbol"`
	LiquidityUSD      float64 `json:"liquidity_usd"`
	Volume24hUSD      float64 `json:"volume_24h_usd"`
	PriceChange24hPct float64 `json:"price_change_24h_pct"`
	MarketCapUSD      float64 `json:"market_cap_usd"`
	Buys24h           int     `json:"buys_24h"`
	Sells24h          int     `json:"sells_24h"`
	AgeHours          float64 `json:"age_hours"` // negative when unknown
	HasTwitter        bool    `json:"has_twitter"`
	HasTelegram       bool    `json:"has_telegram"`
	HasWebsite        bool    `json:"has_website"`
}

// Flag marks a specific risk pattern detected on a candidate.
type Flag string

const (
	FlagLowLiquidity      Flag = "low_liquidity"      // liquidity too thin to exit safely
	FlagWashTrading       Flag = "wash_trading"       // volume wildly out of proportion to liquidity
	FlagHeavyDistribution Flag = "heavy_distribution" // sell transactions dominate 2:1 or worse
	FlagCrashing          Flag = "crashing"           // 24h price down more than 30%
	FlagJustLaunched      Flag = "just_launched"      // pair younger than one hour
	FlagRugRisk           Flag = "rug_risk"           // no social presence at all
)

const (
	baseScore = 50

	lowLiquidityFlagUSD = 10_000
	justLaunchedHours   = 1.0
)

// Score rates a candidate from 0 to 100 and returns the risk flags
// detected on it. It is pure: same candidate in, same score out.
func Score(c Candidate) (int, []Flag) {
	score := baseScore

	score += volumeLiquidityAdjustment(c)
	score += buyPressureAdjustment(c)
	score += momentumAdjustment(c.PriceChange24hPct)
	score += liquidityTierAdjustment(c.LiquidityUSD)
	score += volumeTierAdjustment(c.Volume24hUSD)
	score += marketCapAdjustment(c.MarketCapUSD)
	score += activityAdjustment(c.Buys24h + c.Sells24h)
	score += socialAdjustment(c)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score, collectFlags(c)
}

// volumeLiquidityAdjustment rewards healthy turnover and penalizes both
// suspected wash trading and dead volume.
func volumeLiquidityAdjustment(c Candidate) int {
	liquidity := c.LiquidityUSD
	if liquidity == 0 {
		liquidity = 1
	}
	ratio := c.Volume24hUSD / liquidity

	switch {
	case ratio > 10:
		return -15 // volume this far above liquidity is usually wash trading
	case ratio >= 3:
		return 15
	case ratio >= 1.5:
		return 10
	case ratio >= 0.5:
		return 5
	default:
		return -5 // dead volume
	}
}

func buyPressureAdjustment(c Candidate) int {
	total := c.Buys24h + c.Sells24h
	if total == 0 {
		total = 1
	}
	buyRatio := float64(c.Buys24h) / float64(total)

	switch {
	case buyRatio > 0.65:
		return 15
	case buyRatio >= 0.55:
		return 10
	case buyRatio >= 0.45:
		return 0
	case buyRatio >= 0.35:
		return -10
	default:
		return -20 // dumping
	}
}

func momentumAdjustment(change24h float64) int {
	switch {
	case change24h > 200:
		return -10 // late entry
	case change24h >= 50:
		return 5
	case change24h >= 10:
		return 10
	case change24h >= -10:
		return 5
	case change24h >= -30:
		return -15
	default:
		return -25 // crashing
	}
}

func liquidityTierAdjustment(liquidityUSD float64) int {
	switch {
	case liquidityUSD > 500_000:
		return 20
	case liquidityUSD > 200_000:
		return 15
	case liquidityUSD > 100_000:
		return 10
	case liquidityUSD > 50_000:
		return 5
	case liquidityUSD > 20_000:
		return 0
	default:
		return -10
	}
}

func volumeTierAdjustment(volumeUSD float64) int {
	switch {
	case volumeUSD > 500_000:
		return 15
	case volumeUSD > 200_000:
		return 10
	case volumeUSD > 100_000:
		return 5
	default:
		return 0
	}
}

func marketCapAdjustment(marketCapUSD float64) int {
	switch {
	case marketCapUSD > 0 && marketCapUSD < 50_000:
		return -20
	case marketCapUSD > 10_000_000:
		return 10
	default:
		return 0
	}
}

func activityAdjustment(txns int) int {
	switch {
	case txns > 1000:
		return 10
	case txns > 500:
		return 5
	case txns < 100:
		return -15
	default:
		return 0
	}
}

func socialAdjustment(c Candidate) int {
	switch {
	case c.HasTwitter && c.HasWebsite:
		return 15
	case c.HasTwitter:
		return 10
	case c.HasTelegram || c.HasWebsite:
		return 5
	default:
		return -25
	}
}

// collectFlags derives risk flags from the candidate. The evaluation order
// is fixed so flag lists are stable for display.
func collectFlags(c Candidate) []Flag {
	var flags []Flag

	if c.LiquidityUSD < lowLiquidityFlagUSD {
		flags = append(flags, FlagLowLiquidity)
	}

	liquidity := c.LiquidityUSD
	if liquidity == 0 {
		liquidity = 1
	}
	if c.Volume24hUSD/liquidity > 10 {
		flags = append(flags, FlagWashTrading)
	}

	if c.Sells24h > 0 && c.Sells24h >= 2*c.Buys24h {
		flags = append(flags, FlagHeavyDistribution)
	}

	if c.PriceChange24hPct < -30 {
		flags = append(flags, FlagCrashing)
	}

	// Negative age means the pair creation time is unknown. Unknown is not
	// the same as brand new, so no flag.
	if c.AgeHours >= 0 && c.AgeHours < justLaunchedHours {
		flags = append(flags, FlagJustLaunched)
	}

	if !c.HasTwitter && !c.HasTelegram && !c.HasWebsite {
		flags = append(flags, FlagRugRisk)
	}

	return flags
}

// HasFlag reports whether the given flag is present in the list.
func HasFlag(flags []Flag, target Flag) bool {
	for _, f := range flags {
		if f == target {
			return true
		}
	}
	return false
}
