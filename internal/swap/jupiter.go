// internal/swap/jupiter.go
package swap

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/ilkamo/jupiter-go/jupiter"
	"go.uber.org/zap"

	"github.com/dexmind/solana-agent/internal/wallet"
)

// JupiterRouter routes and executes swaps through the Jupiter aggregator.
// Quotes come from the Jupiter swap API; execution signs the returned
// transaction locally and submits it over Solana RPC.
type JupiterRouter struct {
	jup    *jupiter.ClientWithResponses
	rpc    *rpc.Client
	signer *wallet.Wallet
	dryRun bool
	logger *zap.Logger
}

// JupiterConfig configures a JupiterRouter.
type JupiterConfig struct {
	APIURL string // empty means jupiter.DefaultAPIURL
	RPCURL string // Solana RPC endpoint for transaction submission
	DryRun bool   // skip on-chain submission, return synthetic receipts
	Signer *wallet.Wallet
	Logger *zap.Logger
}

// NewJupiterRouter creates a router backed by the Jupiter swap API.
func NewJupiterRouter(cfg JupiterConfig) (*JupiterRouter, error) {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = jupiter.DefaultAPIURL
	}

	jupClient, err := jupiter.NewClientWithResponses(apiURL)
	if err != nil {
		return nil, fmt.Errorf("create jupiter client: %w", err)
	}

	router := &JupiterRouter{
		jup:    jupClient,
		signer: cfg.Signer,
		dryRun: cfg.DryRun,
		logger: cfg.Logger.Named("jupiter"),
	}

	if !cfg.DryRun {
		router.rpc = rpc.New(cfg.RPCURL)
	}

	return router, nil
}

// Quote requests a swap route from Jupiter.
func (r *JupiterRouter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*QuoteResult, error) {
	resp, err := r.jup.GetQuoteWithResponse(ctx, &jupiter.GetQuoteParams{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      int64(amount),
		SlippageBps: &slippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if resp.JSON200 == nil {
		return nil, fmt.Errorf("no valid quote response (status %s)", resp.Status())
	}

	quote := resp.JSON200

	outAmount, err := strconv.ParseUint(quote.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse out amount %q: %w", quote.OutAmount, err)
	}

	priceImpact, err := strconv.ParseFloat(quote.PriceImpactPct, 64)
	if err != nil {
		return nil, fmt.Errorf("parse price impact %q: %w", quote.PriceImpactPct, err)
	}

	result := &QuoteResult{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       amount,
		OutAmount:      outAmount,
		PriceImpactPct: priceImpact,
		RouteCount:     len(quote.RoutePlan),
		raw:            quote,
	}

	r.logger.Debug("Quote obtained",
		zap.String("input_mint", inputMint),
		zap.String("output_mint", outputMint),
		zap.Uint64("in_amount", amount),
		zap.Uint64("out_amount", outAmount),
		zap.Int("routes", result.RouteCount),
		zap.Float64("price_impact_pct", priceImpact))

	return result, nil
}

// Execute builds, signs and submits the swap described by the quote.
func (r *JupiterRouter) Execute(ctx context.Context, quote *QuoteResult) (*SwapReceipt, error) {
	if quote == nil {
		return nil, fmt.Errorf("quote is nil")
	}

	if r.dryRun {
		txID := fmt.Sprintf("dryrun_%s_%d", shortMint(quote.OutputMint), time.Now().UnixNano())
		r.logger.Info("Dry run swap, skipping submission",
			zap.String("output_mint", quote.OutputMint),
			zap.String("tx_id", txID))
		return &SwapReceipt{TxID: txID}, nil
	}

	jupQuote, ok := quote.raw.(*jupiter.QuoteResponse)
	if !ok {
		return nil, fmt.Errorf("quote was not produced by this router")
	}

	prioritizationFee := jupiter.SwapRequest_PrioritizationFeeLamports{}
	if err := prioritizationFee.UnmarshalJSON([]byte(`"auto"`)); err != nil {
		return nil, fmt.Errorf("set prioritization fee: %w", err)
	}

	dynamicComputeUnitLimit := true

	swapResp, err := r.jup.PostSwapWithResponse(ctx, jupiter.PostSwapJSONRequestBody{
		QuoteResponse:             *jupQuote,
		UserPublicKey:             r.signer.PublicKey.String(),
		PrioritizationFeeLamports: &prioritizationFee,
		DynamicComputeUnitLimit:   &dynamicComputeUnitLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("post swap: %w", err)
	}
	if swapResp.JSON200 == nil {
		return nil, fmt.Errorf("no valid swap response (status %s)", swapResp.Status())
	}

	tx, err := solana.TransactionFromBase64(swapResp.JSON200.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(r.signer.PublicKey) {
			return &r.signer.PrivateKey
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := r.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	r.logger.Info("Swap submitted",
		zap.String("output_mint", quote.OutputMint),
		zap.String("tx_id", sig.String()))

	return &SwapReceipt{TxID: sig.String()}, nil
}

func shortMint(mint string) string {
	if len(mint) >= 8 {
		return mint[:8]
	}
	return mint
}
