// internal/swap/swap.go
package swap

import "context"

// WrappedSolMint is the mint address used as the input side of every quote.
const WrappedSolMint = "So11111111111111111111111111111111111111112"

// QuoteResult is the normalized outcome of a routing quote.
type QuoteResult struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	PriceImpactPct float64
	RouteCount     int

	// raw keeps the provider-specific quote needed to build the swap.
	raw any
}

// SwapReceipt describes a completed swap execution.
type SwapReceipt struct {
	TxID string
}

// Router abstracts the swap routing and execution provider.
type Router interface {
	// Quote requests a route for swapping amount of inputMint into outputMint.
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*QuoteResult, error)

	// Execute performs the swap described by a previously obtained quote.
	Execute(ctx context.Context, quote *QuoteResult) (*SwapReceipt, error)
}
