package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// SwapQuoter sizes swaps for the planner. Zero or an error means the swap
// cannot be sized.
type SwapQuoter interface {
	// QuoteExactOutput returns how much tokenIn buys exactly amountOut of tokenOut
	// through provider.
	QuoteExactOutput(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error)

	// QuoteExactInput returns how much tokenOut exactly amountIn of tokenIn buys
	// through provider.
	QuoteExactInput(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}
