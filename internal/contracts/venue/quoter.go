package venue

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Quoter implements ports.SwapQuoter against venues deployed on a ledger.
// Native legs are quoted as WETH, which is what the swap adapter trades.
type Quoter struct {
	chain  *chain.Chain
	weth   common.Address
	venues map[domain.SwapProvider]common.Address
}

// NewQuoter returns a quoter reading the venue behind each provider.
func NewQuoter(c *chain.Chain, weth common.Address, venues map[domain.SwapProvider]common.Address) *Quoter {
	return &Quoter{chain: c, weth: weth, venues: venues}
}

func (q *Quoter) QuoteExactOutput(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	return q.quote(ctx, "quoteExactOutput", provider, tokenIn, tokenOut, amountOut)
}

func (q *Quoter) QuoteExactInput(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	return q.quote(ctx, "quoteExactInput", provider, tokenIn, tokenOut, amountIn)
}

func (q *Quoter) quote(ctx context.Context, method string, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amount *big.Int) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr, ok := q.venues[provider]
	if !ok {
		return nil, fmt.Errorf("venue.Quoter: %w: no venue for %s", domain.ErrNoRoute, provider)
	}
	if domain.IsNative(tokenIn) {
		tokenIn = q.weth
	}
	if domain.IsNative(tokenOut) {
		tokenOut = q.weth
	}
	if tokenIn == tokenOut {
		return new(big.Int).Set(amount), nil
	}

	data, err := codec.VenueABI.Pack(method, tokenIn, tokenOut, amount)
	if err != nil {
		return nil, fmt.Errorf("venue.Quoter: %w", err)
	}
	out, err := q.chain.StaticCall(addr, data)
	if err != nil {
		return nil, fmt.Errorf("venue.Quoter: %w", err)
	}
	vals, err := codec.VenueABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("venue.Quoter: unpack: %w", err)
	}
	return vals[0].(*big.Int), nil
}
