package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Quoter implements ports.SwapQuoter by calling the quoter contract
// configured for each provider. Native legs are quoted as WETH.
type Quoter struct {
	client   *Client
	weth     common.Address
	contract map[domain.SwapProvider]common.Address
}

// NewQuoter returns a quoter reading through c.
func NewQuoter(c *Client, weth common.Address, contracts map[domain.SwapProvider]common.Address) *Quoter {
	return &Quoter{client: c, weth: weth, contract: contracts}
}

func (q *Quoter) QuoteExactOutput(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	return q.quote(ctx, "quoteExactOutput", provider, tokenIn, tokenOut, amountOut)
}

func (q *Quoter) QuoteExactInput(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	return q.quote(ctx, "quoteExactInput", provider, tokenIn, tokenOut, amountIn)
}

func (q *Quoter) quote(ctx context.Context, method string, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amount *big.Int) (*big.Int, error) {
	addr, ok := q.contract[provider]
	if !ok {
		return nil, fmt.Errorf("onchain.%s: %w: no quoter for %s", method, domain.ErrNoRoute, provider)
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
	vals, err := q.client.call(ctx, codec.VenueABI, addr, method, tokenIn, tokenOut, amount)
	if err != nil {
		return nil, fmt.Errorf("onchain.%s: %w", method, err)
	}
	return vals[0].(*big.Int), nil
}
