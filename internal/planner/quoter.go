package planner

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/alejandrodnm/nftagg/internal/ports"
)

type quoteEntry struct {
	amount  *big.Int
	expires time.Time
}

// CachedQuoter memoizes quotes for ttl and collapses concurrent identical
// requests into one upstream call. Failed quotes are not cached.
type CachedQuoter struct {
	next ports.SwapQuoter
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]quoteEntry
	group   singleflight.Group
}

// NewCachedQuoter wraps next.
func NewCachedQuoter(next ports.SwapQuoter, ttl time.Duration) *CachedQuoter {
	return &CachedQuoter{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]quoteEntry),
	}
}

func (q *CachedQuoter) QuoteExactOutput(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	return q.cached(ctx, "out", provider, tokenIn, tokenOut, amountOut, q.next.QuoteExactOutput)
}

func (q *CachedQuoter) QuoteExactInput(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	return q.cached(ctx, "in", provider, tokenIn, tokenOut, amountIn, q.next.QuoteExactInput)
}

type quoteFunc func(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amount *big.Int) (*big.Int, error)

func (q *CachedQuoter) cached(ctx context.Context, side string, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amount *big.Int, fetch quoteFunc) (*big.Int, error) {
	key := fmt.Sprintf("%s|%s|%s|%s|%s", side, provider, tokenIn.Hex(), tokenOut.Hex(), amount)

	q.mu.Lock()
	e, ok := q.entries[key]
	q.mu.Unlock()
	if ok && q.now().Before(e.expires) {
		return new(big.Int).Set(e.amount), nil
	}

	v, err, _ := q.group.Do(key, func() (any, error) {
		res, err := fetch(ctx, provider, tokenIn, tokenOut, amount)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("planner.CachedQuoter: empty quote for %s", key)
		}
		q.mu.Lock()
		q.entries[key] = quoteEntry{amount: new(big.Int).Set(res), expires: q.now().Add(q.ttl)}
		q.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(v.(*big.Int)), nil
}
