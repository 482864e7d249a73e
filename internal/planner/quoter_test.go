package planner_test

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/alejandrodnm/nftagg/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedQuoter_ReusesQuotes(t *testing.T) {
	inner := &mockQuoter{num: 3, den: 1}
	q := planner.NewCachedQuoter(inner, time.Minute)

	for range 3 {
		in, err := q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(10))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(30), in)
	}
	assert.Equal(t, 1, inner.calls)

	_, err := q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(11))
	require.NoError(t, err)
	_, err = q.QuoteExactOutput(t.Context(), domain.SwapOneInch, weth, usdc, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedQuoter_ReturnsCopies(t *testing.T) {
	q := planner.NewCachedQuoter(&mockQuoter{num: 1, den: 1}, time.Minute)
	first, err := q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(5))
	require.NoError(t, err)
	first.SetInt64(999)

	second, err := q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), second)
}

func TestCachedQuoter_DoesNotCacheErrors(t *testing.T) {
	inner := &mockQuoter{num: 1, den: 1, err: errors.New("venue offline")}
	q := planner.NewCachedQuoter(inner, time.Minute)

	_, err := q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(5))
	require.ErrorContains(t, err, "venue offline")

	inner.mu.Lock()
	inner.err = nil
	inner.mu.Unlock()
	in, err := q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), in)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedQuoter_ExpiresAfterTTL(t *testing.T) {
	inner := &mockQuoter{num: 1, den: 1}
	q := planner.NewCachedQuoter(inner, 20*time.Millisecond)

	_, err := q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(5))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedQuoter_ConcurrentCallers(t *testing.T) {
	inner := &mockQuoter{num: 2, den: 1}
	q := planner.NewCachedQuoter(inner, time.Minute)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in, err := q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(7))
			assert.NoError(t, err)
			assert.Equal(t, big.NewInt(14), in)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.calls, 16)
	assert.GreaterOrEqual(t, inner.calls, 1)
}

func TestCachedQuoter_SeparatesExactInputAndOutput(t *testing.T) {
	inner := &mockQuoter{num: 4, den: 1}
	q := planner.NewCachedQuoter(inner, time.Minute)

	in, err := q.QuoteExactOutput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(8))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(32), in)

	out, err := q.QuoteExactInput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(8))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2), out)

	out, err = q.QuoteExactInput(t.Context(), domain.SwapUniswapV3, weth, usdc, big.NewInt(8))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2), out)
	assert.Equal(t, 2, inner.calls)
}
