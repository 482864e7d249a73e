// Package venue is a reference liquidity venue offering exact-output swaps at
// fixed rates. It stands in for an AMM router whose pricing is out of scope.
package venue

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Rate prices tokenOut in tokenIn: amountIn = ceil(amountOut * Num / Den).
type Rate struct {
	Num *big.Int
	Den *big.Int
}

type pair struct {
	in, out common.Address
}

// Venue swaps ERC-20 pairs it has a rate for, paying out of its own inventory.
type Venue struct {
	name  string
	rates map[pair]Rate
}

// New returns venue code with no pairs.
func New(name string) *Venue {
	return &Venue{name: name, rates: make(map[pair]Rate)}
}

// SetRate lists a pair. Call it before deploying.
func (v *Venue) SetRate(tokenIn, tokenOut common.Address, r Rate) *Venue {
	v.rates[pair{tokenIn, tokenOut}] = r
	return v
}

func (v *Venue) Name() string { return v.name }

func (v *Venue) Call(env *chain.Env, input []byte) ([]byte, error) {
	m, data, err := codec.Method(codec.VenueABI, input)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "quoteExactOutput":
		args, err := m.Inputs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%s.quoteExactOutput: %w", v.name, err)
		}
		in, err := v.quote(args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int))
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(in)

	case "quoteExactInput":
		args, err := m.Inputs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%s.quoteExactInput: %w", v.name, err)
		}
		out, err := v.quoteIn(args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int))
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(out)

	case "swap":
		var call codec.VenueSwapCall
		if err := codec.Unpack(m, data, &call); err != nil {
			return nil, err
		}
		in, err := v.swap(env, call)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(in)
	}
	return nil, fmt.Errorf("%s: %w: %s", v.name, domain.ErrUnknownMethod, m.Name)
}

func (v *Venue) quote(tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	r, ok := v.rates[pair{tokenIn, tokenOut}]
	if !ok || r.Den == nil || r.Den.Sign() == 0 {
		return nil, fmt.Errorf("%s: %w: %s -> %s", v.name, domain.ErrNoRoute, tokenIn.Hex(), tokenOut.Hex())
	}
	in := new(big.Int).Mul(amountOut, r.Num)
	in.Add(in, new(big.Int).Sub(r.Den, big.NewInt(1)))
	return in.Quo(in, r.Den), nil
}

// quoteIn is the largest output amountIn pays for: floor(amountIn * Den / Num).
func (v *Venue) quoteIn(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	r, ok := v.rates[pair{tokenIn, tokenOut}]
	if !ok || r.Num == nil || r.Num.Sign() == 0 {
		return nil, fmt.Errorf("%s: %w: %s -> %s", v.name, domain.ErrNoRoute, tokenIn.Hex(), tokenOut.Hex())
	}
	out := new(big.Int).Mul(amountIn, r.Den)
	return out.Quo(out, r.Num), nil
}

func (v *Venue) swap(env *chain.Env, call codec.VenueSwapCall) (*big.Int, error) {
	in, err := v.quote(call.TokenIn, call.TokenOut, call.AmountOut)
	if err != nil {
		return nil, err
	}
	if in.Cmp(call.AmountInMax) > 0 {
		return nil, fmt.Errorf("%s.swap: %w: needs %s, max %s", v.name, domain.ErrSlippage, in, call.AmountInMax)
	}
	if err := chain.ERC20TransferFrom(env, call.TokenIn, env.Caller, env.Self, in); err != nil {
		return nil, fmt.Errorf("%s.swap: pull input: %w", v.name, err)
	}
	if err := chain.ERC20Transfer(env, call.TokenOut, call.Recipient, call.AmountOut); err != nil {
		return nil, fmt.Errorf("%s.swap: pay output: %w", v.name, err)
	}
	return in, nil
}
