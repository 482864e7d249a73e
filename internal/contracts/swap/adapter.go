// Package swap converts between settlement assets through an external
// liquidity venue with exact-output semantics.
package swap

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Adapter is one swap adapter deployment, bound to a single venue.
//
// Native input is wrapped into WETH before trading. After every call the
// adapter holds nothing of any asset it touched: outputs go to the leg
// recipients and unused input goes back to refundTo.
type Adapter struct {
	name  string
	weth  common.Address
	venue common.Address
}

// New returns adapter code trading on venue.
func New(name string, weth, venue common.Address) *Adapter {
	return &Adapter{name: name, weth: weth, venue: venue}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Call(env *chain.Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		// Plain native transfers, e.g. from WETH.withdraw.
		return nil, nil
	}
	m, data, err := codec.Method(codec.SwapAdapterABI, input)
	if err != nil {
		return nil, err
	}
	var call codec.ConvertCall
	if err := codec.Unpack(m, data, &call); err != nil {
		return nil, err
	}
	return nil, a.convertExactOutput(env, call)
}

func (a *Adapter) convertExactOutput(env *chain.Env, call codec.ConvertCall) error {
	touched := []common.Address{a.weth}
	touch := func(t common.Address) {
		for _, x := range touched {
			if x == t {
				return
			}
		}
		touched = append(touched, t)
	}

	nativeIn := env.Value.Sign() > 0
	if nativeIn {
		if err := chain.WETHDeposit(env, a.weth, env.Value); err != nil {
			return fmt.Errorf("%s: wrap: %w", a.name, err)
		}
	}

	for i, leg := range call.Swaps {
		in, out := a.asset(leg.TokenIn), a.asset(leg.TokenOut)
		touch(in)
		touch(out)

		if err := a.trade(env, in, out, leg); err != nil {
			return fmt.Errorf("%s: leg %d: %w", a.name, i, err)
		}
		unwrap := domain.IsNative(leg.TokenOut) || (call.Unwrap && out == a.weth)
		if err := a.pay(env, out, unwrap, leg, call.RefundTo); err != nil {
			return fmt.Errorf("%s: leg %d: %w", a.name, i, err)
		}
	}

	return a.refund(env, touched, nativeIn || call.Unwrap, call.RefundTo)
}

func (a *Adapter) asset(t common.Address) common.Address {
	if domain.IsNative(t) {
		return a.weth
	}
	return t
}

func (a *Adapter) trade(env *chain.Env, in, out common.Address, leg codec.SwapLeg) error {
	if in == out {
		// Nothing to convert: native <-> WETH legs are served by wrapping.
		if leg.ExactAmountOut.Cmp(leg.MaxAmountIn) > 0 {
			return fmt.Errorf("%w: needs %s, max %s", domain.ErrSlippage, leg.ExactAmountOut, leg.MaxAmountIn)
		}
		return nil
	}
	if err := chain.EnsureERC20Allowance(env, in, a.venue, leg.MaxAmountIn); err != nil {
		return err
	}
	data, err := codec.EncodeVenueSwap(in, out, leg.ExactAmountOut, leg.MaxAmountIn, env.Self)
	if err != nil {
		return err
	}
	if _, err := env.Call(a.venue, nil, data); err != nil {
		if errors.Is(err, domain.ErrSlippage) || errors.Is(err, domain.ErrNoRoute) {
			return err
		}
		return fmt.Errorf("%w: venue failed: %w", domain.ErrSlippage, err)
	}
	return nil
}

// pay routes the leg output. Whatever the recipients do not claim is left
// for the final refund.
func (a *Adapter) pay(env *chain.Env, out common.Address, unwrap bool, leg codec.SwapLeg, refundTo common.Address) error {
	recipients := leg.Recipients
	if len(recipients) == 0 {
		recipients = []codec.FeeArg{{Recipient: refundTo, Amount: leg.ExactAmountOut}}
	}

	claimed := new(big.Int)
	for _, r := range recipients {
		claimed.Add(claimed, r.Amount)
	}
	if claimed.Cmp(leg.ExactAmountOut) > 0 {
		return fmt.Errorf("recipients claim %s of %s output", claimed, leg.ExactAmountOut)
	}

	if unwrap {
		if err := chain.WETHWithdraw(env, a.weth, claimed); err != nil {
			return fmt.Errorf("unwrap: %w", err)
		}
	}
	for _, r := range recipients {
		var err error
		if unwrap {
			err = chain.SendNative(env, r.Recipient, r.Amount)
		} else {
			err = chain.ERC20Transfer(env, out, r.Recipient, r.Amount)
		}
		if err != nil {
			return fmt.Errorf("pay %s: %w", r.Recipient.Hex(), err)
		}
	}
	return nil
}

func (a *Adapter) refund(env *chain.Env, touched []common.Address, unwrapWETH bool, refundTo common.Address) error {
	for _, t := range touched {
		bal := env.ERC20Balance(t, env.Self)
		if bal.Sign() == 0 {
			continue
		}
		if t == a.weth && unwrapWETH {
			if err := chain.WETHWithdraw(env, a.weth, bal); err != nil {
				return fmt.Errorf("%s: refund unwrap: %w", a.name, err)
			}
			continue
		}
		if err := chain.ERC20Transfer(env, t, refundTo, bal); err != nil {
			return fmt.Errorf("%s: refund %s: %w", a.name, t.Hex(), err)
		}
		slog.Debug("swap: refunded input", "token", t.Hex(), "amount", bal.String(), "to", refundTo.Hex())
	}

	if bal := env.NativeBalance(env.Self); bal.Sign() > 0 {
		if err := chain.SendNative(env, refundTo, bal); err != nil {
			return fmt.Errorf("%s: refund native: %w", a.name, err)
		}
	}
	return nil
}
