package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/codec"
)

func (c *Client) call(ctx context.Context, a abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	vals, err := a.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s returned nothing", method)
	}
	return vals, nil
}

// ERC20Allowance reads token.allowance(owner, spender).
func (c *Client) ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, codec.ERC20ABI, token, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("onchain.ERC20Allowance: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// IsApprovedForAll reads collection.isApprovedForAll(owner, operator).
// The selector is shared by ERC-721 and ERC-1155.
func (c *Client) IsApprovedForAll(ctx context.Context, collection, owner, operator common.Address) (bool, error) {
	vals, err := c.call(ctx, codec.ERC721ABI, collection, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, fmt.Errorf("onchain.IsApprovedForAll: %w", err)
	}
	return vals[0].(bool), nil
}

// PermitNonce reads proxy.nonces(owner, token).
func (c *Client) PermitNonce(ctx context.Context, proxy, owner, token common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, codec.PermitProxyABI, proxy, "nonces", owner, token)
	if err != nil {
		return nil, fmt.Errorf("onchain.PermitNonce: %w", err)
	}
	return vals[0].(*big.Int), nil
}
