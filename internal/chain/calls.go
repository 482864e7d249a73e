package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Helpers contracts use to move assets. Every helper goes through a real
// message call, so failures revert only the frame they happen in.

// SendNative transfers amount of the native asset from the running contract.
func SendNative(env *Env, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	_, err := env.Call(to, amount, nil)
	return err
}

// ERC20Transfer moves amount of token from the running contract to to.
func ERC20Transfer(env *Env, token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	data, err := codec.ERC20ABI.Pack("transfer", to, amount)
	if err != nil {
		return err
	}
	_, err = env.Call(token, nil, data)
	return err
}

// ERC20TransferFrom moves amount of token from from to to using the running
// contract's allowance.
func ERC20TransferFrom(env *Env, token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	data, err := codec.ERC20ABI.Pack("transferFrom", from, to, amount)
	if err != nil {
		return err
	}
	_, err = env.Call(token, nil, data)
	return err
}

// ERC20Approve sets the running contract's allowance for spender.
func ERC20Approve(env *Env, token, spender common.Address, amount *big.Int) error {
	data, err := codec.EncodeERC20Approve(spender, amount)
	if err != nil {
		return err
	}
	_, err = env.Call(token, nil, data)
	return err
}

// EnsureERC20Allowance raises the running contract's allowance for spender
// to the maximum when it is below need.
func EnsureERC20Allowance(env *Env, token, spender common.Address, need *big.Int) error {
	if env.Chain.allowanceOf(token, env.Self, spender).ToBig().Cmp(need) >= 0 {
		return nil
	}
	return ERC20Approve(env, token, spender, codec.MaxUint256)
}

// NFTTransferFrom moves amount units of collection#id from from to to.
func NFTTransferFrom(env *Env, kind domain.ContractKind, collection, from, to common.Address, id, amount *big.Int) error {
	var (
		data []byte
		err  error
	)
	switch kind {
	case domain.ContractERC721:
		data, err = codec.ERC721ABI.Pack("transferFrom", from, to, id)
	case domain.ContractERC1155:
		if amount == nil || amount.Sign() == 0 {
			amount = big.NewInt(1)
		}
		data, err = codec.ERC1155ABI.Pack("safeTransferFrom", from, to, id, amount, []byte{})
	default:
		return fmt.Errorf("chain.NFTTransferFrom: unknown kind %s", kind)
	}
	if err != nil {
		return err
	}
	_, err = env.Call(collection, nil, data)
	return err
}

// NFTBalance returns how many units of collection#id holder has.
func NFTBalance(env *Env, kind domain.ContractKind, collection common.Address, id *big.Int, holder common.Address) *big.Int {
	if kind == domain.ContractERC1155 {
		return env.ERC1155Balance(collection, id, holder)
	}
	if env.OwnerOf(collection, id) == holder {
		return big.NewInt(1)
	}
	return new(big.Int)
}

// WETHDeposit wraps amount of the running contract's native balance.
func WETHDeposit(env *Env, weth common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	data, err := codec.WETHABI.Pack("deposit")
	if err != nil {
		return err
	}
	_, err = env.Call(weth, amount, data)
	return err
}

// WETHWithdraw unwraps amount of the running contract's WETH.
func WETHWithdraw(env *Env, weth common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	data, err := codec.WETHABI.Pack("withdraw", amount)
	if err != nil {
		return err
	}
	_, err = env.Call(weth, nil, data)
	return err
}
