package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

var maxU256 = new(uint256.Int).SetAllOne()

// ERC20 is a standard fungible token.
type ERC20 struct {
	name string
}

// NewERC20 returns token code labelled name.
func NewERC20(name string) *ERC20 {
	return &ERC20{name: name}
}

func (t *ERC20) Name() string { return t.name }

func (t *ERC20) Call(env *Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		if env.Value.Sign() > 0 {
			return nil, fmt.Errorf("%s: native transfers not accepted", t.name)
		}
		return nil, nil
	}
	m, data, err := codec.Method(codec.ERC20ABI, input)
	if err != nil {
		return nil, err
	}
	return t.dispatch(env, m, data)
}

func (t *ERC20) dispatch(env *Env, m *abi.Method, data []byte) ([]byte, error) {
	args, err := m.Inputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", t.name, m.Name, err)
	}
	c := env.Chain

	switch m.Name {
	case "transfer":
		amt, err := toU256(args[1].(*big.Int))
		if err != nil {
			return nil, err
		}
		if err := c.moveERC20(env.Self, env.Caller, args[0].(common.Address), amt); err != nil {
			return nil, fmt.Errorf("%s.transfer: %w", t.name, err)
		}
		return m.Outputs.Pack(true)

	case "transferFrom":
		from, to := args[0].(common.Address), args[1].(common.Address)
		amt, err := toU256(args[2].(*big.Int))
		if err != nil {
			return nil, err
		}
		if env.Caller != from {
			allowed := c.allowanceOf(env.Self, from, env.Caller)
			if allowed.Lt(amt) {
				return nil, fmt.Errorf("%s.transferFrom: %w: %s allowed %s, needs %s",
					t.name, domain.ErrInsufficientAllowance, env.Caller.Hex(), allowed, amt)
			}
			if !allowed.Eq(maxU256) {
				c.setAllowance(env.Self, from, env.Caller, new(uint256.Int).Sub(allowed, amt))
			}
		}
		if err := c.moveERC20(env.Self, from, to, amt); err != nil {
			return nil, fmt.Errorf("%s.transferFrom: %w", t.name, err)
		}
		return m.Outputs.Pack(true)

	case "approve":
		amt, err := toU256(args[1].(*big.Int))
		if err != nil {
			return nil, err
		}
		c.setAllowance(env.Self, env.Caller, args[0].(common.Address), amt)
		return m.Outputs.Pack(true)

	case "balanceOf":
		return m.Outputs.Pack(c.erc20Of(env.Self, args[0].(common.Address)).ToBig())

	case "allowance":
		return m.Outputs.Pack(c.allowanceOf(env.Self, args[0].(common.Address), args[1].(common.Address)).ToBig())
	}
	return nil, fmt.Errorf("%s: %w: %s", t.name, domain.ErrUnknownMethod, m.Name)
}

// WETH is the wrapped native asset: an ERC20 minted 1:1 against native deposits.
type WETH struct {
	ERC20
}

// NewWETH returns wrapped-native token code.
func NewWETH() *WETH {
	return &WETH{ERC20{name: "WETH"}}
}

func (w *WETH) Call(env *Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, w.deposit(env)
	}
	if m, data, err := codec.Method(codec.WETHABI, input); err == nil {
		switch m.Name {
		case "deposit":
			return nil, w.deposit(env)
		case "withdraw":
			args, err := m.Inputs.Unpack(data)
			if err != nil {
				return nil, fmt.Errorf("WETH.withdraw: %w", err)
			}
			return nil, w.withdraw(env, args[0].(*big.Int))
		}
	}
	m, data, err := codec.Method(codec.ERC20ABI, input)
	if err != nil {
		return nil, err
	}
	return w.dispatch(env, m, data)
}

func (w *WETH) deposit(env *Env) error {
	amt, err := toU256(env.Value)
	if err != nil {
		return err
	}
	c := env.Chain
	c.setERC20(env.Self, env.Caller, new(uint256.Int).Add(c.erc20Of(env.Self, env.Caller), amt))
	return nil
}

func (w *WETH) withdraw(env *Env, amount *big.Int) error {
	amt, err := toU256(amount)
	if err != nil {
		return err
	}
	c := env.Chain
	bal, under := new(uint256.Int).SubOverflow(c.erc20Of(env.Self, env.Caller), amt)
	if under {
		return fmt.Errorf("WETH.withdraw: %w", domain.ErrInsufficientBalance)
	}
	c.setERC20(env.Self, env.Caller, bal)
	_, err = env.Call(env.Caller, amount, nil)
	return err
}

// ERC721 is a non-fungible token collection.
type ERC721 struct {
	name string
}

// NewERC721 returns collection code labelled name.
func NewERC721(name string) *ERC721 {
	return &ERC721{name: name}
}

func (t *ERC721) Name() string { return t.name }

func (t *ERC721) Call(env *Env, input []byte) ([]byte, error) {
	m, data, err := codec.Method(codec.ERC721ABI, input)
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", t.name, m.Name, err)
	}
	c := env.Chain

	switch m.Name {
	case "setApprovalForAll":
		c.setOperator(env.Self, env.Caller, args[0].(common.Address), args[1].(bool))
		return nil, nil
	case "isApprovedForAll":
		return m.Outputs.Pack(c.isOperator(env.Self, args[0].(common.Address), args[1].(common.Address)))
	case "ownerOf":
		return m.Outputs.Pack(c.ownerOf(env.Self, args[0].(*big.Int)))
	case "transferFrom":
		from, to, id := args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)
		owner := c.ownerOf(env.Self, id)
		if owner != from {
			return nil, fmt.Errorf("%s.transferFrom: %w: #%s owned by %s", t.name, domain.ErrNotOwner, id, owner.Hex())
		}
		if env.Caller != from && !c.isOperator(env.Self, from, env.Caller) {
			return nil, fmt.Errorf("%s.transferFrom: %w: %s is not an operator of %s",
				t.name, domain.ErrInsufficientAllowance, env.Caller.Hex(), from.Hex())
		}
		c.setOwner(env.Self, id, to)
		return nil, nil
	}
	return nil, fmt.Errorf("%s: %w: %s", t.name, domain.ErrUnknownMethod, m.Name)
}

// ERC1155 is a multi-token collection.
type ERC1155 struct {
	name string
}

// NewERC1155 returns collection code labelled name.
func NewERC1155(name string) *ERC1155 {
	return &ERC1155{name: name}
}

func (t *ERC1155) Name() string { return t.name }

func (t *ERC1155) Call(env *Env, input []byte) ([]byte, error) {
	m, data, err := codec.Method(codec.ERC1155ABI, input)
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", t.name, m.Name, err)
	}
	c := env.Chain

	switch m.Name {
	case "setApprovalForAll":
		c.setOperator(env.Self, env.Caller, args[0].(common.Address), args[1].(bool))
		return nil, nil
	case "isApprovedForAll":
		return m.Outputs.Pack(c.isOperator(env.Self, args[0].(common.Address), args[1].(common.Address)))
	case "balanceOf":
		return m.Outputs.Pack(c.multiOf(env.Self, args[1].(*big.Int), args[0].(common.Address)).ToBig())
	case "safeTransferFrom":
		from, to := args[0].(common.Address), args[1].(common.Address)
		id := args[2].(*big.Int)
		amt, err := toU256(args[3].(*big.Int))
		if err != nil {
			return nil, err
		}
		if env.Caller != from && !c.isOperator(env.Self, from, env.Caller) {
			return nil, fmt.Errorf("%s.safeTransferFrom: %w: %s is not an operator of %s",
				t.name, domain.ErrInsufficientAllowance, env.Caller.Hex(), from.Hex())
		}
		if err := c.move1155(env.Self, id, from, to, amt); err != nil {
			return nil, fmt.Errorf("%s.safeTransferFrom: %w", t.name, err)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%s: %w: %s", t.name, domain.ErrUnknownMethod, m.Name)
}
