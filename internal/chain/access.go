package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Env accessors. These run inside a transaction and must not take the lock.

// Time is the block timestamp.
func (e *Env) Time() uint64 { return e.Chain.time }

// ChainID is the chain id.
func (e *Env) ChainID() *big.Int { return new(big.Int).Set(e.Chain.chainID) }

// NativeBalance returns addr's native balance.
func (e *Env) NativeBalance(addr common.Address) *big.Int {
	return e.Chain.nativeOf(addr).ToBig()
}

// ERC20Balance returns holder's balance of token.
func (e *Env) ERC20Balance(token, holder common.Address) *big.Int {
	return e.Chain.erc20Of(token, holder).ToBig()
}

// OwnerOf returns the ERC-721 owner of id.
func (e *Env) OwnerOf(collection common.Address, id *big.Int) common.Address {
	return e.Chain.ownerOf(collection, id)
}

// ERC1155Balance returns holder's balance of collection#id.
func (e *Env) ERC1155Balance(collection common.Address, id *big.Int, holder common.Address) *big.Int {
	return e.Chain.multiOf(collection, id, holder).ToBig()
}

// IsApprovedForAll reports whether operator may move owner's NFTs of collection.
func (e *Env) IsApprovedForAll(collection, owner, operator common.Address) bool {
	return e.Chain.isOperator(collection, owner, operator)
}

// Load reads a storage slot of the running contract.
func (e *Env) Load(key common.Hash) common.Hash {
	return e.Chain.load(e.Self, key)
}

// Store writes a storage slot of the running contract.
func (e *Env) Store(key, val common.Hash) {
	e.Chain.store(e.Self, key, val)
}

// Setup helpers. They take the lock and must not be called from contracts.

// Fund credits addr with amount of the native asset.
func (c *Chain) Fund(addr common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	amt, err := toU256(amount)
	if err != nil {
		return err
	}
	sum, over := new(uint256.Int).AddOverflow(c.nativeOf(addr), amt)
	if over {
		return fmt.Errorf("chain.Fund: overflow for %s", addr.Hex())
	}
	c.native[addr] = sum
	return nil
}

// MintERC20 credits holder with amount of token.
func (c *Chain) MintERC20(token, holder common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	amt, err := toU256(amount)
	if err != nil {
		return err
	}
	sum, over := new(uint256.Int).AddOverflow(c.erc20Of(token, holder), amt)
	if over {
		return fmt.Errorf("chain.MintERC20: overflow for %s", holder.Hex())
	}
	c.setERC20(token, holder, sum)
	c.journal = c.journal[:0]
	return nil
}

// MintERC721 assigns collection#id to owner.
func (c *Chain) MintERC721(collection, owner common.Address, id *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.ownerOf(collection, id); cur != (common.Address{}) {
		return fmt.Errorf("chain.MintERC721: %s#%s already owned by %s", collection.Hex(), idKey(id), cur.Hex())
	}
	c.setOwner(collection, id, owner)
	c.journal = c.journal[:0]
	return nil
}

// MintERC1155 credits holder with amount of collection#id.
func (c *Chain) MintERC1155(collection, holder common.Address, id, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	amt, err := toU256(amount)
	if err != nil {
		return err
	}
	sum, over := new(uint256.Int).AddOverflow(c.multiOf(collection, id, holder), amt)
	if over {
		return fmt.Errorf("chain.MintERC1155: overflow for %s", holder.Hex())
	}
	c.setMulti(collection, id, holder, sum)
	c.journal = c.journal[:0]
	return nil
}

// Readers for callers outside transactions.

// NativeBalance returns addr's native balance.
func (c *Chain) NativeBalance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nativeOf(addr).ToBig()
}

// ERC20Balance returns holder's balance of token.
func (c *Chain) ERC20Balance(token, holder common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.erc20Of(token, holder).ToBig()
}

// Allowance returns the ERC-20 allowance owner granted spender.
func (c *Chain) Allowance(token, owner, spender common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowanceOf(token, owner, spender).ToBig()
}

// OwnerOf returns the ERC-721 owner of id.
func (c *Chain) OwnerOf(collection common.Address, id *big.Int) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownerOf(collection, id)
}

// ERC1155Balance returns holder's balance of collection#id.
func (c *Chain) ERC1155Balance(collection common.Address, id *big.Int, holder common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiOf(collection, id, holder).ToBig()
}

// IsApprovedForAll reports whether operator may move owner's NFTs of collection.
// It implements ports.AllowanceReader.
func (c *Chain) IsApprovedForAll(_ context.Context, collection, owner, operator common.Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOperator(collection, owner, operator), nil
}
