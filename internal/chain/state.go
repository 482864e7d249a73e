package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("chain: negative amount %s", v)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("chain: amount %s overflows uint256", v)
	}
	return u, nil
}

func idKey(id *big.Int) string {
	if id == nil {
		return "0"
	}
	return id.String()
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// --- native ---

func (c *Chain) nativeOf(addr common.Address) *uint256.Int {
	return zeroIfNil(c.native[addr])
}

func (c *Chain) setNative(addr common.Address, v *uint256.Int) {
	prev, had := c.native[addr]
	c.native[addr] = v
	c.record(func() {
		if had {
			c.native[addr] = prev
		} else {
			delete(c.native, addr)
		}
	})
}

func (c *Chain) moveNative(from, to common.Address, amount *big.Int) error {
	amt, err := toU256(amount)
	if err != nil {
		return err
	}
	if amt.IsZero() || from == to {
		return nil
	}
	bal, under := new(uint256.Int).SubOverflow(c.nativeOf(from), amt)
	if under {
		return fmt.Errorf("%w: %s has %s native, needs %s", domain.ErrInsufficientBalance, from.Hex(), c.nativeOf(from), amt)
	}
	credited, over := new(uint256.Int).AddOverflow(c.nativeOf(to), amt)
	if over {
		return fmt.Errorf("chain: native balance overflow for %s", to.Hex())
	}
	c.setNative(from, bal)
	c.setNative(to, credited)
	return nil
}

// --- erc20 ---

func (c *Chain) erc20Of(token, holder common.Address) *uint256.Int {
	return zeroIfNil(c.balances[token][holder])
}

func (c *Chain) setERC20(token, holder common.Address, v *uint256.Int) {
	m, ok := c.balances[token]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		c.balances[token] = m
	}
	prev, had := m[holder]
	m[holder] = v
	c.record(func() {
		if had {
			m[holder] = prev
		} else {
			delete(m, holder)
		}
	})
}

func (c *Chain) moveERC20(token, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	bal, under := new(uint256.Int).SubOverflow(c.erc20Of(token, from), amount)
	if under {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			domain.ErrInsufficientBalance, from.Hex(), c.erc20Of(token, from), token.Hex(), amount)
	}
	credited, over := new(uint256.Int).AddOverflow(c.erc20Of(token, to), amount)
	if over {
		return fmt.Errorf("chain: balance overflow for %s", to.Hex())
	}
	c.setERC20(token, from, bal)
	c.setERC20(token, to, credited)
	return nil
}

func (c *Chain) allowanceOf(token, owner, spender common.Address) *uint256.Int {
	return zeroIfNil(c.allowances[token][owner][spender])
}

func (c *Chain) setAllowance(token, owner, spender common.Address, v *uint256.Int) {
	byOwner, ok := c.allowances[token]
	if !ok {
		byOwner = make(map[common.Address]map[common.Address]*uint256.Int)
		c.allowances[token] = byOwner
	}
	m, ok := byOwner[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		byOwner[owner] = m
	}
	prev, had := m[spender]
	m[spender] = v
	c.record(func() {
		if had {
			m[spender] = prev
		} else {
			delete(m, spender)
		}
	})
}

// --- erc721 ---

func (c *Chain) ownerOf(collection common.Address, id *big.Int) common.Address {
	return c.owners[collection][idKey(id)]
}

func (c *Chain) setOwner(collection common.Address, id *big.Int, owner common.Address) {
	m, ok := c.owners[collection]
	if !ok {
		m = make(map[string]common.Address)
		c.owners[collection] = m
	}
	key := idKey(id)
	prev, had := m[key]
	m[key] = owner
	c.record(func() {
		if had {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

// --- erc1155 ---

func (c *Chain) multiOf(collection common.Address, id *big.Int, holder common.Address) *uint256.Int {
	return zeroIfNil(c.multi[collection][idKey(id)][holder])
}

func (c *Chain) setMulti(collection common.Address, id *big.Int, holder common.Address, v *uint256.Int) {
	byID, ok := c.multi[collection]
	if !ok {
		byID = make(map[string]map[common.Address]*uint256.Int)
		c.multi[collection] = byID
	}
	key := idKey(id)
	m, ok := byID[key]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		byID[key] = m
	}
	prev, had := m[holder]
	m[holder] = v
	c.record(func() {
		if had {
			m[holder] = prev
		} else {
			delete(m, holder)
		}
	})
}

func (c *Chain) move1155(collection common.Address, id *big.Int, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	bal, under := new(uint256.Int).SubOverflow(c.multiOf(collection, id, from), amount)
	if under {
		return fmt.Errorf("%w: %s holds %s of %s#%s", domain.ErrInsufficientBalance,
			from.Hex(), c.multiOf(collection, id, from), collection.Hex(), idKey(id))
	}
	credited, over := new(uint256.Int).AddOverflow(c.multiOf(collection, id, to), amount)
	if over {
		return fmt.Errorf("chain: erc1155 balance overflow for %s", to.Hex())
	}
	c.setMulti(collection, id, from, bal)
	c.setMulti(collection, id, to, credited)
	return nil
}

// --- operator approvals ---

func (c *Chain) isOperator(collection, owner, operator common.Address) bool {
	return c.operators[collection][owner][operator]
}

func (c *Chain) setOperator(collection, owner, operator common.Address, approved bool) {
	byOwner, ok := c.operators[collection]
	if !ok {
		byOwner = make(map[common.Address]map[common.Address]bool)
		c.operators[collection] = byOwner
	}
	m, ok := byOwner[owner]
	if !ok {
		m = make(map[common.Address]bool)
		byOwner[owner] = m
	}
	prev, had := m[operator]
	m[operator] = approved
	c.record(func() {
		if had {
			m[operator] = prev
		} else {
			delete(m, operator)
		}
	})
}

// --- contract storage ---

func (c *Chain) load(addr common.Address, key common.Hash) common.Hash {
	return c.storage[addr][key]
}

func (c *Chain) store(addr common.Address, key, val common.Hash) {
	m, ok := c.storage[addr]
	if !ok {
		m = make(map[common.Hash]common.Hash)
		c.storage[addr] = m
	}
	prev, had := m[key]
	m[key] = val
	c.record(func() {
		if had {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}
