// Package chain is an in-process EVM-like ledger.
//
// It keeps native balances and token state for the standards the engine
// moves (ERC-20, WETH, ERC-721, ERC-1155), runs Go contracts registered at
// addresses, and journals every state mutation so that a call frame that
// returns an error is rolled back exactly like a reverted EVM call.
package chain

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

const maxCallDepth = 64

// Contract is code deployed at an address.
type Contract interface {
	// Name is used in revert errors and logs.
	Name() string
	// Call runs input in the context of env. A non-nil error reverts the frame.
	Call(env *Env, input []byte) ([]byte, error)
}

// Log is an event emitted by a contract during a transaction.
type Log struct {
	Emitter common.Address
	Event   string
	Data    any
}

// Chain is the ledger. Top-level transactions are serialized; everything
// inside one transaction runs sequentially on the caller's goroutine.
type Chain struct {
	mu sync.Mutex

	chainID *big.Int
	time    uint64
	txCount uint64

	native     map[common.Address]*uint256.Int
	balances   map[common.Address]map[common.Address]*uint256.Int                    // token -> holder
	allowances map[common.Address]map[common.Address]map[common.Address]*uint256.Int // token -> owner -> spender
	owners     map[common.Address]map[string]common.Address                          // erc721 -> id -> owner
	multi      map[common.Address]map[string]map[common.Address]*uint256.Int         // erc1155 -> id -> holder
	operators  map[common.Address]map[common.Address]map[common.Address]bool         // collection -> owner -> operator
	storage    map[common.Address]map[common.Hash]common.Hash
	code       map[common.Address]Contract

	journal []func()
	logs    []Log
	depth   int
	nextAcc uint64
}

// New creates an empty ledger for chainID at block time t.
func New(chainID int64, t uint64) *Chain {
	return &Chain{
		chainID:    big.NewInt(chainID),
		time:       t,
		native:     make(map[common.Address]*uint256.Int),
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int),
		owners:     make(map[common.Address]map[string]common.Address),
		multi:      make(map[common.Address]map[string]map[common.Address]*uint256.Int),
		operators:  make(map[common.Address]map[common.Address]map[common.Address]bool),
		storage:    make(map[common.Address]map[common.Hash]common.Hash),
		code:       make(map[common.Address]Contract),
	}
}

// ChainID returns the chain id used in EIP-712 domains.
func (c *Chain) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Time is the current block timestamp.
func (c *Chain) Time() uint64 {
	return c.time
}

// SetTime moves the block timestamp.
func (c *Chain) SetTime(t uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = t
}

// NewAddress derives a fresh deterministic address, for deployments and test accounts.
func (c *Chain) NewAddress(label string) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextAcc++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], c.nextAcc)
	return common.BytesToAddress(crypto.Keccak256([]byte(label), buf[:])[12:])
}

// Deploy registers code at addr.
func (c *Chain) Deploy(addr common.Address, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = contract
}

// CodeAt returns the contract at addr, if any.
func (c *Chain) CodeAt(addr common.Address) (Contract, bool) {
	k, ok := c.code[addr]
	return k, ok
}

// Env is the execution context of one call frame.
type Env struct {
	Chain  *Chain
	Self   common.Address
	Caller common.Address
	Origin common.Address
	Value  *big.Int
}

// Call performs a message call from the current contract.
func (e *Env) Call(to common.Address, value *big.Int, input []byte) ([]byte, error) {
	return e.Chain.call(e.Self, e.Origin, to, value, input)
}

// Emit appends a log for the running transaction.
func (e *Env) Emit(event string, data any) {
	e.Chain.emit(e.Self, event, data)
}

// Snapshot returns a journal position that Revert can roll back to.
func (e *Env) Snapshot() int {
	return len(e.Chain.journal)
}

// Revert undoes every mutation recorded after snap.
func (e *Env) Revert(snap int) {
	e.Chain.revertTo(snap)
}

// Transact runs a top-level transaction from an externally owned account.
// State changes of a failed transaction are discarded; the returned logs are
// those of the transaction only.
func (c *Chain) Transact(from, to common.Address, value *big.Int, input []byte) ([]byte, []Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, logs, _, err := c.transact(from, to, value, input)
	return out, logs, err
}

func (c *Chain) transact(from, to common.Address, value *big.Int, input []byte) ([]byte, []Log, common.Hash, error) {
	c.txCount++
	hash := c.txHash(from, input)
	c.logs = nil
	snap := len(c.journal)

	out, err := c.call(from, from, to, value, input)
	logs := c.logs
	c.logs = nil
	if err != nil {
		c.revertTo(snap)
		return nil, nil, hash, err
	}
	// Committed: the journal is only needed inside a transaction.
	c.journal = c.journal[:0]
	return out, logs, hash, nil
}

// StaticCall runs a read-only call and discards any state it touched.
func (c *Chain) StaticCall(to common.Address, input []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := len(c.journal)
	saved := c.logs
	out, err := c.call(common.Address{}, common.Address{}, to, nil, input)
	c.revertTo(snap)
	c.logs = saved
	return out, err
}

// txHash derives a deterministic hash for the current transaction.
func (c *Chain) txHash(from common.Address, input []byte) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], c.txCount)
	return crypto.Keccak256Hash(from.Bytes(), buf[:], input)
}

func (c *Chain) call(caller, origin, to common.Address, value *big.Int, input []byte) ([]byte, error) {
	if c.depth >= maxCallDepth {
		return nil, fmt.Errorf("chain: max call depth %d reached", maxCallDepth)
	}

	snap := len(c.journal)
	if value != nil && value.Sign() > 0 {
		if err := c.moveNative(caller, to, value); err != nil {
			c.revertTo(snap)
			return nil, err
		}
	}

	contract, ok := c.code[to]
	if !ok {
		if len(input) > 0 {
			c.revertTo(snap)
			return nil, fmt.Errorf("%w: %s", domain.ErrNoCode, to.Hex())
		}
		return nil, nil
	}

	if value == nil {
		value = new(big.Int)
	}
	env := &Env{Chain: c, Self: to, Caller: caller, Origin: origin, Value: new(big.Int).Set(value)}

	c.depth++
	out, err := contract.Call(env, input)
	c.depth--

	if err != nil {
		c.revertTo(snap)
		slog.Debug("chain: frame reverted", "contract", contract.Name(), "depth", c.depth, "err", err)
		return nil, &domain.RevertError{Contract: contract.Name(), Cause: err}
	}
	return out, nil
}

func (c *Chain) record(undo func()) {
	c.journal = append(c.journal, undo)
}

func (c *Chain) revertTo(snap int) {
	for i := len(c.journal) - 1; i >= snap; i-- {
		c.journal[i]()
	}
	c.journal = c.journal[:snap]
}

func (c *Chain) emit(emitter common.Address, event string, data any) {
	n := len(c.logs)
	c.logs = append(c.logs, Log{Emitter: emitter, Event: event, Data: data})
	c.record(func() { c.logs = c.logs[:n] })
}
