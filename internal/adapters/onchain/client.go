// Package onchain talks to a real EVM chain over JSON-RPC: it answers the
// planner's allowance questions, submits plan transactions and signs permits.
package onchain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	gasPriceUpdateInterval = 1 * time.Minute
	defaultReceiptTimeout  = 2 * time.Minute
	defaultPollInterval    = 3 * time.Second
	fallbackGasLimit       = uint64(3_000_000)
)

// Backend is the subset of ethclient.Client the adapter uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client implements ports.AllowanceReader, ports.Submitter and ports.Signer.
// Without a private key it can only read.
type Client struct {
	backend Backend
	chainID *big.Int
	key     *ecdsa.PrivateKey
	address common.Address

	ReceiptTimeout time.Duration
	PollInterval   time.Duration

	// serializes nonce assignment across concurrent submits
	sendMu sync.Mutex

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// Dial connects to rpcURL. privateKeyHex may be empty for a read-only client.
func Dial(rpcURL string, chainID int64, privateKeyHex string) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: %s: %w", rpcURL, err)
	}
	return NewClient(ec, chainID, privateKeyHex)
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, chainID int64, privateKeyHex string) (*Client, error) {
	c := &Client{
		backend:        backend,
		chainID:        big.NewInt(chainID),
		ReceiptTimeout: defaultReceiptTimeout,
		PollInterval:   defaultPollInterval,
	}
	if privateKeyHex == "" {
		return c, nil
	}
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewClient: decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewClient: invalid private key: %w", err)
	}
	c.key = key
	c.address = crypto.PubkeyToAddress(key.PublicKey)
	return c, nil
}

// Address returns the account of the configured key, or the zero address.
func (c *Client) Address() common.Address {
	return c.address
}

// ChainID returns the chain id transactions and permits are signed for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// gasPrice returns the suggested gas price plus 10%, cached for a minute.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	cached := c.cachedGasWei
	updatedAt := c.gasUpdatedAt
	c.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			slog.Warn("onchain: gas price refresh failed, using cached", "err", err)
			return cached, nil
		}
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	c.mu.Lock()
	c.cachedGasWei = buffered
	c.gasUpdatedAt = time.Now()
	c.mu.Unlock()
	return buffered, nil
}

// waitForReceipt polls until the transaction is mined or ctx expires.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.backend.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}
