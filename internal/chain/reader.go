package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

const (
	txBaseGas   = 21_000
	calldataGas = 16
)

// ERC20Allowance implements ports.AllowanceReader.
func (c *Chain) ERC20Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.Allowance(token, owner, spender), nil
}

// PermitNonce implements ports.AllowanceReader by reading the proxy's nonces view.
func (c *Chain) PermitNonce(_ context.Context, proxy, owner, token common.Address) (*big.Int, error) {
	data, err := codec.PermitProxyABI.Pack("nonces", owner, token)
	if err != nil {
		return nil, fmt.Errorf("chain.PermitNonce: %w", err)
	}
	out, err := c.StaticCall(proxy, data)
	if err != nil {
		return nil, fmt.Errorf("chain.PermitNonce: %w", err)
	}
	vals, err := codec.PermitProxyABI.Unpack("nonces", out)
	if err != nil {
		return nil, fmt.Errorf("chain.PermitNonce: unpack: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// Submit implements ports.Submitter: the transaction is applied immediately
// and a reverted transaction yields an unsuccessful receipt, not an error.
func (c *Chain) Submit(ctx context.Context, tx domain.TxData) (domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.Receipt{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, logs, hash, err := c.transact(tx.From, tx.To, tx.Value, tx.Data)
	r := domain.Receipt{
		TxHash:  hash.Hex(),
		Success: err == nil,
		GasUsed: txBaseGas + calldataGas*uint64(len(tx.Data)),
	}
	if err != nil {
		r.Error = err.Error()
		return r, nil
	}
	r.Logs = FillLogs(logs)
	return r, nil
}

// FillLogs extracts the module fill reports from a transaction's logs.
func FillLogs(logs []Log) []domain.FillLog {
	var out []domain.FillLog
	for _, l := range logs {
		if fl, ok := l.Data.(domain.FillLog); ok {
			out = append(out, fl)
		}
	}
	return out
}
