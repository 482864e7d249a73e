package onchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// ErrReadOnly is returned when a signing operation runs without a key.
var ErrReadOnly = errors.New("client has no private key")

// Submit signs tx with the configured key, sends it and waits for the receipt.
// Gas is estimated with a 20% buffer; a failed estimate falls back to a fixed
// limit so the revert reason surfaces on-chain.
func (c *Client) Submit(ctx context.Context, tx domain.TxData) (domain.Receipt, error) {
	if c.key == nil {
		return domain.Receipt{}, fmt.Errorf("onchain.Submit: %w", ErrReadOnly)
	}
	if tx.From != c.address {
		return domain.Receipt{}, fmt.Errorf("onchain.Submit: transaction from %s but key is %s", tx.From.Hex(), c.address.Hex())
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}

	signed, err := c.send(ctx, tx, value)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("onchain.Submit: %w", err)
	}
	txHash := signed.Hash().Hex()
	slog.Info("onchain: transaction sent", "to", tx.To.Hex(), "value", value.String(), "tx", txHash)

	receiptCtx, cancel := context.WithTimeout(ctx, c.ReceiptTimeout)
	defer cancel()
	receipt, err := c.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return domain.Receipt{TxHash: txHash}, fmt.Errorf("onchain.Submit: %s not confirmed: %w", txHash, err)
	}

	out := domain.Receipt{
		TxHash:  txHash,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed: receipt.GasUsed,
	}
	if !out.Success {
		out.Error = "transaction reverted on-chain"
		slog.Warn("onchain: transaction reverted", "tx", txHash)
		return out, nil
	}
	out.Logs = fillLogs(receipt.Logs)
	slog.Info("onchain: confirmed", "tx", txHash, "gas_used", receipt.GasUsed, "fill_reports", len(out.Logs))
	return out, nil
}

func (c *Client) send(ctx context.Context, tx domain.TxData, value *big.Int) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return nil, err
	}

	to := tx.To
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &to,
		GasPrice: gasPrice,
		Value:    value,
		Data:     tx.Data,
	})
	if err != nil {
		slog.Warn("onchain: gas estimate failed, using default", "err", err, "limit", fallbackGasLimit)
		gas = fallbackGasLimit
	}
	gas = gas * 12 / 10

	signed, err := types.SignTx(
		types.NewTransaction(nonce, to, value, gas, gasPrice, tx.Data),
		types.NewEIP155Signer(c.chainID),
		c.key,
	)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	return signed, nil
}

func fillLogs(logs []*types.Log) []domain.FillLog {
	topic := codec.FillReportTopic()
	var out []domain.FillLog
	for _, l := range logs {
		if len(l.Topics) == 0 || l.Topics[0] != topic {
			continue
		}
		fl, err := codec.DecodeFillReport(l.Address.Hex(), l.Topics, l.Data)
		if err != nil {
			slog.Warn("onchain: undecodable fill report", "tx", l.TxHash.Hex(), "index", l.Index, "err", err)
			continue
		}
		out = append(out, fl)
	}
	return out
}
