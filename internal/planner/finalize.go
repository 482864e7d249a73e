package planner

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// ErrUnsigned is returned when a transaction still carries unsigned permits.
var ErrUnsigned = errors.New("permit signature missing")

// encodePermitCall packs the permit proxy call. Unsigned permits get a
// zeroed placeholder of the final signature length so payload estimates
// hold before and after signing.
func encodePermitCall(permits []domain.PermitRequest, execs []domain.Execution) ([]byte, error) {
	args := make([]codec.PermitArg, len(permits))
	sigs := make([][]byte, len(permits))
	for i, r := range permits {
		args[i] = codec.PermitArg{
			Owner:     r.Owner,
			Token:     r.Token,
			Amount:    r.Amount,
			Recipient: r.Recipient,
			Nonce:     r.Nonce,
			Deadline:  new(big.Int).SetUint64(r.Deadline),
		}
		if r.Signed() {
			sigs[i] = r.Signature
		} else {
			sigs[i] = make([]byte, crypto.SignatureLength)
		}
	}
	return codec.EncodePermitTransferAndExecute(args, sigs, execs)
}

// Finalize re-encodes a permit proxy transaction once every permit carries
// its signature. Other transactions are returned unchanged.
func Finalize(tx domain.Transaction) (domain.Transaction, error) {
	if tx.Entry != domain.EntryPermitProxy {
		return tx, nil
	}
	for _, r := range tx.Permits {
		if !r.Signed() {
			return domain.Transaction{}, fmt.Errorf("planner.Finalize: permit %s: %w", r.ID, ErrUnsigned)
		}
	}
	data, err := encodePermitCall(tx.Permits, tx.Executions)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("planner.Finalize: %w", err)
	}
	tx.TxData.Data = data
	return tx, nil
}
