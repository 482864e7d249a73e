package onchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// SignPermit signs the permit's EIP-712 digest. The recovery id is shifted
// to 27/28 as the permit proxy expects.
func (c *Client) SignPermit(_ context.Context, p domain.PermitRequest) ([]byte, error) {
	if c.key == nil {
		return nil, fmt.Errorf("onchain.SignPermit: %w", ErrReadOnly)
	}
	if p.Owner != c.address {
		return nil, fmt.Errorf("onchain.SignPermit: permit owner %s is not %s", p.Owner.Hex(), c.address.Hex())
	}
	digest, err := codec.TypedDataDigest(p.TypedData)
	if err != nil {
		return nil, fmt.Errorf("onchain.SignPermit: %w", err)
	}
	sig, err := crypto.Sign(digest.Bytes(), c.key)
	if err != nil {
		return nil, fmt.Errorf("onchain.SignPermit: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignMessage signs msg with the "\x19Ethereum Signed Message" prefix.
func (c *Client) SignMessage(_ context.Context, msg string) ([]byte, error) {
	if c.key == nil {
		return nil, fmt.Errorf("onchain.SignMessage: %w", ErrReadOnly)
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), c.key)
	if err != nil {
		return nil, fmt.Errorf("onchain.SignMessage: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
