package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// AllowanceReader answers the approval questions the planner asks before
// deciding between pre-transactions, permits and the approval proxy.
// Implementations must always read live state: nothing may be cached across calls.
type AllowanceReader interface {
	// ERC20Allowance returns how much of token spender may pull from owner.
	ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	// IsApprovedForAll reports whether operator may move any of owner's NFTs in collection.
	IsApprovedForAll(ctx context.Context, collection, owner, operator common.Address) (bool, error)

	// PermitNonce returns the next unused permit nonce of (owner, token) on the permit proxy.
	PermitNonce(ctx context.Context, proxy, owner, token common.Address) (*big.Int, error)
}

// Submitter sends a transaction and waits for its receipt.
type Submitter interface {
	// Submit returns a receipt for mined transactions, including reverted ones.
	// An error means the transaction could not be sent or its outcome is unknown.
	Submit(ctx context.Context, tx domain.TxData) (domain.Receipt, error)
}

// Signer signs with the taker's key.
type Signer interface {
	Address() common.Address
	SignPermit(ctx context.Context, p domain.PermitRequest) ([]byte, error)
	// SignMessage produces a personal-message signature for protocol pre-signatures.
	SignMessage(ctx context.Context, msg string) ([]byte, error)
}
