package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SwapProvider selects which swap adapter deployment backs currency conversion.
type SwapProvider string

const (
	SwapUniswapV3 SwapProvider = "uniswap-v3"
	SwapOneInch   SwapProvider = "one-inch"
)

// ParseSwapProvider validates a provider name. Empty selects Uniswap V3.
func ParseSwapProvider(s string) (SwapProvider, error) {
	switch SwapProvider(s) {
	case "":
		return SwapUniswapV3, nil
	case SwapUniswapV3, SwapOneInch:
		return SwapProvider(s), nil
	}
	return "", fmt.Errorf("unknown swap provider %q", s)
}

// Options are the caller's planning policy.
type Options struct {
	Partial            bool
	Source             string
	DesiredCurrency    common.Address
	ForceApprovalProxy bool
	SwapProvider       SwapProvider
	SellOutCurrency    *common.Address // nil keeps offer proceeds in the offer currency
	SlippageBps        uint16          // 0 uses the planner default
	PermitDeadline     uint64          // unix seconds; 0 uses now + configured TTL
}

// EntryKind is the contract a Transaction is sent to.
type EntryKind string

const (
	EntryRouter        EntryKind = "router"
	EntryApprovalProxy EntryKind = "approval-proxy"
	EntryPermitProxy   EntryKind = "permit-proxy"
)

// ApprovalKind distinguishes fungible allowances from NFT operator approvals.
type ApprovalKind string

const (
	ApprovalERC20  ApprovalKind = "erc20"
	ApprovalForAll ApprovalKind = "nft-approval-for-all"
)

// Approval is an on-chain approval the owner must send before a Transaction.
type Approval struct {
	Owner   common.Address
	Token   common.Address
	Spender common.Address
	Kind    ApprovalKind
	TxData  TxData
}

// PermitRequest is an unsigned typed authorization the owner signs
// out-of-band. Signature stays empty until the caller attaches it.
type PermitRequest struct {
	ID        string
	Owner     common.Address
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
	Nonce     *big.Int
	Deadline  uint64
	// Witness commits the signature to the transaction's executions.
	Witness   common.Hash
	TypedData apitypes.TypedData
	Signature []byte
}

// Signed reports whether a signature has been attached.
func (p PermitRequest) Signed() bool {
	return len(p.Signature) == 65
}

// PreSignatureKind names what a pre-signature authorizes.
type PreSignatureKind string

const (
	PreSignatureTakerAuth PreSignatureKind = "taker-auth"
)

// PreSignatureRequest is a protocol-level message the taker must sign before
// the protocol accepts its fill.
type PreSignatureRequest struct {
	Kind      PreSignatureKind
	Signer    common.Address
	OrderID   string
	Message   string
	Signature []byte
}

// Transaction is one on-chain transaction of a plan.
type Transaction struct {
	Entry         EntryKind
	TxData        TxData
	Executions    []Execution
	Approvals     []Approval // NFT operator approvals
	FTApprovals   []Approval // ERC-20 allowances
	PreSignatures []PreSignatureRequest
	Permits       []PermitRequest
	Orders        []string // order IDs carried by the transaction
	OrderHashes   []string // same positions as Orders
	Source        string
	GasEstimate   uint64
}

// NeedsSignatures reports whether any permit is still unsigned.
func (t Transaction) NeedsSignatures() bool {
	for _, p := range t.Permits {
		if !p.Signed() {
			return true
		}
	}
	return false
}

// TransactionPlan groups transactions that can be constructed upfront.
// PreTxs must be observed on-chain before any of Txs is submitted.
type TransactionPlan struct {
	ID     string
	PreTxs []Approval
	Txs    []Transaction
}

// OrderCount returns how many orders the plan carries.
func (p TransactionPlan) OrderCount() int {
	n := 0
	for _, tx := range p.Txs {
		n += len(tx.Orders)
	}
	return n
}
