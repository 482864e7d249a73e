package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Tuple mirrors. Field order must match the ABI component order: go-ethereum
// copies decoded tuples positionally.

// OrderArg is the ABI form of domain.Order.
type OrderArg struct {
	Maker                   common.Address
	Collection              common.Address
	TokenId                 *big.Int
	Amount                  *big.Int
	Kind                    uint8
	Side                    uint8
	Currency                common.Address
	Price                   *big.Int
	Expiry                  uint64
	Salt                    *big.Int
	MarketplaceFeeBps       uint16
	MarketplaceFeeRecipient common.Address
}

// ExecutionArg is the ABI form of domain.Execution.
type ExecutionArg struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
}

// FeeArg is the ABI form of domain.Fee, also used for swap recipients.
type FeeArg struct {
	Recipient common.Address
	Amount    *big.Int
}

// FillParamsArg is the ABI form of domain.FillParams.
type FillParamsArg struct {
	FillTo             common.Address
	RefundTo           common.Address
	RevertIfIncomplete bool
	Amount             *big.Int
	Token              common.Address
}

// OfferParamsArg is the ABI form of domain.OfferParams.
type OfferParamsArg struct {
	FillTo             common.Address
	RefundTo           common.Address
	RevertIfIncomplete bool
}

// SwapLeg is one exact-output conversion requested from the swap adapter.
type SwapLeg struct {
	TokenIn        common.Address
	TokenOut       common.Address
	MaxAmountIn    *big.Int
	ExactAmountOut *big.Int
	Recipients     []FeeArg
}

// Item types understood by the approval proxy.
const (
	ItemERC20   uint8 = 1
	ItemERC721  uint8 = 2
	ItemERC1155 uint8 = 3
)

// TransferItem is one asset the approval proxy pulls from the caller.
type TransferItem struct {
	ItemType   uint8
	Token      common.Address
	Identifier *big.Int
	Amount     *big.Int
}

// PermitArg is the signed one-time transfer authorization.
type PermitArg struct {
	Owner     common.Address
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
	Nonce     *big.Int
	Deadline  *big.Int
}

func nz(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// ToOrderArg converts a domain order, defaulting nil numbers to zero.
func ToOrderArg(o domain.Order) OrderArg {
	amount := o.Amount
	if amount == nil || amount.Sign() == 0 {
		amount = big.NewInt(1)
	}
	return OrderArg{
		Maker:                   o.Maker,
		Collection:              o.Collection,
		TokenId:                 nz(o.TokenID),
		Amount:                  amount,
		Kind:                    uint8(o.Kind),
		Side:                    uint8(o.Side),
		Currency:                o.Currency,
		Price:                   nz(o.Price),
		Expiry:                  o.Expiry,
		Salt:                    nz(o.Salt),
		MarketplaceFeeBps:       o.MarketplaceFeeBps,
		MarketplaceFeeRecipient: o.MarketplaceFeeRecipient,
	}
}

// ToDomain converts back to the domain order.
func (a OrderArg) ToDomain() domain.Order {
	return domain.Order{
		Maker:                   a.Maker,
		Collection:              a.Collection,
		TokenID:                 a.TokenId,
		Amount:                  a.Amount,
		Kind:                    domain.ContractKind(a.Kind),
		Side:                    domain.OrderSide(a.Side),
		Currency:                a.Currency,
		Price:                   a.Price,
		Expiry:                  a.Expiry,
		Salt:                    a.Salt,
		MarketplaceFeeBps:       a.MarketplaceFeeBps,
		MarketplaceFeeRecipient: a.MarketplaceFeeRecipient,
	}
}

var orderHashArgs abi.Arguments

func init() {
	orderHashArgs = ModuleABI.Methods["acceptETHListing"].Inputs[:1]
}

// OrderHash is keccak256 of the order's ABI encoding.
func OrderHash(o domain.Order) common.Hash {
	enc, err := orderHashArgs.Pack(ToOrderArg(o))
	if err != nil {
		// Only reachable with a malformed ABI definition.
		panic(fmt.Sprintf("codec.OrderHash: %v", err))
	}
	return crypto.Keccak256Hash(enc)
}

// ToExecutionArgs converts domain executions for packing.
func ToExecutionArgs(execs []domain.Execution) []ExecutionArg {
	out := make([]ExecutionArg, len(execs))
	for i, e := range execs {
		data := e.Data
		if data == nil {
			data = []byte{}
		}
		out[i] = ExecutionArg{Target: e.Target, Data: data, Value: nz(e.Value)}
	}
	return out
}

// ToDomainExecutions converts decoded executions.
func ToDomainExecutions(args []ExecutionArg) []domain.Execution {
	out := make([]domain.Execution, len(args))
	for i, a := range args {
		out[i] = domain.Execution{Target: a.Target, Data: a.Data, Value: a.Value}
	}
	return out
}

// ToFeeArgs converts domain fees for packing.
func ToFeeArgs(fees []domain.Fee) []FeeArg {
	out := make([]FeeArg, len(fees))
	for i, f := range fees {
		out[i] = FeeArg{Recipient: f.Recipient, Amount: nz(f.Amount)}
	}
	return out
}

// ToDomainFees converts decoded fees.
func ToDomainFees(args []FeeArg) []domain.Fee {
	out := make([]domain.Fee, len(args))
	for i, a := range args {
		out[i] = domain.Fee{Recipient: a.Recipient, Amount: a.Amount}
	}
	return out
}

// ToFillParamsArg converts fill params for packing.
func ToFillParamsArg(p domain.FillParams) FillParamsArg {
	return FillParamsArg{
		FillTo:             p.FillTo,
		RefundTo:           p.RefundTo,
		RevertIfIncomplete: p.RevertIfIncomplete,
		Amount:             nz(p.Amount),
		Token:              p.Token,
	}
}

// ToDomain converts decoded fill params.
func (a FillParamsArg) ToDomain() domain.FillParams {
	return domain.FillParams{
		FillTo:             a.FillTo,
		RefundTo:           a.RefundTo,
		RevertIfIncomplete: a.RevertIfIncomplete,
		Amount:             a.Amount,
		Token:              a.Token,
	}
}
