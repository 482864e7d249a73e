package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// MaxUint256 is the "infinite" allowance.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Decoded call arguments, one struct per entry point.

type ExecuteCall struct {
	Executions []ExecutionArg
}

type ListingsCall struct {
	Orders []OrderArg
	Params FillParamsArg
	Fees   []FeeArg
}

type ListingCall struct {
	Order  OrderArg
	Params FillParamsArg
	Fees   []FeeArg
}

type OffersCall struct {
	Orders []OrderArg
	Params OfferParamsArg
	Fees   []FeeArg
}

type FillCall struct {
	Order     OrderArg
	Recipient common.Address
}

type CancelCall struct {
	Order OrderArg
}

type ConvertCall struct {
	Swaps    []SwapLeg
	RefundTo common.Address
	Unwrap   bool
}

type TransferAndExecuteCall struct {
	Items      []TransferItem
	Recipient  common.Address
	Executions []ExecutionArg
}

type PermitCall struct {
	Permits    []PermitArg
	Signatures [][]byte
	Executions []ExecutionArg
}

type VenueSwapCall struct {
	TokenIn     common.Address
	TokenOut    common.Address
	AmountOut   *big.Int
	AmountInMax *big.Int
	Recipient   common.Address
}

// Method resolves the 4-byte selector of input against a.
func Method(a abi.ABI, input []byte) (*abi.Method, []byte, error) {
	if len(input) < 4 {
		return nil, nil, fmt.Errorf("%w: calldata too short (%d bytes)", domain.ErrUnknownMethod, len(input))
	}
	m, err := a.MethodById(input[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %x", domain.ErrUnknownMethod, input[:4])
	}
	return m, input[4:], nil
}

// Unpack decodes the arguments of m into out (a pointer to one of the *Call structs).
func Unpack(m *abi.Method, data []byte, out any) error {
	vals, err := m.Inputs.Unpack(data)
	if err != nil {
		return fmt.Errorf("codec.Unpack %s: %w", m.Name, err)
	}
	if err := m.Inputs.Copy(out, vals); err != nil {
		return fmt.Errorf("codec.Unpack %s: %w", m.Name, err)
	}
	return nil
}

func pack(a abi.ABI, method string, args ...any) ([]byte, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("codec: pack %s: %w", method, err)
	}
	return data, nil
}

func orderArgs(orders []domain.Order) []OrderArg {
	out := make([]OrderArg, len(orders))
	for i, o := range orders {
		out[i] = ToOrderArg(o)
	}
	return out
}

// EncodeExecute builds Router.execute calldata.
func EncodeExecute(execs []domain.Execution) ([]byte, error) {
	return pack(RouterABI, "execute", ToExecutionArgs(execs))
}

// EncodeAcceptETHListings builds the native-currency listings batch call.
func EncodeAcceptETHListings(orders []domain.Order, p domain.FillParams, fees []domain.Fee) ([]byte, error) {
	return pack(ModuleABI, "acceptETHListings", orderArgs(orders), ToFillParamsArg(p), ToFeeArgs(fees))
}

// EncodeAcceptETHListing builds the single-order shortcut.
func EncodeAcceptETHListing(order domain.Order, p domain.FillParams, fees []domain.Fee) ([]byte, error) {
	return pack(ModuleABI, "acceptETHListing", ToOrderArg(order), ToFillParamsArg(p), ToFeeArgs(fees))
}

// EncodeAcceptERC20Listings builds the ERC-20 listings batch call.
func EncodeAcceptERC20Listings(orders []domain.Order, p domain.FillParams, fees []domain.Fee) ([]byte, error) {
	return pack(ModuleABI, "acceptERC20Listings", orderArgs(orders), ToFillParamsArg(p), ToFeeArgs(fees))
}

// EncodeAcceptOffers builds the offers batch call.
func EncodeAcceptOffers(orders []domain.Order, p domain.OfferParams, fees []domain.Fee) ([]byte, error) {
	params := OfferParamsArg{FillTo: p.FillTo, RefundTo: p.RefundTo, RevertIfIncomplete: p.RevertIfIncomplete}
	return pack(ModuleABI, "acceptOffers", orderArgs(orders), params, ToFeeArgs(fees))
}

// EncodeFill builds Exchange.fill calldata.
func EncodeFill(order domain.Order, recipient common.Address) ([]byte, error) {
	return pack(ExchangeABI, "fill", ToOrderArg(order), recipient)
}

// EncodeCancel builds Exchange.cancel calldata.
func EncodeCancel(order domain.Order) ([]byte, error) {
	return pack(ExchangeABI, "cancel", ToOrderArg(order))
}

// EncodeVenueSwap builds the liquidity venue's exact-output swap call.
func EncodeVenueSwap(tokenIn, tokenOut common.Address, amountOut, amountInMax *big.Int, recipient common.Address) ([]byte, error) {
	return pack(VenueABI, "swap", tokenIn, tokenOut, nz(amountOut), nz(amountInMax), recipient)
}

// EncodeConvertExactOutput builds the swap adapter call.
func EncodeConvertExactOutput(legs []SwapLeg, refundTo common.Address, unwrap bool) ([]byte, error) {
	clean := make([]SwapLeg, len(legs))
	for i, l := range legs {
		recipients := l.Recipients
		if recipients == nil {
			recipients = []FeeArg{}
		}
		clean[i] = SwapLeg{
			TokenIn:        l.TokenIn,
			TokenOut:       l.TokenOut,
			MaxAmountIn:    nz(l.MaxAmountIn),
			ExactAmountOut: nz(l.ExactAmountOut),
			Recipients:     recipients,
		}
	}
	return pack(SwapAdapterABI, "convertExactOutput", clean, refundTo, unwrap)
}

// EncodeTransferAndExecute builds the approval proxy call.
func EncodeTransferAndExecute(items []TransferItem, recipient common.Address, execs []domain.Execution) ([]byte, error) {
	if items == nil {
		items = []TransferItem{}
	}
	return pack(ApprovalProxyABI, "transferAndExecute", items, recipient, ToExecutionArgs(execs))
}

// EncodePermitTransferAndExecute builds the permit proxy call.
func EncodePermitTransferAndExecute(permits []PermitArg, sigs [][]byte, execs []domain.Execution) ([]byte, error) {
	if sigs == nil {
		sigs = [][]byte{}
	}
	return pack(PermitProxyABI, "permitTransferAndExecute", permits, sigs, ToExecutionArgs(execs))
}

// EncodeERC20Approve builds an ERC-20 approve call.
func EncodeERC20Approve(spender common.Address, amount *big.Int) ([]byte, error) {
	return pack(ERC20ABI, "approve", spender, nz(amount))
}

// EncodeSetApprovalForAll builds an operator approval for either NFT standard.
func EncodeSetApprovalForAll(kind domain.ContractKind, operator common.Address, approved bool) ([]byte, error) {
	if kind == domain.ContractERC1155 {
		return pack(ERC1155ABI, "setApprovalForAll", operator, approved)
	}
	return pack(ERC721ABI, "setApprovalForAll", operator, approved)
}
