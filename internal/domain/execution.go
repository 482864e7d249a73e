package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeCurrency identifies the chain's native asset wherever a currency
// address is expected.
var NativeCurrency = common.Address{}

// IsNative reports whether currency is the native asset.
func IsNative(currency common.Address) bool {
	return currency == NativeCurrency
}

// Execution is a single call the Router forwards: value and calldata to target.
type Execution struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
}

// FillParams controls one module batch.
// Amount is the total consideration (sum of order prices) the batch may spend;
// fees on top are scaled by actualFilled / Amount.
type FillParams struct {
	FillTo             common.Address
	RefundTo           common.Address
	RevertIfIncomplete bool
	Amount             *big.Int
	Token              common.Address // NativeCurrency for native listings
}

// OfferParams controls a batch of accepted offers.
type OfferParams struct {
	FillTo             common.Address
	RefundTo           common.Address
	RevertIfIncomplete bool
}

// Fee is a flat amount requested per full batch.
type Fee struct {
	Recipient common.Address
	Amount    *big.Int
}

// TxData is a ready-to-sign transaction request.
type TxData struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

// TotalValue sums the native value carried by the executions.
func TotalValue(execs []Execution) *big.Int {
	total := new(big.Int)
	for _, e := range execs {
		if e.Value != nil {
			total.Add(total, e.Value)
		}
	}
	return total
}

// SumFees returns the sum of all fee amounts.
func SumFees(fees []Fee) *big.Int {
	total := new(big.Int)
	for _, f := range fees {
		if f.Amount != nil {
			total.Add(total, f.Amount)
		}
	}
	return total
}

// ScaleFee returns floor(fee * filled / amount). The truncated remainder is
// not paid out and ends up with the refund recipient.
func ScaleFee(fee, filled, amount *big.Int) *big.Int {
	if fee == nil || filled == nil || amount == nil || amount.Sign() == 0 {
		return new(big.Int)
	}
	if filled.Cmp(amount) >= 0 {
		return new(big.Int).Set(fee)
	}
	out := new(big.Int).Mul(fee, filled)
	return out.Quo(out, amount)
}
