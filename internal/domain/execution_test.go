package domain

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleFee(t *testing.T) {
	tests := []struct {
		name                string
		fee, filled, amount int64
		want                int64
	}{
		{"full fill", 30, 300, 300, 30},
		{"overfill caps at fee", 30, 400, 300, 30},
		{"two thirds", 30, 200, 300, 20},
		{"truncates", 10, 1, 3, 3},
		{"nothing filled", 30, 0, 300, 0},
		{"zero amount", 30, 100, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleFee(big.NewInt(tt.fee), big.NewInt(tt.filled), big.NewInt(tt.amount))
			assert.Equal(t, tt.want, got.Int64())
		})
	}
	assert.Zero(t, ScaleFee(nil, big.NewInt(1), big.NewInt(1)).Sign())
}

func TestTotals(t *testing.T) {
	execs := []Execution{{Value: big.NewInt(5)}, {}, {Value: big.NewInt(7)}}
	assert.Equal(t, int64(12), TotalValue(execs).Int64())

	fees := []Fee{{Amount: big.NewInt(3)}, {Amount: nil}, {Amount: big.NewInt(4)}}
	assert.Equal(t, int64(7), SumFees(fees).Int64())

	orders := []Order{{Price: big.NewInt(100)}, {Price: big.NewInt(50)}}
	assert.Equal(t, int64(150), SumPrices(orders).Int64())
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrOrderCancelled, "order"},
		{&RevertError{Contract: "orderbook", Method: "fill", Cause: ErrNotOwner}, "order"},
		{fmt.Errorf("module: %w", ErrIncomplete), "batch"},
		{ErrSlippage, "swap"},
		{ErrNonceUsed, "permit"},
		{fmt.Errorf("plan: %w", ErrNoViableGrouping), "planner"},
		{fmt.Errorf("boom"), "batch"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorClass(tt.err), "%v", tt.err)
	}
	assert.True(t, IsOrderLevel(ErrOrderExpired))
	assert.False(t, IsOrderLevel(ErrInsufficientValue))
}

func TestRevertError_Message(t *testing.T) {
	err := &RevertError{Contract: "router", Method: "execute", Cause: ErrIncomplete}
	assert.Equal(t, "router.execute reverted: batch incomplete", err.Error())
	assert.ErrorIs(t, err, ErrIncomplete)

	err = &RevertError{Contract: "router", Cause: ErrReentrant}
	assert.Equal(t, "router reverted: reentrant call", err.Error())
}

func TestParsers(t *testing.T) {
	k, err := ParseProtocolKind("pool")
	require.NoError(t, err)
	assert.Equal(t, ProtocolPool, k)
	_, err = ParseProtocolKind("blur")
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)

	ck, err := ParseContractKind("ERC1155")
	require.NoError(t, err)
	assert.Equal(t, ContractERC1155, ck)
	assert.Equal(t, "erc1155", ck.String())
	_, err = ParseContractKind("erc20")
	assert.Error(t, err)

	p, err := ParseSwapProvider("")
	require.NoError(t, err)
	assert.Equal(t, SwapUniswapV3, p)
	_, err = ParseSwapProvider("sushi")
	assert.Error(t, err)
}

func TestUnitsDefaultToOne(t *testing.T) {
	assert.Equal(t, int64(1), ListingDetail{}.Units().Int64())
	assert.Equal(t, int64(3), BidDetail{Amount: big.NewInt(3)}.Units().Int64())
}

func TestPlanHelpers(t *testing.T) {
	tx := Transaction{
		Orders:  []string{"a", "b"},
		Permits: []PermitRequest{{Signature: make([]byte, 65)}, {}},
	}
	assert.True(t, tx.NeedsSignatures())
	tx.Permits[1].Signature = make([]byte, 65)
	assert.False(t, tx.NeedsSignatures())

	plan := TransactionPlan{Txs: []Transaction{tx, {Orders: []string{"c"}}}}
	assert.Equal(t, 3, plan.OrderCount())
}
