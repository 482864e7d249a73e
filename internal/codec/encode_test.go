package codec_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

var (
	module  = common.HexToAddress("0x00000000000000000000000000000000000a0001")
	adapter = common.HexToAddress("0x00000000000000000000000000000000000a0002")
	taker   = common.HexToAddress("0x0000000000000000000000000000000000007a4e")
)

func executions() []domain.Execution {
	return []domain.Execution{
		{Target: module, Data: []byte{0x01, 0x02}, Value: big.NewInt(5)},
		{Target: adapter, Value: big.NewInt(0)},
	}
}

func TestUnpack_DecodesIntoCallStruct(t *testing.T) {
	data, err := codec.EncodeExecute(executions())
	require.NoError(t, err)

	m, args, err := codec.Method(codec.RouterABI, data)
	require.NoError(t, err)
	assert.Equal(t, "execute", m.Name)

	var call codec.ExecuteCall
	require.NoError(t, codec.Unpack(m, args, &call))
	require.Len(t, call.Executions, 2)
	assert.Equal(t, module, call.Executions[0].Target)
	assert.Equal(t, []byte{0x01, 0x02}, call.Executions[0].Data)
	assert.Equal(t, big.NewInt(5), call.Executions[0].Value)
	assert.Equal(t, adapter, call.Executions[1].Target)
	assert.Empty(t, call.Executions[1].Data)
}

func TestUnpack_NestedTuples(t *testing.T) {
	order := domain.Order{
		Maker: taker, Collection: module, TokenID: big.NewInt(7), Amount: big.NewInt(1),
		Kind: domain.ContractERC721, Side: domain.SideOffer, Currency: adapter, Price: big.NewInt(100), Salt: big.NewInt(1),
	}
	data, err := codec.EncodeAcceptOffers([]domain.Order{order}, domain.OfferParams{FillTo: adapter, RefundTo: taker, RevertIfIncomplete: true},
		[]domain.Fee{{Recipient: taker, Amount: big.NewInt(3)}})
	require.NoError(t, err)

	m, args, err := codec.Method(codec.ModuleABI, data)
	require.NoError(t, err)
	var call codec.OffersCall
	require.NoError(t, codec.Unpack(m, args, &call))
	require.Len(t, call.Orders, 1)
	assert.Equal(t, big.NewInt(7), call.Orders[0].ToDomain().TokenID)
	assert.Equal(t, adapter, call.Params.FillTo)
	assert.True(t, call.Params.RevertIfIncomplete)
	assert.Equal(t, big.NewInt(3), call.Fees[0].Amount)
}

func TestUnpack_RejectsTruncatedInput(t *testing.T) {
	data, err := codec.EncodeExecute(executions())
	require.NoError(t, err)
	m, args, err := codec.Method(codec.RouterABI, data)
	require.NoError(t, err)

	var call codec.ExecuteCall
	assert.ErrorContains(t, codec.Unpack(m, args[:40], &call), "codec.Unpack execute")
}

func TestExecutionsWitness(t *testing.T) {
	execs := executions()
	w, err := codec.ExecutionsWitness(execs)
	require.NoError(t, err)

	data, err := codec.EncodeExecute(execs)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(data[4:]), w, "hash of the execute arguments")

	other := executions()
	other[0].Value = big.NewInt(6)
	w2, err := codec.ExecutionsWitness(other)
	require.NoError(t, err)
	assert.NotEqual(t, w, w2)
}
