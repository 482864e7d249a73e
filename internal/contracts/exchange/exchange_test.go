package exchange_test

import (
	"math/big"
	"testing"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/contracts/exchange"
	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	c      *chain.Chain
	x      common.Address
	nft    common.Address
	maker  common.Address
	taker  common.Address
	market common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := chain.New(1, 1_700_000_000)
	f := &fixture{c: c, x: c.NewAddress("exchange"), nft: c.NewAddress("nft"),
		maker: c.NewAddress("maker"), taker: c.NewAddress("taker"), market: c.NewAddress("market")}
	c.Deploy(f.x, exchange.New("Exchange"))
	c.Deploy(f.nft, chain.NewERC721("Apes"))
	require.NoError(t, c.Fund(f.taker, big.NewInt(10_000)))
	require.NoError(t, c.MintERC721(f.nft, f.maker, big.NewInt(1)))

	data, err := codec.EncodeSetApprovalForAll(domain.ContractERC721, f.x, true)
	require.NoError(t, err)
	_, _, err = c.Transact(f.maker, f.nft, nil, data)
	require.NoError(t, err)
	return f
}

func (f *fixture) listing() domain.Order {
	return domain.Order{
		Maker: f.maker, Collection: f.nft, TokenID: big.NewInt(1), Amount: big.NewInt(1),
		Currency: domain.NativeCurrency, Price: big.NewInt(1_000), Salt: big.NewInt(9),
		MarketplaceFeeBps: 250, MarketplaceFeeRecipient: f.market,
	}
}

func (f *fixture) status(t *testing.T, o domain.Order) (bool, bool) {
	t.Helper()
	hash := codec.OrderHash(o)
	data, err := codec.ExchangeABI.Pack("status", hash)
	require.NoError(t, err)
	out, err := f.c.StaticCall(f.x, data)
	require.NoError(t, err)
	vals, err := codec.ExchangeABI.Unpack("status", out)
	require.NoError(t, err)
	return vals[0].(bool), vals[1].(bool)
}

func TestExchange_FillListing(t *testing.T) {
	f := newFixture(t)
	o := f.listing()
	recipient := f.c.NewAddress("recipient")
	data, err := codec.EncodeFill(o, recipient)
	require.NoError(t, err)

	_, logs, err := f.c.Transact(f.taker, f.x, big.NewInt(1_000), data)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "OrderFilled", logs[0].Event)

	assert.Equal(t, recipient, f.c.OwnerOf(f.nft, big.NewInt(1)))
	assert.Equal(t, int64(975), f.c.NativeBalance(f.maker).Int64())
	assert.Equal(t, int64(25), f.c.NativeBalance(f.market).Int64())

	filled, cancelled := f.status(t, o)
	assert.True(t, filled)
	assert.False(t, cancelled)

	_, _, err = f.c.Transact(f.taker, f.x, big.NewInt(1_000), data)
	assert.ErrorIs(t, err, domain.ErrOrderFilled)
}

func TestExchange_WrongPayment(t *testing.T) {
	f := newFixture(t)
	data, err := codec.EncodeFill(f.listing(), f.taker)
	require.NoError(t, err)
	_, _, err = f.c.Transact(f.taker, f.x, big.NewInt(999), data)
	assert.ErrorIs(t, err, domain.ErrBadPayment)
	assert.True(t, domain.IsOrderLevel(err))
}

func TestExchange_CancelOnlyByMaker(t *testing.T) {
	f := newFixture(t)
	o := f.listing()
	data, err := codec.EncodeCancel(o)
	require.NoError(t, err)

	_, _, err = f.c.Transact(f.taker, f.x, nil, data)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, _, err = f.c.Transact(f.maker, f.x, nil, data)
	require.NoError(t, err)
	_, cancelled := f.status(t, o)
	assert.True(t, cancelled)

	fill, err := codec.EncodeFill(o, f.taker)
	require.NoError(t, err)
	_, _, err = f.c.Transact(f.taker, f.x, big.NewInt(1_000), fill)
	assert.ErrorIs(t, err, domain.ErrOrderCancelled)
}

func TestExchange_MakerMustStillOwnAsset(t *testing.T) {
	f := newFixture(t)
	move, err := codec.ERC721ABI.Pack("transferFrom", f.maker, f.market, big.NewInt(1))
	require.NoError(t, err)
	_, _, err = f.c.Transact(f.maker, f.nft, nil, move)
	require.NoError(t, err)

	fill, err := codec.EncodeFill(f.listing(), f.taker)
	require.NoError(t, err)
	_, _, err = f.c.Transact(f.taker, f.x, big.NewInt(1_000), fill)
	assert.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestExchange_NativeOffersAreRejected(t *testing.T) {
	f := newFixture(t)
	o := f.listing()
	o.Side = domain.SideOffer
	fill, err := codec.EncodeFill(o, f.taker)
	require.NoError(t, err)
	_, _, err = f.c.Transact(f.maker, f.x, nil, fill)
	assert.ErrorIs(t, err, domain.ErrBadPayment)
}
