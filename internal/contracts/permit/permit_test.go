package permit_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/contracts/deploy"
	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(s string) *big.Int { return domain.MustParseUnits(s, 6) }

type fixture struct {
	c      *chain.Chain
	d      *deploy.Deployment
	usdc   common.Address
	nft    common.Address
	key    *ecdsa.PrivateKey
	owner  common.Address
	module common.Address
	nextID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := chain.New(1, 1_700_000_000)
	d := deploy.Local(c)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := &fixture{c: c, d: d, key: key, owner: crypto.PubkeyToAddress(key.PublicKey), module: d.Modules[domain.ProtocolOrderbook]}
	f.usdc = c.NewAddress("usdc")
	c.Deploy(f.usdc, chain.NewERC20("USDC"))
	f.nft = c.NewAddress("nft")
	c.Deploy(f.nft, chain.NewERC721("Apes"))
	require.NoError(t, c.MintERC20(f.usdc, f.owner, usd("1000")))

	approve, err := codec.EncodeERC20Approve(d.PermitProxy, codec.MaxUint256)
	require.NoError(t, err)
	_, _, err = c.Transact(f.owner, f.usdc, nil, approve)
	require.NoError(t, err)
	return f
}

func (f *fixture) list(t *testing.T, price *big.Int) domain.Order {
	t.Helper()
	f.nextID++
	seller := f.c.NewAddress("seller")
	id := big.NewInt(f.nextID)
	require.NoError(t, f.c.MintERC721(f.nft, seller, id))
	data, err := codec.EncodeSetApprovalForAll(domain.ContractERC721, f.d.Exchanges[domain.ProtocolOrderbook], true)
	require.NoError(t, err)
	_, _, err = f.c.Transact(seller, f.nft, nil, data)
	require.NoError(t, err)
	return domain.Order{
		Maker: seller, Collection: f.nft, TokenID: id, Amount: big.NewInt(1),
		Kind: domain.ContractERC721, Currency: f.usdc, Price: price, Salt: id,
	}
}

func (f *fixture) permit(amount *big.Int, nonce int64, deadline uint64) codec.PermitArg {
	return codec.PermitArg{
		Owner:     f.owner,
		Token:     f.usdc,
		Amount:    amount,
		Recipient: f.module,
		Nonce:     big.NewInt(nonce),
		Deadline:  new(big.Int).SetUint64(deadline),
	}
}

func sign(t *testing.T, key *ecdsa.PrivateKey, p codec.PermitArg, execs []domain.Execution, chainID *big.Int, proxy common.Address) []byte {
	t.Helper()
	witness, err := codec.ExecutionsWitness(execs)
	require.NoError(t, err)
	digest, err := codec.TypedDataDigest(codec.PermitTypedData(p, witness, chainID, proxy))
	require.NoError(t, err)
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27
	return sig
}

// accept is the module call buying o for the owner.
func (f *fixture) accept(t *testing.T, o domain.Order) []domain.Execution {
	t.Helper()
	data, err := codec.EncodeAcceptERC20Listings([]domain.Order{o}, domain.FillParams{
		FillTo: f.owner, RefundTo: f.owner, RevertIfIncomplete: true, Amount: o.Price, Token: f.usdc,
	}, nil)
	require.NoError(t, err)
	return []domain.Execution{{Target: f.module, Data: data, Value: new(big.Int)}}
}

// sign signs p for the executions buying o.
func (f *fixture) sign(t *testing.T, p codec.PermitArg, o domain.Order) []byte {
	t.Helper()
	return sign(t, f.key, p, f.accept(t, o), f.c.ChainID(), f.d.PermitProxy)
}

func (f *fixture) submit(t *testing.T, from common.Address, permits []codec.PermitArg, sigs [][]byte, execs []domain.Execution) error {
	t.Helper()
	data, err := codec.EncodePermitTransferAndExecute(permits, sigs, execs)
	require.NoError(t, err)
	_, _, err = f.c.Transact(from, f.d.PermitProxy, nil, data)
	return err
}

func (f *fixture) buy(t *testing.T, o domain.Order, permits []codec.PermitArg, sigs [][]byte) error {
	t.Helper()
	return f.submit(t, f.owner, permits, sigs, f.accept(t, o))
}

func (f *fixture) nonce(t *testing.T) int64 {
	t.Helper()
	n, err := f.c.PermitNonce(context.Background(), f.d.PermitProxy, f.owner, f.usdc)
	require.NoError(t, err)
	return n.Int64()
}

func TestPermitProxy_TransferAndExecute(t *testing.T) {
	f := newFixture(t)
	o := f.list(t, usd("100"))
	p := f.permit(usd("100"), 0, f.c.Time()+600)

	require.NoError(t, f.buy(t, o, []codec.PermitArg{p}, [][]byte{f.sign(t, p, o)}))

	assert.Equal(t, usd("900"), f.c.ERC20Balance(f.usdc, f.owner))
	assert.Equal(t, usd("100"), f.c.ERC20Balance(f.usdc, o.Maker))
	assert.Equal(t, f.owner, f.c.OwnerOf(f.nft, o.TokenID))
	assert.Equal(t, int64(1), f.nonce(t))
	assert.Zero(t, f.c.ERC20Balance(f.usdc, f.module).Sign())
	assert.Zero(t, f.c.ERC20Balance(f.usdc, f.d.PermitProxy).Sign())
}

func TestPermitProxy_ReplayFails(t *testing.T) {
	f := newFixture(t)
	o := f.list(t, usd("100"))
	p := f.permit(usd("100"), 0, f.c.Time()+600)
	sig := f.sign(t, p, o)
	require.NoError(t, f.buy(t, o, []codec.PermitArg{p}, [][]byte{sig}))

	err := f.buy(t, o, []codec.PermitArg{p}, [][]byte{sig})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNonceUsed)
	assert.Equal(t, "permit", domain.ErrorClass(err))
	assert.Equal(t, usd("900"), f.c.ERC20Balance(f.usdc, f.owner))
}

func TestPermitProxy_BoundToSignedExecutions(t *testing.T) {
	f := newFixture(t)
	o := f.list(t, usd("100"))
	p := f.permit(usd("100"), 0, f.c.Time()+600)
	sig := f.sign(t, p, o)

	// Someone who saw the signature routes the pulled funds to themselves.
	thief := f.c.NewAddress("thief")
	drain, err := codec.EncodeAcceptERC20Listings(nil, domain.FillParams{
		FillTo: thief, RefundTo: thief, Amount: new(big.Int), Token: f.usdc,
	}, nil)
	require.NoError(t, err)
	err = f.submit(t, thief, []codec.PermitArg{p}, [][]byte{sig}, []domain.Execution{{Target: f.module, Data: drain, Value: new(big.Int)}})
	assert.ErrorIs(t, err, domain.ErrBadSignature)
	assert.Zero(t, f.c.ERC20Balance(f.usdc, thief).Sign())
	assert.Equal(t, usd("1000"), f.c.ERC20Balance(f.usdc, f.owner))
	assert.Equal(t, int64(0), f.nonce(t))

	// The signed executions may still be relayed by anyone.
	relayer := f.c.NewAddress("relayer")
	require.NoError(t, f.submit(t, relayer, []codec.PermitArg{p}, [][]byte{sig}, f.accept(t, o)))
	assert.Equal(t, f.owner, f.c.OwnerOf(f.nft, o.TokenID))
	assert.Equal(t, usd("900"), f.c.ERC20Balance(f.usdc, f.owner))
	assert.Zero(t, f.c.ERC20Balance(f.usdc, relayer).Sign())
}

func TestPermitProxy_Expired(t *testing.T) {
	f := newFixture(t)
	o := f.list(t, usd("100"))
	p := f.permit(usd("100"), 0, f.c.Time()-1)

	err := f.buy(t, o, []codec.PermitArg{p}, [][]byte{f.sign(t, p, o)})
	assert.ErrorIs(t, err, domain.ErrPermitExpired)
	assert.Equal(t, int64(0), f.nonce(t))
}

func TestPermitProxy_BadSignature(t *testing.T) {
	f := newFixture(t)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	p := f.permit(usd("100"), 0, f.c.Time()+600)

	cases := map[string]func(execs []domain.Execution) []byte{
		"wrong signer": func(execs []domain.Execution) []byte {
			return sign(t, other, p, execs, f.c.ChainID(), f.d.PermitProxy)
		},
		"wrong chain": func(execs []domain.Execution) []byte {
			return sign(t, f.key, p, execs, big.NewInt(5), f.d.PermitProxy)
		},
		"wrong proxy": func(execs []domain.Execution) []byte {
			return sign(t, f.key, p, execs, f.c.ChainID(), f.d.ApprovalProxy)
		},
		"truncated": func(execs []domain.Execution) []byte {
			return sign(t, f.key, p, execs, f.c.ChainID(), f.d.PermitProxy)[:64]
		},
		"tampered amount": func(execs []domain.Execution) []byte {
			return sign(t, f.key, f.permit(usd("1"), 0, f.c.Time()+600), execs, f.c.ChainID(), f.d.PermitProxy)
		},
		"tampered recipient": func(execs []domain.Execution) []byte {
			moved := p
			moved.Recipient = f.owner
			return sign(t, f.key, moved, execs, f.c.ChainID(), f.d.PermitProxy)
		},
		"other executions": func([]domain.Execution) []byte {
			return sign(t, f.key, p, nil, f.c.ChainID(), f.d.PermitProxy)
		},
	}

	for name, sigFor := range cases {
		t.Run(name, func(t *testing.T) {
			o := f.list(t, usd("100"))
			err := f.buy(t, o, []codec.PermitArg{p}, [][]byte{sigFor(f.accept(t, o))})
			assert.ErrorIs(t, err, domain.ErrBadSignature)
			assert.Equal(t, usd("1000"), f.c.ERC20Balance(f.usdc, f.owner))
			assert.Equal(t, int64(0), f.nonce(t))
		})
	}
}

func TestPermitProxy_ValidatesAllBeforeMoving(t *testing.T) {
	f := newFixture(t)
	o := f.list(t, usd("100"))
	execs := f.accept(t, o)
	first := f.permit(usd("60"), 0, f.c.Time()+600)
	second := f.permit(usd("40"), 1, f.c.Time()+600)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	err = f.buy(t, o, []codec.PermitArg{first, second}, [][]byte{
		sign(t, f.key, first, execs, f.c.ChainID(), f.d.PermitProxy),
		sign(t, other, second, execs, f.c.ChainID(), f.d.PermitProxy),
	})
	assert.ErrorIs(t, err, domain.ErrBadSignature)
	assert.Equal(t, int64(0), f.nonce(t))

	// Sequential nonces of the same (owner, token) are fine in one call.
	require.NoError(t, f.buy(t, o, []codec.PermitArg{first, second}, [][]byte{
		sign(t, f.key, first, execs, f.c.ChainID(), f.d.PermitProxy),
		sign(t, f.key, second, execs, f.c.ChainID(), f.d.PermitProxy),
	}))
	assert.Equal(t, int64(2), f.nonce(t))
	assert.Equal(t, usd("100"), f.c.ERC20Balance(f.usdc, o.Maker))
}

func TestApprovalProxy_RequiresStandingApproval(t *testing.T) {
	f := newFixture(t)
	o := f.list(t, usd("100"))
	accept, err := codec.EncodeAcceptERC20Listings([]domain.Order{o}, domain.FillParams{
		FillTo: f.owner, RefundTo: f.owner, RevertIfIncomplete: true, Amount: o.Price, Token: f.usdc,
	}, nil)
	require.NoError(t, err)
	data, err := codec.EncodeTransferAndExecute(
		[]codec.TransferItem{{ItemType: codec.ItemERC20, Token: f.usdc, Identifier: new(big.Int), Amount: usd("100")}},
		f.module,
		[]domain.Execution{{Target: f.module, Data: accept, Value: new(big.Int)}},
	)
	require.NoError(t, err)

	// The owner approved the permit proxy, not the approval proxy.
	_, _, err = f.c.Transact(f.owner, f.d.ApprovalProxy, nil, data)
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
	assert.Equal(t, usd("1000"), f.c.ERC20Balance(f.usdc, f.owner))
}

func TestApprovalProxy_UnknownItemType(t *testing.T) {
	f := newFixture(t)
	data, err := codec.EncodeTransferAndExecute(
		[]codec.TransferItem{{ItemType: 9, Token: f.usdc, Identifier: new(big.Int), Amount: usd("1")}},
		f.module, nil,
	)
	require.NoError(t, err)
	_, _, err = f.c.Transact(f.owner, f.d.ApprovalProxy, nil, data)
	assert.ErrorContains(t, err, "unknown item type")
}
