package executor_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/nftagg/internal/application/executor"
	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/contracts/deploy"
	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/alejandrodnm/nftagg/internal/planner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	taker = common.HexToAddress("0x0000000000000000000000000000000000007a4e")
	proxy = common.HexToAddress("0x00000000000000000000000000000000000e0001")
	usdc  = common.HexToAddress("0x00000000000000000000000000000000000c0001")
)

// --- mocks ---

type mockSubmitter struct {
	mu       sync.Mutex
	receipts []domain.Receipt // consumed in order; success when exhausted
	errAt    map[int]error
	sent     []domain.TxData
}

func (m *mockSubmitter) Submit(_ context.Context, tx domain.TxData) (domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sent)
	m.sent = append(m.sent, tx)
	if err := m.errAt[n]; err != nil {
		return domain.Receipt{}, err
	}
	if n < len(m.receipts) {
		return m.receipts[n], nil
	}
	return domain.Receipt{Success: true}, nil
}

type mockSigner struct {
	addr     common.Address
	err      error
	permits  int
	messages []string
}

func (m *mockSigner) Address() common.Address { return m.addr }

func (m *mockSigner) SignPermit(_ context.Context, _ domain.PermitRequest) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.permits++
	return bytes.Repeat([]byte{0xab}, 65), nil
}

func (m *mockSigner) SignMessage(_ context.Context, msg string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.messages = append(m.messages, msg)
	return bytes.Repeat([]byte{0xcd}, 65), nil
}

type mockStore struct {
	reports []domain.ExecutionReport
}

func (m *mockStore) SavePlan(context.Context, domain.TransactionPlan) error { return nil }
func (m *mockStore) GetPlan(context.Context, string) (domain.TransactionPlan, error) {
	return domain.TransactionPlan{}, nil
}
func (m *mockStore) SaveReport(_ context.Context, r domain.ExecutionReport) error {
	m.reports = append(m.reports, r)
	return nil
}
func (m *mockStore) GetReports(context.Context, string) ([]domain.ExecutionReport, error) {
	return m.reports, nil
}
func (m *mockStore) Close() error { return nil }

// --- helpers ---

func routerTx(orders ...string) domain.Transaction {
	tx := domain.Transaction{Entry: domain.EntryRouter, TxData: domain.TxData{From: taker, Data: []byte{0x01}}}
	for i, id := range orders {
		tx.Orders = append(tx.Orders, id)
		tx.OrderHashes = append(tx.OrderHashes, common.BigToHash(big.NewInt(int64(i+1))).Hex())
	}
	return tx
}

func permitTx(t *testing.T) domain.Transaction {
	t.Helper()
	arg := codec.PermitArg{
		Owner:     taker,
		Token:     usdc,
		Amount:    big.NewInt(100),
		Recipient: proxy,
		Nonce:     big.NewInt(0),
		Deadline:  big.NewInt(1_700_000_000),
	}
	data, err := codec.EncodePermitTransferAndExecute([]codec.PermitArg{arg}, [][]byte{make([]byte, 65)}, nil)
	require.NoError(t, err)
	tx := routerTx("erc20-order")
	tx.Entry = domain.EntryPermitProxy
	tx.TxData.Data = data
	tx.Permits = []domain.PermitRequest{{
		ID:        "permit-1",
		Owner:     taker,
		Token:     usdc,
		Amount:    arg.Amount,
		Recipient: proxy,
		Nonce:     arg.Nonce,
		Deadline:  1_700_000_000,
		TypedData: codec.PermitTypedData(arg, common.Hash{}, big.NewInt(1), proxy),
	}}
	return tx
}

func filledLog(tx domain.Transaction, i int) domain.FillLog {
	return domain.FillLog{OrderHash: tx.OrderHashes[i], Filled: true}
}

// --- Report ---

func TestReport(t *testing.T) {
	tx := routerTx("a", "b", "c")

	t.Run("all filled", func(t *testing.T) {
		r := executor.Report("p", 0, tx, domain.Receipt{
			TxHash:  "0x1",
			Success: true,
			Logs:    []domain.FillLog{filledLog(tx, 0), filledLog(tx, 1), filledLog(tx, 2)},
		})
		assert.Equal(t, domain.StatusSucceeded, r.Status)
		assert.Equal(t, []string{"a", "b", "c"}, r.Filled)
		assert.Empty(t, r.Skipped)
		assert.Equal(t, "0x1", r.TxHash)
	})

	t.Run("partial", func(t *testing.T) {
		r := executor.Report("p", 2, tx, domain.Receipt{
			Success: true,
			Logs: []domain.FillLog{
				filledLog(tx, 0),
				{OrderHash: tx.OrderHashes[1], Reason: "order cancelled"},
				filledLog(tx, 2),
			},
		})
		assert.Equal(t, domain.StatusPartial, r.Status)
		assert.Equal(t, []string{"a", "c"}, r.Filled)
		assert.Equal(t, []string{"b"}, r.Skipped)
		assert.Equal(t, 2, r.TxIndex)
	})

	t.Run("nothing filled", func(t *testing.T) {
		r := executor.Report("p", 0, tx, domain.Receipt{Success: true})
		assert.Equal(t, domain.StatusPartial, r.Status)
		assert.Empty(t, r.Filled)
		assert.Len(t, r.Skipped, 3)
	})

	t.Run("reverted", func(t *testing.T) {
		r := executor.Report("p", 0, tx, domain.Receipt{Success: false, Error: "batch incomplete"})
		assert.Equal(t, domain.StatusReverted, r.Status)
		assert.Equal(t, "batch incomplete", r.Error)
		assert.Equal(t, []string{"a", "b", "c"}, r.Skipped)
	})

	t.Run("duplicate hash counted once per log", func(t *testing.T) {
		dup := routerTx("a", "b")
		dup.OrderHashes[1] = dup.OrderHashes[0]
		r := executor.Report("p", 0, dup, domain.Receipt{Success: true, Logs: []domain.FillLog{filledLog(dup, 0)}})
		assert.Equal(t, []string{"a"}, r.Filled)
		assert.Equal(t, []string{"b"}, r.Skipped)
	})
}

// --- Execute ---

func TestExecutor_RunsPlansInOrder(t *testing.T) {
	sub := &mockSubmitter{}
	store := &mockStore{}
	plans := []domain.TransactionPlan{
		{ID: "p1", PreTxs: []domain.Approval{{Kind: domain.ApprovalERC20, TxData: domain.TxData{Data: []byte{0xaa}}}}, Txs: []domain.Transaction{routerTx("a")}},
		{ID: "p2", Txs: []domain.Transaction{routerTx("b"), routerTx("c")}},
	}
	sub.receipts = []domain.Receipt{
		{Success: true},
		{Success: true, Logs: []domain.FillLog{filledLog(plans[0].Txs[0], 0)}},
		{Success: false, Error: "reverted"},
		{Success: true, Logs: []domain.FillLog{filledLog(plans[1].Txs[1], 0)}},
	}

	reports, err := executor.New(sub, nil, store).Execute(t.Context(), plans)
	require.NoError(t, err)
	require.Len(t, sub.sent, 4)
	assert.Equal(t, []byte{0xaa}, sub.sent[0].Data, "the approval goes first")

	require.Len(t, reports, 3)
	assert.Equal(t, domain.StatusSucceeded, reports[0].Status)
	assert.Equal(t, domain.StatusReverted, reports[1].Status)
	assert.Equal(t, domain.StatusSucceeded, reports[2].Status, "a revert without permits does not stop the plan")
	assert.Equal(t, "p2", reports[2].PlanID)
	assert.Equal(t, 1, reports[2].TxIndex)
	assert.Len(t, store.reports, 3)
}

func TestExecutor_PreTxFailureSkipsRest(t *testing.T) {
	sub := &mockSubmitter{receipts: []domain.Receipt{{Success: false, Error: "out of gas"}}}
	plans := []domain.TransactionPlan{
		{ID: "p1", PreTxs: []domain.Approval{{Kind: domain.ApprovalForAll}}, Txs: []domain.Transaction{routerTx("a", "b")}},
		{ID: "p2", Txs: []domain.Transaction{routerTx("c")}},
	}

	reports, err := executor.New(sub, nil, nil).Execute(t.Context(), plans)
	require.NoError(t, err)
	assert.Len(t, sub.sent, 1)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.Equal(t, domain.StatusSkipped, r.Status)
	}
	assert.Contains(t, reports[0].Error, "out of gas")
	assert.Equal(t, []string{"a", "b"}, reports[0].Skipped)
	assert.Contains(t, reports[1].Error, "earlier plan p1")
}

func TestExecutor_SubmitErrorStops(t *testing.T) {
	sub := &mockSubmitter{errAt: map[int]error{1: errors.New("connection reset")}}
	store := &mockStore{}
	plans := []domain.TransactionPlan{{ID: "p1", Txs: []domain.Transaction{routerTx("a"), routerTx("b"), routerTx("c")}}}

	reports, err := executor.New(sub, nil, store).Execute(t.Context(), plans)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
	assert.Len(t, sub.sent, 2)
	require.Len(t, reports, 3)
	assert.Equal(t, domain.StatusPartial, reports[0].Status)
	assert.Equal(t, domain.StatusSkipped, reports[1].Status)
	assert.Equal(t, domain.StatusSkipped, reports[2].Status)
	assert.Len(t, store.reports, 3)
}

func TestExecutor_SignsPermits(t *testing.T) {
	sub := &mockSubmitter{}
	signer := &mockSigner{addr: taker}
	tx := permitTx(t)
	plans := []domain.TransactionPlan{{ID: "p1", Txs: []domain.Transaction{tx}}}

	reports, err := executor.New(sub, signer, nil).Execute(t.Context(), plans)
	require.NoError(t, err)
	require.Len(t, sub.sent, 1)
	assert.Equal(t, 1, signer.permits)
	assert.True(t, bytes.Contains(sub.sent[0].Data, bytes.Repeat([]byte{0xab}, 65)))
	assert.NotEqual(t, tx.TxData.Data, sub.sent[0].Data)
	assert.False(t, tx.Permits[0].Signed(), "the caller's plan is not modified")
	assert.Equal(t, domain.StatusPartial, reports[0].Status)
}

func TestExecutor_RevertedPermitHaltsLaterPlans(t *testing.T) {
	sub := &mockSubmitter{receipts: []domain.Receipt{{Success: false, Error: "permit expired"}}}
	plans := []domain.TransactionPlan{
		{ID: "p1", Txs: []domain.Transaction{permitTx(t)}},
		{ID: "p2", Txs: []domain.Transaction{routerTx("x")}},
	}

	reports, err := executor.New(sub, &mockSigner{addr: taker}, nil).Execute(t.Context(), plans)
	require.NoError(t, err)
	assert.Len(t, sub.sent, 1)
	require.Len(t, reports, 2)
	assert.Equal(t, domain.StatusReverted, reports[0].Status)
	assert.Equal(t, domain.StatusSkipped, reports[1].Status)
}

func TestExecutor_SignerMismatchSkipsTransaction(t *testing.T) {
	sub := &mockSubmitter{}
	tx := routerTx("auction-1")
	tx.PreSignatures = []domain.PreSignatureRequest{{Kind: domain.PreSignatureTakerAuth, Signer: taker, OrderID: "auction-1", Message: "auth"}}
	plans := []domain.TransactionPlan{{ID: "p1", Txs: []domain.Transaction{tx, routerTx("z")}}}

	reports, err := executor.New(sub, &mockSigner{addr: common.HexToAddress("0xbad")}, nil).Execute(t.Context(), plans)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, domain.StatusSkipped, reports[0].Status)
	assert.Contains(t, reports[0].Error, "signer is")
	assert.Len(t, sub.sent, 1, "a transaction without permits does not halt the rest")
	assert.NotEqual(t, domain.StatusSkipped, reports[1].Status)
}

func TestExecutor_UnsignedPermitHaltsLaterTransactions(t *testing.T) {
	sub := &mockSubmitter{}
	signer := &mockSigner{addr: taker, err: errors.New("wallet locked")}
	plans := []domain.TransactionPlan{
		{ID: "p1", Txs: []domain.Transaction{permitTx(t), routerTx("y")}},
		{ID: "p2", Txs: []domain.Transaction{permitTx(t)}},
	}

	reports, err := executor.New(sub, signer, nil).Execute(t.Context(), plans)
	require.NoError(t, err)
	assert.Empty(t, sub.sent)
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.Equal(t, domain.StatusSkipped, r.Status)
	}
	assert.Contains(t, reports[0].Error, "wallet locked")
	assert.Contains(t, reports[1].Error, "permit transaction p1/0 not signed")
	assert.Equal(t, "p2", reports[2].PlanID)
	assert.Contains(t, reports[2].Error, "not signed")
}

func TestExecutor_SignsPreSignatures(t *testing.T) {
	sub := &mockSubmitter{}
	signer := &mockSigner{addr: taker}
	tx := routerTx("auction-1")
	tx.PreSignatures = []domain.PreSignatureRequest{{Kind: domain.PreSignatureTakerAuth, Signer: taker, OrderID: "auction-1", Message: "Authorize auction fill of order auction-1"}}

	_, err := executor.New(sub, signer, nil).Execute(t.Context(), []domain.TransactionPlan{{ID: "p", Txs: []domain.Transaction{tx}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Authorize auction fill of order auction-1"}, signer.messages)
	assert.Empty(t, tx.PreSignatures[0].Signature)
}

// --- end to end on the in-process chain ---

func TestExecutor_EndToEnd_PartialFill(t *testing.T) {
	c := chain.New(1, 1_700_000_000)
	d := deploy.Local(c)
	nft := c.NewAddress("nft")
	c.Deploy(nft, chain.NewERC721("Apes"))
	buyer := c.NewAddress("buyer")
	require.NoError(t, c.Fund(buyer, domain.MustParseUnits("10", 18)))

	var listings []domain.ListingDetail
	for i := int64(1); i <= 3; i++ {
		seller := c.NewAddress("seller")
		id := big.NewInt(i)
		require.NoError(t, c.MintERC721(nft, seller, id))
		approve, err := codec.EncodeSetApprovalForAll(domain.ContractERC721, d.Exchanges[domain.ProtocolOrderbook], true)
		require.NoError(t, err)
		_, _, err = c.Transact(seller, nft, nil, approve)
		require.NoError(t, err)
		price := domain.MustParseUnits("1", 18)
		listings = append(listings, domain.ListingDetail{
			OrderID:      "order-" + id.String(),
			Protocol:     domain.ProtocolOrderbook,
			ContractKind: domain.ContractERC721,
			Contract:     nft,
			TokenID:      id,
			Currency:     domain.NativeCurrency,
			Price:        price,
			Order: domain.Order{
				Maker: seller, Collection: nft, TokenID: id, Amount: big.NewInt(1),
				Kind: domain.ContractERC721, Side: domain.SideListing,
				Currency: domain.NativeCurrency, Price: price, Salt: id,
			},
		})
	}
	cancel, err := codec.EncodeCancel(listings[1].Order)
	require.NoError(t, err)
	_, _, err = c.Transact(listings[1].Order.Maker, d.Exchanges[domain.ProtocolOrderbook], nil, cancel)
	require.NoError(t, err)

	p := planner.New(planner.Config{
		ChainID:       c.ChainID(),
		Router:        d.Router,
		ApprovalProxy: d.ApprovalProxy,
		PermitProxy:   d.PermitProxy,
		WETH:          d.WETH,
		SwapAdapters:  d.SwapAdapters,
		Now:           func() time.Time { return time.Unix(int64(c.Time()), 0) },
	}, planner.NewRegistry(planner.ModuleSpec{
		Kind:           domain.ProtocolOrderbook,
		Address:        d.Modules[domain.ProtocolOrderbook],
		SupportsOffers: true,
	}), d.Quoter(), c)

	t.Run("partial", func(t *testing.T) {
		plans, err := p.PlanListings(t.Context(), listings, buyer, domain.Options{Partial: true})
		require.NoError(t, err)

		reports, err := executor.New(c, nil, nil).Execute(t.Context(), plans)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, domain.StatusPartial, reports[0].Status)
		assert.Equal(t, []string{"order-1", "order-3"}, reports[0].Filled)
		assert.Equal(t, []string{"order-2"}, reports[0].Skipped)
		assert.Equal(t, domain.MustParseUnits("8", 18), c.NativeBalance(buyer))
	})

	t.Run("all or nothing", func(t *testing.T) {
		plans, err := p.PlanListings(t.Context(), listings[1:2], buyer, domain.Options{})
		require.NoError(t, err)

		reports, err := executor.New(c, nil, nil).Execute(t.Context(), plans)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, domain.StatusReverted, reports[0].Status)
		assert.Equal(t, []string{"order-2"}, reports[0].Skipped)
		assert.Equal(t, domain.MustParseUnits("8", 18), c.NativeBalance(buyer))
	})
}
