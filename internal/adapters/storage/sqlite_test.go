package storage_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alejandrodnm/nftagg/internal/adapters/storage"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x0000000000000000000000000000000000001001")
	usdc  = common.HexToAddress("0x00000000000000000000000000000000000c0001")
	proxy = common.HexToAddress("0x00000000000000000000000000000000000e0001")
	mod   = common.HexToAddress("0x00000000000000000000000000000000000e0002")
)

func newStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makePlan(id string) domain.TransactionPlan {
	arg := codec.PermitArg{
		Owner:     owner,
		Token:     usdc,
		Amount:    big.NewInt(350_000_000),
		Recipient: mod,
		Nonce:     big.NewInt(2),
		Deadline:  big.NewInt(1_700_001_800),
	}
	witness := common.HexToHash("0xfeed")
	return domain.TransactionPlan{
		ID: id,
		PreTxs: []domain.Approval{{
			Owner:   owner,
			Token:   usdc,
			Spender: proxy,
			Kind:    domain.ApprovalERC20,
			TxData:  domain.TxData{From: owner, To: usdc, Data: []byte{0x09, 0x5e, 0xa7, 0xb3}},
		}},
		Txs: []domain.Transaction{
			{
				Entry:       domain.EntryRouter,
				TxData:      domain.TxData{From: owner, To: proxy, Data: []byte{1, 2, 3}, Value: big.NewInt(1_500)},
				Executions:  []domain.Execution{{Target: mod, Data: []byte{4, 5}, Value: big.NewInt(1_500)}},
				Orders:      []string{"lst-1", "lst-2"},
				OrderHashes: []string{"0xaa", "0xbb"},
				GasEstimate: 200_000,
			},
			{
				Entry:  domain.EntryPermitProxy,
				TxData: domain.TxData{From: owner, To: proxy, Data: []byte{6}},
				Permits: []domain.PermitRequest{{
					ID:        "permit-1",
					Owner:     owner,
					Token:     usdc,
					Amount:    arg.Amount,
					Recipient: mod,
					Nonce:     arg.Nonce,
					Deadline:  1_700_001_800,
					Witness:   witness,
					TypedData: codec.PermitTypedData(arg, witness, big.NewInt(1), proxy),
				}},
				Orders:      []string{"lst-3"},
				OrderHashes: []string{"0xcc"},
			},
		},
	}
}

func TestSQLiteStorage_SaveAndGetPlan(t *testing.T) {
	db := newStorage(t)
	plan := makePlan("plan-a")
	require.NoError(t, db.SavePlan(context.Background(), plan))

	got, err := db.GetPlan(context.Background(), "plan-a")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)
	require.Len(t, got.PreTxs, 1)
	assert.Equal(t, domain.ApprovalERC20, got.PreTxs[0].Kind)
	require.Len(t, got.Txs, 2)
	assert.Equal(t, plan.Txs[0].TxData.Data, got.Txs[0].TxData.Data)
	assert.Equal(t, big.NewInt(1_500), got.Txs[0].TxData.Value)
	assert.Equal(t, []string{"lst-1", "lst-2"}, got.Txs[0].Orders)
	assert.Equal(t, uint64(200_000), got.Txs[0].GasEstimate)

	// restored typed data hashes to the same digest
	want, err := codec.TypedDataDigest(plan.Txs[1].Permits[0].TypedData)
	require.NoError(t, err)
	restored, err := codec.TypedDataDigest(got.Txs[1].Permits[0].TypedData)
	require.NoError(t, err)
	assert.Equal(t, want, restored)
	assert.Equal(t, big.NewInt(2), got.Txs[1].Permits[0].Nonce)
}

func TestSQLiteStorage_SavePlanIdempotent(t *testing.T) {
	db := newStorage(t)
	plan := makePlan("plan-a")
	require.NoError(t, db.SavePlan(context.Background(), plan))
	require.NoError(t, db.SavePlan(context.Background(), plan))

	ids, err := db.PlansForOrder(context.Background(), "lst-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"plan-a"}, ids)
}

func TestSQLiteStorage_SavePlanWithoutID(t *testing.T) {
	db := newStorage(t)
	require.Error(t, db.SavePlan(context.Background(), makePlan("")))
}

func TestSQLiteStorage_GetPlanNotFound(t *testing.T) {
	db := newStorage(t)
	_, err := db.GetPlan(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteStorage_PlansForOrder(t *testing.T) {
	db := newStorage(t)
	require.NoError(t, db.SavePlan(context.Background(), makePlan("plan-a")))
	require.NoError(t, db.SavePlan(context.Background(), makePlan("plan-b")))

	ids, err := db.PlansForOrder(context.Background(), "lst-3")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plan-a", "plan-b"}, ids)

	ids, err = db.PlansForOrder(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLiteStorage_Reports(t *testing.T) {
	db := newStorage(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, db.SaveReport(context.Background(), domain.ExecutionReport{
		PlanID:     "plan-a",
		TxIndex:    1,
		TxHash:     "0x02",
		Status:     domain.StatusReverted,
		Error:      "transaction reverted on-chain",
		ExecutedAt: at,
	}))
	require.NoError(t, db.SaveReport(context.Background(), domain.ExecutionReport{
		PlanID:     "plan-a",
		TxIndex:    0,
		TxHash:     "0x01",
		Status:     domain.StatusPartial,
		Filled:     []string{"lst-1"},
		Skipped:    []string{"lst-2"},
		ExecutedAt: at,
	}))

	reports, err := db.GetReports(context.Background(), "plan-a")
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, 0, reports[0].TxIndex)
	assert.Equal(t, domain.StatusPartial, reports[0].Status)
	assert.Equal(t, []string{"lst-1"}, reports[0].Filled)
	assert.Equal(t, []string{"lst-2"}, reports[0].Skipped)
	assert.True(t, at.Equal(reports[0].ExecutedAt))

	assert.Equal(t, domain.StatusReverted, reports[1].Status)
	assert.Empty(t, reports[1].Filled)
	assert.Equal(t, "transaction reverted on-chain", reports[1].Error)
}

func TestSQLiteStorage_ReportUpsert(t *testing.T) {
	db := newStorage(t)
	r := domain.ExecutionReport{PlanID: "plan-a", TxIndex: 0, Status: domain.StatusSkipped}
	require.NoError(t, db.SaveReport(context.Background(), r))

	r.Status = domain.StatusSucceeded
	r.TxHash = "0x01"
	r.Filled = []string{"lst-1"}
	require.NoError(t, db.SaveReport(context.Background(), r))

	reports, err := db.GetReports(context.Background(), "plan-a")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, domain.StatusSucceeded, reports[0].Status)
	assert.Equal(t, "0x01", reports[0].TxHash)
	assert.False(t, reports[0].ExecutedAt.IsZero())
}
