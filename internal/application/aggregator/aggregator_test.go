package aggregator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/nftagg/internal/application/aggregator"
	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taker = common.HexToAddress("0x0000000000000000000000000000000000007a4e")

type mockOrders struct {
	err      error
	listings []string
	bids     []string
}

func (m *mockOrders) FetchListings(_ context.Context, ids []string) ([]domain.ListingDetail, error) {
	m.listings = ids
	out := make([]domain.ListingDetail, len(ids))
	for i, id := range ids {
		out[i].OrderID = id
	}
	return out, m.err
}

func (m *mockOrders) FetchBids(_ context.Context, ids []string) ([]domain.BidDetail, error) {
	m.bids = ids
	out := make([]domain.BidDetail, len(ids))
	for i, id := range ids {
		out[i].OrderID = id
	}
	return out, m.err
}

type mockPlanner struct {
	err      error
	side     string
	opts     domain.Options
	received int
}

func (m *mockPlanner) plans() []domain.TransactionPlan {
	return []domain.TransactionPlan{{ID: "plan-1", Txs: []domain.Transaction{{Orders: []string{"a"}}}}}
}

func (m *mockPlanner) PlanListings(_ context.Context, l []domain.ListingDetail, _ common.Address, opts domain.Options) ([]domain.TransactionPlan, error) {
	m.side, m.opts, m.received = "listing", opts, len(l)
	if m.err != nil {
		return nil, m.err
	}
	return m.plans(), nil
}

func (m *mockPlanner) PlanBids(_ context.Context, b []domain.BidDetail, _ common.Address, opts domain.Options) ([]domain.TransactionPlan, error) {
	m.side, m.opts, m.received = "offer", opts, len(b)
	if m.err != nil {
		return nil, m.err
	}
	return m.plans(), nil
}

type mockExecutor struct {
	err   error
	calls int
}

func (m *mockExecutor) Execute(_ context.Context, plans []domain.TransactionPlan) ([]domain.ExecutionReport, error) {
	m.calls++
	return []domain.ExecutionReport{{PlanID: plans[0].ID, Status: domain.StatusSucceeded}}, m.err
}

type mockStore struct {
	plans []string
	err   error
}

func (m *mockStore) SavePlan(_ context.Context, p domain.TransactionPlan) error {
	m.plans = append(m.plans, p.ID)
	return m.err
}
func (m *mockStore) GetPlan(context.Context, string) (domain.TransactionPlan, error) {
	return domain.TransactionPlan{}, nil
}
func (m *mockStore) SaveReport(context.Context, domain.ExecutionReport) error { return nil }
func (m *mockStore) GetReports(context.Context, string) ([]domain.ExecutionReport, error) {
	return nil, nil
}
func (m *mockStore) Close() error { return nil }

type mockNotifier struct {
	plans   int
	reports int
}

func (m *mockNotifier) NotifyPlans(_ context.Context, p []domain.TransactionPlan) error {
	m.plans += len(p)
	return nil
}

func (m *mockNotifier) NotifyReports(_ context.Context, r []domain.ExecutionReport) error {
	m.reports += len(r)
	return errors.New("terminal closed")
}

func TestService_PlanOnly(t *testing.T) {
	orders, planner, exec, store, notifier := &mockOrders{}, &mockPlanner{}, &mockExecutor{}, &mockStore{}, &mockNotifier{}
	svc := aggregator.New(orders, planner, exec, store, notifier)

	res, err := svc.Run(t.Context(), aggregator.Request{
		Side:    domain.SideListing,
		IDs:     []string{"a", "b"},
		Taker:   taker,
		Options: domain.Options{Partial: true},
	})
	require.NoError(t, err)
	assert.Len(t, res.Plans, 1)
	assert.Empty(t, res.Reports)
	assert.Equal(t, []string{"a", "b"}, orders.listings)
	assert.Equal(t, "listing", planner.side)
	assert.Equal(t, 2, planner.received)
	assert.True(t, planner.opts.Partial)
	assert.Equal(t, []string{"plan-1"}, store.plans)
	assert.Equal(t, 1, notifier.plans)
	assert.Equal(t, 0, exec.calls)
}

func TestService_SubmitOffers(t *testing.T) {
	orders, planner, exec, notifier := &mockOrders{}, &mockPlanner{}, &mockExecutor{}, &mockNotifier{}
	svc := aggregator.New(orders, planner, exec, &mockStore{err: errors.New("disk full")}, notifier)

	res, err := svc.Run(t.Context(), aggregator.Request{Side: domain.SideOffer, IDs: []string{"o"}, Taker: taker, Submit: true})
	require.NoError(t, err, "storage and notifier errors are logged, not returned")
	assert.Equal(t, "offer", planner.side)
	assert.Equal(t, []string{"o"}, orders.bids)
	assert.Equal(t, 1, exec.calls)
	require.Len(t, res.Reports, 1)
	assert.Equal(t, 1, notifier.reports)
}

func TestService_Errors(t *testing.T) {
	t.Run("no ids", func(t *testing.T) {
		svc := aggregator.New(&mockOrders{}, &mockPlanner{}, nil, nil, &mockNotifier{})
		_, err := svc.Run(t.Context(), aggregator.Request{Taker: taker})
		require.ErrorIs(t, err, domain.ErrInvalidOrder)
	})

	t.Run("fetch", func(t *testing.T) {
		svc := aggregator.New(&mockOrders{err: errors.New("api down")}, &mockPlanner{}, nil, nil, &mockNotifier{})
		_, err := svc.Run(t.Context(), aggregator.Request{IDs: []string{"a"}, Taker: taker})
		require.ErrorContains(t, err, "api down")
	})

	t.Run("planner", func(t *testing.T) {
		notifier := &mockNotifier{}
		svc := aggregator.New(&mockOrders{}, &mockPlanner{err: domain.ErrNoViableGrouping}, nil, nil, notifier)
		_, err := svc.Run(t.Context(), aggregator.Request{IDs: []string{"a"}, Taker: taker})
		require.ErrorIs(t, err, domain.ErrNoViableGrouping)
		assert.Equal(t, 0, notifier.plans)
	})

	t.Run("submit without executor", func(t *testing.T) {
		svc := aggregator.New(&mockOrders{}, &mockPlanner{}, nil, nil, &mockNotifier{})
		res, err := svc.Run(t.Context(), aggregator.Request{IDs: []string{"a"}, Taker: taker, Submit: true})
		require.Error(t, err)
		assert.Len(t, res.Plans, 1)
	})

	t.Run("executor", func(t *testing.T) {
		svc := aggregator.New(&mockOrders{}, &mockPlanner{}, &mockExecutor{err: errors.New("nonce too low")}, nil, &mockNotifier{})
		res, err := svc.Run(t.Context(), aggregator.Request{IDs: []string{"a"}, Taker: taker, Submit: true})
		require.ErrorContains(t, err, "nonce too low")
		assert.Len(t, res.Reports, 1)
	})
}
