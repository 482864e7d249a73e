// Package aggregator is the application service behind the CLI: it resolves
// order IDs, plans them, persists and renders the plans and optionally runs them.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/alejandrodnm/nftagg/internal/ports"
)

// Planner is what the service needs from the planner.
type Planner interface {
	PlanListings(ctx context.Context, listings []domain.ListingDetail, taker common.Address, opts domain.Options) ([]domain.TransactionPlan, error)
	PlanBids(ctx context.Context, bids []domain.BidDetail, taker common.Address, opts domain.Options) ([]domain.TransactionPlan, error)
}

// Executor submits plans and returns one report per transaction.
type Executor interface {
	Execute(ctx context.Context, plans []domain.TransactionPlan) ([]domain.ExecutionReport, error)
}

// Request describes one run: buying listings or accepting offers.
type Request struct {
	Side    domain.OrderSide
	IDs     []string
	Taker   common.Address
	Options domain.Options
	Submit  bool
}

// Result holds what a run produced.
type Result struct {
	Plans   []domain.TransactionPlan
	Reports []domain.ExecutionReport
}

// Service runs fetch → plan → persist → notify → execute.
type Service struct {
	orders   ports.OrderSource
	planner  Planner
	executor Executor // nil = plan only
	storage  ports.PlanStorage
	notifier ports.Notifier
}

// New returns a Service. executor and storage may be nil.
func New(orders ports.OrderSource, planner Planner, executor Executor, storage ports.PlanStorage, notifier ports.Notifier) *Service {
	return &Service{
		orders:   orders,
		planner:  planner,
		executor: executor,
		storage:  storage,
		notifier: notifier,
	}
}

// Run handles one request end to end.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if len(req.IDs) == 0 {
		return Result{}, fmt.Errorf("aggregator.Run: %w: no order ids", domain.ErrInvalidOrder)
	}

	plans, err := s.plan(ctx, req)
	if err != nil {
		return Result{}, err
	}
	res := Result{Plans: plans}

	if s.storage != nil {
		for _, p := range plans {
			if err := s.storage.SavePlan(ctx, p); err != nil {
				slog.Warn("storage error", "plan", p.ID, "err", err)
			}
		}
	}
	if err := s.notifier.NotifyPlans(ctx, plans); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	slog.Info("planning complete",
		"orders", len(req.IDs),
		"plans", len(plans),
		"transactions", countTxs(plans),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if !req.Submit {
		return res, nil
	}
	if s.executor == nil {
		return res, fmt.Errorf("aggregator.Run: submit requested but no executor configured")
	}

	reports, execErr := s.executor.Execute(ctx, plans)
	res.Reports = reports
	if err := s.notifier.NotifyReports(ctx, reports); err != nil {
		slog.Warn("notifier error", "err", err)
	}
	if execErr != nil {
		return res, fmt.Errorf("aggregator.Run: %w", execErr)
	}
	return res, nil
}

func (s *Service) plan(ctx context.Context, req Request) ([]domain.TransactionPlan, error) {
	switch req.Side {
	case domain.SideListing:
		listings, err := s.orders.FetchListings(ctx, req.IDs)
		if err != nil {
			return nil, fmt.Errorf("aggregator.Run: fetch listings: %w", err)
		}
		plans, err := s.planner.PlanListings(ctx, listings, req.Taker, req.Options)
		if err != nil {
			return nil, fmt.Errorf("aggregator.Run: %w", err)
		}
		return plans, nil
	case domain.SideOffer:
		bids, err := s.orders.FetchBids(ctx, req.IDs)
		if err != nil {
			return nil, fmt.Errorf("aggregator.Run: fetch offers: %w", err)
		}
		plans, err := s.planner.PlanBids(ctx, bids, req.Taker, req.Options)
		if err != nil {
			return nil, fmt.Errorf("aggregator.Run: %w", err)
		}
		return plans, nil
	}
	return nil, errors.New("aggregator.Run: unknown order side")
}

func countTxs(plans []domain.TransactionPlan) int {
	n := 0
	for _, p := range plans {
		n += len(p.Txs)
	}
	return n
}
