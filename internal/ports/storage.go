package ports

import (
	"context"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// PlanStorage persists plans and the outcome of their execution.
type PlanStorage interface {
	// SavePlan stores a plan. Saving the same plan ID twice is a no-op.
	SavePlan(ctx context.Context, plan domain.TransactionPlan) error

	// GetPlan loads a previously saved plan.
	GetPlan(ctx context.Context, id string) (domain.TransactionPlan, error)

	// SaveReport records the outcome of one transaction of a plan.
	SaveReport(ctx context.Context, r domain.ExecutionReport) error

	// GetReports returns the reports of a plan ordered by transaction index.
	GetReports(ctx context.Context, planID string) ([]domain.ExecutionReport, error)

	// Close releases the underlying database.
	Close() error
}
