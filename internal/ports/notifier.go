package ports

import (
	"context"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Notifier presents plans and execution results to the user.
type Notifier interface {
	// NotifyPlans renders the plans the planner produced.
	NotifyPlans(ctx context.Context, plans []domain.TransactionPlan) error

	// NotifyReports renders what happened when the plans were submitted.
	NotifyReports(ctx context.Context, reports []domain.ExecutionReport) error
}
