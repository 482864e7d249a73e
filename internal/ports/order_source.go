package ports

import (
	"context"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// OrderSource supplies fully-formed, already-priced orders.
type OrderSource interface {
	// FetchListings resolves listing IDs into planner input, in the given order.
	FetchListings(ctx context.Context, ids []string) ([]domain.ListingDetail, error)

	// FetchBids resolves offer IDs into planner input, in the given order.
	FetchBids(ctx context.Context, ids []string) ([]domain.BidDetail, error)
}
