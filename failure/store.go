package failure

import (
	"context"

	"github.com/xraph/dispatch/id"
)

type Store interface {
	// Create inserts a pending record. Fails if a pending record already
	// exists for the order.
	Create(ctx context.Context, f *FailedDelivery) error
	Get(ctx context.Context, failureID id.FailedDeliveryID) (*FailedDelivery, error)
	GetByOrder(ctx context.Context, orderID id.OrderID) (*FailedDelivery, error)
	List(ctx context.Context, businessID string, opts ListOpts) ([]*FailedDelivery, error)

	GetReason(ctx context.Context, reasonID id.ReasonID) (*Reason, error)
	ListReasons(ctx context.Context, activeOnly bool) ([]*Reason, error)
	// SeedReasons upserts catalog entries by key. Idempotent.
	SeedReasons(ctx context.Context, reasons []*Reason) error
}

type ListOpts struct {
	Status         Status
	ResolutionType ResolutionType
	Limit          int
	Offset         int
}
