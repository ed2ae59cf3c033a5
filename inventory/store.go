package inventory

import (
	"context"

	"github.com/xraph/dispatch/id"
)

type Store interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, itemID id.ItemID) (*Item, error)
	List(ctx context.Context, businessID string, opts ListOpts) ([]*Item, error)
	Update(ctx context.Context, item *Item) error
	// IncrementAvailable adds qty (may be negative) to the item's
	// available quantity.
	IncrementAvailable(ctx context.Context, itemID id.ItemID, qty int64) error
}

type ListOpts struct {
	Limit  int
	Offset int
}
