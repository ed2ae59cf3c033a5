package dispatch

import (
	"context"

	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/inventory"
	"github.com/xraph/dispatch/types"
)

// ──────────────────────────────────────────────────
// Inventory
// ──────────────────────────────────────────────────

// CreateItem registers a stock item for a business.
func (d *Dispatch) CreateItem(ctx context.Context, item *inventory.Item) error {
	if item.BusinessID == "" {
		return ValidationError{Field: "business_id", Message: "required"}
	}
	if item.Name == "" {
		return ValidationError{Field: "name", Message: "required"}
	}
	if item.Available < 0 {
		return ValidationError{Field: "available", Message: "must not be negative"}
	}

	if item.ID == (id.ItemID{}) {
		item.ID = id.NewItemID()
	}
	item.Entity = types.NewEntity()
	return d.store.CreateItem(ctx, item)
}

// GetItem retrieves an item by ID.
func (d *Dispatch) GetItem(ctx context.Context, itemID id.ItemID) (*inventory.Item, error) {
	return d.store.GetItem(ctx, itemID)
}

// ListItems lists a business's items.
func (d *Dispatch) ListItems(ctx context.Context, businessID string, opts inventory.ListOpts) ([]*inventory.Item, error) {
	return d.store.ListItems(ctx, businessID, opts)
}

// AdjustStock changes an item's available quantity by a signed delta.
func (d *Dispatch) AdjustStock(ctx context.Context, itemID id.ItemID, delta int64) error {
	return d.store.IncrementAvailable(ctx, itemID, delta)
}
