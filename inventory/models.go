package inventory

import (
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/types"
)

// Item is a stocked product belonging to a business. Available is the
// sellable quantity; failed-delivery settlements may restore it when the
// goods come back intact.
type Item struct {
	types.Entity
	ID         id.ItemID `json:"id"`
	BusinessID string    `json:"business_id"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku,omitempty"`
	Available  int64     `json:"available"`
}
