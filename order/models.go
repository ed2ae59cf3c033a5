package order

import (
	"time"

	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/types"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusPickedUp       Status = "picked_up"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed"
)

// next maps each status to its single forward successor.
var next = map[Status]Status{
	StatusPending:        StatusConfirmed,
	StatusConfirmed:      StatusPreparing,
	StatusPreparing:      StatusReadyForPickup,
	StatusReadyForPickup: StatusPickedUp,
	StatusPickedUp:       StatusInTransit,
	StatusInTransit:      StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
	StatusDelivered:      StatusCompleted,
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReadyForPickup,
		StatusPickedUp, StatusInTransit, StatusOutForDelivery, StatusDelivered,
		StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Next returns the forward successor of s, if one exists.
func (s Status) Next() (Status, bool) {
	n, ok := next[s]
	return n, ok
}

// InCustody reports whether the agent physically has the goods.
// Only custody states may transition to failed.
func (s Status) InCustody() bool {
	return s == StatusPickedUp || s == StatusInTransit || s == StatusOutForDelivery
}

// PrePickup reports whether the order can still be cancelled.
func (s Status) PrePickup() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReadyForPickup:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// CanTransition reports whether s -> to is a legal transition. Legal moves
// are the single forward step, cancellation from any pre-pickup state, and
// failure from any custody state.
func (s Status) CanTransition(to Status) bool {
	if !to.Valid() || s.Terminal() {
		return false
	}
	switch to {
	case StatusCancelled:
		return s.PrePickup()
	case StatusFailed:
		return s.InCustody()
	default:
		n, ok := next[s]
		return ok && n == to
	}
}

type Order struct {
	types.Entity
	ID                id.OrderID        `json:"id"`
	BusinessID        string            `json:"business_id"`
	ClientID          string            `json:"client_id"`
	AgentID           string            `json:"agent_id,omitempty"` // set by claim, empty until then
	Status            Status            `json:"status"`
	Currency          string            `json:"currency"`
	Subtotal          types.Money       `json:"subtotal"`
	DeliveryFee       types.Money       `json:"delivery_fee"`
	Total             types.Money       `json:"total"`
	VerifiedAgentOnly bool              `json:"verified_agent_only"`
	Lines             []Line            `json:"lines"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
	FailedAt          *time.Time        `json:"failed_at,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type Line struct {
	ItemID    id.ItemID   `json:"item_id"`
	Name      string      `json:"name"`
	Quantity  int64       `json:"quantity"`
	UnitPrice types.Money `json:"unit_price"`
	Amount    types.Money `json:"amount"`
}

// Claimed reports whether an agent is assigned to the order.
func (o *Order) Claimed() bool { return o.AgentID != "" }
