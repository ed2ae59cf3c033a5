package order

import (
	"context"

	"github.com/xraph/dispatch/id"
)

type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID id.OrderID) (*Order, error)
	List(ctx context.Context, businessID string, opts ListOpts) ([]*Order, error)
	Update(ctx context.Context, o *Order) error
	// UpdateStatus transitions the order from one status to another,
	// guarded on the current status.
	UpdateStatus(ctx context.Context, orderID id.OrderID, from, to Status) error
	// Claim atomically assigns the agent to an unclaimed ready_for_pickup
	// order. Exactly one concurrent caller wins.
	Claim(ctx context.Context, orderID id.OrderID, agentID string) error
	// ReleaseClaim clears the assignment set by Claim, guarded on the
	// agent still holding it. Used to back out when hold placement fails.
	ReleaseClaim(ctx context.Context, orderID id.OrderID, agentID string) error
}

type ListOpts struct {
	Status  Status
	AgentID string
	Limit   int
	Offset  int
}
