package settlement

import (
	"time"

	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/types"
)

// Config carries externally supplied settlement parameters. The
// cancellation fee is a flat per-order value injected by the operator;
// the client-fault penalty is twice this fee.
type Config struct {
	CancellationFee types.Money `json:"cancellation_fee"`
}

// Parties identifies the three ledger accounts touched by a settlement.
type Parties struct {
	Client   id.AccountID
	Agent    id.AccountID
	Business id.AccountID
}

// HoldOp closes a hold as part of a settlement.
type HoldOp struct {
	HoldID id.HoldID          `json:"hold_id"`
	Close  account.HoldStatus `json:"close"` // HoldReleased or HoldCaptured
}

// Transfer is one balance movement. Available and Held are signed deltas;
// the store appends a matching ledger entry for each transfer and rejects
// any transfer that would drive a balance negative.
type Transfer struct {
	AccountID id.AccountID        `json:"account_id"`
	Available types.Money         `json:"available"`
	Held      types.Money         `json:"held"`
	Reason    account.EntryReason `json:"reason"`
}

// Restock restores inventory for one order line.
type Restock struct {
	ItemID   id.ItemID `json:"item_id"`
	Quantity int64     `json:"quantity"`
}

// Settlement is a fully planned, ordered set of effects for one failed
// delivery (or for normal order completion, when FailureID is nil). The
// store applies it atomically: either every hold op, transfer and restock
// lands, or none do.
type Settlement struct {
	FailureID  id.FailedDeliveryID    `json:"failure_id,omitempty"`
	OrderID    id.OrderID             `json:"order_id"`
	Resolution failure.ResolutionType `json:"resolution,omitempty"`
	Outcome    string                 `json:"outcome,omitempty"`
	ResolvedBy string                 `json:"resolved_by,omitempty"`
	ResolvedAt time.Time              `json:"resolved_at"`
	HoldOps    []HoldOp               `json:"hold_ops"`
	Transfers  []Transfer             `json:"transfers"`
	Restocks   []Restock              `json:"restocks,omitempty"`
}

// NetDelta returns the sum of available+held deltas across all transfers.
// A settlement conserves money overall except for deliberate penalty
// redistribution, which still nets to zero across the three parties.
func (s *Settlement) NetDelta(currency string) types.Money {
	net := types.Zero(currency)
	for _, t := range s.Transfers {
		net = net.Add(t.Available).Add(t.Held)
	}
	return net
}
