package account

import (
	"time"

	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/types"
)

type OwnerType string

const (
	OwnerAgent    OwnerType = "agent"
	OwnerBusiness OwnerType = "business"
	OwnerClient   OwnerType = "client"
)

// Valid reports whether t is a known owner type.
func (t OwnerType) Valid() bool {
	return t == OwnerAgent || t == OwnerBusiness || t == OwnerClient
}

// Account is a ledger account scoped to one owner and one currency.
// Available and Held are both invariantly non-negative.
type Account struct {
	types.Entity
	ID        id.AccountID `json:"id"`
	OwnerType OwnerType    `json:"owner_type"`
	OwnerRef  string       `json:"owner_ref"`
	Currency  string       `json:"currency"`
	Available types.Money  `json:"available"`
	Held      types.Money  `json:"held"`
}

// Total returns the sum of available and held balances.
func (a *Account) Total() types.Money {
	return a.Available.Add(a.Held)
}

type HoldStatus string

const (
	HoldActive   HoldStatus = "active"
	HoldReleased HoldStatus = "released"
	HoldCaptured HoldStatus = "captured"
)

type HoldPurpose string

const (
	// HoldPayment escrows the client's captured payment for an order.
	HoldPayment HoldPurpose = "payment"
	// HoldCommission escrows the delivery fee the business owes the
	// agent, placed when the order is claimed.
	HoldCommission HoldPurpose = "commission"
)

// Hold is a reservation of funds against an account, tied to an order.
// A hold is closed exactly once: released back to the account's available
// balance, or captured (moved elsewhere per the settlement).
type Hold struct {
	types.Entity
	ID        id.HoldID   `json:"id"`
	AccountID id.AccountID `json:"account_id"`
	OrderID   id.OrderID  `json:"order_id"`
	Purpose   HoldPurpose `json:"purpose"`
	Amount    types.Money `json:"amount"`
	Status    HoldStatus  `json:"status"`
	ClosedAt  *time.Time  `json:"closed_at,omitempty"`
}

// Active reports whether the hold is still open.
func (h *Hold) Active() bool { return h.Status == HoldActive }

type EntryReason string

const (
	ReasonDeposit            EntryReason = "deposit"
	ReasonWithdrawal         EntryReason = "withdrawal"
	ReasonPaymentCaptured    EntryReason = "payment_captured"
	ReasonHoldPlaced         EntryReason = "hold_placed"
	ReasonHoldReleased       EntryReason = "hold_released"
	ReasonHoldCaptured       EntryReason = "hold_captured"
	ReasonRefund             EntryReason = "refund"
	ReasonRefundLessPenalty  EntryReason = "refund_less_penalty"
	ReasonPenaltyShare       EntryReason = "penalty_share"
	ReasonCommissionReturned EntryReason = "commission_returned"
	ReasonCommissionPaid     EntryReason = "commission_paid"
	ReasonOrderRevenue       EntryReason = "order_revenue"
	ReasonClawback           EntryReason = "clawback"
	ReasonClawbackReceived   EntryReason = "clawback_received"
)

// Entry is an immutable ledger record. Available and Held are signed
// deltas to the respective balances; an account's balances are always
// the fold of its entries.
type Entry struct {
	ID        id.EntryID   `json:"id"`
	AccountID id.AccountID `json:"account_id"`
	OrderID   id.OrderID   `json:"order_id,omitempty"`
	Available types.Money  `json:"available"`
	Held      types.Money  `json:"held"`
	Reason    EntryReason  `json:"reason"`
	Timestamp time.Time    `json:"timestamp"`
}
