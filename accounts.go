package dispatch

import (
	"context"

	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/types"
)

// ──────────────────────────────────────────────────
// Accounts and ledger
// ──────────────────────────────────────────────────

// GetAccount returns the ledger account for an owner, creating an empty
// one on first touch.
func (d *Dispatch) GetAccount(ctx context.Context, ownerType account.OwnerType, ownerRef, currency string) (*account.Account, error) {
	if !ownerType.Valid() {
		return nil, ValidationError{Field: "owner_type", Message: "must be agent, business or client"}
	}
	if ownerRef == "" {
		return nil, ValidationError{Field: "owner_ref", Message: "required"}
	}
	return d.store.GetOrCreateAccount(ctx, ownerType, ownerRef, currency)
}

// Deposit credits an account with external funds.
func (d *Dispatch) Deposit(ctx context.Context, accountID id.AccountID, amount types.Money) (*account.Entry, error) {
	if !amount.IsPositive() {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}
	return d.store.Credit(ctx, accountID, amount, id.OrderID{}, account.ReasonDeposit)
}

// Withdraw debits available funds from an account. Held funds are not
// withdrawable; insufficient available balance returns
// ErrInsufficientFunds.
func (d *Dispatch) Withdraw(ctx context.Context, accountID id.AccountID, amount types.Money) (*account.Entry, error) {
	if !amount.IsPositive() {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}
	return d.store.Debit(ctx, accountID, amount, id.OrderID{}, account.ReasonWithdrawal)
}

// ListEntries returns an account's ledger entries, newest first.
func (d *Dispatch) ListEntries(ctx context.Context, accountID id.AccountID, opts account.EntryOpts) ([]*account.Entry, error) {
	return d.store.ListEntries(ctx, accountID, opts)
}

// ListHolds returns the escrow holds attached to an order.
func (d *Dispatch) ListHolds(ctx context.Context, orderID id.OrderID) ([]*account.Hold, error) {
	return d.store.ListHolds(ctx, orderID)
}
