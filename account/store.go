package account

import (
	"context"

	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/types"
)

type Store interface {
	// GetOrCreate returns the account for (ownerType, ownerRef, currency),
	// creating it with zero balances if it does not exist.
	GetOrCreate(ctx context.Context, ownerType OwnerType, ownerRef, currency string) (*Account, error)
	Get(ctx context.Context, accountID id.AccountID) (*Account, error)

	// Credit adds amount to the available balance and appends an entry.
	Credit(ctx context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason EntryReason) (*Entry, error)
	// Debit removes amount from the available balance. Fails if the
	// resulting balance would be negative.
	Debit(ctx context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason EntryReason) (*Entry, error)

	// PlaceHold moves amount from available to held and records the hold.
	PlaceHold(ctx context.Context, accountID id.AccountID, orderID id.OrderID, purpose HoldPurpose, amount types.Money) (*Hold, error)
	// ReleaseHold moves the held amount back to available. The hold must
	// be active; it is closed as released.
	ReleaseHold(ctx context.Context, holdID id.HoldID) error
	// CaptureHold moves the held amount to the destination account's
	// available balance. The hold must be active; it is closed as captured.
	CaptureHold(ctx context.Context, holdID id.HoldID, destID id.AccountID) error

	GetHold(ctx context.Context, holdID id.HoldID) (*Hold, error)
	ListHolds(ctx context.Context, orderID id.OrderID) ([]*Hold, error)

	ListEntries(ctx context.Context, accountID id.AccountID, opts EntryOpts) ([]*Entry, error)
}

type EntryOpts struct {
	OrderID id.OrderID
	Limit   int
	Offset  int
}
