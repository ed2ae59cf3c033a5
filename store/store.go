package store

import (
	"context"
	"time"

	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/inventory"
	"github.com/xraph/dispatch/notify"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/types"
)

// Store is the unified storage interface for all Dispatch entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Order methods
	CreateOrder(ctx context.Context, o *order.Order) error
	GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error)
	ListOrders(ctx context.Context, businessID string, opts order.ListOpts) ([]*order.Order, error)
	UpdateOrder(ctx context.Context, o *order.Order) error
	// UpdateOrderStatus transitions the order, guarded on the current
	// status. Returns ErrInvalidTransition if the guard does not match.
	UpdateOrderStatus(ctx context.Context, orderID id.OrderID, from, to order.Status) error
	// ClaimOrder atomically assigns the agent to an unclaimed
	// ready_for_pickup order. Exactly one concurrent caller wins; losers
	// get ErrOrderClaimed.
	ClaimOrder(ctx context.Context, orderID id.OrderID, agentID string) error
	ReleaseOrderClaim(ctx context.Context, orderID id.OrderID, agentID string) error

	// Account methods
	GetOrCreateAccount(ctx context.Context, ownerType account.OwnerType, ownerRef, currency string) (*account.Account, error)
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	Credit(ctx context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason account.EntryReason) (*account.Entry, error)
	Debit(ctx context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason account.EntryReason) (*account.Entry, error)
	PlaceHold(ctx context.Context, accountID id.AccountID, orderID id.OrderID, purpose account.HoldPurpose, amount types.Money) (*account.Hold, error)
	ReleaseHold(ctx context.Context, holdID id.HoldID) error
	CaptureHold(ctx context.Context, holdID id.HoldID, destID id.AccountID) error
	GetHold(ctx context.Context, holdID id.HoldID) (*account.Hold, error)
	ListHolds(ctx context.Context, orderID id.OrderID) ([]*account.Hold, error)
	ListEntries(ctx context.Context, accountID id.AccountID, opts account.EntryOpts) ([]*account.Entry, error)

	// Failed delivery methods
	CreateFailedDelivery(ctx context.Context, f *failure.FailedDelivery) error
	GetFailedDelivery(ctx context.Context, failureID id.FailedDeliveryID) (*failure.FailedDelivery, error)
	GetFailedDeliveryByOrder(ctx context.Context, orderID id.OrderID) (*failure.FailedDelivery, error)
	ListFailedDeliveries(ctx context.Context, businessID string, opts failure.ListOpts) ([]*failure.FailedDelivery, error)
	GetReason(ctx context.Context, reasonID id.ReasonID) (*failure.Reason, error)
	ListReasons(ctx context.Context, activeOnly bool) ([]*failure.Reason, error)
	SeedReasons(ctx context.Context, reasons []*failure.Reason) error

	// ApplySettlement applies a planned settlement atomically. For
	// failure settlements the pending -> completed flip on the record is
	// the commit point: a second caller gets ErrAlreadyResolved. For
	// completion settlements (zero FailureID) the delivered -> completed
	// order transition is the commit point. Either every hold op,
	// transfer and restock lands, or none do.
	ApplySettlement(ctx context.Context, s *settlement.Settlement) error

	// Inventory methods
	CreateItem(ctx context.Context, item *inventory.Item) error
	GetItem(ctx context.Context, itemID id.ItemID) (*inventory.Item, error)
	ListItems(ctx context.Context, businessID string, opts inventory.ListOpts) ([]*inventory.Item, error)
	UpdateItem(ctx context.Context, item *inventory.Item) error
	IncrementAvailable(ctx context.Context, itemID id.ItemID, qty int64) error

	// Notification methods
	IngestBatch(ctx context.Context, events []*notify.Notification) error
	QueryNotifications(ctx context.Context, recipient string, opts notify.QueryOpts) ([]*notify.Notification, error)
	PurgeNotifications(ctx context.Context, before time.Time) (int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
