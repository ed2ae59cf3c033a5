package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	dispatch "github.com/xraph/dispatch"
	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/inventory"
	"github.com/xraph/dispatch/notify"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/settlement"
	dispatchstore "github.com/xraph/dispatch/store"
	"github.com/xraph/dispatch/types"
)

// Collection name constants.
const (
	colOrders          = "dispatch_orders"
	colAccounts        = "dispatch_accounts"
	colHolds           = "dispatch_holds"
	colEntries         = "dispatch_entries"
	colFailedDeliv     = "dispatch_failed_deliveries"
	colFailureReasons  = "dispatch_failure_reasons"
	colItems           = "dispatch_items"
	colNotifications   = "dispatch_notifications"
)

// compile-time interface check
var _ dispatchstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all dispatch collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("dispatch/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	m := toOrderModel(o)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	var m orderModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": orderID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dispatch.ErrOrderNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get order: %w", err)
	}
	return fromOrderModel(&m)
}

func (s *Store) ListOrders(ctx context.Context, businessID string, opts order.ListOpts) ([]*order.Order, error) {
	var models []orderModel

	filter := bson.M{"business_id": businessID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.AgentID != "" {
		filter["agent_id"] = opts.AgentID
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list orders: %w", err)
	}

	result := make([]*order.Order, len(models))
	for i := range models {
		o, err := fromOrderModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = o
	}
	return result, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o *order.Order) error {
	m := toOrderModel(o)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: update order: %w", err)
	}
	if res.MatchedCount() == 0 {
		return dispatch.ErrOrderNotFound
	}
	return nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID id.OrderID, from, to order.Status) error {
	res, err := s.mdb.NewUpdate((*orderModel)(nil)).
		Filter(bson.M{"_id": orderID.String(), "status": string(from)}).
		Set("status", string(to)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: update order status: %w", err)
	}
	if res.MatchedCount() == 0 {
		// The guard failed: either the order is gone or the status moved.
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return dispatch.ErrInvalidTransition
	}
	return nil
}

func (s *Store) ClaimOrder(ctx context.Context, orderID id.OrderID, agentID string) error {
	res, err := s.mdb.NewUpdate((*orderModel)(nil)).
		Filter(bson.M{
			"_id":      orderID.String(),
			"status":   string(order.StatusReadyForPickup),
			"agent_id": "",
		}).
		Set("agent_id", agentID).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: claim order: %w", err)
	}
	if res.MatchedCount() == 0 {
		o, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != order.StatusReadyForPickup {
			return dispatch.ErrNotClaimable
		}
		return dispatch.ErrOrderClaimed
	}
	return nil
}

func (s *Store) ReleaseOrderClaim(ctx context.Context, orderID id.OrderID, agentID string) error {
	res, err := s.mdb.NewUpdate((*orderModel)(nil)).
		Filter(bson.M{"_id": orderID.String(), "agent_id": agentID}).
		Set("agent_id", "").
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: release order claim: %w", err)
	}
	if res.MatchedCount() == 0 {
		return dispatch.ErrOrderNotClaimed
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) GetOrCreateAccount(ctx context.Context, ownerType account.OwnerType, ownerRef, currency string) (*account.Account, error) {
	a, err := s.findAccount(ctx, ownerType, ownerRef, currency)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, dispatch.ErrAccountNotFound) {
		return nil, err
	}

	m := &accountModel{
		ID:        id.NewAccountID().String(),
		OwnerType: string(ownerType),
		OwnerRef:  ownerRef,
		Currency:  currency,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	// A concurrent creator may win the insert; re-read either way.
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("dispatch/mongo: create account: %w", err)
	}
	return s.findAccount(ctx, ownerType, ownerRef, currency)
}

func (s *Store) findAccount(ctx context.Context, ownerType account.OwnerType, ownerRef, currency string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"owner_type": string(ownerType),
			"owner_ref":  ownerRef,
			"currency":   currency,
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dispatch.ErrAccountNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: find account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dispatch.ErrAccountNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) Credit(ctx context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason account.EntryReason) (*account.Entry, error) {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		SetUpdate(bson.M{
			"$inc": bson.M{"available_cents": amount.Amount},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: credit: %w", err)
	}
	if res.MatchedCount() == 0 {
		return nil, dispatch.ErrAccountNotFound
	}
	return s.insertEntry(ctx, accountID, orderID, amount, types.Zero(amount.Currency), reason)
}

func (s *Store) Debit(ctx context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason account.EntryReason) (*account.Entry, error) {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{
			"_id":             accountID.String(),
			"available_cents": bson.M{"$gte": amount.Amount},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"available_cents": -amount.Amount},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: debit: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetAccount(ctx, accountID); err != nil {
			return nil, err
		}
		return nil, dispatch.ErrInsufficientFunds
	}
	return s.insertEntry(ctx, accountID, orderID, amount.Negate(), types.Zero(amount.Currency), reason)
}

func (s *Store) PlaceHold(ctx context.Context, accountID id.AccountID, orderID id.OrderID, purpose account.HoldPurpose, amount types.Money) (*account.Hold, error) {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{
			"_id":             accountID.String(),
			"available_cents": bson.M{"$gte": amount.Amount},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"available_cents": -amount.Amount, "held_cents": amount.Amount},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: place hold: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetAccount(ctx, accountID); err != nil {
			return nil, err
		}
		return nil, dispatch.ErrInsufficientFunds
	}

	h := &account.Hold{
		Entity:    types.NewEntity(),
		ID:        id.NewHoldID(),
		AccountID: accountID,
		OrderID:   orderID,
		Purpose:   purpose,
		Amount:    amount,
		Status:    account.HoldActive,
	}
	if _, err := s.mdb.NewInsert(toHoldModel(h)).Exec(ctx); err != nil {
		// Put the funds back so the balance matches the hold collection.
		if compErr := s.adjustBalances(ctx, accountID, amount.Amount, -amount.Amount); compErr != nil {
			return nil, fmt.Errorf("%w: %v", dispatch.ErrTransactionFailed, compErr)
		}
		return nil, fmt.Errorf("dispatch/mongo: insert hold: %w", err)
	}
	if _, err := s.insertEntry(ctx, accountID, orderID, amount.Negate(), amount, account.ReasonHoldPlaced); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Store) ReleaseHold(ctx context.Context, holdID id.HoldID) error {
	h, err := s.GetHold(ctx, holdID)
	if err != nil {
		return err
	}

	if err := s.closeHold(ctx, holdID, account.HoldReleased); err != nil {
		return err
	}
	if err := s.adjustBalances(ctx, h.AccountID, h.Amount.Amount, -h.Amount.Amount); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrTransactionFailed, err)
	}
	_, err = s.insertEntry(ctx, h.AccountID, h.OrderID, h.Amount, h.Amount.Negate(), account.ReasonHoldReleased)
	return err
}

func (s *Store) CaptureHold(ctx context.Context, holdID id.HoldID, destID id.AccountID) error {
	h, err := s.GetHold(ctx, holdID)
	if err != nil {
		return err
	}

	if err := s.closeHold(ctx, holdID, account.HoldCaptured); err != nil {
		return err
	}
	if err := s.adjustBalances(ctx, h.AccountID, 0, -h.Amount.Amount); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrTransactionFailed, err)
	}
	if err := s.adjustBalances(ctx, destID, h.Amount.Amount, 0); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrTransactionFailed, err)
	}
	zero := types.Zero(h.Amount.Currency)
	if _, err := s.insertEntry(ctx, h.AccountID, h.OrderID, zero, h.Amount.Negate(), account.ReasonHoldCaptured); err != nil {
		return err
	}
	_, err = s.insertEntry(ctx, destID, h.OrderID, h.Amount, zero, account.ReasonHoldCaptured)
	return err
}

func (s *Store) GetHold(ctx context.Context, holdID id.HoldID) (*account.Hold, error) {
	var m holdModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": holdID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dispatch.ErrHoldNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get hold: %w", err)
	}
	return fromHoldModel(&m)
}

func (s *Store) ListHolds(ctx context.Context, orderID id.OrderID) ([]*account.Hold, error) {
	var models []holdModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"order_id": orderID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list holds: %w", err)
	}

	result := make([]*account.Hold, len(models))
	for i := range models {
		h, err := fromHoldModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = h
	}
	return result, nil
}

func (s *Store) ListEntries(ctx context.Context, accountID id.AccountID, opts account.EntryOpts) ([]*account.Entry, error) {
	var models []entryModel

	filter := bson.M{"account_id": accountID.String()}
	if !opts.OrderID.IsNil() {
		filter["order_id"] = opts.OrderID.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list entries: %w", err)
	}

	result := make([]*account.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Failed Delivery Store ====================

func (s *Store) CreateFailedDelivery(ctx context.Context, f *failure.FailedDelivery) error {
	var existing failedDeliveryModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{"order_id": f.OrderID.String(), "status": string(failure.StatusPending)}).
		Scan(ctx)
	if err == nil {
		return dispatch.ErrFailurePending
	}
	if !isNoDocuments(err) {
		return fmt.Errorf("dispatch/mongo: check pending failure: %w", err)
	}

	// The partial unique index on order_id (status = pending) backs this
	// check against concurrent creators.
	if _, err := s.mdb.NewInsert(toFailedDeliveryModel(f)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return dispatch.ErrFailurePending
		}
		return fmt.Errorf("dispatch/mongo: create failed delivery: %w", err)
	}
	return nil
}

func (s *Store) GetFailedDelivery(ctx context.Context, failureID id.FailedDeliveryID) (*failure.FailedDelivery, error) {
	var m failedDeliveryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": failureID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dispatch.ErrFailureNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get failed delivery: %w", err)
	}
	return fromFailedDeliveryModel(&m)
}

func (s *Store) GetFailedDeliveryByOrder(ctx context.Context, orderID id.OrderID) (*failure.FailedDelivery, error) {
	var m failedDeliveryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"order_id": orderID.String()}).
		Sort(bson.D{{Key: "created_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dispatch.ErrFailureNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get failed delivery by order: %w", err)
	}
	return fromFailedDeliveryModel(&m)
}

func (s *Store) ListFailedDeliveries(ctx context.Context, businessID string, opts failure.ListOpts) ([]*failure.FailedDelivery, error) {
	var models []failedDeliveryModel

	filter := bson.M{"business_id": businessID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.ResolutionType != "" {
		filter["resolution_type"] = string(opts.ResolutionType)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list failed deliveries: %w", err)
	}

	result := make([]*failure.FailedDelivery, len(models))
	for i := range models {
		f, err := fromFailedDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = f
	}
	return result, nil
}

func (s *Store) GetReason(ctx context.Context, reasonID id.ReasonID) (*failure.Reason, error) {
	var m reasonModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": reasonID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dispatch.ErrReasonNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get reason: %w", err)
	}
	return fromReasonModel(&m)
}

func (s *Store) ListReasons(ctx context.Context, activeOnly bool) ([]*failure.Reason, error) {
	var models []reasonModel

	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "sort_order", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list reasons: %w", err)
	}

	result := make([]*failure.Reason, len(models))
	for i := range models {
		r, err := fromReasonModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) SeedReasons(ctx context.Context, reasons []*failure.Reason) error {
	for _, r := range reasons {
		res, err := s.mdb.NewUpdate((*reasonModel)(nil)).
			Filter(bson.M{"key": r.Key}).
			Set("label_en", r.LabelEN).
			Set("label_fr", r.LabelFR).
			Set("active", r.Active).
			Set("sort_order", r.SortOrder).
			Set("updated_at", now()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("dispatch/mongo: seed reason %s: %w", r.Key, err)
		}
		if res.MatchedCount() > 0 {
			continue
		}

		m := toReasonModel(r)
		if m.ID == "" {
			m.ID = id.NewReasonID().String()
		}
		m.CreatedAt = now()
		m.UpdatedAt = now()
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("dispatch/mongo: seed reason %s: %w", r.Key, err)
		}
	}
	return nil
}

// ==================== Settlement ====================

// ApplySettlement applies the plan as a sequence of guarded updates with
// an undo log, mirroring the postgres backend. The commit gate goes
// first; any later step that cannot be applied rolls back everything
// already done and surfaces the cause.
func (s *Store) ApplySettlement(ctx context.Context, plan *settlement.Settlement) error {
	undo := make([]func(context.Context) error, 0, 4+len(plan.HoldOps)+len(plan.Transfers))
	fail := func(cause error) error {
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](ctx); err != nil {
				return fmt.Errorf("%w: rollback after %v: %v", dispatch.ErrTransactionFailed, cause, err)
			}
		}
		return cause
	}

	// Commit gate
	if !plan.FailureID.IsNil() {
		res, err := s.mdb.NewUpdate((*failedDeliveryModel)(nil)).
			Filter(bson.M{"_id": plan.FailureID.String(), "status": string(failure.StatusPending)}).
			Set("status", string(failure.StatusCompleted)).
			Set("resolution_type", string(plan.Resolution)).
			Set("outcome", plan.Outcome).
			Set("resolved_by", plan.ResolvedBy).
			Set("resolved_at", plan.ResolvedAt).
			Set("updated_at", now()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("dispatch/mongo: resolve failed delivery: %w", err)
		}
		if res.MatchedCount() == 0 {
			if _, err := s.GetFailedDelivery(ctx, plan.FailureID); err != nil {
				return err
			}
			return dispatch.ErrAlreadyResolved
		}
		failureID := plan.FailureID
		undo = append(undo, func(ctx context.Context) error {
			_, err := s.mdb.NewUpdate((*failedDeliveryModel)(nil)).
				Filter(bson.M{"_id": failureID.String()}).
				SetUpdate(bson.M{
					"$set": bson.M{
						"status":          string(failure.StatusPending),
						"resolution_type": "",
						"outcome":         "",
						"resolved_by":     "",
					},
					"$unset": bson.M{"resolved_at": ""},
				}).
				Exec(ctx)
			return err
		})
	} else {
		if err := s.UpdateOrderStatus(ctx, plan.OrderID, order.StatusDelivered, order.StatusCompleted); err != nil {
			return err
		}
		orderID := plan.OrderID
		undo = append(undo, func(ctx context.Context) error {
			return s.UpdateOrderStatus(ctx, orderID, order.StatusCompleted, order.StatusDelivered)
		})
	}

	// Hold ops
	for _, op := range plan.HoldOps {
		if err := s.closeHold(ctx, op.HoldID, op.Close); err != nil {
			return fail(err)
		}
		holdID := op.HoldID
		undo = append(undo, func(ctx context.Context) error {
			_, err := s.mdb.NewUpdate((*holdModel)(nil)).
				Filter(bson.M{"_id": holdID.String()}).
				SetUpdate(bson.M{
					"$set":   bson.M{"status": string(account.HoldActive)},
					"$unset": bson.M{"closed_at": ""},
				}).
				Exec(ctx)
			return err
		})
	}

	// Transfers
	for _, t := range plan.Transfers {
		if err := s.adjustBalances(ctx, t.AccountID, t.Available.Amount, t.Held.Amount); err != nil {
			return fail(err)
		}
		tr := t
		undo = append(undo, func(ctx context.Context) error {
			return s.adjustBalances(ctx, tr.AccountID, -tr.Available.Amount, -tr.Held.Amount)
		})

		entry, err := s.insertEntry(ctx, t.AccountID, plan.OrderID, t.Available, t.Held, t.Reason)
		if err != nil {
			return fail(err)
		}
		entryID := entry.ID
		undo = append(undo, func(ctx context.Context) error {
			_, err := s.mdb.NewDelete((*entryModel)(nil)).
				Filter(bson.M{"_id": entryID.String()}).
				Exec(ctx)
			return err
		})
	}

	// Restocks
	for _, r := range plan.Restocks {
		if err := s.IncrementAvailable(ctx, r.ItemID, r.Quantity); err != nil {
			return fail(err)
		}
		rs := r
		undo = append(undo, func(ctx context.Context) error {
			return s.IncrementAvailable(ctx, rs.ItemID, -rs.Quantity)
		})
	}

	return nil
}

// ==================== Inventory Store ====================

func (s *Store) CreateItem(ctx context.Context, item *inventory.Item) error {
	_, err := s.mdb.NewInsert(toItemModel(item)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: create item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, itemID id.ItemID) (*inventory.Item, error) {
	var m itemModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": itemID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dispatch.ErrItemNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get item: %w", err)
	}
	return fromItemModel(&m)
}

func (s *Store) ListItems(ctx context.Context, businessID string, opts inventory.ListOpts) ([]*inventory.Item, error) {
	var models []itemModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"business_id": businessID}).
		Sort(bson.D{{Key: "name", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list items: %w", err)
	}

	result := make([]*inventory.Item, len(models))
	for i := range models {
		item, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = item
	}
	return result, nil
}

func (s *Store) UpdateItem(ctx context.Context, item *inventory.Item) error {
	m := toItemModel(item)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: update item: %w", err)
	}
	if res.MatchedCount() == 0 {
		return dispatch.ErrItemNotFound
	}
	return nil
}

func (s *Store) IncrementAvailable(ctx context.Context, itemID id.ItemID, qty int64) error {
	res, err := s.mdb.NewUpdate((*itemModel)(nil)).
		Filter(bson.M{
			"_id":       itemID.String(),
			"available": bson.M{"$gte": -qty},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"available": qty},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: increment available: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetItem(ctx, itemID); err != nil {
			return err
		}
		return dispatch.ErrInvalidInput
	}
	return nil
}

// ==================== Notification Store ====================

func (s *Store) IngestBatch(ctx context.Context, events []*notify.Notification) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		m := toNotificationModel(e)
		_, err := s.mdb.NewInsert(m).Exec(ctx)
		if err != nil {
			// Skip duplicates for idempotency
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("dispatch/mongo: ingest notification: %w", err)
		}
	}
	return nil
}

func (s *Store) QueryNotifications(ctx context.Context, recipient string, opts notify.QueryOpts) ([]*notify.Notification, error) {
	var models []notificationModel

	filter := bson.M{"recipient": recipient}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if !opts.Start.IsZero() {
		if _, ok := filter["timestamp"]; !ok {
			filter["timestamp"] = bson.M{}
		}
		if ts, ok := filter["timestamp"].(bson.M); ok {
			ts["$gte"] = opts.Start
		}
	}
	if !opts.End.IsZero() {
		if _, ok := filter["timestamp"]; !ok {
			filter["timestamp"] = bson.M{}
		}
		if ts, ok := filter["timestamp"].(bson.M); ok {
			ts["$lte"] = opts.End
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: query notifications: %w", err)
	}

	result := make([]*notify.Notification, len(models))
	for i := range models {
		n, err := fromNotificationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = n
	}
	return result, nil
}

func (s *Store) PurgeNotifications(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*notificationModel)(nil)).
		Filter(bson.M{"timestamp": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch/mongo: purge notifications: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Helpers ====================

// adjustBalances applies signed deltas to an account's balances, guarded
// so neither balance can go negative.
func (s *Store) adjustBalances(ctx context.Context, accountID id.AccountID, availableDelta, heldDelta int64) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{
			"_id":             accountID.String(),
			"available_cents": bson.M{"$gte": -availableDelta},
			"held_cents":      bson.M{"$gte": -heldDelta},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"available_cents": availableDelta, "held_cents": heldDelta},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: adjust balances: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetAccount(ctx, accountID); err != nil {
			return err
		}
		return dispatch.ErrInsufficientFunds
	}
	return nil
}

// closeHold flips an active hold to the given terminal status.
func (s *Store) closeHold(ctx context.Context, holdID id.HoldID, status account.HoldStatus) error {
	res, err := s.mdb.NewUpdate((*holdModel)(nil)).
		Filter(bson.M{"_id": holdID.String(), "status": string(account.HoldActive)}).
		Set("status", string(status)).
		Set("closed_at", now()).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: close hold: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetHold(ctx, holdID); err != nil {
			return err
		}
		return dispatch.ErrHoldNotActive
	}
	return nil
}

func (s *Store) insertEntry(ctx context.Context, accountID id.AccountID, orderID id.OrderID, available, held types.Money, reason account.EntryReason) (*account.Entry, error) {
	e := &account.Entry{
		ID:        id.NewEntryID(),
		AccountID: accountID,
		OrderID:   orderID,
		Available: available,
		Held:      held,
		Reason:    reason,
		Timestamp: now(),
	}
	if _, err := s.mdb.NewInsert(toEntryModel(e)).Exec(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: insert entry: %w", err)
	}
	return e, nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all dispatch collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colOrders: {
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "agent_id", Value: 1}}},
		},
		colAccounts: {
			{
				Keys:    bson.D{{Key: "owner_type", Value: 1}, {Key: "owner_ref", Value: 1}, {Key: "currency", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colHolds: {
			{Keys: bson.D{{Key: "order_id", Value: 1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colEntries: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "order_id", Value: 1}}},
		},
		colFailedDeliv: {
			{
				Keys: bson.D{{Key: "order_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(failure.StatusPending)}),
			},
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colFailureReasons: {
			{
				Keys:    bson.D{{Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colItems: {
			{Keys: bson.D{{Key: "business_id", Value: 1}}},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}
}
