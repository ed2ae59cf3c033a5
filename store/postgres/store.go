package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

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

// compile-time interface check
var _ dispatchstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("dispatch/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	m := new(orderModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", orderID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrOrderNotFound
		}
		return nil, err
	}
	return fromOrderModel(m)
}

func (s *Store) ListOrders(ctx context.Context, businessID string, opts order.ListOpts) ([]*order.Order, error) {
	var models []orderModel
	q := s.pg.NewSelect(&models).Where("business_id = $1", businessID)

	argIdx := 1
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.AgentID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("agent_id = $%d", argIdx), opts.AgentID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dispatch.ErrOrderNotFound
	}
	return nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID id.OrderID, from, to order.Status) error {
	res, err := s.pg.NewUpdate((*orderModel)(nil)).
		Set("status = $1", string(to)).
		Set("updated_at = $2", now()).
		Where("id = $3", orderID.String()).
		Where("status = $4", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// The guard failed: either the order is gone or the status moved.
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return dispatch.ErrInvalidTransition
	}
	return nil
}

func (s *Store) ClaimOrder(ctx context.Context, orderID id.OrderID, agentID string) error {
	res, err := s.pg.NewUpdate((*orderModel)(nil)).
		Set("agent_id = $1", agentID).
		Set("updated_at = $2", now()).
		Where("id = $3", orderID.String()).
		Where("status = $4", string(order.StatusReadyForPickup)).
		Where("agent_id = ''").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
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
	res, err := s.pg.NewUpdate((*orderModel)(nil)).
		Set("agent_id = ''").
		Set("updated_at = $1", now()).
		Where("id = $2", orderID.String()).
		Where("agent_id = $3", agentID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
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
	if _, err := s.pg.NewInsert(m).
		OnConflict("(owner_type, owner_ref, currency) DO NOTHING").
		Exec(ctx); err != nil {
		return nil, err
	}
	return s.findAccount(ctx, ownerType, ownerRef, currency)
}

func (s *Store) findAccount(ctx context.Context, ownerType account.OwnerType, ownerRef, currency string) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("owner_type = $1", string(ownerType)).
		Where("owner_ref = $2", ownerRef).
		Where("currency = $3", currency).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) Credit(ctx context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason account.EntryReason) (*account.Entry, error) {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("available_cents = available_cents + $1", amount.Amount).
		Set("updated_at = $2", now()).
		Where("id = $3", accountID.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, dispatch.ErrAccountNotFound
	}
	return s.insertEntry(ctx, accountID, orderID, amount, types.Zero(amount.Currency), reason)
}

func (s *Store) Debit(ctx context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason account.EntryReason) (*account.Entry, error) {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("available_cents = available_cents - $1", amount.Amount).
		Set("updated_at = $2", now()).
		Where("id = $3", accountID.String()).
		Where("available_cents >= $4", amount.Amount).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if _, err := s.GetAccount(ctx, accountID); err != nil {
			return nil, err
		}
		return nil, dispatch.ErrInsufficientFunds
	}
	return s.insertEntry(ctx, accountID, orderID, amount.Negate(), types.Zero(amount.Currency), reason)
}

func (s *Store) PlaceHold(ctx context.Context, accountID id.AccountID, orderID id.OrderID, purpose account.HoldPurpose, amount types.Money) (*account.Hold, error) {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("available_cents = available_cents - $1", amount.Amount).
		Set("held_cents = held_cents + $2", amount.Amount).
		Set("updated_at = $3", now()).
		Where("id = $4", accountID.String()).
		Where("available_cents >= $5", amount.Amount).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
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
	if _, err := s.pg.NewInsert(toHoldModel(h)).Exec(ctx); err != nil {
		// Put the funds back so the balance matches the hold table.
		if compErr := s.adjustBalances(ctx, accountID, amount.Amount, -amount.Amount); compErr != nil {
			return nil, fmt.Errorf("%w: %v", dispatch.ErrTransactionFailed, compErr)
		}
		return nil, err
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
	m := new(holdModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", holdID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrHoldNotFound
		}
		return nil, err
	}
	return fromHoldModel(m)
}

func (s *Store) ListHolds(ctx context.Context, orderID id.OrderID) ([]*account.Hold, error) {
	var models []holdModel
	err := s.pg.NewSelect(&models).
		Where("order_id = $1", orderID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	q := s.pg.NewSelect(&models).Where("account_id = $1", accountID.String())

	if !opts.OrderID.IsNil() {
		q = q.Where("order_id = $2", opts.OrderID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	var existing []failedDeliveryModel
	err := s.pg.NewSelect(&existing).
		Where("order_id = $1", f.OrderID.String()).
		Where("status = $2", string(failure.StatusPending)).
		Limit(1).
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return err
	}
	if len(existing) > 0 {
		return dispatch.ErrFailurePending
	}

	// The partial unique index on (order_id) WHERE status = 'pending'
	// backs this check against concurrent creators.
	_, err = s.pg.NewInsert(toFailedDeliveryModel(f)).Exec(ctx)
	return err
}

func (s *Store) GetFailedDelivery(ctx context.Context, failureID id.FailedDeliveryID) (*failure.FailedDelivery, error) {
	m := new(failedDeliveryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", failureID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrFailureNotFound
		}
		return nil, err
	}
	return fromFailedDeliveryModel(m)
}

func (s *Store) GetFailedDeliveryByOrder(ctx context.Context, orderID id.OrderID) (*failure.FailedDelivery, error) {
	m := new(failedDeliveryModel)
	err := s.pg.NewSelect(m).
		Where("order_id = $1", orderID.String()).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrFailureNotFound
		}
		return nil, err
	}
	return fromFailedDeliveryModel(m)
}

func (s *Store) ListFailedDeliveries(ctx context.Context, businessID string, opts failure.ListOpts) ([]*failure.FailedDelivery, error) {
	var models []failedDeliveryModel
	q := s.pg.NewSelect(&models).Where("business_id = $1", businessID)

	argIdx := 1
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.ResolutionType != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("resolution_type = $%d", argIdx), string(opts.ResolutionType))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	m := new(reasonModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", reasonID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrReasonNotFound
		}
		return nil, err
	}
	return fromReasonModel(m)
}

func (s *Store) ListReasons(ctx context.Context, activeOnly bool) ([]*failure.Reason, error) {
	var models []reasonModel
	q := s.pg.NewSelect(&models)
	if activeOnly {
		q = q.Where("active = $1", true)
	}
	q = q.OrderExpr("sort_order ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
		res, err := s.pg.NewUpdate((*reasonModel)(nil)).
			Set("label_en = $1", r.LabelEN).
			Set("label_fr = $2", r.LabelFR).
			Set("active = $3", r.Active).
			Set("sort_order = $4", r.SortOrder).
			Set("updated_at = $5", now()).
			Where("key = $6", r.Key).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows > 0 {
			continue
		}

		m := toReasonModel(r)
		if m.ID == "" {
			m.ID = id.NewReasonID().String()
		}
		m.CreatedAt = now()
		m.UpdatedAt = now()
		if _, err := s.pg.NewInsert(m).
			OnConflict("(key) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ==================== Settlement ====================

// ApplySettlement applies the plan as a sequence of guarded updates with
// an undo log. The commit gate goes first; any later step that cannot be
// applied rolls back everything already done and surfaces the cause.
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
		res, err := s.pg.NewUpdate((*failedDeliveryModel)(nil)).
			Set("status = $1", string(failure.StatusCompleted)).
			Set("resolution_type = $2", string(plan.Resolution)).
			Set("outcome = $3", plan.Outcome).
			Set("resolved_by = $4", plan.ResolvedBy).
			Set("resolved_at = $5", plan.ResolvedAt).
			Set("updated_at = $6", now()).
			Where("id = $7", plan.FailureID.String()).
			Where("status = $8", string(failure.StatusPending)).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			if _, err := s.GetFailedDelivery(ctx, plan.FailureID); err != nil {
				return err
			}
			return dispatch.ErrAlreadyResolved
		}
		failureID := plan.FailureID
		undo = append(undo, func(ctx context.Context) error {
			_, err := s.pg.NewUpdate((*failedDeliveryModel)(nil)).
				Set("status = $1", string(failure.StatusPending)).
				Set("resolution_type = ''").
				Set("outcome = ''").
				Set("resolved_by = ''").
				Set("resolved_at = NULL").
				Where("id = $2", failureID.String()).
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
			_, err := s.pg.NewUpdate((*holdModel)(nil)).
				Set("status = $1", string(account.HoldActive)).
				Set("closed_at = NULL").
				Where("id = $2", holdID.String()).
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
			_, err := s.pg.NewDelete((*entryModel)(nil)).
				Where("id = $1", entryID.String()).
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
	_, err := s.pg.NewInsert(toItemModel(item)).Exec(ctx)
	return err
}

func (s *Store) GetItem(ctx context.Context, itemID id.ItemID) (*inventory.Item, error) {
	m := new(itemModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", itemID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrItemNotFound
		}
		return nil, err
	}
	return fromItemModel(m)
}

func (s *Store) ListItems(ctx context.Context, businessID string, opts inventory.ListOpts) ([]*inventory.Item, error) {
	var models []itemModel
	q := s.pg.NewSelect(&models).Where("business_id = $1", businessID)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dispatch.ErrItemNotFound
	}
	return nil
}

func (s *Store) IncrementAvailable(ctx context.Context, itemID id.ItemID, qty int64) error {
	res, err := s.pg.NewUpdate((*itemModel)(nil)).
		Set("available = available + $1", qty).
		Set("updated_at = $2", now()).
		Where("id = $3", itemID.String()).
		Where("available + $4 >= 0", qty).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
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
	models := make([]notificationModel, len(events))
	for i, e := range events {
		models[i] = *toNotificationModel(e)
	}
	_, err := s.pg.NewInsert(&models).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) QueryNotifications(ctx context.Context, recipient string, opts notify.QueryOpts) ([]*notify.Notification, error) {
	var models []notificationModel
	q := s.pg.NewSelect(&models).Where("recipient = $1", recipient)

	argIdx := 1
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if !opts.Start.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp >= $%d", argIdx), opts.Start)
	}
	if !opts.End.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp <= $%d", argIdx), opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.pg.NewDelete((*notificationModel)(nil)).
		Where("timestamp < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Helpers ====================

// adjustBalances applies signed deltas to an account's balances, guarded
// so neither balance can go negative.
func (s *Store) adjustBalances(ctx context.Context, accountID id.AccountID, availableDelta, heldDelta int64) error {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("available_cents = available_cents + $1", availableDelta).
		Set("held_cents = held_cents + $2", heldDelta).
		Set("updated_at = $3", now()).
		Where("id = $4", accountID.String()).
		Where("available_cents + $5 >= 0", availableDelta).
		Where("held_cents + $6 >= 0", heldDelta).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetAccount(ctx, accountID); err != nil {
			return err
		}
		return dispatch.ErrInsufficientFunds
	}
	return nil
}

// closeHold flips an active hold to the given terminal status.
func (s *Store) closeHold(ctx context.Context, holdID id.HoldID, status account.HoldStatus) error {
	res, err := s.pg.NewUpdate((*holdModel)(nil)).
		Set("status = $1", string(status)).
		Set("closed_at = $2", now()).
		Set("updated_at = $3", now()).
		Where("id = $4", holdID.String()).
		Where("status = $5", string(account.HoldActive)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
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
	if _, err := s.pg.NewInsert(toEntryModel(e)).Exec(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
