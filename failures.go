package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/notify"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/types"
)

// ──────────────────────────────────────────────────
// Failed deliveries
// ──────────────────────────────────────────────────

// MarkFailed transitions an in-custody order to failed and opens a
// pending failed-delivery record for it. The status flip is the gate:
// it can only succeed once, so at most one record exists per order.
func (d *Dispatch) MarkFailed(ctx context.Context, orderID id.OrderID, reasonID id.ReasonID, notes string) (*failure.FailedDelivery, error) {
	o, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.InCustody() {
		return nil, ErrInvalidTransition
	}
	if !o.Claimed() {
		return nil, ErrOrderNotClaimed
	}

	reason, err := d.store.GetReason(ctx, reasonID)
	if err != nil {
		return nil, err
	}
	if !reason.Active {
		return nil, ErrReasonInactive
	}

	if err := d.store.UpdateOrderStatus(ctx, orderID, o.Status, order.StatusFailed); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o.FailedAt = &now
	prev := o.Status
	o.Status = order.StatusFailed
	o.Touch()
	if err := d.store.UpdateOrder(ctx, o); err != nil {
		d.logger.Warn("failed to record failure timestamp", "order_id", o.ID, "error", err)
	}

	rec := &failure.FailedDelivery{
		Entity:     types.NewEntity(),
		ID:         id.NewFailedDeliveryID(),
		OrderID:    o.ID,
		BusinessID: o.BusinessID,
		AgentID:    o.AgentID,
		ReasonID:   reason.ID,
		ReasonKey:  reason.Key,
		Notes:      notes,
		Status:     failure.StatusPending,
	}
	if err := d.store.CreateFailedDelivery(ctx, rec); err != nil {
		// Put the order back in custody so the failure can be retried;
		// a terminal failed order with no pending record is unresolvable.
		if revErr := d.store.UpdateOrderStatus(ctx, orderID, order.StatusFailed, prev); revErr != nil {
			d.logger.Error("failed to restore order status after failure record error",
				"order_id", o.ID, "status", prev, "error", revErr)
		} else {
			o.Status = prev
			o.FailedAt = nil
			o.Touch()
			if updErr := d.store.UpdateOrder(ctx, o); updErr != nil {
				d.logger.Warn("failed to clear failure timestamp", "order_id", o.ID, "error", updErr)
			}
		}
		return nil, err
	}

	d.plugins.EmitOrderTransitioned(ctx, o.ID.String(), string(prev), string(order.StatusFailed))
	d.plugins.EmitDeliveryFailed(ctx, rec)
	d.enqueueNotification(ctx, notify.KindDeliveryFailed, o.ID, o.BusinessID, "delivery failed: "+reason.Key)
	d.enqueueNotification(ctx, notify.KindDeliveryFailed, o.ID, o.ClientID, "your delivery could not be completed")
	return rec, nil
}

// GetFailedDelivery retrieves the failed-delivery record for an order.
// Non-admin callers must be the business the order belongs to.
func (d *Dispatch) GetFailedDelivery(ctx context.Context, orderID id.OrderID, caller Identity) (*failure.FailedDelivery, error) {
	rec, err := d.store.GetFailedDeliveryByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := d.requireBusinessAccess(caller, rec.BusinessID); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFailedDeliveries lists a business's failed-delivery records.
func (d *Dispatch) ListFailedDeliveries(ctx context.Context, businessID string, opts failure.ListOpts, caller Identity) ([]*failure.FailedDelivery, error) {
	if err := d.requireBusinessAccess(caller, businessID); err != nil {
		return nil, err
	}
	return d.store.ListFailedDeliveries(ctx, businessID, opts)
}

// ListReasons returns the failure reason catalog.
func (d *Dispatch) ListReasons(ctx context.Context, activeOnly bool) ([]*failure.Reason, error) {
	return d.store.ListReasons(ctx, activeOnly)
}

// Resolve settles a pending failed delivery. The fault assignment picks
// one of three settlement shapes (agent, client or item fault), the
// planner turns it into ledger effects, and the store applies them
// atomically. Concurrent calls resolve exactly once: losers observe
// ErrAlreadyResolved.
func (d *Dispatch) Resolve(ctx context.Context, orderID id.OrderID, res failure.Resolution, caller Identity) (*settlement.Settlement, error) {
	rec, err := d.store.GetFailedDeliveryByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := d.requireBusinessAccess(caller, rec.BusinessID); err != nil {
		return nil, err
	}
	if !rec.Pending() {
		return nil, ErrAlreadyResolved
	}
	if res.ResolvedBy == "" {
		res.ResolvedBy = caller.Ref
	}

	o, err := d.store.GetOrder(ctx, rec.OrderID)
	if err != nil {
		return nil, err
	}
	parties, err := d.partiesFor(ctx, o)
	if err != nil {
		return nil, err
	}
	holds, err := d.store.ListHolds(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	plan, err := settlement.Plan(o, parties, holds, res, d.settlementConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	plan.FailureID = rec.ID

	if err := d.store.ApplySettlement(ctx, plan); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			d.logger.Error("settlement requires funds that are not escrowed; manual reconciliation needed",
				"order_id", o.ID, "failure_id", rec.ID, "error", err)
			d.plugins.EmitLedgerImbalance(ctx, o.ID.String(), err)
		}
		d.plugins.EmitSettlementFailed(ctx, o.ID.String(), err)
		return nil, err
	}

	for _, rs := range plan.Restocks {
		d.plugins.EmitInventoryRestored(ctx, rs.ItemID.String(), rs.Quantity)
	}
	d.plugins.EmitSettlementResolved(ctx, plan)

	d.enqueueNotification(ctx, notify.KindSettlementResolved, o.ID, o.ClientID, "your failed delivery was settled")
	d.enqueueNotification(ctx, notify.KindSettlementResolved, o.ID, o.AgentID, "a failed delivery you carried was settled")
	d.enqueueNotification(ctx, notify.KindSettlementResolved, o.ID, o.BusinessID, "failed delivery settled: "+string(res.Type))
	return plan, nil
}

// requireBusinessAccess enforces business scoping: admins see everything,
// a business sees its own records, everyone else is refused.
func (d *Dispatch) requireBusinessAccess(caller Identity, businessID string) error {
	if caller.Admin {
		return nil
	}
	if caller.Role == account.OwnerBusiness && caller.Ref == businessID {
		return nil
	}
	return ErrForbidden
}
