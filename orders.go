package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/notify"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/types"
)

// ──────────────────────────────────────────────────
// Order lifecycle
// ──────────────────────────────────────────────────

// CreateOrder validates and persists a new order in pending status. The
// payment gateway captures the client's money at placement; the engine
// mirrors that capture on the client's ledger account so confirmation
// can escrow it.
func (d *Dispatch) CreateOrder(ctx context.Context, o *order.Order) error {
	if err := validateOrder(o); err != nil {
		return err
	}

	if o.ID == (id.OrderID{}) {
		o.ID = id.NewOrderID()
	}
	o.Entity = types.NewEntity()
	o.Status = order.StatusPending
	o.AgentID = ""

	if err := d.store.CreateOrder(ctx, o); err != nil {
		return err
	}

	acct, err := d.store.GetOrCreateAccount(ctx, account.OwnerClient, o.ClientID, o.Currency)
	if err != nil {
		return err
	}
	if _, err := d.store.Credit(ctx, acct.ID, o.Total, o.ID, account.ReasonPaymentCaptured); err != nil {
		return err
	}

	d.plugins.EmitOrderCreated(ctx, o)
	return nil
}

// GetOrder retrieves an order by ID.
func (d *Dispatch) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	return d.store.GetOrder(ctx, orderID)
}

// ListOrders lists a business's orders.
func (d *Dispatch) ListOrders(ctx context.Context, businessID string, opts order.ListOpts) ([]*order.Order, error) {
	return d.store.ListOrders(ctx, businessID, opts)
}

// Transition moves an order one step forward through its lifecycle.
// Cancellation goes through Cancel and failure through MarkFailed; both
// are rejected here. An illegal transition returns ErrInvalidTransition
// and leaves the order untouched.
func (d *Dispatch) Transition(ctx context.Context, orderID id.OrderID, to order.Status) error {
	o, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	switch to {
	case order.StatusCancelled:
		return d.Cancel(ctx, orderID)
	case order.StatusFailed:
		// Failure needs a reason and creates a tracked record.
		return ErrInvalidTransition
	}

	if !o.Status.CanTransition(to) {
		return ErrInvalidTransition
	}
	if to == order.StatusPickedUp && !o.Claimed() {
		return ErrOrderNotClaimed
	}
	if to == order.StatusCompleted {
		return d.complete(ctx, o)
	}

	if to == order.StatusConfirmed {
		return d.confirm(ctx, o)
	}

	prev := o.Status
	if err := d.store.UpdateOrderStatus(ctx, orderID, o.Status, to); err != nil {
		return err
	}

	if to == order.StatusDelivered {
		now := time.Now().UTC()
		o.DeliveredAt = &now
		o.Status = order.StatusDelivered
		o.Touch()
		if err := d.store.UpdateOrder(ctx, o); err != nil {
			d.logger.Warn("failed to record delivery timestamp", "order_id", o.ID, "error", err)
		}
		d.enqueueNotification(ctx, notify.KindOrderDelivered, o.ID, o.ClientID, "your order was delivered")
	}

	d.plugins.EmitOrderTransitioned(ctx, o.ID.String(), string(prev), string(to))
	return nil
}

// confirm escrows the client's captured payment, then flips the status.
// The hold is placed first so that a confirmed order always has its
// payment escrowed; losing the status race releases the hold again.
func (d *Dispatch) confirm(ctx context.Context, o *order.Order) error {
	acct, err := d.store.GetOrCreateAccount(ctx, account.OwnerClient, o.ClientID, o.Currency)
	if err != nil {
		return err
	}

	hold, err := d.store.PlaceHold(ctx, acct.ID, o.ID, account.HoldPayment, o.Total)
	if err != nil {
		return fmt.Errorf("dispatch: escrow payment: %w", err)
	}

	if err := d.store.UpdateOrderStatus(ctx, o.ID, o.Status, order.StatusConfirmed); err != nil {
		if relErr := d.store.ReleaseHold(ctx, hold.ID); relErr != nil {
			d.logger.Error("failed to release payment hold after lost confirmation",
				"order_id", o.ID, "hold_id", hold.ID, "error", relErr)
		}
		return err
	}

	d.plugins.EmitOrderTransitioned(ctx, o.ID.String(), string(o.Status), string(order.StatusConfirmed))
	d.enqueueNotification(ctx, notify.KindOrderConfirmed, o.ID, o.ClientID, "your order was confirmed")
	return nil
}

// complete captures both holds: the payment to the business and the
// commission to the agent. The delivered -> completed flip inside the
// settlement is the commit point.
func (d *Dispatch) complete(ctx context.Context, o *order.Order) error {
	parties, err := d.partiesFor(ctx, o)
	if err != nil {
		return err
	}
	holds, err := d.store.ListHolds(ctx, o.ID)
	if err != nil {
		return err
	}

	plan, err := settlement.Completion(o, parties, holds)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	if err := d.store.ApplySettlement(ctx, plan); err != nil {
		d.plugins.EmitSettlementFailed(ctx, o.ID.String(), err)
		return err
	}

	d.plugins.EmitOrderTransitioned(ctx, o.ID.String(), string(order.StatusDelivered), string(order.StatusCompleted))
	return nil
}

// Cancel cancels an order before pickup, releasing any escrowed funds.
func (d *Dispatch) Cancel(ctx context.Context, orderID id.OrderID) error {
	o, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.Status.PrePickup() {
		return ErrInvalidTransition
	}

	if err := d.store.UpdateOrderStatus(ctx, orderID, o.Status, order.StatusCancelled); err != nil {
		return err
	}

	now := time.Now().UTC()
	o.CancelledAt = &now
	prev := o.Status
	o.Status = order.StatusCancelled
	o.Touch()
	if err := d.store.UpdateOrder(ctx, o); err != nil {
		d.logger.Warn("failed to record cancellation timestamp", "order_id", o.ID, "error", err)
	}

	// Release whatever is escrowed: the payment hold if confirmed, and
	// the commission hold if the order had already been claimed.
	holds, err := d.store.ListHolds(ctx, orderID)
	if err != nil {
		d.logger.Error("failed to list holds for cancelled order", "order_id", orderID, "error", err)
	}
	for _, h := range holds {
		if !h.Active() {
			continue
		}
		if err := d.store.ReleaseHold(ctx, h.ID); err != nil {
			d.logger.Error("failed to release hold on cancellation",
				"order_id", orderID, "hold_id", h.ID, "purpose", h.Purpose, "error", err)
		}
	}

	d.plugins.EmitOrderCancelled(ctx, o)
	d.plugins.EmitOrderTransitioned(ctx, o.ID.String(), string(prev), string(order.StatusCancelled))
	d.enqueueNotification(ctx, notify.KindOrderCancelled, o.ID, o.ClientID, "your order was cancelled")
	return nil
}

// Claim atomically assigns the calling agent to a ready_for_pickup order
// and escrows the delivery fee from the business account as the agent's
// commission. Exactly one concurrent caller wins; losers get
// ErrOrderClaimed and the assignment is untouched.
func (d *Dispatch) Claim(ctx context.Context, orderID id.OrderID, agent Identity) error {
	if agent.Ref == "" {
		return ValidationError{Field: "agent", Message: "agent reference is required"}
	}

	o, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != order.StatusReadyForPickup {
		return ErrNotClaimable
	}
	if o.Claimed() {
		return ErrOrderClaimed
	}
	if o.VerifiedAgentOnly && !agent.Verified {
		return ErrAgentNotVerified
	}

	if err := d.store.ClaimOrder(ctx, orderID, agent.Ref); err != nil {
		return err
	}

	bizAcct, err := d.store.GetOrCreateAccount(ctx, account.OwnerBusiness, o.BusinessID, o.Currency)
	if err == nil {
		_, err = d.store.PlaceHold(ctx, bizAcct.ID, o.ID, account.HoldCommission, o.DeliveryFee)
	}
	if err != nil {
		// Back out the claim so another agent can take the order.
		if relErr := d.store.ReleaseOrderClaim(ctx, orderID, agent.Ref); relErr != nil {
			d.logger.Error("failed to release claim after commission escrow failure",
				"order_id", orderID, "agent_id", agent.Ref, "error", relErr)
		}
		return fmt.Errorf("dispatch: escrow commission: %w", err)
	}

	o.AgentID = agent.Ref
	d.plugins.EmitOrderClaimed(ctx, o, agent.Ref)
	d.enqueueNotification(ctx, notify.KindOrderClaimed, o.ID, o.ClientID, "an agent was assigned to your order")
	return nil
}

// partiesFor resolves the three settlement accounts for an order.
func (d *Dispatch) partiesFor(ctx context.Context, o *order.Order) (settlement.Parties, error) {
	var parties settlement.Parties

	client, err := d.store.GetOrCreateAccount(ctx, account.OwnerClient, o.ClientID, o.Currency)
	if err != nil {
		return parties, err
	}
	business, err := d.store.GetOrCreateAccount(ctx, account.OwnerBusiness, o.BusinessID, o.Currency)
	if err != nil {
		return parties, err
	}
	if o.AgentID == "" {
		return parties, ErrOrderNotClaimed
	}
	agent, err := d.store.GetOrCreateAccount(ctx, account.OwnerAgent, o.AgentID, o.Currency)
	if err != nil {
		return parties, err
	}

	parties.Client = client.ID
	parties.Business = business.ID
	parties.Agent = agent.ID
	return parties, nil
}

func validateOrder(o *order.Order) error {
	if o.BusinessID == "" {
		return ValidationError{Field: "business_id", Message: "required"}
	}
	if o.ClientID == "" {
		return ValidationError{Field: "client_id", Message: "required"}
	}
	if o.Currency == "" {
		return ValidationError{Field: "currency", Message: "required"}
	}
	if o.Total.Currency != o.Currency || o.Subtotal.Currency != o.Currency || o.DeliveryFee.Currency != o.Currency {
		return ValidationError{Field: "currency", Message: "order amounts must share the order currency"}
	}
	if o.Subtotal.IsNegative() || o.DeliveryFee.IsNegative() {
		return ValidationError{Field: "amounts", Message: "must not be negative"}
	}
	if !o.Total.Equal(o.Subtotal.Add(o.DeliveryFee)) {
		return ValidationError{Field: "total", Message: "must equal subtotal plus delivery fee"}
	}
	for i, line := range o.Lines {
		if line.Quantity <= 0 {
			return ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Message: "must be positive"}
		}
	}
	return nil
}
