// Package settlement plans the ledger and inventory effects of closing
// out an order. Planning is pure: it reads the order, its holds and the
// resolution, and emits an ordered effect list for the store to apply
// atomically. No money moves here.
package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/types"
)

var (
	ErrPaymentHoldMissing    = errors.New("settlement: no active payment hold for order")
	ErrCommissionHoldMissing = errors.New("settlement: no commission hold for order")
	ErrOutcomeRequired       = errors.New("settlement: outcome narrative is required")
	ErrResolvedByRequired    = errors.New("settlement: resolved_by is required")
)

// Plan computes the effects of resolving a failed delivery. The returned
// settlement carries the resolution metadata; the caller fills FailureID.
//
// Hold expectations: the client payment hold (order total) must be active.
// The commission hold (delivery fee, on the business account) is normally
// active; if it was already captured to the agent, an agent-fault
// resolution claws the fee back as a direct transfer.
func Plan(o *order.Order, parties Parties, holds []*account.Hold, res failure.Resolution, cfg Config) (*Settlement, error) {
	if !res.Type.Valid() {
		return nil, fmt.Errorf("settlement: unknown resolution type %q", res.Type)
	}
	if res.Outcome == "" {
		return nil, ErrOutcomeRequired
	}
	if res.ResolvedBy == "" {
		return nil, ErrResolvedByRequired
	}

	payment := findHold(holds, account.HoldPayment)
	if payment == nil || !payment.Active() {
		return nil, ErrPaymentHoldMissing
	}
	commission := findHold(holds, account.HoldCommission)
	if commission == nil {
		return nil, ErrCommissionHoldMissing
	}

	s := &Settlement{
		OrderID:    o.ID,
		Resolution: res.Type,
		Outcome:    res.Outcome,
		ResolvedBy: res.ResolvedBy,
		ResolvedAt: time.Now().UTC(),
	}

	zero := types.Zero(o.Currency)
	total := payment.Amount
	fee := commission.Amount

	switch res.Type {
	case failure.ResolutionAgentFault:
		s.refundClientInFull(payment, total)
		s.returnCommission(commission, parties, fee, zero)
		if commission.Status == account.HoldCaptured {
			// Commission already paid out; claw it back from the agent.
			s.Transfers = append(s.Transfers,
				Transfer{AccountID: parties.Agent, Available: fee.Negate(), Held: zero, Reason: account.ReasonClawback},
				Transfer{AccountID: parties.Business, Available: fee, Held: zero, Reason: account.ReasonClawbackReceived},
			)
		}

	case failure.ResolutionItemFault:
		s.refundClientInFull(payment, total)
		s.returnCommission(commission, parties, fee, zero)
		if res.RestoreInventory {
			for _, line := range o.Lines {
				if line.ItemID.IsNil() || line.Quantity <= 0 {
					continue
				}
				s.Restocks = append(s.Restocks, Restock{ItemID: line.ItemID, Quantity: line.Quantity})
			}
		}

	case failure.ResolutionClientFault:
		// Penalty is twice the cancellation fee, never exceeding the
		// escrowed total, split evenly between agent and business with
		// any odd remainder going to the business.
		cancelFee := cfg.CancellationFee
		if cancelFee.IsZero() {
			cancelFee = zero
		}
		if cancelFee.Currency != o.Currency {
			return nil, fmt.Errorf("settlement: cancellation fee currency %q does not match order currency %q", cancelFee.Currency, o.Currency)
		}
		penalty := cancelFee.Multiply(2).Min(total)
		agentShare := penalty.Divide(2)
		businessShare := penalty.Subtract(agentShare)

		s.HoldOps = append(s.HoldOps, HoldOp{HoldID: payment.ID, Close: account.HoldCaptured})
		s.Transfers = append(s.Transfers,
			Transfer{AccountID: parties.Client, Available: total.Subtract(penalty), Held: total.Negate(), Reason: account.ReasonRefundLessPenalty},
			Transfer{AccountID: parties.Agent, Available: agentShare, Held: zero, Reason: account.ReasonPenaltyShare},
			Transfer{AccountID: parties.Business, Available: businessShare, Held: zero, Reason: account.ReasonPenaltyShare},
		)
		s.returnCommission(commission, parties, fee, zero)
	}

	return s, nil
}

// Completion computes the effects of a successful delivery reaching
// completed: the payment is captured to the business and the commission
// is captured to the agent.
func Completion(o *order.Order, parties Parties, holds []*account.Hold) (*Settlement, error) {
	payment := findHold(holds, account.HoldPayment)
	if payment == nil || !payment.Active() {
		return nil, ErrPaymentHoldMissing
	}
	commission := findHold(holds, account.HoldCommission)
	if commission == nil || !commission.Active() {
		return nil, ErrCommissionHoldMissing
	}

	zero := types.Zero(o.Currency)
	s := &Settlement{
		OrderID:    o.ID,
		ResolvedAt: time.Now().UTC(),
		HoldOps: []HoldOp{
			{HoldID: payment.ID, Close: account.HoldCaptured},
			{HoldID: commission.ID, Close: account.HoldCaptured},
		},
		Transfers: []Transfer{
			{AccountID: parties.Client, Available: zero, Held: payment.Amount.Negate(), Reason: account.ReasonHoldCaptured},
			{AccountID: parties.Business, Available: payment.Amount, Held: zero, Reason: account.ReasonOrderRevenue},
			{AccountID: parties.Business, Available: zero, Held: commission.Amount.Negate(), Reason: account.ReasonHoldCaptured},
			{AccountID: parties.Agent, Available: commission.Amount, Held: zero, Reason: account.ReasonCommissionPaid},
		},
	}

	return s, nil
}

// refundClientInFull releases the payment hold back to the client.
func (s *Settlement) refundClientInFull(payment *account.Hold, total types.Money) {
	s.HoldOps = append(s.HoldOps, HoldOp{HoldID: payment.ID, Close: account.HoldReleased})
	s.Transfers = append(s.Transfers, Transfer{
		AccountID: payment.AccountID,
		Available: total,
		Held:      total.Negate(),
		Reason:    account.ReasonRefund,
	})
}

// returnCommission releases an active commission hold back to the
// business. A hold that is already closed contributes no effects here.
func (s *Settlement) returnCommission(commission *account.Hold, parties Parties, fee, zero types.Money) {
	if !commission.Active() {
		return
	}
	s.HoldOps = append(s.HoldOps, HoldOp{HoldID: commission.ID, Close: account.HoldReleased})
	s.Transfers = append(s.Transfers, Transfer{
		AccountID: parties.Business,
		Available: fee,
		Held:      fee.Negate(),
		Reason:    account.ReasonCommissionReturned,
	})
}

func findHold(holds []*account.Hold, purpose account.HoldPurpose) *account.Hold {
	for _, h := range holds {
		if h.Purpose == purpose {
			return h
		}
	}
	return nil
}
