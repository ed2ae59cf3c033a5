package settlement_test

import (
	"testing"

	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/types"
)

type fixture struct {
	order      *order.Order
	parties    settlement.Parties
	payment    *account.Hold
	commission *account.Hold
}

func newFixture(total, fee int64) *fixture {
	clientAcct := id.NewAccountID()
	agentAcct := id.NewAccountID()
	businessAcct := id.NewAccountID()
	orderID := id.NewOrderID()

	o := &order.Order{
		ID:          orderID,
		BusinessID:  "biz_1",
		ClientID:    "client_1",
		AgentID:     "agent_1",
		Status:      order.StatusFailed,
		Currency:    "usd",
		Subtotal:    types.USD(total - fee),
		DeliveryFee: types.USD(fee),
		Total:       types.USD(total),
		Lines: []order.Line{
			{ItemID: id.NewItemID(), Name: "Widget", Quantity: 2, UnitPrice: types.USD((total - fee) / 2), Amount: types.USD(total - fee)},
		},
	}

	return &fixture{
		order:   o,
		parties: settlement.Parties{Client: clientAcct, Agent: agentAcct, Business: businessAcct},
		payment: &account.Hold{
			ID: id.NewHoldID(), AccountID: clientAcct, OrderID: orderID,
			Purpose: account.HoldPayment, Amount: types.USD(total), Status: account.HoldActive,
		},
		commission: &account.Hold{
			ID: id.NewHoldID(), AccountID: businessAcct, OrderID: orderID,
			Purpose: account.HoldCommission, Amount: types.USD(fee), Status: account.HoldActive,
		},
	}
}

func (f *fixture) holds() []*account.Hold {
	return []*account.Hold{f.payment, f.commission}
}

func (f *fixture) plan(t *testing.T, res failure.Resolution) *settlement.Settlement {
	t.Helper()
	s, err := settlement.Plan(f.order, f.parties, f.holds(), res, settlement.Config{CancellationFee: types.USD(500)})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return s
}

// sumFor returns the (available, held) delta a settlement applies to one account.
func sumFor(s *settlement.Settlement, acct id.AccountID, currency string) (types.Money, types.Money) {
	avail := types.Zero(currency)
	held := types.Zero(currency)
	for _, tr := range s.Transfers {
		if tr.AccountID == acct {
			avail = avail.Add(tr.Available)
			held = held.Add(tr.Held)
		}
	}
	return avail, held
}

func holdClose(s *settlement.Settlement, holdID id.HoldID) (account.HoldStatus, bool) {
	for _, op := range s.HoldOps {
		if op.HoldID == holdID {
			return op.Close, true
		}
	}
	return "", false
}

func TestPlanAgentFault(t *testing.T) {
	f := newFixture(2000, 500)
	s := f.plan(t, failure.Resolution{
		Type: failure.ResolutionAgentFault, Outcome: "agent lost package", ResolvedBy: "ops_1",
	})

	avail, held := sumFor(s, f.parties.Client, "usd")
	if !avail.Equal(types.USD(2000)) {
		t.Errorf("client refund: got %v, want full $20.00", avail)
	}
	if !held.Equal(types.USD(-2000)) {
		t.Errorf("client held delta: got %v, want -$20.00", held)
	}

	avail, held = sumFor(s, f.parties.Business, "usd")
	if !avail.Equal(types.USD(500)) || !held.Equal(types.USD(-500)) {
		t.Errorf("business should get its commission hold back: avail %v held %v", avail, held)
	}

	avail, _ = sumFor(s, f.parties.Agent, "usd")
	if !avail.IsZero() {
		t.Errorf("agent balance should be untouched, got %v", avail)
	}

	if close, ok := holdClose(s, f.payment.ID); !ok || close != account.HoldReleased {
		t.Errorf("payment hold should be released, got %v (found=%v)", close, ok)
	}
	if close, ok := holdClose(s, f.commission.ID); !ok || close != account.HoldReleased {
		t.Errorf("commission hold should be released, got %v (found=%v)", close, ok)
	}

	if net := s.NetDelta("usd"); !net.IsZero() {
		t.Errorf("settlement must conserve money, net delta %v", net)
	}
	if len(s.Restocks) != 0 {
		t.Errorf("agent fault must not restock, got %d restocks", len(s.Restocks))
	}
}

func TestPlanAgentFaultClawback(t *testing.T) {
	f := newFixture(2000, 500)
	f.commission.Status = account.HoldCaptured // commission already paid out

	s := f.plan(t, failure.Resolution{
		Type: failure.ResolutionAgentFault, Outcome: "agent damaged goods", ResolvedBy: "ops_1",
	})

	avail, _ := sumFor(s, f.parties.Agent, "usd")
	if !avail.Equal(types.USD(-500)) {
		t.Errorf("agent clawback: got %v, want -$5.00", avail)
	}
	avail, held := sumFor(s, f.parties.Business, "usd")
	if !avail.Equal(types.USD(500)) || !held.IsZero() {
		t.Errorf("business clawback credit: avail %v held %v", avail, held)
	}
	if _, ok := holdClose(s, f.commission.ID); ok {
		t.Error("captured commission hold must not be closed again")
	}
	if net := s.NetDelta("usd"); !net.IsZero() {
		t.Errorf("net delta %v, want zero", net)
	}
}

func TestPlanItemFault(t *testing.T) {
	f := newFixture(2000, 500)
	itemID := f.order.Lines[0].ItemID

	t.Run("WithRestore", func(t *testing.T) {
		s := f.plan(t, failure.Resolution{
			Type: failure.ResolutionItemFault, Outcome: "wrong item shipped",
			RestoreInventory: true, ResolvedBy: "ops_1",
		})

		avail, _ := sumFor(s, f.parties.Client, "usd")
		if !avail.Equal(types.USD(2000)) {
			t.Errorf("client refund: got %v, want full $20.00", avail)
		}
		avail, _ = sumFor(s, f.parties.Agent, "usd")
		if !avail.IsZero() {
			t.Errorf("agent balance should be untouched, got %v", avail)
		}
		if len(s.Restocks) != 1 || s.Restocks[0].ItemID != itemID || s.Restocks[0].Quantity != 2 {
			t.Errorf("expected one restock of 2 units for %v, got %+v", itemID, s.Restocks)
		}
	})

	t.Run("WithoutRestore", func(t *testing.T) {
		s := f.plan(t, failure.Resolution{
			Type: failure.ResolutionItemFault, Outcome: "goods unsalvageable", ResolvedBy: "ops_1",
		})
		if len(s.Restocks) != 0 {
			t.Errorf("expected no restocks, got %+v", s.Restocks)
		}
	})
}

func TestPlanClientFault(t *testing.T) {
	// Fee $5.00, penalty $10.00: client refunded $10.00 of the $20.00,
	// agent and business each pocket $5.00.
	f := newFixture(2000, 500)
	s := f.plan(t, failure.Resolution{
		Type: failure.ResolutionClientFault, Outcome: "client unreachable after 3 attempts", ResolvedBy: "ops_1",
	})

	avail, held := sumFor(s, f.parties.Client, "usd")
	if !avail.Equal(types.USD(1000)) {
		t.Errorf("client partial refund: got %v, want $10.00", avail)
	}
	if !held.Equal(types.USD(-2000)) {
		t.Errorf("client held delta: got %v, want -$20.00", held)
	}

	avail, _ = sumFor(s, f.parties.Agent, "usd")
	if !avail.Equal(types.USD(500)) {
		t.Errorf("agent penalty share: got %v, want $5.00", avail)
	}

	avail, held = sumFor(s, f.parties.Business, "usd")
	// $5.00 penalty share plus the $5.00 commission hold release.
	if !avail.Equal(types.USD(1000)) || !held.Equal(types.USD(-500)) {
		t.Errorf("business deltas: avail %v held %v", avail, held)
	}

	if close, ok := holdClose(s, f.payment.ID); !ok || close != account.HoldCaptured {
		t.Errorf("payment hold should be captured, got %v (found=%v)", close, ok)
	}
	if net := s.NetDelta("usd"); !net.IsZero() {
		t.Errorf("settlement must conserve money, net delta %v", net)
	}
}

func TestPlanClientFaultPenaltyCapped(t *testing.T) {
	// Total $6.00 with fee $5.00: 2x fee would exceed the escrow, so the
	// penalty caps at the total and the client gets nothing back.
	f := newFixture(600, 500)
	s, err := settlement.Plan(f.order, f.parties, f.holds(), failure.Resolution{
		Type: failure.ResolutionClientFault, Outcome: "refused delivery", ResolvedBy: "ops_1",
	}, settlement.Config{CancellationFee: types.USD(500)})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	avail, _ := sumFor(s, f.parties.Client, "usd")
	if !avail.IsZero() {
		t.Errorf("client refund should be zero when penalty caps, got %v", avail)
	}
	agentAvail, _ := sumFor(s, f.parties.Agent, "usd")
	if !agentAvail.Equal(types.USD(300)) {
		t.Errorf("agent share: got %v, want $3.00", agentAvail)
	}
	if net := s.NetDelta("usd"); !net.IsZero() {
		t.Errorf("net delta %v, want zero", net)
	}
}

func TestPlanValidation(t *testing.T) {
	f := newFixture(2000, 500)

	tests := []struct {
		name string
		res  failure.Resolution
	}{
		{"UnknownType", failure.Resolution{Type: "weather_fault", Outcome: "x", ResolvedBy: "ops"}},
		{"EmptyType", failure.Resolution{Outcome: "x", ResolvedBy: "ops"}},
		{"MissingOutcome", failure.Resolution{Type: failure.ResolutionAgentFault, ResolvedBy: "ops"}},
		{"MissingResolvedBy", failure.Resolution{Type: failure.ResolutionAgentFault, Outcome: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := settlement.Plan(f.order, f.parties, f.holds(), tt.res, settlement.Config{CancellationFee: types.USD(500)})
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPlanMissingHolds(t *testing.T) {
	f := newFixture(2000, 500)
	res := failure.Resolution{Type: failure.ResolutionAgentFault, Outcome: "x", ResolvedBy: "ops"}
	cfg := settlement.Config{CancellationFee: types.USD(500)}

	if _, err := settlement.Plan(f.order, f.parties, []*account.Hold{f.commission}, res, cfg); err == nil {
		t.Error("expected error for missing payment hold")
	}

	f.payment.Status = account.HoldReleased
	if _, err := settlement.Plan(f.order, f.parties, f.holds(), res, cfg); err == nil {
		t.Error("expected error for inactive payment hold")
	}
}

func TestCompletion(t *testing.T) {
	f := newFixture(2000, 500)
	s, err := settlement.Completion(f.order, f.parties, f.holds())
	if err != nil {
		t.Fatalf("Completion failed: %v", err)
	}

	avail, held := sumFor(s, f.parties.Client, "usd")
	if !avail.IsZero() || !held.Equal(types.USD(-2000)) {
		t.Errorf("client deltas: avail %v held %v", avail, held)
	}
	avail, held = sumFor(s, f.parties.Business, "usd")
	if !avail.Equal(types.USD(2000)) || !held.Equal(types.USD(-500)) {
		t.Errorf("business deltas: avail %v held %v", avail, held)
	}
	avail, _ = sumFor(s, f.parties.Agent, "usd")
	if !avail.Equal(types.USD(500)) {
		t.Errorf("agent commission: got %v, want $5.00", avail)
	}
	if net := s.NetDelta("usd"); !net.IsZero() {
		t.Errorf("net delta %v, want zero", net)
	}
}
