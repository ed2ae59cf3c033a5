package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/dispatch"
	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/inventory"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/types"
)

func newOrder(status order.Status) *order.Order {
	return &order.Order{
		Entity:      types.NewEntity(),
		ID:          id.NewOrderID(),
		BusinessID:  "biz_1",
		ClientID:    "client_1",
		Status:      status,
		Currency:    "usd",
		Subtotal:    types.USD(2000),
		DeliveryFee: types.USD(500),
		Total:       types.USD(2500),
	}
}

func fundedAccount(t *testing.T, s *Store, ownerType account.OwnerType, ref string, cents int64) *account.Account {
	t.Helper()
	ctx := context.Background()

	a, err := s.GetOrCreateAccount(ctx, ownerType, ref, "usd")
	if err != nil {
		t.Fatalf("GetOrCreateAccount: %v", err)
	}
	if cents > 0 {
		if _, err := s.Credit(ctx, a.ID, types.USD(cents), id.OrderID{}, account.ReasonDeposit); err != nil {
			t.Fatalf("Credit: %v", err)
		}
	}
	a, err = s.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return a
}

func TestUpdateOrderStatusGuard(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := newOrder(order.StatusPending)
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := s.UpdateOrderStatus(ctx, o.ID, order.StatusPending, order.StatusConfirmed); err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	// Stale guard must fail
	err := s.UpdateOrderStatus(ctx, o.ID, order.StatusPending, order.StatusConfirmed)
	if !errors.Is(err, dispatch.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCreateOrderDetachesFromCaller(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := newOrder(order.StatusPending)
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// Mutating the caller's struct must not reach through into the store.
	o.Status = order.StatusDelivered
	o.AgentID = "agent_x"

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != order.StatusPending {
		t.Errorf("stored status = %q, want pending", got.Status)
	}
	if got.AgentID != "" {
		t.Errorf("stored agent = %q, want empty", got.AgentID)
	}
}

func TestClaimOrderSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := newOrder(order.StatusReadyForPickup)
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	const agents = 20
	var wg sync.WaitGroup
	wins := make(chan string, agents)

	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			agentID := "agent_" + string(rune('a'+n))
			if err := s.ClaimOrder(ctx, o.ID, agentID); err == nil {
				wins <- agentID
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.AgentID != winners[0] {
		t.Errorf("order assigned to %q, winner was %q", got.AgentID, winners[0])
	}
}

func TestReleaseOrderClaim(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := newOrder(order.StatusReadyForPickup)
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := s.ClaimOrder(ctx, o.ID, "agent_1"); err != nil {
		t.Fatalf("ClaimOrder: %v", err)
	}

	// Wrong agent cannot release
	if err := s.ReleaseOrderClaim(ctx, o.ID, "agent_2"); !errors.Is(err, dispatch.ErrOrderNotClaimed) {
		t.Errorf("expected ErrOrderNotClaimed, got %v", err)
	}
	if err := s.ReleaseOrderClaim(ctx, o.ID, "agent_1"); err != nil {
		t.Fatalf("ReleaseOrderClaim: %v", err)
	}

	// Claimable again
	if err := s.ClaimOrder(ctx, o.ID, "agent_2"); err != nil {
		t.Fatalf("reclaim after release: %v", err)
	}
}

func TestHoldLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := fundedAccount(t, s, account.OwnerClient, "client_1", 5000)
	orderID := id.NewOrderID()

	hold, err := s.PlaceHold(ctx, a.ID, orderID, account.HoldPayment, types.USD(2500))
	if err != nil {
		t.Fatalf("PlaceHold: %v", err)
	}

	got, _ := s.GetAccount(ctx, a.ID)
	if got.Available.Amount != 2500 || got.Held.Amount != 2500 {
		t.Fatalf("after hold: available=%d held=%d", got.Available.Amount, got.Held.Amount)
	}

	if err := s.ReleaseHold(ctx, hold.ID); err != nil {
		t.Fatalf("ReleaseHold: %v", err)
	}
	got, _ = s.GetAccount(ctx, a.ID)
	if got.Available.Amount != 5000 || got.Held.Amount != 0 {
		t.Fatalf("after release: available=%d held=%d", got.Available.Amount, got.Held.Amount)
	}

	// Double release
	if err := s.ReleaseHold(ctx, hold.ID); !errors.Is(err, dispatch.ErrHoldNotActive) {
		t.Errorf("expected ErrHoldNotActive, got %v", err)
	}
}

func TestPlaceHoldInsufficientFunds(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := fundedAccount(t, s, account.OwnerClient, "client_1", 100)
	_, err := s.PlaceHold(ctx, a.ID, id.NewOrderID(), account.HoldPayment, types.USD(2500))
	if !errors.Is(err, dispatch.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestCaptureHoldMovesAcrossAccounts(t *testing.T) {
	s := New()
	ctx := context.Background()

	client := fundedAccount(t, s, account.OwnerClient, "client_1", 2500)
	business := fundedAccount(t, s, account.OwnerBusiness, "biz_1", 0)

	hold, err := s.PlaceHold(ctx, client.ID, id.NewOrderID(), account.HoldPayment, types.USD(2500))
	if err != nil {
		t.Fatalf("PlaceHold: %v", err)
	}
	if err := s.CaptureHold(ctx, hold.ID, business.ID); err != nil {
		t.Fatalf("CaptureHold: %v", err)
	}

	c, _ := s.GetAccount(ctx, client.ID)
	b, _ := s.GetAccount(ctx, business.ID)
	if c.Total().Amount != 0 {
		t.Errorf("client total = %d, want 0", c.Total().Amount)
	}
	if b.Available.Amount != 2500 {
		t.Errorf("business available = %d, want 2500", b.Available.Amount)
	}
}

// settlementFixture sets up a failed order with both holds placed and a
// pending failed-delivery record, mirroring the state Resolve sees.
func settlementFixture(t *testing.T, s *Store) (*order.Order, *failure.FailedDelivery, settlement.Parties, []*account.Hold) {
	t.Helper()
	ctx := context.Background()

	o := newOrder(order.StatusFailed)
	o.AgentID = "agent_1"
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	client := fundedAccount(t, s, account.OwnerClient, "client_1", 2500)
	business := fundedAccount(t, s, account.OwnerBusiness, "biz_1", 500)
	agent := fundedAccount(t, s, account.OwnerAgent, "agent_1", 0)

	if _, err := s.PlaceHold(ctx, client.ID, o.ID, account.HoldPayment, types.USD(2500)); err != nil {
		t.Fatalf("place payment hold: %v", err)
	}
	if _, err := s.PlaceHold(ctx, business.ID, o.ID, account.HoldCommission, types.USD(500)); err != nil {
		t.Fatalf("place commission hold: %v", err)
	}

	rec := &failure.FailedDelivery{
		Entity:     types.NewEntity(),
		ID:         id.NewFailedDeliveryID(),
		OrderID:    o.ID,
		BusinessID: o.BusinessID,
		AgentID:    o.AgentID,
		ReasonID:   id.NewReasonID(),
		ReasonKey:  "client_refused",
		Status:     failure.StatusPending,
	}
	if err := s.CreateFailedDelivery(ctx, rec); err != nil {
		t.Fatalf("CreateFailedDelivery: %v", err)
	}

	holds, err := s.ListHolds(ctx, o.ID)
	if err != nil {
		t.Fatalf("ListHolds: %v", err)
	}
	parties := settlement.Parties{Client: client.ID, Agent: agent.ID, Business: business.ID}
	return o, rec, parties, holds
}

func TestApplySettlementAgentFault(t *testing.T) {
	s := New()
	ctx := context.Background()

	o, rec, parties, holds := settlementFixture(t, s)

	plan, err := settlement.Plan(o, parties, holds, failure.Resolution{
		Type:       failure.ResolutionAgentFault,
		Outcome:    "parcel lost in transit",
		ResolvedBy: "biz_1",
	}, settlement.Config{CancellationFee: types.USD(300)})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	plan.FailureID = rec.ID

	if err := s.ApplySettlement(ctx, plan); err != nil {
		t.Fatalf("ApplySettlement: %v", err)
	}

	client, _ := s.GetAccount(ctx, parties.Client)
	business, _ := s.GetAccount(ctx, parties.Business)
	if client.Available.Amount != 2500 || client.Held.Amount != 0 {
		t.Errorf("client available=%d held=%d, want 2500/0", client.Available.Amount, client.Held.Amount)
	}
	if business.Available.Amount != 500 || business.Held.Amount != 0 {
		t.Errorf("business available=%d held=%d, want 500/0", business.Available.Amount, business.Held.Amount)
	}

	got, _ := s.GetFailedDelivery(ctx, rec.ID)
	if got.Status != failure.StatusCompleted {
		t.Errorf("record status = %q, want completed", got.Status)
	}
	if got.ResolutionType != failure.ResolutionAgentFault {
		t.Errorf("resolution = %q, want agent_fault", got.ResolutionType)
	}
}

func TestApplySettlementExactlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()

	o, rec, parties, holds := settlementFixture(t, s)

	plan, err := settlement.Plan(o, parties, holds, failure.Resolution{
		Type:       failure.ResolutionAgentFault,
		Outcome:    "parcel lost",
		ResolvedBy: "biz_1",
	}, settlement.Config{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	plan.FailureID = rec.ID

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.ApplySettlement(ctx, plan)
		}()
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, dispatch.ErrAlreadyResolved):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != callers-1 {
		t.Fatalf("wins=%d losses=%d, want 1/%d", wins, losses, callers-1)
	}

	// The single application must not have double-moved money.
	client, _ := s.GetAccount(ctx, parties.Client)
	if client.Available.Amount != 2500 {
		t.Errorf("client available = %d, want 2500", client.Available.Amount)
	}
}

func TestApplySettlementRollbackOnMissingItem(t *testing.T) {
	s := New()
	ctx := context.Background()

	o, rec, parties, holds := settlementFixture(t, s)

	plan, err := settlement.Plan(o, parties, holds, failure.Resolution{
		Type:       failure.ResolutionItemFault,
		Outcome:    "wrong goods packed",
		ResolvedBy: "biz_1",
	}, settlement.Config{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	plan.FailureID = rec.ID
	// Restock an item that was never registered
	plan.Restocks = append(plan.Restocks, settlement.Restock{ItemID: id.NewItemID(), Quantity: 2})

	if err := s.ApplySettlement(ctx, plan); !errors.Is(err, dispatch.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	// Nothing moved: record still pending, holds still active.
	got, _ := s.GetFailedDelivery(ctx, rec.ID)
	if !got.Pending() {
		t.Error("record should still be pending after failed settlement")
	}
	remaining, _ := s.ListHolds(ctx, o.ID)
	for _, h := range remaining {
		if !h.Active() {
			t.Errorf("hold %s closed by failed settlement", h.ID)
		}
	}
	client, _ := s.GetAccount(ctx, parties.Client)
	if client.Held.Amount != 2500 {
		t.Errorf("client held = %d, want untouched 2500", client.Held.Amount)
	}
}

func TestApplySettlementRestock(t *testing.T) {
	s := New()
	ctx := context.Background()

	item := &inventory.Item{
		Entity:     types.NewEntity(),
		ID:         id.NewItemID(),
		BusinessID: "biz_1",
		Name:       "Grilled chicken",
		Available:  3,
	}
	if err := s.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	o, rec, parties, holds := settlementFixture(t, s)
	o.Lines = []order.Line{{ItemID: item.ID, Name: item.Name, Quantity: 2, UnitPrice: types.USD(1000), Amount: types.USD(2000)}}

	plan, err := settlement.Plan(o, parties, holds, failure.Resolution{
		Type:             failure.ResolutionItemFault,
		Outcome:          "goods returned intact",
		RestoreInventory: true,
		ResolvedBy:       "biz_1",
	}, settlement.Config{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	plan.FailureID = rec.ID

	if err := s.ApplySettlement(ctx, plan); err != nil {
		t.Fatalf("ApplySettlement: %v", err)
	}

	got, _ := s.GetItem(ctx, item.ID)
	if got.Available != 5 {
		t.Errorf("item available = %d, want 5", got.Available)
	}
}

func TestBalancesAreFoldOfEntries(t *testing.T) {
	s := New()
	ctx := context.Background()

	o, rec, parties, holds := settlementFixture(t, s)

	plan, err := settlement.Plan(o, parties, holds, failure.Resolution{
		Type:       failure.ResolutionClientFault,
		Outcome:    "client unreachable after three attempts",
		ResolvedBy: "biz_1",
	}, settlement.Config{CancellationFee: types.USD(300)})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	plan.FailureID = rec.ID
	if err := s.ApplySettlement(ctx, plan); err != nil {
		t.Fatalf("ApplySettlement: %v", err)
	}

	for _, accountID := range []id.AccountID{parties.Client, parties.Agent, parties.Business} {
		a, err := s.GetAccount(ctx, accountID)
		if err != nil {
			t.Fatalf("GetAccount: %v", err)
		}
		entries, err := s.ListEntries(ctx, accountID, account.EntryOpts{})
		if err != nil {
			t.Fatalf("ListEntries: %v", err)
		}

		available, held := types.Zero("usd"), types.Zero("usd")
		for _, e := range entries {
			available = available.Add(e.Available)
			held = held.Add(e.Held)
		}
		if !available.Equal(a.Available) {
			t.Errorf("account %s: entry fold available=%d, balance=%d", accountID, available.Amount, a.Available.Amount)
		}
		if !held.Equal(a.Held) {
			t.Errorf("account %s: entry fold held=%d, balance=%d", accountID, held.Amount, a.Held.Amount)
		}
	}
}

func TestCreateFailedDeliveryUniquePending(t *testing.T) {
	s := New()
	ctx := context.Background()

	orderID := id.NewOrderID()
	first := &failure.FailedDelivery{
		Entity:  types.NewEntity(),
		ID:      id.NewFailedDeliveryID(),
		OrderID: orderID,
		Status:  failure.StatusPending,
	}
	if err := s.CreateFailedDelivery(ctx, first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	dup := &failure.FailedDelivery{
		Entity:  types.NewEntity(),
		ID:      id.NewFailedDeliveryID(),
		OrderID: orderID,
		Status:  failure.StatusPending,
	}
	if err := s.CreateFailedDelivery(ctx, dup); !errors.Is(err, dispatch.ErrFailurePending) {
		t.Fatalf("expected ErrFailurePending, got %v", err)
	}
}

func TestSeedReasonsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SeedReasons(ctx, failure.DefaultReasons()); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	first, _ := s.ListReasons(ctx, false)

	if err := s.SeedReasons(ctx, failure.DefaultReasons()); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	second, _ := s.ListReasons(ctx, false)

	if len(first) != len(second) {
		t.Fatalf("reseeding changed catalog size: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("reseeding rotated reason ID for key %q", first[i].Key)
		}
	}
}
