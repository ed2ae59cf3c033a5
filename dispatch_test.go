package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/dispatch"
	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/inventory"
	"github.com/xraph/dispatch/notify"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/store"
	"github.com/xraph/dispatch/store/memory"
	"github.com/xraph/dispatch/types"
)

func newEngine(t *testing.T, opts ...dispatch.Option) *dispatch.Dispatch {
	t.Helper()

	s := memory.New()
	if err := s.SeedReasons(context.Background(), failure.DefaultReasons()); err != nil {
		t.Fatalf("SeedReasons: %v", err)
	}
	return dispatch.New(s, opts...)
}

func placeOrder(t *testing.T, d *dispatch.Dispatch, lines ...order.Line) *order.Order {
	t.Helper()

	if len(lines) == 0 {
		lines = []order.Line{
			{Name: "grilled fish", Quantity: 2, UnitPrice: types.XAF(5000), Amount: types.XAF(10000)},
		}
	}
	o := &order.Order{
		BusinessID:  "biz_1",
		ClientID:    "client_1",
		Currency:    "xaf",
		Subtotal:    types.XAF(10000),
		DeliveryFee: types.XAF(1500),
		Total:       types.XAF(11500),
		Lines:       lines,
	}
	if err := d.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return o
}

func fundOwner(t *testing.T, d *dispatch.Dispatch, ownerType account.OwnerType, ref string, cents int64) {
	t.Helper()
	ctx := context.Background()

	a, err := d.GetAccount(ctx, ownerType, ref, "xaf")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if _, err := d.Deposit(ctx, a.ID, types.XAF(cents)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
}

func advance(t *testing.T, d *dispatch.Dispatch, orderID id.OrderID, statuses ...order.Status) {
	t.Helper()
	for _, status := range statuses {
		if err := d.Transition(context.Background(), orderID, status); err != nil {
			t.Fatalf("Transition to %s: %v", status, err)
		}
	}
}

func balance(t *testing.T, d *dispatch.Dispatch, ownerType account.OwnerType, ref string) (available, held int64) {
	t.Helper()

	a, err := d.GetAccount(context.Background(), ownerType, ref, "xaf")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return a.Available.Amount, a.Held.Amount
}

// claimAndPickUp funds the business, drives the order to ready_for_pickup
// and has agent_1 claim and pick it up.
func claimAndPickUp(t *testing.T, d *dispatch.Dispatch, o *order.Order) {
	t.Helper()

	fundOwner(t, d, account.OwnerBusiness, "biz_1", 5000)
	advance(t, d, o.ID, order.StatusConfirmed, order.StatusPreparing, order.StatusReadyForPickup)
	if err := d.Claim(context.Background(), o.ID, dispatch.Identity{Ref: "agent_1", Role: account.OwnerAgent, Verified: true}); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	advance(t, d, o.ID, order.StatusPickedUp)
}

func markFailed(t *testing.T, d *dispatch.Dispatch, orderID id.OrderID) *failure.FailedDelivery {
	t.Helper()
	ctx := context.Background()

	reasons, err := d.ListReasons(ctx, true)
	if err != nil {
		t.Fatalf("ListReasons: %v", err)
	}
	rec, err := d.MarkFailed(ctx, orderID, reasons[0].ID, "could not deliver")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	return rec
}

var opsCaller = dispatch.Identity{Ref: "ops_1", Admin: true}

func TestOrderLifecycleCompletes(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)
	advance(t, d, o.ID, order.StatusInTransit, order.StatusOutForDelivery, order.StatusDelivered, order.StatusCompleted)

	got, err := d.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != order.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.DeliveredAt == nil {
		t.Fatal("DeliveredAt not recorded")
	}

	// Payment captured to the business, commission captured to the agent,
	// client escrow fully consumed.
	if avail, held := balance(t, d, account.OwnerClient, "client_1"); avail != 0 || held != 0 {
		t.Fatalf("client balance = %d/%d, want 0/0", avail, held)
	}
	if avail, held := balance(t, d, account.OwnerBusiness, "biz_1"); avail != 15000 || held != 0 {
		t.Fatalf("business balance = %d/%d, want 15000/0", avail, held)
	}
	if avail, held := balance(t, d, account.OwnerAgent, "agent_1"); avail != 1500 || held != 0 {
		t.Fatalf("agent balance = %d/%d, want 1500/0", avail, held)
	}

	// Both holds must be closed as captured.
	holds, err := d.ListHolds(ctx, o.ID)
	if err != nil {
		t.Fatalf("ListHolds: %v", err)
	}
	if len(holds) != 2 {
		t.Fatalf("got %d holds, want 2", len(holds))
	}
	for _, h := range holds {
		if h.Status != account.HoldCaptured {
			t.Fatalf("hold %s status = %q, want captured", h.Purpose, h.Status)
		}
	}
}

func TestTransitionRejectsSkips(t *testing.T) {
	d := newEngine(t)

	o := placeOrder(t, d)
	err := d.Transition(context.Background(), o.ID, order.StatusPreparing)
	if !errors.Is(err, dispatch.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestPickupRequiresClaim(t *testing.T) {
	d := newEngine(t)

	o := placeOrder(t, d)
	advance(t, d, o.ID, order.StatusConfirmed, order.StatusPreparing, order.StatusReadyForPickup)

	err := d.Transition(context.Background(), o.ID, order.StatusPickedUp)
	if !errors.Is(err, dispatch.ErrOrderNotClaimed) {
		t.Fatalf("got %v, want ErrOrderNotClaimed", err)
	}
}

func TestClaimRequiresVerifiedAgent(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	o := &order.Order{
		BusinessID:        "biz_1",
		ClientID:          "client_1",
		Currency:          "xaf",
		Subtotal:          types.XAF(10000),
		DeliveryFee:       types.XAF(1500),
		Total:             types.XAF(11500),
		VerifiedAgentOnly: true,
	}
	if err := d.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	fundOwner(t, d, account.OwnerBusiness, "biz_1", 5000)
	advance(t, d, o.ID, order.StatusConfirmed, order.StatusPreparing, order.StatusReadyForPickup)

	err := d.Claim(ctx, o.ID, dispatch.Identity{Ref: "agent_1", Role: account.OwnerAgent})
	if !errors.Is(err, dispatch.ErrAgentNotVerified) {
		t.Fatalf("got %v, want ErrAgentNotVerified", err)
	}

	if err := d.Claim(ctx, o.ID, dispatch.Identity{Ref: "agent_1", Role: account.OwnerAgent, Verified: true}); err != nil {
		t.Fatalf("verified claim: %v", err)
	}
}

func TestClaimLoserGetsConflict(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	o := placeOrder(t, d)
	fundOwner(t, d, account.OwnerBusiness, "biz_1", 5000)
	advance(t, d, o.ID, order.StatusConfirmed, order.StatusPreparing, order.StatusReadyForPickup)

	if err := d.Claim(ctx, o.ID, dispatch.Identity{Ref: "agent_1", Role: account.OwnerAgent, Verified: true}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	err := d.Claim(ctx, o.ID, dispatch.Identity{Ref: "agent_2", Role: account.OwnerAgent, Verified: true})
	if !errors.Is(err, dispatch.ErrOrderClaimed) {
		t.Fatalf("got %v, want ErrOrderClaimed", err)
	}

	got, err := d.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.AgentID != "agent_1" {
		t.Fatalf("agent = %q, want agent_1", got.AgentID)
	}
}

func TestCancelReleasesEscrow(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	o := placeOrder(t, d)
	advance(t, d, o.ID, order.StatusConfirmed)

	if avail, held := balance(t, d, account.OwnerClient, "client_1"); avail != 0 || held != 11500 {
		t.Fatalf("client balance after confirm = %d/%d, want 0/11500", avail, held)
	}

	if err := d.Cancel(ctx, o.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if avail, held := balance(t, d, account.OwnerClient, "client_1"); avail != 11500 || held != 0 {
		t.Fatalf("client balance after cancel = %d/%d, want 11500/0", avail, held)
	}

	got, err := d.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != order.StatusCancelled || got.CancelledAt == nil {
		t.Fatalf("order = %q cancelled_at=%v, want cancelled with timestamp", got.Status, got.CancelledAt)
	}
}

func TestCancelAfterPickupRejected(t *testing.T) {
	d := newEngine(t)

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)

	err := d.Cancel(context.Background(), o.ID)
	if !errors.Is(err, dispatch.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestMarkFailedRequiresCustody(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	o := placeOrder(t, d)
	reasons, err := d.ListReasons(ctx, true)
	if err != nil {
		t.Fatalf("ListReasons: %v", err)
	}

	_, err = d.MarkFailed(ctx, o.ID, reasons[0].ID, "")
	if !errors.Is(err, dispatch.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestMarkFailedOpensPendingRecord(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)
	rec := markFailed(t, d, o.ID)

	if rec.Status != failure.StatusPending {
		t.Fatalf("record status = %q, want pending", rec.Status)
	}
	if rec.AgentID != "agent_1" || rec.BusinessID != "biz_1" {
		t.Fatalf("record parties = %q/%q", rec.AgentID, rec.BusinessID)
	}

	got, err := d.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != order.StatusFailed || got.FailedAt == nil {
		t.Fatalf("order = %q failed_at=%v, want failed with timestamp", got.Status, got.FailedAt)
	}
}

// failingRecordStore makes CreateFailedDelivery fail on demand.
type failingRecordStore struct {
	store.Store
	fail bool
}

func (s *failingRecordStore) CreateFailedDelivery(ctx context.Context, rec *failure.FailedDelivery) error {
	if s.fail {
		return dispatch.ErrTransactionFailed
	}
	return s.Store.CreateFailedDelivery(ctx, rec)
}

func TestMarkFailedCompensatesOnRecordError(t *testing.T) {
	mem := memory.New()
	if err := mem.SeedReasons(context.Background(), failure.DefaultReasons()); err != nil {
		t.Fatalf("SeedReasons: %v", err)
	}
	flaky := &failingRecordStore{Store: mem}
	d := dispatch.New(flaky)
	ctx := context.Background()

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)

	reasons, err := d.ListReasons(ctx, true)
	if err != nil {
		t.Fatalf("ListReasons: %v", err)
	}

	flaky.fail = true
	_, err = d.MarkFailed(ctx, o.ID, reasons[0].ID, "could not deliver")
	if !errors.Is(err, dispatch.ErrTransactionFailed) {
		t.Fatalf("got %v, want ErrTransactionFailed", err)
	}

	// The status flip must be rolled back so the failure can be retried.
	got, err := d.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != order.StatusPickedUp {
		t.Fatalf("status after failed record write = %q, want picked_up", got.Status)
	}
	if got.FailedAt != nil {
		t.Fatal("FailedAt set on a rolled-back failure")
	}

	flaky.fail = false
	rec, err := d.MarkFailed(ctx, o.ID, reasons[0].ID, "could not deliver")
	if err != nil {
		t.Fatalf("retry MarkFailed: %v", err)
	}
	if rec.Status != failure.StatusPending {
		t.Fatalf("record status = %q, want pending", rec.Status)
	}
}

// transitionRecorder captures every transition a plugin observes.
type transitionRecorder struct {
	mu          sync.Mutex
	transitions [][2]string
}

func (r *transitionRecorder) Name() string { return "transition-recorder" }

func (r *transitionRecorder) OnOrderTransitioned(_ context.Context, _, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, [2]string{from, to})
	return nil
}

func TestTransitionedHookSeesPriorStatus(t *testing.T) {
	rec := &transitionRecorder{}
	d := newEngine(t, dispatch.WithPlugin(rec))

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)
	advance(t, d, o.ID, order.StatusInTransit, order.StatusOutForDelivery, order.StatusDelivered)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.transitions) == 0 {
		t.Fatal("no transitions observed")
	}
	last := rec.transitions[len(rec.transitions)-1]
	if last[0] != string(order.StatusOutForDelivery) || last[1] != string(order.StatusDelivered) {
		t.Fatalf("last transition = %s -> %s, want out_for_delivery -> delivered", last[0], last[1])
	}
}

func TestResolveAgentFault(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)
	markFailed(t, d, o.ID)

	stl, err := d.Resolve(ctx, o.ID, failure.Resolution{
		Type:    failure.ResolutionAgentFault,
		Outcome: "agent lost the package",
	}, opsCaller)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if stl.Resolution != failure.ResolutionAgentFault {
		t.Fatalf("resolution = %q", stl.Resolution)
	}

	// Full client refund, commission back to the business, agent untouched.
	if avail, held := balance(t, d, account.OwnerClient, "client_1"); avail != 11500 || held != 0 {
		t.Fatalf("client balance = %d/%d, want 11500/0", avail, held)
	}
	if avail, held := balance(t, d, account.OwnerBusiness, "biz_1"); avail != 5000 || held != 0 {
		t.Fatalf("business balance = %d/%d, want 5000/0", avail, held)
	}
	if avail, held := balance(t, d, account.OwnerAgent, "agent_1"); avail != 0 || held != 0 {
		t.Fatalf("agent balance = %d/%d, want 0/0", avail, held)
	}

	rec, err := d.GetFailedDelivery(ctx, o.ID, opsCaller)
	if err != nil {
		t.Fatalf("GetFailedDelivery: %v", err)
	}
	if rec.Status != failure.StatusCompleted || rec.ResolvedAt == nil {
		t.Fatalf("record = %q resolved_at=%v, want completed with timestamp", rec.Status, rec.ResolvedAt)
	}
	if rec.ResolvedBy != "ops_1" {
		t.Fatalf("resolved_by = %q, want ops_1", rec.ResolvedBy)
	}
}

func TestResolveClientFaultSplitsPenalty(t *testing.T) {
	d := newEngine(t, dispatch.WithSettlementConfig(settlement.Config{
		CancellationFee: types.XAF(500),
	}))
	ctx := context.Background()

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)
	markFailed(t, d, o.ID)

	_, err := d.Resolve(ctx, o.ID, failure.Resolution{
		Type:    failure.ResolutionClientFault,
		Outcome: "client refused the delivery at the door",
	}, opsCaller)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Penalty is twice the cancellation fee (1000), split evenly.
	if avail, held := balance(t, d, account.OwnerClient, "client_1"); avail != 10500 || held != 0 {
		t.Fatalf("client balance = %d/%d, want 10500/0", avail, held)
	}
	if avail, held := balance(t, d, account.OwnerAgent, "agent_1"); avail != 500 || held != 0 {
		t.Fatalf("agent balance = %d/%d, want 500/0", avail, held)
	}
	// Business: deposit 5000, penalty share 500, commission returned.
	if avail, held := balance(t, d, account.OwnerBusiness, "biz_1"); avail != 5500 || held != 0 {
		t.Fatalf("business balance = %d/%d, want 5500/0", avail, held)
	}
}

func TestResolveItemFaultRestocks(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	item := &inventory.Item{BusinessID: "biz_1", Name: "grilled fish", Available: 10}
	if err := d.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	o := placeOrder(t, d, order.Line{
		ItemID:    item.ID,
		Name:      "grilled fish",
		Quantity:  2,
		UnitPrice: types.XAF(5000),
		Amount:    types.XAF(10000),
	})
	claimAndPickUp(t, d, o)
	markFailed(t, d, o.ID)

	stl, err := d.Resolve(ctx, o.ID, failure.Resolution{
		Type:             failure.ResolutionItemFault,
		Outcome:          "wrong item sent, goods returned intact",
		RestoreInventory: true,
	}, opsCaller)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(stl.Restocks) != 1 {
		t.Fatalf("got %d restocks, want 1", len(stl.Restocks))
	}

	got, err := d.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Available != 12 {
		t.Fatalf("item available = %d, want 12", got.Available)
	}

	if avail, held := balance(t, d, account.OwnerClient, "client_1"); avail != 11500 || held != 0 {
		t.Fatalf("client balance = %d/%d, want 11500/0", avail, held)
	}
}

func TestResolveExactlyOnce(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)
	markFailed(t, d, o.ID)

	res := failure.Resolution{Type: failure.ResolutionAgentFault, Outcome: "agent lost the package"}
	if _, err := d.Resolve(ctx, o.ID, res, opsCaller); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	_, err := d.Resolve(ctx, o.ID, res, opsCaller)
	if !errors.Is(err, dispatch.ErrAlreadyResolved) {
		t.Fatalf("got %v, want ErrAlreadyResolved", err)
	}
}

func TestResolveRejectsUnknownType(t *testing.T) {
	d := newEngine(t)

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)
	markFailed(t, d, o.ID)

	_, err := d.Resolve(context.Background(), o.ID, failure.Resolution{
		Type:    failure.ResolutionType("act_of_god"),
		Outcome: "storm",
	}, opsCaller)
	if !errors.Is(err, dispatch.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestResolveScopedToBusiness(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	o := placeOrder(t, d)
	claimAndPickUp(t, d, o)
	markFailed(t, d, o.ID)

	res := failure.Resolution{Type: failure.ResolutionAgentFault, Outcome: "agent lost the package"}
	_, err := d.Resolve(ctx, o.ID, res, dispatch.Identity{Ref: "biz_2", Role: account.OwnerBusiness})
	if !errors.Is(err, dispatch.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}

	// The owning business may resolve its own failure.
	if _, err := d.Resolve(ctx, o.ID, res, dispatch.Identity{Ref: "biz_1", Role: account.OwnerBusiness}); err != nil {
		t.Fatalf("owner Resolve: %v", err)
	}
}

func TestListNotifications(t *testing.T) {
	s := memory.New()
	d := dispatch.New(s)
	ctx := context.Background()

	batch := []*notify.Notification{
		{ID: id.NewNotificationID(), Kind: notify.KindOrderClaimed, Recipient: "client_1", Message: "an agent was assigned to your order", Timestamp: time.Now().UTC()},
		{ID: id.NewNotificationID(), Kind: notify.KindDeliveryFailed, Recipient: "biz_1", Message: "delivery failed: wrong_address", Timestamp: time.Now().UTC()},
	}
	if err := s.IngestBatch(ctx, batch); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}

	events, err := d.ListNotifications(ctx, "client_1", notify.QueryOpts{})
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(events) != 1 || events[0].Kind != notify.KindOrderClaimed {
		t.Fatalf("got %d events, want the claim notification", len(events))
	}

	var ve dispatch.ValidationError
	if _, err := d.ListNotifications(ctx, "", notify.QueryOpts{}); !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	d := newEngine(t)
	ctx := context.Background()

	a, err := d.GetAccount(ctx, account.OwnerAgent, "agent_9", "xaf")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if _, err := d.Deposit(ctx, a.ID, types.XAF(100)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	_, err = d.Withdraw(ctx, a.ID, types.XAF(200))
	if !errors.Is(err, dispatch.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	if _, err := d.Withdraw(ctx, a.ID, types.XAF(100)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
}
