package dispatch_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/dispatch"
	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/store/memory"
	"github.com/xraph/dispatch/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		ctx := context.Background()

		// Seed the failure reason catalog
		if err := store.SeedReasons(ctx, failure.DefaultReasons()); err != nil {
			t.Fatal(err)
		}

		// Initialize Dispatch
		d := dispatch.New(store,
			dispatch.WithLogger(slog.Default()),
			dispatch.WithNotifyConfig(100, 5*time.Second),
			dispatch.WithSettlementConfig(settlement.Config{
				CancellationFee: types.XAF(500), // 500 F per cancelled order
			}),
		)

		// Start the engine
		if err := d.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer d.Stop()

		// Place an order (payment already captured by the gateway)
		o := &order.Order{
			BusinessID:  "biz_42",
			ClientID:    "client_7",
			Currency:    "xaf",
			Subtotal:    types.XAF(10000),
			DeliveryFee: types.XAF(1500),
			Total:       types.XAF(11500),
			Lines: []order.Line{
				{Name: "Grilled fish", Quantity: 2, UnitPrice: types.XAF(5000), Amount: types.XAF(10000)},
			},
		}
		if err := d.CreateOrder(ctx, o); err != nil {
			t.Fatal(err)
		}

		// Walk the order forward; confirmation escrows the client's money
		for _, status := range []order.Status{
			order.StatusConfirmed,
			order.StatusPreparing,
			order.StatusReadyForPickup,
		} {
			if err := d.Transition(ctx, o.ID, status); err != nil {
				t.Fatal(err)
			}
		}

		// Fund the business account so its delivery-fee commission can be escrowed
		biz, err := d.GetAccount(ctx, account.OwnerBusiness, "biz_42", "xaf")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.Deposit(ctx, biz.ID, types.XAF(5000)); err != nil {
			t.Fatal(err)
		}

		// An agent claims the order; the delivery fee is escrowed as commission
		agent := dispatch.Identity{Ref: "agent_3", Verified: true}
		if err := d.Claim(ctx, o.ID, agent); err != nil {
			t.Fatal(err)
		}
		if err := d.Transition(ctx, o.ID, order.StatusPickedUp); err != nil {
			t.Fatal(err)
		}

		// The delivery fails in transit
		reasons, err := d.ListReasons(ctx, true)
		if err != nil {
			t.Fatal(err)
		}
		rec, err := d.MarkFailed(ctx, o.ID, reasons[0].ID, "gate locked, nobody answered")
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Failed delivery opened: %s\n", rec.ID)

		// An operator resolves the failure; the planner settles the escrow
		stl, err := d.Resolve(ctx, o.ID, failure.Resolution{
			Type:    failure.ResolutionAgentFault,
			Outcome: "agent could not complete the delivery, client refunded in full",
		}, dispatch.Identity{Ref: "ops_1", Admin: true})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Settlement applied: %d transfers, net %s\n", len(stl.Transfers), stl.NetDelta("xaf").String())
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.XAF(10000)  // 10 000 F
		_ = types.USD(4900)   // $49.00
		_ = types.Zero("xaf") // 0 F

		// Arithmetic
		m1 := types.XAF(100)
		m2 := types.XAF(200)
		_ = m1.Add(m2)     // 300 F
		_ = m1.Multiply(3) // 300 F
		_ = m1.Divide(2)   // 50 F

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.String()      // "100 FCFA"
		_ = m1.FormatMajor() // "100"
	})
}
