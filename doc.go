// Package dispatch provides a composable order-lifecycle and settlement
// engine for delivery marketplaces.
//
// Dispatch is designed as a library, not a service. Import it directly into
// your Go application for maximum performance and flexibility. It provides:
//
//   - A strict order state machine from placement through completion
//   - Atomic order claiming so exactly one agent wins a pickup
//   - A double-sided escrow ledger (payment and commission holds)
//   - Failed-delivery tracking with an at-most-once settlement resolver
//   - Inventory restoration when failed goods come back intact
//   - Pluggable payment gateway and notification integration
//
// # Quick Start
//
// Create a dispatch instance with your preferred store:
//
//	import (
//	    "github.com/xraph/dispatch"
//	    "github.com/xraph/dispatch/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	d := dispatch.New(store)
//
//	// Start the engine (begins background workers)
//	if err := d.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Stop()
//
// # Core Concepts
//
// Orders move through a fixed forward chain of statuses; the only branches
// are cancellation before pickup and failure while the agent has custody:
//
//	pending -> confirmed -> preparing -> ready_for_pickup -> picked_up
//	        -> in_transit -> out_for_delivery -> delivered -> completed
//
// Money is escrowed as holds: the client's payment is held when the order
// is confirmed, and the business escrows the agent's commission when the
// order is claimed. Holds are closed exactly once — released back or
// captured to their destination — by a settlement.
//
// A failed delivery creates a pending record that an operator resolves as
// agent_fault, client_fault or item_fault. Resolution applies an atomic
// settlement: refunds, penalty splits and optional inventory restoration
// all land together or not at all, and a record resolves at most once no
// matter how many callers race.
//
// # Performance
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, whole francs for XAF, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	ord_01h2xcejqtf2nbrexx3vqjhp41   // Order ID
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	fdl_01h455vb4pex5vsknk084sn02q   // Failed delivery ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package dispatch
