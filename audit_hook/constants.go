package audithook

// Action constants for audit events.
const (
	// Order actions
	ActionOrderCreated      = "order.created"
	ActionOrderTransitioned = "order.transitioned"
	ActionOrderClaimed      = "order.claimed"
	ActionOrderCancelled    = "order.cancelled"

	// Failed delivery actions
	ActionDeliveryFailed = "delivery.failed"

	// Settlement actions
	ActionSettlementResolved = "settlement.resolved"
	ActionSettlementFailed   = "settlement.failed"
	ActionLedgerImbalance    = "ledger.imbalance"

	// Inventory actions
	ActionInventoryRestored = "inventory.restored"
)

// Resource constants for audit events.
const (
	ResourceOrder      = "order"
	ResourceDelivery   = "delivery"
	ResourceSettlement = "settlement"
	ResourceLedger     = "ledger"
	ResourceInventory  = "inventory"
)

// Category constants for audit events.
const (
	CategoryOrders     = "orders"
	CategoryDelivery   = "delivery"
	CategoryEscrow     = "escrow"
	CategoryInventory  = "inventory"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
