// Package audithook bridges Dispatch lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/dispatch/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnOrderCreated       = (*Extension)(nil)
	_ plugin.OnOrderTransitioned  = (*Extension)(nil)
	_ plugin.OnOrderClaimed       = (*Extension)(nil)
	_ plugin.OnOrderCancelled     = (*Extension)(nil)
	_ plugin.OnDeliveryFailed     = (*Extension)(nil)
	_ plugin.OnSettlementResolved = (*Extension)(nil)
	_ plugin.OnSettlementFailed   = (*Extension)(nil)
	_ plugin.OnLedgerImbalance    = (*Extension)(nil)
	_ plugin.OnInventoryRestored  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Dispatch lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (e *Extension) OnOrderCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionOrderCreated, SeverityInfo, OutcomeSuccess,
		ResourceOrder, "", CategoryOrders, nil,
		"event", "order_created",
	)
}

// OnOrderTransitioned implements plugin.OnOrderTransitioned.
func (e *Extension) OnOrderTransitioned(ctx context.Context, orderID, from, to string) error {
	return e.record(ctx, ActionOrderTransitioned, SeverityInfo, OutcomeSuccess,
		ResourceOrder, orderID, CategoryOrders, nil,
		"order_id", orderID,
		"from", from,
		"to", to,
	)
}

// OnOrderClaimed implements plugin.OnOrderClaimed.
func (e *Extension) OnOrderClaimed(ctx context.Context, _ interface{}, agentID string) error {
	return e.record(ctx, ActionOrderClaimed, SeverityInfo, OutcomeSuccess,
		ResourceOrder, "", CategoryDelivery, nil,
		"event", "order_claimed",
		"agent_id", agentID,
	)
}

// OnOrderCancelled implements plugin.OnOrderCancelled.
func (e *Extension) OnOrderCancelled(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionOrderCancelled, SeverityInfo, OutcomeSuccess,
		ResourceOrder, "", CategoryOrders, nil,
		"event", "order_cancelled",
	)
}

// ──────────────────────────────────────────────────
// Failed delivery and settlement hooks
// ──────────────────────────────────────────────────

// OnDeliveryFailed implements plugin.OnDeliveryFailed.
func (e *Extension) OnDeliveryFailed(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionDeliveryFailed, SeverityWarning, OutcomeSuccess,
		ResourceDelivery, "", CategoryDelivery, nil,
		"event", "delivery_failed",
	)
}

// OnSettlementResolved implements plugin.OnSettlementResolved.
func (e *Extension) OnSettlementResolved(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionSettlementResolved, SeverityInfo, OutcomeSuccess,
		ResourceSettlement, "", CategoryEscrow, nil,
		"event", "settlement_resolved",
	)
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, orderID string, err error) error {
	return e.record(ctx, ActionSettlementFailed, SeverityCritical, OutcomeFailure,
		ResourceSettlement, orderID, CategoryEscrow, err,
		"order_id", orderID,
	)
}

// OnLedgerImbalance implements plugin.OnLedgerImbalance.
func (e *Extension) OnLedgerImbalance(ctx context.Context, orderID string, err error) error {
	return e.record(ctx, ActionLedgerImbalance, SeverityCritical, OutcomeFailure,
		ResourceLedger, orderID, CategoryEscrow, err,
		"order_id", orderID,
	)
}

// OnInventoryRestored implements plugin.OnInventoryRestored.
func (e *Extension) OnInventoryRestored(ctx context.Context, itemID string, quantity int64) error {
	return e.record(ctx, ActionInventoryRestored, SeverityInfo, OutcomeSuccess,
		ResourceInventory, itemID, CategoryInventory, nil,
		"item_id", itemID,
		"quantity", quantity,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
