// Package observability provides a metrics extension for Dispatch that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/dispatch/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnOrderCreated         = (*MetricsExtension)(nil)
	_ plugin.OnOrderTransitioned    = (*MetricsExtension)(nil)
	_ plugin.OnOrderClaimed         = (*MetricsExtension)(nil)
	_ plugin.OnOrderCancelled       = (*MetricsExtension)(nil)
	_ plugin.OnDeliveryFailed       = (*MetricsExtension)(nil)
	_ plugin.OnSettlementResolved   = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed     = (*MetricsExtension)(nil)
	_ plugin.OnLedgerImbalance      = (*MetricsExtension)(nil)
	_ plugin.OnInventoryRestored    = (*MetricsExtension)(nil)
	_ plugin.OnNotificationsFlushed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Dispatch plugin to automatically track order metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Order metrics
	OrderCreated      Counter
	OrderTransitioned Counter
	OrderClaimed      Counter
	OrderCancelled    Counter

	// Failed delivery metrics
	DeliveriesFailed Counter

	// Settlement metrics
	SettlementResolved Counter
	SettlementFailed   Counter
	LedgerImbalances   Counter

	// Inventory metrics
	InventoryRestored Counter
	RestockQuantity   Histogram

	// Notification metrics
	NotifyBatchSize    Histogram
	NotifyFlushLatency Histogram

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Order metrics
		OrderCreated:      factory.Counter("dispatch.order.created"),
		OrderTransitioned: factory.Counter("dispatch.order.transitioned"),
		OrderClaimed:      factory.Counter("dispatch.order.claimed"),
		OrderCancelled:    factory.Counter("dispatch.order.cancelled"),

		// Failed delivery metrics
		DeliveriesFailed: factory.Counter("dispatch.delivery.failed"),

		// Settlement metrics
		SettlementResolved: factory.Counter("dispatch.settlement.resolved"),
		SettlementFailed:   factory.Counter("dispatch.settlement.failed"),
		LedgerImbalances:   factory.Counter("dispatch.ledger.imbalances"),

		// Inventory metrics
		InventoryRestored: factory.Counter("dispatch.inventory.restored"),
		RestockQuantity:   factory.Histogram("dispatch.inventory.restock.quantity"),

		// Notification metrics
		NotifyBatchSize:    factory.Histogram("dispatch.notify.batch.size"),
		NotifyFlushLatency: factory.Histogram("dispatch.notify.flush.latency_ms"),

		// Error metrics
		StoreErrors:  factory.Counter("dispatch.store.errors"),
		PluginErrors: factory.Counter("dispatch.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (m *MetricsExtension) OnOrderCreated(_ context.Context, _ interface{}) error {
	m.OrderCreated.Inc()
	return nil
}

// OnOrderTransitioned implements plugin.OnOrderTransitioned.
func (m *MetricsExtension) OnOrderTransitioned(_ context.Context, _, _, _ string) error {
	m.OrderTransitioned.Inc()
	return nil
}

// OnOrderClaimed implements plugin.OnOrderClaimed.
func (m *MetricsExtension) OnOrderClaimed(_ context.Context, _ interface{}, _ string) error {
	m.OrderClaimed.Inc()
	return nil
}

// OnOrderCancelled implements plugin.OnOrderCancelled.
func (m *MetricsExtension) OnOrderCancelled(_ context.Context, _ interface{}) error {
	m.OrderCancelled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Failed delivery and settlement hooks
// ──────────────────────────────────────────────────

// OnDeliveryFailed implements plugin.OnDeliveryFailed.
func (m *MetricsExtension) OnDeliveryFailed(_ context.Context, _ interface{}) error {
	m.DeliveriesFailed.Inc()
	return nil
}

// OnSettlementResolved implements plugin.OnSettlementResolved.
func (m *MetricsExtension) OnSettlementResolved(_ context.Context, _ interface{}) error {
	m.SettlementResolved.Inc()
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(_ context.Context, _ string, _ error) error {
	m.SettlementFailed.Inc()
	return nil
}

// OnLedgerImbalance implements plugin.OnLedgerImbalance.
func (m *MetricsExtension) OnLedgerImbalance(_ context.Context, _ string, _ error) error {
	m.LedgerImbalances.Inc()
	return nil
}

// OnInventoryRestored implements plugin.OnInventoryRestored.
func (m *MetricsExtension) OnInventoryRestored(_ context.Context, _ string, quantity int64) error {
	m.InventoryRestored.Inc()
	m.RestockQuantity.Observe(float64(quantity))
	return nil
}

// ──────────────────────────────────────────────────
// Notification hooks
// ──────────────────────────────────────────────────

// OnNotificationsFlushed implements plugin.OnNotificationsFlushed.
func (m *MetricsExtension) OnNotificationsFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.NotifyBatchSize.Observe(float64(count))
	m.NotifyFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
