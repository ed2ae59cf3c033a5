// Package plugin provides an extensible plugin system for Dispatch.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated is called when a new order is created.
type OnOrderCreated interface {
	Plugin
	OnOrderCreated(ctx context.Context, order interface{}) error
}

// OnOrderTransitioned is called after a successful status transition.
type OnOrderTransitioned interface {
	Plugin
	OnOrderTransitioned(ctx context.Context, orderID, from, to string) error
}

// OnOrderClaimed is called when an agent wins the claim on an order.
type OnOrderClaimed interface {
	Plugin
	OnOrderClaimed(ctx context.Context, order interface{}, agentID string) error
}

// OnOrderCancelled is called when an order is cancelled.
type OnOrderCancelled interface {
	Plugin
	OnOrderCancelled(ctx context.Context, order interface{}) error
}

// ──────────────────────────────────────────────────
// Failed delivery and settlement hooks
// ──────────────────────────────────────────────────

// OnDeliveryFailed is called when an order is marked as a failed delivery.
type OnDeliveryFailed interface {
	Plugin
	OnDeliveryFailed(ctx context.Context, record interface{}) error
}

// OnSettlementResolved is called after a settlement is applied.
type OnSettlementResolved interface {
	Plugin
	OnSettlementResolved(ctx context.Context, settlement interface{}) error
}

// OnSettlementFailed is called when applying a settlement fails.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, orderID string, err error) error
}

// OnLedgerImbalance is called when a settlement hits an internal
// consistency fault (e.g. insufficient escrowed funds) and needs manual
// reconciliation.
type OnLedgerImbalance interface {
	Plugin
	OnLedgerImbalance(ctx context.Context, orderID string, err error) error
}

// OnInventoryRestored is called when a settlement restores stock.
type OnInventoryRestored interface {
	Plugin
	OnInventoryRestored(ctx context.Context, itemID string, quantity int64) error
}

// ──────────────────────────────────────────────────
// Notification hooks
// ──────────────────────────────────────────────────

// OnNotificationsFlushed is called when buffered notifications are
// flushed to the store.
type OnNotificationsFlushed interface {
	Plugin
	OnNotificationsFlushed(ctx context.Context, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Payment gateway hooks
// ──────────────────────────────────────────────────

// PaymentResult is the outcome of an initiated payment.
type PaymentResult struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// PaymentGateway is the contract a mobile-money or card gateway
// implementation fulfils. The engine only consumes this interface; the
// gateway implementations themselves live outside this module.
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, phone string, amount int64, currency string) (*PaymentResult, error)
}

// PaymentGatewayPlugin provides a payment gateway implementation.
type PaymentGatewayPlugin interface {
	Plugin
	Gateway() PaymentGateway
}
