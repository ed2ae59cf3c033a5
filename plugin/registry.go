package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onOrderCreated         []OnOrderCreated
	onOrderTransitioned    []OnOrderTransitioned
	onOrderClaimed         []OnOrderClaimed
	onOrderCancelled       []OnOrderCancelled
	onDeliveryFailed       []OnDeliveryFailed
	onSettlementResolved   []OnSettlementResolved
	onSettlementFailed     []OnSettlementFailed
	onLedgerImbalance      []OnLedgerImbalance
	onInventoryRestored    []OnInventoryRestored
	onNotificationsFlushed []OnNotificationsFlushed
	paymentGateways        []PaymentGatewayPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnOrderCreated); ok {
		r.onOrderCreated = append(r.onOrderCreated, v)
	}
	if v, ok := p.(OnOrderTransitioned); ok {
		r.onOrderTransitioned = append(r.onOrderTransitioned, v)
	}
	if v, ok := p.(OnOrderClaimed); ok {
		r.onOrderClaimed = append(r.onOrderClaimed, v)
	}
	if v, ok := p.(OnOrderCancelled); ok {
		r.onOrderCancelled = append(r.onOrderCancelled, v)
	}
	if v, ok := p.(OnDeliveryFailed); ok {
		r.onDeliveryFailed = append(r.onDeliveryFailed, v)
	}
	if v, ok := p.(OnSettlementResolved); ok {
		r.onSettlementResolved = append(r.onSettlementResolved, v)
	}
	if v, ok := p.(OnSettlementFailed); ok {
		r.onSettlementFailed = append(r.onSettlementFailed, v)
	}
	if v, ok := p.(OnLedgerImbalance); ok {
		r.onLedgerImbalance = append(r.onLedgerImbalance, v)
	}
	if v, ok := p.(OnInventoryRestored); ok {
		r.onInventoryRestored = append(r.onInventoryRestored, v)
	}
	if v, ok := p.(OnNotificationsFlushed); ok {
		r.onNotificationsFlushed = append(r.onNotificationsFlushed, v)
	}
	if v, ok := p.(PaymentGatewayPlugin); ok {
		r.paymentGateways = append(r.paymentGateways, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnOrderCreated)(nil)).Elem(), "OnOrderCreated")
	checkInterface(reflect.TypeOf((*OnOrderTransitioned)(nil)).Elem(), "OnOrderTransitioned")
	checkInterface(reflect.TypeOf((*OnOrderClaimed)(nil)).Elem(), "OnOrderClaimed")
	checkInterface(reflect.TypeOf((*OnDeliveryFailed)(nil)).Elem(), "OnDeliveryFailed")
	checkInterface(reflect.TypeOf((*OnSettlementResolved)(nil)).Elem(), "OnSettlementResolved")
	checkInterface(reflect.TypeOf((*OnLedgerImbalance)(nil)).Elem(), "OnLedgerImbalance")
	checkInterface(reflect.TypeOf((*PaymentGatewayPlugin)(nil)).Elem(), "PaymentGateway")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOrderCreated emits an order created event.
func (r *Registry) EmitOrderCreated(ctx context.Context, order interface{}) {
	r.mu.RLock()
	plugins := r.onOrderCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOrderCreated(ctx, order)
		}); err != nil {
			r.logger.Warn("plugin OnOrderCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOrderTransitioned emits an order transitioned event.
func (r *Registry) EmitOrderTransitioned(ctx context.Context, orderID, from, to string) {
	r.mu.RLock()
	plugins := r.onOrderTransitioned
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOrderTransitioned(ctx, orderID, from, to)
		}); err != nil {
			r.logger.Warn("plugin OnOrderTransitioned failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOrderClaimed emits an order claimed event.
func (r *Registry) EmitOrderClaimed(ctx context.Context, order interface{}, agentID string) {
	r.mu.RLock()
	plugins := r.onOrderClaimed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOrderClaimed(ctx, order, agentID)
		}); err != nil {
			r.logger.Warn("plugin OnOrderClaimed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOrderCancelled emits an order cancelled event.
func (r *Registry) EmitOrderCancelled(ctx context.Context, order interface{}) {
	r.mu.RLock()
	plugins := r.onOrderCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOrderCancelled(ctx, order)
		}); err != nil {
			r.logger.Warn("plugin OnOrderCancelled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDeliveryFailed emits a delivery failed event.
func (r *Registry) EmitDeliveryFailed(ctx context.Context, record interface{}) {
	r.mu.RLock()
	plugins := r.onDeliveryFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeliveryFailed(ctx, record)
		}); err != nil {
			r.logger.Warn("plugin OnDeliveryFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSettlementResolved emits a settlement resolved event.
func (r *Registry) EmitSettlementResolved(ctx context.Context, settlement interface{}) {
	r.mu.RLock()
	plugins := r.onSettlementResolved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSettlementResolved(ctx, settlement)
		}); err != nil {
			r.logger.Warn("plugin OnSettlementResolved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSettlementFailed emits a settlement failed event.
func (r *Registry) EmitSettlementFailed(ctx context.Context, orderID string, failure error) {
	r.mu.RLock()
	plugins := r.onSettlementFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSettlementFailed(ctx, orderID, failure)
		}); err != nil {
			r.logger.Warn("plugin OnSettlementFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLedgerImbalance emits a ledger imbalance event.
func (r *Registry) EmitLedgerImbalance(ctx context.Context, orderID string, cause error) {
	r.mu.RLock()
	plugins := r.onLedgerImbalance
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLedgerImbalance(ctx, orderID, cause)
		}); err != nil {
			r.logger.Warn("plugin OnLedgerImbalance failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInventoryRestored emits an inventory restored event.
func (r *Registry) EmitInventoryRestored(ctx context.Context, itemID string, quantity int64) {
	r.mu.RLock()
	plugins := r.onInventoryRestored
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInventoryRestored(ctx, itemID, quantity)
		}); err != nil {
			r.logger.Warn("plugin OnInventoryRestored failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitNotificationsFlushed emits a notifications flushed event.
func (r *Registry) EmitNotificationsFlushed(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onNotificationsFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnNotificationsFlushed(ctx, count, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnNotificationsFlushed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// GetPaymentGateways returns all registered payment gateway plugins.
func (r *Registry) GetPaymentGateways() []PaymentGatewayPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]PaymentGatewayPlugin, len(r.paymentGateways))
	copy(result, r.paymentGateways)
	return result
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the order pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
