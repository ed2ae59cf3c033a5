package extension

import (
	"time"

	dispatch "github.com/xraph/dispatch"
	"github.com/xraph/dispatch/plugin"
	"github.com/xraph/dispatch/store"
)

// Option configures the Dispatch Forge extension.
type Option func(*Extension)

// WithStore sets the store for the dispatch engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithDispatchOption passes a dispatch.Option through to the underlying engine.
func WithDispatchOption(opt dispatch.Option) Option {
	return func(e *Extension) {
		e.dispatchOpts = append(e.dispatchOpts, opt)
	}
}

// WithPlugin registers a dispatch plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.dispatchOpts = append(e.dispatchOpts, dispatch.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for dispatch routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithNotifyBatchSize sets the number of notifications to buffer before flushing.
func WithNotifyBatchSize(size int) Option {
	return func(e *Extension) { e.config.NotifyBatchSize = size }
}

// WithNotifyFlushInterval sets how frequently the notification buffer is flushed.
func WithNotifyFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.NotifyFlushInterval = d }
}

// WithCancellationFee sets the flat per-order cancellation fee.
func WithCancellationFee(cents int64, currency string) Option {
	return func(e *Extension) {
		e.config.CancellationFeeCents = cents
		e.config.Currency = currency
	}
}
