package extension

import "time"

// Config holds the Dispatch extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.dispatch" or "dispatch" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for dispatch routes (default: "/dispatch").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// NotifyBatchSize is the number of notification events to buffer before
	// flushing to the store (default: 100).
	NotifyBatchSize int `json:"notify_batch_size" mapstructure:"notify_batch_size" yaml:"notify_batch_size"`

	// NotifyFlushInterval is how frequently the notification buffer is
	// flushed even if the batch size has not been reached (default: 5s).
	NotifyFlushInterval time.Duration `json:"notify_flush_interval" mapstructure:"notify_flush_interval" yaml:"notify_flush_interval"`

	// CancellationFeeCents is the flat per-order cancellation fee in minor
	// units. The client-fault settlement penalty is twice this value.
	CancellationFeeCents int64 `json:"cancellation_fee_cents" mapstructure:"cancellation_fee_cents" yaml:"cancellation_fee_cents"`

	// Currency is the currency code for the cancellation fee, lowercase
	// (default: "xaf").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NotifyBatchSize:     100,
		NotifyFlushInterval: 5 * time.Second,
		Currency:            "xaf",
	}
}
