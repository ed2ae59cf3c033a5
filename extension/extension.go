// Package extension provides the Forge extension adapter for Dispatch.
//
// It implements the forge.Extension interface to integrate Dispatch
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.dispatch" or "dispatch" keys.
package extension

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	dispatch "github.com/xraph/dispatch"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/store"
	"github.com/xraph/dispatch/store/memory"
	"github.com/xraph/dispatch/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "dispatch"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Order lifecycle and failed-delivery settlement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Dispatch as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config       Config
	engine       *dispatch.Dispatch
	store        store.Store
	dispatchOpts []dispatch.Option
}

// New creates a new Dispatch Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Dispatch instance.
// This is nil until Register is called.
func (e *Extension) Engine() *dispatch.Dispatch { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the dispatch engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build dispatch options from resolved config.
	opts := e.buildDispatchOpts()

	eng := dispatch.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*dispatch.Dispatch, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("dispatch: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("dispatch: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildDispatchOpts constructs dispatch.Option values from the resolved config.
func (e *Extension) buildDispatchOpts() []dispatch.Option {
	opts := make([]dispatch.Option, 0, len(e.dispatchOpts)+2)

	// Apply config-derived options.
	if e.config.NotifyBatchSize > 0 || e.config.NotifyFlushInterval > 0 {
		batchSize := e.config.NotifyBatchSize
		flushInterval := e.config.NotifyFlushInterval
		defaults := DefaultConfig()
		if batchSize == 0 {
			batchSize = defaults.NotifyBatchSize
		}
		if flushInterval == 0 {
			flushInterval = defaults.NotifyFlushInterval
		}
		opts = append(opts, dispatch.WithNotifyConfig(batchSize, flushInterval))
	}

	if e.config.CancellationFeeCents > 0 {
		opts = append(opts, dispatch.WithSettlementConfig(settlement.Config{
			CancellationFee: types.Money{
				Amount:   e.config.CancellationFeeCents,
				Currency: strings.ToLower(e.config.Currency),
			},
		}))
	}

	// Append any pass-through dispatch options.
	opts = append(opts, e.dispatchOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("dispatch: configuration is required but not found in config files; " +
				"ensure 'extensions.dispatch' or 'dispatch' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("dispatch: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("notify_batch_size", e.config.NotifyBatchSize),
		forge.F("notify_flush_interval", e.config.NotifyFlushInterval),
		forge.F("cancellation_fee_cents", e.config.CancellationFeeCents),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.dispatch" first (namespaced pattern).
	if cm.IsSet("extensions.dispatch") {
		if err := cm.Bind("extensions.dispatch", &cfg); err == nil {
			e.Logger().Debug("dispatch: loaded config from file",
				forge.F("key", "extensions.dispatch"),
			)
			return cfg, true
		}
		e.Logger().Warn("dispatch: failed to bind extensions.dispatch config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "dispatch" key.
	if cm.IsSet("dispatch") {
		if err := cm.Bind("dispatch", &cfg); err == nil {
			e.Logger().Debug("dispatch: loaded config from file",
				forge.F("key", "dispatch"),
			)
			return cfg, true
		}
		e.Logger().Warn("dispatch: failed to bind dispatch config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.NotifyBatchSize == 0 {
		cfg.NotifyBatchSize = defaults.NotifyBatchSize
	}
	if cfg.NotifyFlushInterval == 0 {
		cfg.NotifyFlushInterval = defaults.NotifyFlushInterval
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.NotifyBatchSize == 0 && programmaticConfig.NotifyBatchSize != 0 {
		yamlConfig.NotifyBatchSize = programmaticConfig.NotifyBatchSize
	}
	if yamlConfig.NotifyFlushInterval == 0 && programmaticConfig.NotifyFlushInterval != 0 {
		yamlConfig.NotifyFlushInterval = programmaticConfig.NotifyFlushInterval
	}
	if yamlConfig.CancellationFeeCents == 0 && programmaticConfig.CancellationFeeCents != 0 {
		yamlConfig.CancellationFeeCents = programmaticConfig.CancellationFeeCents
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
