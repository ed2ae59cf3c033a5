package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/notify"
	"github.com/xraph/dispatch/plugin"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/store"
)

// Dispatch is the main order-lifecycle and settlement engine.
type Dispatch struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Background workers
	notifyBuffer chan *notify.Notification
	stopChan     chan struct{}
	wg           sync.WaitGroup

	// Configuration
	notifyBatchSize     int
	notifyFlushInterval time.Duration
	settlementConfig    settlement.Config
}

// Identity describes the caller of an engine operation. Authentication is
// the host application's concern; the engine trusts these fields and only
// enforces scoping and verification rules with them.
type Identity struct {
	Ref      string            // owner reference, e.g. "biz_42" or "agent_7"
	Role     account.OwnerType // agent, business or client
	Verified bool              // platform-verified (agents)
	Admin    bool              // operators bypass business scoping
}

// New creates a new Dispatch instance.
func New(s store.Store, opts ...Option) *Dispatch {
	d := &Dispatch{
		store:               s,
		plugins:             plugin.NewRegistry(),
		logger:              slog.Default(),
		notifyBuffer:        make(chan *notify.Notification, 10000),
		stopChan:            make(chan struct{}),
		notifyBatchSize:     100,
		notifyFlushInterval: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Option configures a Dispatch instance.
type Option func(*Dispatch)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatch) {
		d.logger = logger
		d.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(d *Dispatch) {
		_ = d.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithNotifyConfig configures notification batching parameters.
func WithNotifyConfig(batchSize int, flushInterval time.Duration) Option {
	return func(d *Dispatch) {
		d.notifyBatchSize = batchSize
		d.notifyFlushInterval = flushInterval
	}
}

// WithSettlementConfig sets the settlement parameters, notably the flat
// cancellation fee that sizes the client-fault penalty.
func WithSettlementConfig(cfg settlement.Config) Option {
	return func(d *Dispatch) {
		d.settlementConfig = cfg
	}
}

// Start begins background workers.
func (d *Dispatch) Start(ctx context.Context) error {
	// Migrate database
	if err := d.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	d.plugins.EmitInit(ctx, d)

	// Start notification flush worker
	d.wg.Add(1)
	go d.notifyFlushWorker(ctx)

	d.logger.Info("dispatch started",
		"batch_size", d.notifyBatchSize,
		"flush_interval", d.notifyFlushInterval,
		"cancellation_fee", d.settlementConfig.CancellationFee,
	)

	return nil
}

// Stop shuts down the engine.
func (d *Dispatch) Stop() error {
	close(d.stopChan)
	d.wg.Wait()

	ctx := context.Background()
	d.plugins.EmitShutdown(ctx)

	return d.store.Close()
}

// ──────────────────────────────────────────────────
// Notifications
// ──────────────────────────────────────────────────

// Notify buffers a notification event (non-blocking). Events are flushed
// to the store in batches; delivery to end devices is plugin territory.
func (d *Dispatch) Notify(_ context.Context, n *notify.Notification) error {
	if n.ID.IsNil() {
		n.ID = id.NewNotificationID()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	select {
	case d.notifyBuffer <- n:
		return nil
	default:
		return ErrNotifyBufferFull
	}
}

// ListNotifications returns a recipient's stored notifications, newest
// first. Only flushed notifications are visible; buffered ones are not.
func (d *Dispatch) ListNotifications(ctx context.Context, recipient string, opts notify.QueryOpts) ([]*notify.Notification, error) {
	if recipient == "" {
		return nil, ValidationError{Field: "recipient", Message: "required"}
	}
	return d.store.QueryNotifications(ctx, recipient, opts)
}

// PurgeNotifications deletes stored notifications older than the cutoff
// and returns how many were removed. Intended for retention jobs.
func (d *Dispatch) PurgeNotifications(ctx context.Context, before time.Time) (int64, error) {
	return d.store.PurgeNotifications(ctx, before)
}

// enqueueNotification is the engine's internal fire-and-forget variant:
// a full buffer drops the event with a warning instead of failing the
// operation that produced it.
func (d *Dispatch) enqueueNotification(ctx context.Context, kind notify.Kind, orderID id.OrderID, recipient, message string) {
	err := d.Notify(ctx, &notify.Notification{
		Kind:      kind,
		OrderID:   orderID,
		Recipient: recipient,
		Message:   message,
	})
	if err != nil {
		d.logger.Warn("dropping notification",
			"kind", kind,
			"order_id", orderID,
			"error", err,
		)
	}
}

// notifyFlushWorker flushes buffered notifications to the store.
func (d *Dispatch) notifyFlushWorker(ctx context.Context) {
	defer d.wg.Done()

	batch := make([]*notify.Notification, 0, d.notifyBatchSize)
	ticker := time.NewTicker(d.notifyFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			// Final flush
			if len(batch) > 0 {
				d.flushNotifyBatch(ctx, batch)
			}
			return

		case event := <-d.notifyBuffer:
			batch = append(batch, event)
			if len(batch) >= d.notifyBatchSize {
				d.flushNotifyBatch(ctx, batch)
				batch = make([]*notify.Notification, 0, d.notifyBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				d.flushNotifyBatch(ctx, batch)
				batch = make([]*notify.Notification, 0, d.notifyBatchSize)
			}
		}
	}
}

func (d *Dispatch) flushNotifyBatch(ctx context.Context, batch []*notify.Notification) {
	start := time.Now()

	if err := d.store.IngestBatch(ctx, batch); err != nil {
		d.logger.Error("failed to flush notification batch",
			"error", err,
			"batch_size", len(batch),
		)
		return
	}

	elapsed := time.Since(start)
	d.plugins.EmitNotificationsFlushed(ctx, len(batch), elapsed)

	d.logger.Debug("flushed notification batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}
