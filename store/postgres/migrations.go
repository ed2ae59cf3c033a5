package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Dispatch store.
var Migrations = migrate.NewGroup("dispatch")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_dispatch_orders",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_orders (
    id                  TEXT PRIMARY KEY,
    business_id         TEXT NOT NULL DEFAULT '',
    client_id           TEXT NOT NULL DEFAULT '',
    agent_id            TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'pending',
    currency            TEXT NOT NULL DEFAULT '',
    subtotal_cents      BIGINT NOT NULL DEFAULT 0,
    delivery_fee_cents  BIGINT NOT NULL DEFAULT 0,
    total_cents         BIGINT NOT NULL DEFAULT 0,
    verified_agent_only BOOLEAN NOT NULL DEFAULT FALSE,
    lines               JSONB NOT NULL DEFAULT '[]',
    delivered_at        TIMESTAMPTZ,
    cancelled_at        TIMESTAMPTZ,
    failed_at           TIMESTAMPTZ,
    metadata            JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dispatch_orders_business ON dispatch_orders (business_id, created_at);
CREATE INDEX IF NOT EXISTS idx_dispatch_orders_status ON dispatch_orders (business_id, status);
CREATE INDEX IF NOT EXISTS idx_dispatch_orders_agent ON dispatch_orders (agent_id) WHERE agent_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_orders`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dispatch_accounts",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_accounts (
    id              TEXT PRIMARY KEY,
    owner_type      TEXT NOT NULL DEFAULT '',
    owner_ref       TEXT NOT NULL DEFAULT '',
    currency        TEXT NOT NULL DEFAULT '',
    available_cents BIGINT NOT NULL DEFAULT 0 CHECK (available_cents >= 0),
    held_cents      BIGINT NOT NULL DEFAULT 0 CHECK (held_cents >= 0),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dispatch_accounts_owner ON dispatch_accounts (owner_type, owner_ref, currency);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dispatch_holds",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_holds (
    id           TEXT PRIMARY KEY,
    account_id   TEXT NOT NULL DEFAULT '',
    order_id     TEXT NOT NULL DEFAULT '',
    purpose      TEXT NOT NULL DEFAULT '',
    amount_cents BIGINT NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'active',
    closed_at    TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dispatch_holds_order ON dispatch_holds (order_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_holds_account ON dispatch_holds (account_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_holds`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dispatch_entries",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_entries (
    id              TEXT PRIMARY KEY,
    account_id      TEXT NOT NULL DEFAULT '',
    order_id        TEXT NOT NULL DEFAULT '',
    available_cents BIGINT NOT NULL DEFAULT 0,
    held_cents      BIGINT NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT '',
    reason          TEXT NOT NULL DEFAULT '',
    timestamp       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dispatch_entries_account ON dispatch_entries (account_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_dispatch_entries_order ON dispatch_entries (order_id) WHERE order_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_entries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dispatch_failed_deliveries",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_failed_deliveries (
    id              TEXT PRIMARY KEY,
    order_id        TEXT NOT NULL DEFAULT '',
    business_id     TEXT NOT NULL DEFAULT '',
    agent_id        TEXT NOT NULL DEFAULT '',
    reason_id       TEXT NOT NULL DEFAULT '',
    reason_key      TEXT NOT NULL DEFAULT '',
    notes           TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'pending',
    resolution_type TEXT NOT NULL DEFAULT '',
    outcome         TEXT NOT NULL DEFAULT '',
    resolved_by     TEXT NOT NULL DEFAULT '',
    resolved_at     TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dispatch_failed_pending ON dispatch_failed_deliveries (order_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_dispatch_failed_business ON dispatch_failed_deliveries (business_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_failed_deliveries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dispatch_failure_reasons",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_failure_reasons (
    id         TEXT PRIMARY KEY,
    key        TEXT NOT NULL DEFAULT '',
    label_en   TEXT NOT NULL DEFAULT '',
    label_fr   TEXT NOT NULL DEFAULT '',
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    sort_order INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dispatch_reasons_key ON dispatch_failure_reasons (key);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_failure_reasons`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dispatch_items",
			Version: "20240101000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_items (
    id          TEXT PRIMARY KEY,
    business_id TEXT NOT NULL DEFAULT '',
    name        TEXT NOT NULL DEFAULT '',
    sku         TEXT NOT NULL DEFAULT '',
    available   BIGINT NOT NULL DEFAULT 0 CHECK (available >= 0),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dispatch_items_business ON dispatch_items (business_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_items`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dispatch_notifications",
			Version: "20240101000008",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_notifications (
    id        TEXT PRIMARY KEY,
    kind      TEXT NOT NULL DEFAULT '',
    order_id  TEXT NOT NULL DEFAULT '',
    recipient TEXT NOT NULL DEFAULT '',
    message   TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    metadata  JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_dispatch_notifications_recipient ON dispatch_notifications (recipient, timestamp);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_notifications`)
				return err
			},
		},
	)
}
