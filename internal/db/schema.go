package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    full_name     TEXT NOT NULL DEFAULT '',
    email         TEXT NOT NULL DEFAULT '',
    department    TEXT NOT NULL DEFAULT '',
    cost_center   TEXT NOT NULL DEFAULT '',
    location      TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS asset_types (
    id   INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS assets (
    id              INTEGER PRIMARY KEY,
    register_number TEXT NOT NULL UNIQUE,
    type_id         INTEGER NOT NULL REFERENCES asset_types(id),
    brand           TEXT NOT NULL DEFAULT '',
    model           TEXT NOT NULL DEFAULT '',
    owner           TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transfer_checklists (
    id          INTEGER PRIMARY KEY,
    type_id     INTEGER NOT NULL REFERENCES asset_types(id),
    item        TEXT NOT NULL,
    is_required INTEGER NOT NULL DEFAULT 0,
    position    INTEGER NOT NULL DEFAULT 0,
    deleted_at  DATETIME
);

CREATE TABLE IF NOT EXISTS transfers (
    id               INTEGER PRIMARY KEY,
    request_no       TEXT NOT NULL UNIQUE,
    transfer_by      TEXT NOT NULL,
    transfer_date    TEXT NOT NULL,
    approval_status  TEXT NOT NULL DEFAULT 'pending' CHECK (approval_status IN ('pending', 'approved', 'rejected')),
    approval_date    TEXT,
    approved_by      TEXT,
    approval_remarks TEXT
);

CREATE TABLE IF NOT EXISTS transfer_items (
    id                         INTEGER PRIMARY KEY,
    transfer_id                INTEGER NOT NULL REFERENCES transfers(id),
    asset_id                   INTEGER NOT NULL REFERENCES assets(id),
    current_owner              TEXT NOT NULL,
    new_owner                  TEXT NOT NULL,
    cost_center                TEXT NOT NULL DEFAULT '',
    department                 TEXT NOT NULL DEFAULT '',
    location                   TEXT NOT NULL DEFAULT '',
    reason                     TEXT NOT NULL DEFAULT '',
    effective_date             TEXT NOT NULL DEFAULT '',
    approved_by                TEXT,
    approved_date              TEXT,
    acceptance_date            TEXT,
    acceptance_by              TEXT,
    acceptance_checklist_items TEXT,
    acceptance_remarks         TEXT,
    attachment_id              TEXT,
    attachment_name            TEXT,
    attachment_mime            TEXT,
    attachment                 BLOB
);

CREATE INDEX IF NOT EXISTS idx_transfer_items_new_owner ON transfer_items(new_owner);

CREATE TABLE IF NOT EXISTS notifications (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    transfer_id INTEGER NOT NULL REFERENCES transfers(id),
    recipients  TEXT NOT NULL,
    sent_by     TEXT NOT NULL,
    sent_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS purchases (
    id           INTEGER PRIMARY KEY,
    supplier     TEXT NOT NULL,
    purchased_by TEXT NOT NULL,
    total        TEXT NOT NULL,
    created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS purchase_lines (
    id          INTEGER PRIMARY KEY,
    purchase_id INTEGER NOT NULL REFERENCES purchases(id),
    item_name   TEXT NOT NULL,
    quantity    INTEGER NOT NULL CHECK (quantity > 0),
    unit_price  TEXT NOT NULL,
    total       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_units (
    id          INTEGER PRIMARY KEY,
    purchase_id INTEGER NOT NULL REFERENCES purchases(id),
    item_name   TEXT NOT NULL,
    serial      TEXT NOT NULL UNIQUE,
    status      TEXT NOT NULL DEFAULT 'in_stock' CHECK (status IN ('in_stock', 'allocated'))
);

CREATE TABLE IF NOT EXISTS stock_requests (
    id           INTEGER PRIMARY KEY,
    requested_by TEXT NOT NULL,
    created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_request_lines (
    id            INTEGER PRIMARY KEY,
    request_id    INTEGER NOT NULL REFERENCES stock_requests(id),
    item_name     TEXT NOT NULL,
    requested_qty INTEGER NOT NULL CHECK (requested_qty > 0),
    approved_qty  INTEGER
);

CREATE TABLE IF NOT EXISTS stock_allocations (
    line_id INTEGER NOT NULL REFERENCES stock_request_lines(id),
    unit_id INTEGER NOT NULL UNIQUE REFERENCES stock_units(id),
    PRIMARY KEY (line_id, unit_id)
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
