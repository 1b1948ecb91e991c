package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string    { return "datetime('now')" }
func (d *SQLiteDialect) NeedsBoolFix() bool { return true }

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", "))
}

func (d *SQLiteDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s NOT IN (%s)", field, strings.Join(placeholders, ", "))
}

func (d *SQLiteDialect) ContainsExpr(field string, pb ParamBuilder, value string) string {
	// SQLite LIKE is case-insensitive for ASCII only; fold both sides.
	ph := pb.Add("%" + strings.ToLower(value) + "%")
	return fmt.Sprintf("LOWER(%s) LIKE %s", field, ph)
}

func (d *SQLiteDialect) ArrayParam(values []string) any {
	if values == nil {
		values = []string{}
	}
	encoded, _ := json.Marshal(values)
	return string(encoded)
}

func (d *SQLiteDialect) ScanArray(src any) ([]string, error) {
	if src == nil {
		return []string{}, nil
	}
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return []string{}, nil
	}
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse array: %w", err)
	}
	return out, nil
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

func (d *SQLiteDialect) SchemaSQL() string {
	return sqliteSchemaSQL
}

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS text_blocks (
    id           TEXT PRIMARY KEY,
    translations TEXT NOT NULL DEFAULT '{}',
    created_at   TEXT DEFAULT (datetime('now')),
    updated_at   TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _files (
    id           TEXT PRIMARY KEY,
    filename     TEXT NOT NULL,
    storage_path TEXT NOT NULL,
    mime_type    TEXT NOT NULL,
    size         INTEGER NOT NULL DEFAULT 0,
    uploaded_by  TEXT,
    created_at   TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS zones (
    id         TEXT PRIMARY KEY,
    code       TEXT NOT NULL,
    color      TEXT,
    name_id    TEXT REFERENCES text_blocks(id),
    is_active  INTEGER NOT NULL DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    deleted_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_zones_code ON zones (code) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS stops (
    id         TEXT PRIMARY KEY,
    code       TEXT NOT NULL,
    zone_id    TEXT REFERENCES zones(id),
    name_id    TEXT REFERENCES text_blocks(id),
    lat        REAL,
    lng        REAL,
    is_active  INTEGER NOT NULL DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    deleted_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_stops_code ON stops (code) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_stops_zone ON stops (zone_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS lines (
    id             TEXT PRIMARY KEY,
    number         TEXT NOT NULL,
    mode           TEXT NOT NULL DEFAULT 'bus',
    color          TEXT,
    name_id        TEXT REFERENCES text_blocks(id),
    description_id TEXT REFERENCES text_blocks(id),
    is_active      INTEGER NOT NULL DEFAULT 1,
    created_at     TEXT DEFAULT (datetime('now')),
    updated_at     TEXT DEFAULT (datetime('now')),
    deleted_at     TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_lines_number ON lines (number) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS line_stops (
    line_id  TEXT NOT NULL REFERENCES lines(id),
    stop_id  TEXT NOT NULL REFERENCES stops(id),
    position INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (line_id, stop_id)
);

CREATE TABLE IF NOT EXISTS vehicles (
    id            TEXT PRIMARY KEY,
    plate         TEXT NOT NULL,
    line_id       TEXT REFERENCES lines(id),
    status        TEXT NOT NULL DEFAULT 'active',
    tracker_token TEXT,
    is_active     INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT DEFAULT (datetime('now')),
    updated_at    TEXT DEFAULT (datetime('now')),
    deleted_at    TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_vehicles_plate ON vehicles (plate) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS vehicle_files (
    vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
    file_id    TEXT NOT NULL REFERENCES _files(id),
    position   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (vehicle_id, file_id)
);

CREATE TABLE IF NOT EXISTS settings (
    id         TEXT PRIMARY KEY,
    key        TEXT NOT NULL,
    value      TEXT,
    is_locked  INTEGER NOT NULL DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    deleted_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_settings_key ON settings (key) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS _users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    roles         TEXT DEFAULT '[]',
    active        INTEGER DEFAULT 1,
    created_at    TEXT DEFAULT (datetime('now')),
    updated_at    TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _roles (
    name        TEXT PRIMARY KEY,
    permissions TEXT NOT NULL DEFAULT '[]',
    created_at  TEXT DEFAULT (datetime('now')),
    updated_at  TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _refresh_tokens (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
    token      TEXT NOT NULL UNIQUE,
    expires_at TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_token ON _refresh_tokens(token);

CREATE TABLE IF NOT EXISTS _audit_log (
    id         TEXT PRIMARY KEY,
    actor_id   TEXT,
    resource   TEXT NOT NULL,
    action     TEXT NOT NULL,
    record_id  TEXT,
    detail     TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);
`
