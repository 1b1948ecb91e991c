package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string   { return "NOW()" }
func (d *PostgresDialect) NeedsBoolFix() bool { return false }

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	ph := pb.Add(values)
	return fmt.Sprintf("%s = ANY(%s)", field, ph)
}

func (d *PostgresDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	ph := pb.Add(values)
	return fmt.Sprintf("%s != ALL(%s)", field, ph)
}

func (d *PostgresDialect) ContainsExpr(field string, pb ParamBuilder, value string) string {
	ph := pb.Add("%" + value + "%")
	return fmt.Sprintf("%s ILIKE %s", field, ph)
}

func (d *PostgresDialect) ArrayParam(values []string) any {
	return values
}

func (d *PostgresDialect) ScanArray(src any) ([]string, error) {
	if src == nil {
		return []string{}, nil
	}
	switch v := src.(type) {
	case []string:
		return v, nil
	case []any:
		result := make([]string, len(v))
		for i, item := range v {
			result[i] = fmt.Sprintf("%v", item)
		}
		return result, nil
	case []byte:
		// pgx/stdlib may return TEXT[] as a string like {admin,user}
		return parsePgArray(string(v))
	case string:
		return parsePgArray(v)
	default:
		return []string{}, nil
	}
}

// parsePgArray parses a PostgreSQL array literal like {admin,user} into []string.
func parsePgArray(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		return []string{}, nil
	}
	if strings.HasPrefix(s, "[") {
		// JSON array (stored through ArrayParam on a re-encoded value)
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("parse array: %w", err)
		}
		return out, nil
	}
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			result = append(result, p)
		}
	}
	return result, nil
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

func (d *PostgresDialect) SchemaSQL() string {
	return pgSchemaSQL
}

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS text_blocks (
    id           UUID PRIMARY KEY,
    translations JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ DEFAULT NOW(),
    updated_at   TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _files (
    id           UUID PRIMARY KEY,
    filename     TEXT NOT NULL,
    storage_path TEXT NOT NULL,
    mime_type    TEXT NOT NULL,
    size         BIGINT NOT NULL DEFAULT 0,
    uploaded_by  UUID,
    created_at   TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS zones (
    id         UUID PRIMARY KEY,
    code       TEXT NOT NULL,
    color      TEXT,
    name_id    UUID REFERENCES text_blocks(id),
    is_active  BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    deleted_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_zones_code ON zones (code) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS stops (
    id         UUID PRIMARY KEY,
    code       TEXT NOT NULL,
    zone_id    UUID REFERENCES zones(id),
    name_id    UUID REFERENCES text_blocks(id),
    lat        DOUBLE PRECISION,
    lng        DOUBLE PRECISION,
    is_active  BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    deleted_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_stops_code ON stops (code) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_stops_zone ON stops (zone_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS lines (
    id             UUID PRIMARY KEY,
    number         TEXT NOT NULL,
    mode           TEXT NOT NULL DEFAULT 'bus',
    color          TEXT,
    name_id        UUID REFERENCES text_blocks(id),
    description_id UUID REFERENCES text_blocks(id),
    is_active      BOOLEAN NOT NULL DEFAULT true,
    created_at     TIMESTAMPTZ DEFAULT NOW(),
    updated_at     TIMESTAMPTZ DEFAULT NOW(),
    deleted_at     TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_lines_number ON lines (number) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS line_stops (
    line_id  UUID NOT NULL REFERENCES lines(id),
    stop_id  UUID NOT NULL REFERENCES stops(id),
    position INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (line_id, stop_id)
);

CREATE TABLE IF NOT EXISTS vehicles (
    id            UUID PRIMARY KEY,
    plate         TEXT NOT NULL,
    line_id       UUID REFERENCES lines(id),
    status        TEXT NOT NULL DEFAULT 'active',
    tracker_token TEXT,
    is_active     BOOLEAN NOT NULL DEFAULT true,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW(),
    deleted_at    TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_vehicles_plate ON vehicles (plate) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS vehicle_files (
    vehicle_id UUID NOT NULL REFERENCES vehicles(id),
    file_id    UUID NOT NULL REFERENCES _files(id),
    position   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (vehicle_id, file_id)
);

CREATE TABLE IF NOT EXISTS settings (
    id         UUID PRIMARY KEY,
    key        TEXT NOT NULL,
    value      TEXT,
    is_locked  BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    deleted_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_settings_key ON settings (key) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS _users (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    roles         TEXT[] DEFAULT '{}',
    active        BOOLEAN DEFAULT true,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _roles (
    name        TEXT PRIMARY KEY,
    permissions TEXT[] NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _refresh_tokens (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id    UUID NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
    token      UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_token ON _refresh_tokens(token);

CREATE TABLE IF NOT EXISTS _audit_log (
    id         UUID PRIMARY KEY,
    actor_id   UUID,
    resource   TEXT NOT NULL,
    action     TEXT NOT NULL,
    record_id  TEXT,
    detail     JSONB,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
`
