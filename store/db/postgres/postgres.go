package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"

	"github.com/hrygo/supportdesk/internal/profile"
	"github.com/hrygo/supportdesk/internal/version"
	"github.com/hrygo/supportdesk/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL connection pool for profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, pkgerrors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, pkgerrors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", slog.String("error", err.Error()))
		return nil, pkgerrors.Wrapf(err, "failed to open db with dsn")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS system_setting (
	name TEXT NOT NULL PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS customer (
	id TEXT NOT NULL PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	tier TEXT NOT NULL DEFAULT 'standard',
	total_spent DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS customer_order (
	id TEXT NOT NULL PRIMARY KEY,
	customer_id TEXT NOT NULL,
	status TEXT NOT NULL,
	items TEXT NOT NULL DEFAULT '',
	estimated_delivery TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_customer_order_customer ON customer_order (customer_id, created_ts);
CREATE TABLE IF NOT EXISTS ticket (
	id TEXT NOT NULL PRIMARY KEY,
	session_id TEXT NOT NULL,
	customer_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	category TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	turn_seq INTEGER NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation (
	session_id TEXT NOT NULL PRIMARY KEY,
	customer_id TEXT NOT NULL DEFAULT '',
	customer_tier TEXT NOT NULL DEFAULT '',
	active_specialist TEXT NOT NULL,
	escalation_state TEXT NOT NULL,
	ticket_id TEXT NOT NULL DEFAULT '',
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	cost_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
	low_confidence_streak INTEGER NOT NULL DEFAULT 0,
	is_human_takeover BOOLEAN NOT NULL DEFAULT FALSE,
	inconsistent BOOLEAN NOT NULL DEFAULT FALSE,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_turn (
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	specialist TEXT NOT NULL DEFAULT '',
	escalation BOOLEAN NOT NULL DEFAULT FALSE,
	created_ts BIGINT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

func (d *DB) Migrate(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to start migration")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return pkgerrors.Wrap(err, "failed to apply schema")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO system_setting (name, value) VALUES ('schema_version', $1)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, version.SchemaVersion); err != nil {
		return pkgerrors.Wrap(err, "failed to record schema version")
	}
	return tx.Commit()
}

func (d *DB) SchemaVersion(ctx context.Context) (string, error) {
	var exists bool
	if err := d.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = 'system_setting')").Scan(&exists); err != nil {
		return "", pkgerrors.Wrap(err, "failed to check if database is initialized")
	}
	if !exists {
		return "", nil
	}
	var v string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM system_setting WHERE name = 'schema_version'").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to read schema version")
	}
	return v, nil
}

func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

var _ store.Driver = (*DB)(nil)
