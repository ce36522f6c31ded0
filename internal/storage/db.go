package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names a supported SQL driver
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// Options configures how the ledger database is opened
type Options struct {
	// Driver is "sqlite3" (default) or "postgres"
	Driver Dialect
	// DSN is a file path for sqlite3 or a connection URL for postgres
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
	dialect Dialect
}

// New opens a SQLite database at dbPath
func New(dbPath string) (*DB, error) {
	return Open(Options{Driver: DialectSQLite, DSN: dbPath})
}

// Open creates a new database connection for the configured driver
func Open(opts Options) (*DB, error) {
	if opts.Driver == "" {
		opts.Driver = DialectSQLite
	}

	var (
		db  *sql.DB
		err error
	)

	switch opts.Driver {
	case DialectSQLite:
		dir := filepath.Dir(opts.DSN)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		// WAL mode lets readers proceed while a sync batch is being written
		db, err = sql.Open("sqlite3", opts.DSN+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// SQLite doesn't handle concurrent writes well
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case DialectPostgres:
		db, err = sql.Open("postgres", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, dialect: opts.Driver}, nil
}

// Dialect returns the driver the database was opened with
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Rebind rewrites ? placeholders into the dialect's bind syntax
func (db *DB) Rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{migrationSpendDataSQLite, migrationIndexes}
	if db.dialect == DialectPostgres {
		migrations[0] = migrationSpendDataPostgres
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Scope columns are NOT NULL with an empty-string sentinel so the unique
// index treats "no project" as one value instead of distinct NULLs.
const migrationSpendDataSQLite = `
CREATE TABLE IF NOT EXISTS spend_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	model_name TEXT NOT NULL,
	date DATE NOT NULL,
	cost_usd REAL NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	num_requests INTEGER NOT NULL DEFAULT 0,
	project_id TEXT NOT NULL DEFAULT '',
	api_key_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const migrationSpendDataPostgres = `
CREATE TABLE IF NOT EXISTS spend_data (
	id BIGSERIAL PRIMARY KEY,
	provider TEXT NOT NULL,
	model_name TEXT NOT NULL,
	date DATE NOT NULL,
	cost_usd NUMERIC(14, 6) NOT NULL DEFAULT 0,
	input_tokens BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	total_tokens BIGINT NOT NULL DEFAULT 0,
	num_requests BIGINT NOT NULL DEFAULT 0,
	project_id TEXT NOT NULL DEFAULT '',
	api_key_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const migrationIndexes = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_spend_data_unique
ON spend_data(provider, model_name, date, project_id, api_key_id, user_id);
CREATE INDEX IF NOT EXISTS idx_spend_data_date ON spend_data(date);
CREATE INDEX IF NOT EXISTS idx_spend_data_provider ON spend_data(provider);
`
