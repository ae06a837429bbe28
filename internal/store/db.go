package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/amsterdam/dso-gateway/internal/qplan"
)

// DB wraps a pooled *sql.DB for one backend.
type DB struct {
	SQL     *sql.DB
	Dialect Dialect
}

// Config is the subset of connection settings the gateway's
// internal/config.Config exposes per backend.
type Config struct {
	DriverName      string // "postgres", "mysql", or "sqlite" (tests)
	ConnString      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open establishes the pool. Each request acquires at most one cursor
// for its main query plus one short-lived cursor per prefetch batch;
// the pool-level Max* settings bound total concurrency.
func Open(cfg Config) (*DB, error) {
	var driverName string
	var dialect Dialect

	switch cfg.DriverName {
	case "postgres":
		driverName = "pgx"
		dialect = PostgresDialect{}
	case "mysql":
		driverName = "mysql"
		dialect = MySQLDialect{}
	case "sqlite":
		driverName = "sqlite"
		dialect = SQLiteDialect{}
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.DriverName)
	}

	sqlDB, err := sql.Open(driverName, cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.DriverName, err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &DB{SQL: sqlDB, Dialect: dialect}, nil
}

// Query executes plan's SELECT and returns a streaming Cursor. The
// context's deadline (derived from the request's deadline) bounds the
// whole query, including row iteration.
func (db *DB) Query(ctx context.Context, plan *qplan.QueryPlan) (*Cursor, error) {
	sqlText, args, err := db.Dialect.RenderSelect(plan)
	if err != nil {
		return nil, err
	}
	rows, err := db.SQL.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &Cursor{rows: rows, cols: cols}, nil
}

// Count executes the separate COUNT(*) query behind ?_count=true.
func (db *DB) Count(ctx context.Context, plan *qplan.QueryPlan) (int64, error) {
	sqlText, args, err := db.Dialect.RenderCount(plan)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.SQL.QueryRowContext(ctx, sqlText, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// QueryByColumnIn runs a plain "SELECT * FROM table WHERE column IN
// (...)" for the renderer's per-chunk relation prefetch.
// A prefetch lookup bypasses the full QueryPlan machinery: it is never
// filtered, sorted or paginated by the request, only constrained to
// the batch of foreign keys the parent rows in hand actually reference.
func (db *DB) QueryByColumnIn(ctx context.Context, tableID, column string, values []any) (*Cursor, error) {
	q := db.Dialect.Quote
	ph := db.Dialect.Placeholder

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(q(tableID))
	sb.WriteString(" WHERE ")
	sb.WriteString(q(column))
	sb.WriteString(" IN (")
	for i := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(ph(i + 1))
	}
	sb.WriteString(")")

	rows, err := db.SQL.QueryContext(ctx, sb.String(), values...)
	if err != nil {
		return nil, fmt.Errorf("store: prefetch query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &Cursor{rows: rows, cols: cols}, nil
}

func (db *DB) Close() error { return db.SQL.Close() }
