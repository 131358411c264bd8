package utils

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Driver names registered by the database/sql drivers this module links.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// SQLPool controls database/sql pool behavior. Zero values take defaults
// suited to the driver.
type SQLPool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

func (p SQLPool) withDefaults(driver string) SQLPool {
	if driver == DriverSQLite {
		// SQLite serializes writers, and ":memory:" is private per
		// connection, so the pool is pinned to one connection.
		p.MaxOpenConns = 1
		p.MaxIdleConns = 1
	}
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 25
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = p.MaxOpenConns
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = 30 * time.Minute
	}
	if p.ConnMaxIdleTime <= 0 {
		p.ConnMaxIdleTime = 5 * time.Minute
	}
	if p.PingTimeout <= 0 {
		p.PingTimeout = 5 * time.Second
	}
	return p
}

// OpenPostgres opens the document store database through the pgx stdlib
// driver (registered by the caller). dsn contains secrets; never log it.
func OpenPostgres(ctx context.Context, dsn string, pool SQLPool) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	return openSQL(ctx, DriverPostgres, dsn, pool)
}

// OpenSQLite opens a single-file database for local development; ":memory:"
// gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	return openSQL(ctx, DriverSQLite, SQLiteDSN(path), SQLPool{PingTimeout: 2 * time.Second})
}

// SQLiteDSN adds a busy timeout and WAL journaling to file databases.
func SQLiteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func openSQL(ctx context.Context, driver, dsn string, pool SQLPool) (*sql.DB, error) {
	pool = pool.withDefaults(driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := HealthCheck(ctx, db, pool.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// HealthCheck pings the DB with a timeout.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("db ping failed: %w", err)
	}
	return nil
}
