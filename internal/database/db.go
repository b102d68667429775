package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // commerce lookup DB
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"       // primary store in production
	_ "modernc.org/sqlite"      // embedded store for local runs and tests
)

const (
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
	driverSQLite   = "sqlite"
)

// DetectDriver maps a database URL onto a registered driver name.
// postgres:// URLs and mysql DSNs are recognized by shape; anything else is
// treated as a SQLite path (including file: and :memory: forms).
func DetectDriver(databaseURL string) string {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		return driverPostgres
	case strings.HasPrefix(databaseURL, "mysql://"),
		strings.Contains(databaseURL, "@tcp("):
		return driverMySQL
	default:
		return driverSQLite
	}
}

// New opens the primary store and verifies the connection.
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	driver := DetectDriver(databaseURL)
	dsn := strings.TrimPrefix(databaseURL, "mysql://")

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings. SQLite is limited to a single
	// connection: the embedded engine rejects concurrent writers.
	if driver == driverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewReadOnly opens a connection intended for lookup-only access to an
// external database (the commerce DB). MySQL sessions are put in read-only
// mode so a misrouted write cannot touch the remote store.
func NewReadOnly(databaseURL string) (*sqlx.DB, error) {
	db, err := New(databaseURL)
	if err != nil {
		return nil, err
	}

	if db.DriverName() == driverMySQL {
		if _, err := db.Exec("SET SESSION TRANSACTION READ ONLY"); err != nil {
			// Some users lack the privilege; rely on SELECT-only grants then.
			fmt.Printf("Warning: could not set MySQL session to read-only: %v\n", err)
		}
	}

	return db, nil
}

// ReadOnlyQuerySingle executes a single-row query within a read-only
// transaction for extra safety against accidental writes.
func ReadOnlyQuerySingle(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	// Always rollback, read-only transactions are never committed.
	defer func() { _ = tx.Rollback() }()

	if err := tx.GetContext(ctx, dest, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to execute read-only query: %w", err)
	}

	return nil
}
