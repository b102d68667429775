package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Client wraps the primary store handle. All queries are written with `?`
// placeholders and rebound per driver, so one query text serves Postgres and
// SQLite alike.
type Client struct {
	db *sqlx.DB
}

// NewClient wraps an open database handle.
func NewClient(db *sqlx.DB) *Client {
	return &Client{db: db}
}

// DB returns the underlying database connection.
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Exec executes a statement.
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, c.db.Rebind(query), args...)
}

// Select executes a query and scans all rows into dest.
func (c *Client) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return c.db.SelectContext(ctx, dest, c.db.Rebind(query), args...)
}

// Get executes a query and scans a single row into dest.
func (c *Client) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return c.db.GetContext(ctx, dest, c.db.Rebind(query), args...)
}

// Begin starts a transaction.
func (c *Client) Begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
