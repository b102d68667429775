package lookup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatlog/internal/database"
	"chatlog/internal/models"

	"github.com/jmoiron/sqlx"
)

// Service resolves chat users against the commerce database. The connection
// is read-only; this process never writes to the store.
type Service struct {
	db          *sqlx.DB
	tablePrefix string
}

// NewService opens a read-only connection to the commerce database.
func NewService(databaseURL, tablePrefix string) (*Service, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("commerce database URL is required for customer lookup")
	}
	if tablePrefix == "" {
		tablePrefix = "wp"
	}

	db, err := database.NewReadOnly(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to commerce database: %w", err)
	}
	return &Service{db: db, tablePrefix: tablePrefix}, nil
}

// CustomerIDByEmail returns the commerce customer id registered under email.
func (s *Service) CustomerIDByEmail(ctx context.Context, email string) (int64, error) {
	if email == "" {
		return 0, &models.ValidationError{Field: "email", Reason: "must not be empty"}
	}

	query := fmt.Sprintf(`
		SELECT customer_id
		FROM %s_wc_customer_lookup
		WHERE email = ?
		LIMIT 1
	`, s.tablePrefix)

	var customerID int64
	err := database.ReadOnlyQuerySingle(ctx, s.db, &customerID, s.db.Rebind(query), email)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &models.NotFoundError{Entity: "customer", Key: email}
	}
	if err != nil {
		return 0, &models.StorageError{Op: "lookup customer", Err: err}
	}
	return customerID, nil
}

// Close releases the commerce connection.
func (s *Service) Close() error {
	return s.db.Close()
}
