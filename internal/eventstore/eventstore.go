package eventstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatlog/internal/database"
	"chatlog/internal/models"

	"github.com/jmoiron/sqlx"
)

// Service is the append-only store for chat messages. Messages are immutable
// once written; DeleteBefore is the only other mutation path and belongs to
// the retention run.
type Service struct {
	client *database.Client
}

// NewService creates an event store over the primary database client.
func NewService(client *database.Client) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("database client is required for event store")
	}
	return &Service{client: client}, nil
}

// Validate checks the invariants ingestion must reject synchronously:
// sender in the allowed set, confidence in [0,1], response time non-negative.
func Validate(msg *models.Message) error {
	if msg.SessionID == "" {
		return &models.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if !msg.Sender.Valid() {
		return &models.ValidationError{
			Field:  "sender",
			Reason: fmt.Sprintf("%q is not one of user, bot, admin, admin_bot", msg.Sender),
		}
	}
	if msg.Confidence != nil && (*msg.Confidence < 0 || *msg.Confidence > 1) {
		return &models.ValidationError{
			Field:  "confidence",
			Reason: fmt.Sprintf("%v is outside [0, 1]", *msg.Confidence),
		}
	}
	if msg.ResponseTimeMs != nil && *msg.ResponseTimeMs < 0 {
		return &models.ValidationError{
			Field:  "response_time_ms",
			Reason: fmt.Sprintf("%d is negative", *msg.ResponseTimeMs),
		}
	}
	return nil
}

// Append writes one message inside tx and returns its assigned id. The
// caller owns the transaction so the session and frequency side effects
// commit or roll back together with the append.
func (s *Service) Append(ctx context.Context, tx *sqlx.Tx, msg *models.Message) (int64, error) {
	if err := Validate(msg); err != nil {
		return 0, err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := tx.Rebind(`
		INSERT INTO chat_messages
			(session_id, user_email, sender, text, intent, confidence,
			 current_page, user_agent, client_ip, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	var id int64
	err := tx.GetContext(ctx, &id, query,
		msg.SessionID, msg.UserEmail, string(msg.Sender), msg.Text, msg.Intent,
		msg.Confidence, msg.CurrentPage, msg.UserAgent, msg.ClientIP,
		msg.ResponseTimeMs, database.UnixMillis(msg.CreatedAt))
	if err != nil {
		return 0, &models.StorageError{Op: "append message", Err: err}
	}

	msg.ID = id
	return id, nil
}

// Filter narrows a Query. Zero values leave the corresponding dimension
// unconstrained.
type Filter struct {
	SessionID string
	Sender    models.Sender
	From      time.Time // inclusive
	To        time.Time // exclusive
	Limit     int
	Offset    int
}

// Query returns messages matching the filter ordered by created_at
// ascending, then id ascending so equal timestamps stay stable.
func (s *Service) Query(ctx context.Context, f Filter) ([]models.Message, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Sender != "" {
		conds = append(conds, "sender = ?")
		args = append(args, string(f.Sender))
	}
	if !f.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, database.UnixMillis(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, database.UnixMillis(f.To))
	}

	query := `SELECT id, session_id, user_email, sender, text, intent, confidence,
		current_page, user_agent, client_ip, response_time_ms, created_at
		FROM chat_messages`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	var rows []messageRow
	if err := s.client.Select(ctx, &rows, query, args...); err != nil {
		return nil, &models.StorageError{Op: "query messages", Err: err}
	}

	messages := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toModel())
	}
	return messages, nil
}

// CountBySession returns the number of stored messages for one session.
func (s *Service) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.client.Get(ctx, &count,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, &models.StorageError{Op: "count session messages", Err: err}
	}
	return count, nil
}

// DeleteBefore removes all messages older than cutoff inside tx and returns
// the number deleted. Deletion is by predicate so a retried purge is
// harmless.
func (s *Service) DeleteBefore(ctx context.Context, tx *sqlx.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM chat_messages WHERE created_at < ?`),
		database.UnixMillis(cutoff))
	if err != nil {
		return 0, &models.StorageError{Op: "delete messages", Err: err}
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, &models.StorageError{Op: "delete messages", Err: err}
	}
	return deleted, nil
}

type messageRow struct {
	ID             int64    `db:"id"`
	SessionID      string   `db:"session_id"`
	UserEmail      *string  `db:"user_email"`
	Sender         string   `db:"sender"`
	Text           string   `db:"text"`
	Intent         *string  `db:"intent"`
	Confidence     *float64 `db:"confidence"`
	CurrentPage    *string  `db:"current_page"`
	UserAgent      *string  `db:"user_agent"`
	ClientIP       *string  `db:"client_ip"`
	ResponseTimeMs *int64   `db:"response_time_ms"`
	CreatedAt      int64    `db:"created_at"`
}

func (r messageRow) toModel() models.Message {
	return models.Message{
		ID:             r.ID,
		SessionID:      r.SessionID,
		UserEmail:      r.UserEmail,
		Sender:         models.Sender(r.Sender),
		Text:           r.Text,
		Intent:         r.Intent,
		Confidence:     r.Confidence,
		CurrentPage:    r.CurrentPage,
		UserAgent:      r.UserAgent,
		ClientIP:       r.ClientIP,
		ResponseTimeMs: r.ResponseTimeMs,
		CreatedAt:      database.FromUnixMillis(r.CreatedAt),
	}
}
