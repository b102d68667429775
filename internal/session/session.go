package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatlog/internal/database"
	"chatlog/internal/models"
	"chatlog/internal/stats"

	"github.com/jmoiron/sqlx"
)

// Service maintains one SessionSummary per session, incrementally folded
// from the message stream. Callers must serialize Apply per session id; the
// ingest pipeline holds a per-session lock for that.
type Service struct {
	client *database.Client
}

// NewService creates a session aggregator over the primary database client.
func NewService(client *database.Client) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("database client is required for session service")
	}
	return &Service{client: client}, nil
}

// Apply folds one appended message into its session summary inside the same
// transaction as the append, so the summary can never outrun or trail a
// committed message.
func (s *Service) Apply(ctx context.Context, tx *sqlx.Tx, msg *models.Message) error {
	row, err := getRowTx(ctx, tx, msg.SessionID)
	switch {
	case err == nil:
		fold(row, msg)
		return updateRow(ctx, tx, row)
	case errors.Is(err, sql.ErrNoRows):
		row = newRow(msg)
		fold(row, msg)
		return insertRow(ctx, tx, row)
	default:
		return &models.StorageError{Op: "load session summary", Err: err}
	}
}

// Get returns the summary for one session.
func (s *Service) Get(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	var row summaryRow
	err := s.client.Get(ctx, &row, selectSummary+` WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "session", Key: sessionID}
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get session summary", Err: err}
	}
	summary := row.toModel()
	return &summary, nil
}

// List returns summaries ordered by most recent activity.
func (s *Service) List(ctx context.Context, limit, offset int) ([]models.SessionSummary, error) {
	var rows []summaryRow
	err := s.client.Select(ctx, &rows,
		selectSummary+` ORDER BY last_message_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, &models.StorageError{Op: "list session summaries", Err: err}
	}

	summaries := make([]models.SessionSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, r.toModel())
	}
	return summaries, nil
}

// Count returns the total number of session summaries.
func (s *Service) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.client.Get(ctx, &count, `SELECT COUNT(*) FROM session_summaries`); err != nil {
		return 0, &models.StorageError{Op: "count session summaries", Err: err}
	}
	return count, nil
}

// SetOutcome records the write-only satisfaction and resolution fields. Nil
// arguments leave the corresponding field untouched.
func (s *Service) SetOutcome(ctx context.Context, sessionID string, satisfaction *models.Satisfaction, resolution *models.ResolutionStatus) error {
	if satisfaction != nil && !satisfaction.Valid() {
		return &models.ValidationError{
			Field:  "satisfaction",
			Reason: fmt.Sprintf("%q is not one of positive, neutral, negative, unknown", *satisfaction),
		}
	}
	if resolution != nil && !resolution.Valid() {
		return &models.ValidationError{
			Field:  "resolution_status",
			Reason: fmt.Sprintf("%q is not one of resolved, unresolved, escalated, unknown", *resolution),
		}
	}

	existing, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if satisfaction == nil {
		satisfaction = &existing.Satisfaction
	}
	if resolution == nil {
		resolution = &existing.ResolutionStatus
	}

	_, err = s.client.Exec(ctx, `
		UPDATE session_summaries
		SET satisfaction = ?, resolution_status = ?, updated_at = ?
		WHERE session_id = ?`,
		string(*satisfaction), string(*resolution),
		database.UnixMillis(time.Now()), sessionID)
	if err != nil {
		return &models.StorageError{Op: "set session outcome", Err: err}
	}
	return nil
}

// AttachCustomer records the weak reference to an external customer entity.
func (s *Service) AttachCustomer(ctx context.Context, sessionID string, customerID int64) error {
	res, err := s.client.Exec(ctx, `
		UPDATE session_summaries SET customer_id = ? WHERE session_id = ?`,
		customerID, sessionID)
	if err != nil {
		return &models.StorageError{Op: "attach customer", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &models.NotFoundError{Entity: "session", Key: sessionID}
	}
	return nil
}

// Verify checks a summary against the actual stored message count for the
// session. A mismatch is a ConsistencyError and the caller must Rebuild
// rather than trust the summary.
func (s *Service) Verify(ctx context.Context, sessionID string, storedMessages int64) error {
	summary, err := s.Get(ctx, sessionID)
	if err != nil {
		if models.IsNotFound(err) && storedMessages > 0 {
			return &models.ConsistencyError{
				Entity: "session",
				Key:    sessionID,
				Detail: fmt.Sprintf("%d stored messages but no summary", storedMessages),
			}
		}
		return err
	}
	if summary.TotalMessages != storedMessages {
		return &models.ConsistencyError{
			Entity: "session",
			Key:    sessionID,
			Detail: fmt.Sprintf("summary counts %d messages, store has %d", summary.TotalMessages, storedMessages),
		}
	}
	return nil
}

// Rebuild recomputes a summary from scratch by replaying the session's
// messages, preserving the write-only outcome fields and customer link.
// Finalizing a session with zero messages is a NotFoundError.
func (s *Service) Rebuild(ctx context.Context, sessionID string, messages []models.Message) error {
	if len(messages) == 0 {
		return &models.NotFoundError{Entity: "session", Key: sessionID}
	}

	row := newRow(&messages[0])
	for i := range messages {
		fold(row, &messages[i])
	}

	// Keep fields not derived from the message stream.
	if existing, err := s.Get(ctx, sessionID); err == nil {
		row.Satisfaction = string(existing.Satisfaction)
		row.ResolutionStatus = string(existing.ResolutionStatus)
		row.CustomerID = existing.CustomerID
	} else if !models.IsNotFound(err) {
		return err
	}

	tx, err := s.client.Begin(ctx)
	if err != nil {
		return &models.StorageError{Op: "rebuild session summary", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM session_summaries WHERE session_id = ?`), sessionID); err != nil {
		return &models.StorageError{Op: "rebuild session summary", Err: err}
	}
	if err := insertRow(ctx, tx, row); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &models.StorageError{Op: "rebuild session summary", Err: err}
	}
	return nil
}

// DeleteOrphans removes summaries whose session has no remaining messages.
// It must run inside the same transaction as the message purge so a session
// with live messages can never be orphan-deleted.
func (s *Service) DeleteOrphans(ctx context.Context, tx *sqlx.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM session_summaries
		WHERE session_id NOT IN (SELECT DISTINCT session_id FROM chat_messages)`)
	if err != nil {
		return 0, &models.StorageError{Op: "delete orphaned summaries", Err: err}
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, &models.StorageError{Op: "delete orphaned summaries", Err: err}
	}
	return deleted, nil
}

// ActiveSummaries returns summaries for the given session ids.
func (s *Service) ActiveSummaries(ctx context.Context, sessionIDs []string) ([]models.SessionSummary, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(selectSummary+` WHERE session_id IN (?)`, sessionIDs)
	if err != nil {
		return nil, &models.StorageError{Op: "load active summaries", Err: err}
	}

	var rows []summaryRow
	if err := s.client.Select(ctx, &rows, query, args...); err != nil {
		return nil, &models.StorageError{Op: "load active summaries", Err: err}
	}

	summaries := make([]models.SessionSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, r.toModel())
	}
	return summaries, nil
}

// newRow initializes a summary for a session's first observed message.
func newRow(msg *models.Message) *summaryRow {
	sessionType := models.SessionCustomer
	if msg.Sender.IsAdmin() {
		sessionType = models.SessionAdmin
	}
	now := database.UnixMillis(msg.CreatedAt)
	return &summaryRow{
		SessionID:        msg.SessionID,
		SessionType:      string(sessionType),
		FirstMessageAt:   now,
		LastMessageAt:    now,
		IntentStats:      "[]",
		Satisfaction:     string(models.SatisfactionUnknown),
		ResolutionStatus: string(models.ResolutionUnknown),
	}
}

// fold applies one message to a summary row. It is the single update path
// shared by incremental aggregation and full rebuilds.
func fold(row *summaryRow, msg *models.Message) {
	row.TotalMessages++
	switch {
	case msg.Sender == models.SenderUser:
		row.TotalUserMessages++
	case msg.Sender == models.SenderBot:
		row.TotalBotMessages++
	case msg.Sender.IsAdmin():
		row.TotalAdminMessages++
	}

	at := database.UnixMillis(msg.CreatedAt)
	if at < row.FirstMessageAt {
		row.FirstMessageAt = at
	}
	if at > row.LastMessageAt {
		row.LastMessageAt = at
	}
	row.DurationSeconds = (row.LastMessageAt - row.FirstMessageAt) / 1000

	if row.UserEmail == nil && msg.UserEmail != nil && *msg.UserEmail != "" {
		row.UserEmail = msg.UserEmail
	}

	if msg.Sender == models.SenderBot && msg.ResponseTimeMs != nil {
		mean := stats.Restore(row.ResponseSamples, row.AvgResponseTimeMs)
		mean.Add(float64(*msg.ResponseTimeMs))
		row.ResponseSamples = mean.Count
		row.AvgResponseTimeMs = mean.Mean
	}

	if msg.Intent != nil && *msg.Intent != "" {
		tracker := stats.NewModeTracker(row.decodeIntentStats())
		tracker.Observe(*msg.Intent)
		row.encodeIntentStats(tracker.Entries())
		if mode, ok := tracker.Mode(stats.TieEarliestSeen); ok {
			row.PrimaryIntent = &mode
		}
	}

	row.UpdatedAt = database.UnixMillis(time.Now())
}

const selectSummary = `SELECT session_id, user_email, customer_id, session_type,
	first_message_at, last_message_at, total_messages, total_user_messages,
	total_bot_messages, total_admin_messages, avg_response_time_ms,
	response_samples, duration_seconds, primary_intent, intent_stats,
	satisfaction, resolution_status, updated_at
	FROM session_summaries`

func getRowTx(ctx context.Context, tx *sqlx.Tx, sessionID string) (*summaryRow, error) {
	var row summaryRow
	err := tx.GetContext(ctx, &row, tx.Rebind(selectSummary+` WHERE session_id = ?`), sessionID)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func insertRow(ctx context.Context, tx *sqlx.Tx, row *summaryRow) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO session_summaries
			(session_id, user_email, customer_id, session_type, first_message_at,
			 last_message_at, total_messages, total_user_messages,
			 total_bot_messages, total_admin_messages, avg_response_time_ms,
			 response_samples, duration_seconds, primary_intent, intent_stats,
			 satisfaction, resolution_status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		row.SessionID, row.UserEmail, row.CustomerID, row.SessionType,
		row.FirstMessageAt, row.LastMessageAt, row.TotalMessages,
		row.TotalUserMessages, row.TotalBotMessages, row.TotalAdminMessages,
		row.AvgResponseTimeMs, row.ResponseSamples, row.DurationSeconds,
		row.PrimaryIntent, row.IntentStats, row.Satisfaction,
		row.ResolutionStatus, row.UpdatedAt)
	if err != nil {
		return &models.StorageError{Op: "insert session summary", Err: err}
	}
	return nil
}

func updateRow(ctx context.Context, tx *sqlx.Tx, row *summaryRow) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE session_summaries SET
			user_email = ?, session_type = ?, first_message_at = ?,
			last_message_at = ?, total_messages = ?, total_user_messages = ?,
			total_bot_messages = ?, total_admin_messages = ?,
			avg_response_time_ms = ?, response_samples = ?, duration_seconds = ?,
			primary_intent = ?, intent_stats = ?, updated_at = ?
		WHERE session_id = ?`),
		row.UserEmail, row.SessionType, row.FirstMessageAt, row.LastMessageAt,
		row.TotalMessages, row.TotalUserMessages, row.TotalBotMessages,
		row.TotalAdminMessages, row.AvgResponseTimeMs, row.ResponseSamples,
		row.DurationSeconds, row.PrimaryIntent, row.IntentStats, row.UpdatedAt,
		row.SessionID)
	if err != nil {
		return &models.StorageError{Op: "update session summary", Err: err}
	}
	return nil
}

type summaryRow struct {
	SessionID          string  `db:"session_id"`
	UserEmail          *string `db:"user_email"`
	CustomerID         *int64  `db:"customer_id"`
	SessionType        string  `db:"session_type"`
	FirstMessageAt     int64   `db:"first_message_at"`
	LastMessageAt      int64   `db:"last_message_at"`
	TotalMessages      int64   `db:"total_messages"`
	TotalUserMessages  int64   `db:"total_user_messages"`
	TotalBotMessages   int64   `db:"total_bot_messages"`
	TotalAdminMessages int64   `db:"total_admin_messages"`
	AvgResponseTimeMs  float64 `db:"avg_response_time_ms"`
	ResponseSamples    int64   `db:"response_samples"`
	DurationSeconds    int64   `db:"duration_seconds"`
	PrimaryIntent      *string `db:"primary_intent"`
	IntentStats        string  `db:"intent_stats"`
	Satisfaction       string  `db:"satisfaction"`
	ResolutionStatus   string  `db:"resolution_status"`
	UpdatedAt          int64   `db:"updated_at"`
}

func (r *summaryRow) decodeIntentStats() []stats.ModeEntry {
	if r.IntentStats == "" || r.IntentStats == "[]" {
		return nil
	}
	var entries []stats.ModeEntry
	if err := json.Unmarshal([]byte(r.IntentStats), &entries); err != nil {
		// Corrupt tracker state degrades to re-counting from here on.
		return nil
	}
	return entries
}

func (r *summaryRow) encodeIntentStats(entries []stats.ModeEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		r.IntentStats = "[]"
		return
	}
	r.IntentStats = string(raw)
}

func (r *summaryRow) toModel() models.SessionSummary {
	return models.SessionSummary{
		SessionID:          r.SessionID,
		UserEmail:          r.UserEmail,
		CustomerID:         r.CustomerID,
		SessionType:        models.SessionType(r.SessionType),
		FirstMessageAt:     database.FromUnixMillis(r.FirstMessageAt),
		LastMessageAt:      database.FromUnixMillis(r.LastMessageAt),
		TotalMessages:      r.TotalMessages,
		TotalUserMessages:  r.TotalUserMessages,
		TotalBotMessages:   r.TotalBotMessages,
		TotalAdminMessages: r.TotalAdminMessages,
		AvgResponseTimeMs:  r.AvgResponseTimeMs,
		DurationSeconds:    r.DurationSeconds,
		PrimaryIntent:      r.PrimaryIntent,
		Satisfaction:       models.Satisfaction(r.Satisfaction),
		ResolutionStatus:   models.ResolutionStatus(r.ResolutionStatus),
		UpdatedAt:          database.FromUnixMillis(r.UpdatedAt),
	}
}
