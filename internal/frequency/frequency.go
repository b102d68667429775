package frequency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatlog/internal/database"
	"chatlog/internal/models"
	"chatlog/internal/normalize"
	"chatlog/internal/stats"

	"github.com/jmoiron/sqlx"
)

// Service maintains the deduplicated common-queries table. Entries are keyed
// on normalized text; counts only ever grow except under an explicit
// administrative reset.
type Service struct {
	client *database.Client
	maxLen int
}

// NewService creates a frequency index. maxLen bounds normalized keys; pass
// 0 for the normalizer default.
func NewService(client *database.Client, maxLen int) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("database client is required for frequency index")
	}
	if maxLen <= 0 {
		maxLen = normalize.DefaultMaxLength
	}
	return &Service{client: client, maxLen: maxLen}, nil
}

// Record folds one raw query into the index inside tx. Empty (or
// punctuation-only) text is skipped. Confidence, when present, updates the
// running mean; the entry's intent becomes the most frequent intent seen for
// the key, breaking ties toward the most recent.
func (s *Service) Record(ctx context.Context, tx *sqlx.Tx, rawText string, intent *string, confidence *float64, askedAt time.Time) error {
	normalized := normalize.WithLimit(rawText, s.maxLen)
	if normalized == "" {
		return nil
	}

	var row entryRow
	err := tx.GetContext(ctx, &row, tx.Rebind(selectEntry+` WHERE normalized = ?`), normalized)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		row = entryRow{
			Normalized:  normalized,
			RawExample:  rawText,
			AskCount:    1,
			IntentStats: "[]",
			LastAskedAt: database.UnixMillis(askedAt),
		}
		if confidence != nil {
			row.AvgConfidence = confidence
			row.ConfidenceSamples = 1
		}
		row.observeIntent(intent)
		return insertEntry(ctx, tx, &row)
	case err != nil:
		return &models.StorageError{Op: "load frequency entry", Err: err}
	}

	row.AskCount++
	row.LastAskedAt = database.UnixMillis(askedAt)
	if confidence != nil {
		var avg float64
		if row.AvgConfidence != nil {
			avg = *row.AvgConfidence
		}
		mean := stats.Restore(row.ConfidenceSamples, avg)
		mean.Add(*confidence)
		row.ConfidenceSamples = mean.Count
		row.AvgConfidence = &mean.Mean
	}
	row.observeIntent(intent)

	return updateEntry(ctx, tx, &row)
}

// Top returns the n most frequent entries, ordered by count descending and
// last-asked time descending on equal counts.
func (s *Service) Top(ctx context.Context, n int) ([]models.QueryFrequencyEntry, error) {
	if n <= 0 {
		n = 10
	}

	var rows []entryRow
	err := s.client.Select(ctx, &rows,
		selectEntry+` ORDER BY ask_count DESC, last_asked_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, &models.StorageError{Op: "list top queries", Err: err}
	}

	entries := make([]models.QueryFrequencyEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toModel())
	}
	return entries, nil
}

// TotalCount returns the sum of counts over all entries.
func (s *Service) TotalCount(ctx context.Context) (int64, error) {
	var total int64
	err := s.client.Get(ctx, &total, `SELECT COALESCE(SUM(ask_count), 0) FROM query_frequency`)
	if err != nil {
		return 0, &models.StorageError{Op: "sum query counts", Err: err}
	}
	return total, nil
}

// SetSuggestedResponse attaches a curated response to an entry.
func (s *Service) SetSuggestedResponse(ctx context.Context, normalized, response string) error {
	res, err := s.client.Exec(ctx,
		`UPDATE query_frequency SET suggested_response = ? WHERE normalized = ?`,
		response, normalized)
	if err != nil {
		return &models.StorageError{Op: "set suggested response", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &models.NotFoundError{Entity: "query", Key: normalized}
	}
	return nil
}

// Reset clears the whole index. This is the administrative reset; automatic
// retention never touches the table.
func (s *Service) Reset(ctx context.Context) error {
	if _, err := s.client.Exec(ctx, `DELETE FROM query_frequency`); err != nil {
		return &models.StorageError{Op: "reset frequency index", Err: err}
	}
	return nil
}

const selectEntry = `SELECT id, normalized, raw_example, ask_count, intent,
	avg_confidence, confidence_samples, intent_stats, suggested_response,
	last_asked_at
	FROM query_frequency`

func insertEntry(ctx context.Context, tx *sqlx.Tx, row *entryRow) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO query_frequency
			(normalized, raw_example, ask_count, intent, avg_confidence,
			 confidence_samples, intent_stats, suggested_response, last_asked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		row.Normalized, row.RawExample, row.AskCount, row.Intent,
		row.AvgConfidence, row.ConfidenceSamples, row.IntentStats,
		row.SuggestedResponse, row.LastAskedAt)
	if err != nil {
		return &models.StorageError{Op: "insert frequency entry", Err: err}
	}
	return nil
}

func updateEntry(ctx context.Context, tx *sqlx.Tx, row *entryRow) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE query_frequency SET
			ask_count = ?, intent = ?, avg_confidence = ?,
			confidence_samples = ?, intent_stats = ?, last_asked_at = ?
		WHERE normalized = ?`),
		row.AskCount, row.Intent, row.AvgConfidence, row.ConfidenceSamples,
		row.IntentStats, row.LastAskedAt, row.Normalized)
	if err != nil {
		return &models.StorageError{Op: "update frequency entry", Err: err}
	}
	return nil
}

type entryRow struct {
	ID                int64    `db:"id"`
	Normalized        string   `db:"normalized"`
	RawExample        string   `db:"raw_example"`
	AskCount          int64    `db:"ask_count"`
	Intent            *string  `db:"intent"`
	AvgConfidence     *float64 `db:"avg_confidence"`
	ConfidenceSamples int64    `db:"confidence_samples"`
	IntentStats       string   `db:"intent_stats"`
	SuggestedResponse *string  `db:"suggested_response"`
	LastAskedAt       int64    `db:"last_asked_at"`
}

func (r *entryRow) observeIntent(intent *string) {
	if intent == nil || *intent == "" {
		return
	}

	var entries []stats.ModeEntry
	if r.IntentStats != "" && r.IntentStats != "[]" {
		_ = json.Unmarshal([]byte(r.IntentStats), &entries)
	}

	tracker := stats.NewModeTracker(entries)
	tracker.Observe(*intent)

	raw, err := json.Marshal(tracker.Entries())
	if err == nil {
		r.IntentStats = string(raw)
	}
	if mode, ok := tracker.Mode(stats.TieMostRecent); ok {
		r.Intent = &mode
	}
}

func (r *entryRow) toModel() models.QueryFrequencyEntry {
	return models.QueryFrequencyEntry{
		ID:                r.ID,
		RawExample:        r.RawExample,
		Normalized:        r.Normalized,
		Count:             r.AskCount,
		Intent:            r.Intent,
		AvgConfidence:     r.AvgConfidence,
		SuggestedResponse: r.SuggestedResponse,
		LastAskedAt:       database.FromUnixMillis(r.LastAskedAt),
	}
}
