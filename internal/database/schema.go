package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// serialPK returns the auto-incrementing primary key column clause for the
// connected driver.
func serialPK(driver string) string {
	switch driver {
	case driverPostgres:
		return "id BIGSERIAL PRIMARY KEY"
	case driverMySQL:
		return "id BIGINT AUTO_INCREMENT PRIMARY KEY"
	default:
		return "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// CreateTables creates the four entity collections and their indexes.
// Timestamps are stored as unix milliseconds and bucket dates as YYYY-MM-DD
// text so the same DDL works on Postgres and SQLite.
func CreateTables(ctx context.Context, db *sqlx.DB) error {
	pk := serialPK(db.DriverName())

	queries := []string{
		// Raw fact table: the append-only message stream.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chat_messages (
			%s,
			session_id TEXT NOT NULL,
			user_email TEXT,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			intent TEXT,
			confidence DOUBLE PRECISION,
			current_page TEXT,
			user_agent TEXT,
			client_ip TEXT,
			response_time_ms BIGINT,
			created_at BIGINT NOT NULL
		)`, pk),
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_id ON chat_messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_created_at ON chat_messages(created_at)`,

		// One mutable summary row per session.
		`CREATE TABLE IF NOT EXISTS session_summaries (
			session_id TEXT PRIMARY KEY,
			user_email TEXT,
			customer_id BIGINT,
			session_type TEXT NOT NULL,
			first_message_at BIGINT NOT NULL,
			last_message_at BIGINT NOT NULL,
			total_messages BIGINT NOT NULL DEFAULT 0,
			total_user_messages BIGINT NOT NULL DEFAULT 0,
			total_bot_messages BIGINT NOT NULL DEFAULT 0,
			total_admin_messages BIGINT NOT NULL DEFAULT 0,
			avg_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			response_samples BIGINT NOT NULL DEFAULT 0,
			duration_seconds BIGINT NOT NULL DEFAULT 0,
			primary_intent TEXT,
			intent_stats TEXT NOT NULL DEFAULT '[]',
			satisfaction TEXT NOT NULL DEFAULT 'unknown',
			resolution_status TEXT NOT NULL DEFAULT 'unknown',
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_summaries_last_message_at ON session_summaries(last_message_at)`,

		// Derived time-bucketed rollups; daily rows use bucket_hour = -1.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS analytics_buckets (
			%s,
			bucket_date TEXT NOT NULL,
			granularity TEXT NOT NULL,
			bucket_hour INTEGER NOT NULL,
			total_sessions BIGINT NOT NULL DEFAULT 0,
			total_messages BIGINT NOT NULL DEFAULT 0,
			unique_users BIGINT NOT NULL DEFAULT 0,
			avg_session_duration_sec DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			most_common_intent TEXT,
			resolved_sessions BIGINT NOT NULL DEFAULT 0,
			escalated_sessions BIGINT NOT NULL DEFAULT 0,
			satisfaction_score DOUBLE PRECISION,
			computed_at BIGINT NOT NULL,
			UNIQUE(bucket_date, granularity, bucket_hour)
		)`, pk),
		`CREATE INDEX IF NOT EXISTS idx_analytics_buckets_date ON analytics_buckets(bucket_date)`,

		// Deduplicated common-queries table keyed on normalized text.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS query_frequency (
			%s,
			normalized TEXT NOT NULL UNIQUE,
			raw_example TEXT NOT NULL,
			ask_count BIGINT NOT NULL DEFAULT 1,
			intent TEXT,
			avg_confidence DOUBLE PRECISION,
			confidence_samples BIGINT NOT NULL DEFAULT 0,
			intent_stats TEXT NOT NULL DEFAULT '[]',
			suggested_response TEXT,
			last_asked_at BIGINT NOT NULL
		)`, pk),
		`CREATE INDEX IF NOT EXISTS idx_query_frequency_ask_count ON query_frequency(ask_count)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}
