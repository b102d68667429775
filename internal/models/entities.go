package models

import "time"

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser     Sender = "user"
	SenderBot      Sender = "bot"
	SenderAdmin    Sender = "admin"
	SenderAdminBot Sender = "admin_bot"
)

// Valid reports whether the sender is in the allowed set.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderBot, SenderAdmin, SenderAdminBot:
		return true
	}
	return false
}

// IsAdmin reports whether the sender counts toward the admin message total.
func (s Sender) IsAdmin() bool {
	return s == SenderAdmin || s == SenderAdminBot
}

// SessionType distinguishes customer-facing sessions from admin ones.
type SessionType string

const (
	SessionCustomer SessionType = "customer"
	SessionAdmin    SessionType = "admin"
)

// Satisfaction is the session outcome recorded by an admin action.
type Satisfaction string

const (
	SatisfactionPositive Satisfaction = "positive"
	SatisfactionNeutral  Satisfaction = "neutral"
	SatisfactionNegative Satisfaction = "negative"
	SatisfactionUnknown  Satisfaction = "unknown"
)

// Valid reports whether the satisfaction value is in the allowed set.
func (s Satisfaction) Valid() bool {
	switch s {
	case SatisfactionPositive, SatisfactionNeutral, SatisfactionNegative, SatisfactionUnknown:
		return true
	}
	return false
}

// Score maps a known satisfaction onto [-1, 1]. The second return is false
// for unknown satisfaction, which never contributes to a bucket score.
func (s Satisfaction) Score() (float64, bool) {
	switch s {
	case SatisfactionPositive:
		return 1, true
	case SatisfactionNeutral:
		return 0, true
	case SatisfactionNegative:
		return -1, true
	}
	return 0, false
}

// ResolutionStatus is the session resolution recorded by an admin action.
type ResolutionStatus string

const (
	ResolutionResolved   ResolutionStatus = "resolved"
	ResolutionUnresolved ResolutionStatus = "unresolved"
	ResolutionEscalated  ResolutionStatus = "escalated"
	ResolutionUnknown    ResolutionStatus = "unknown"
)

// Valid reports whether the resolution status is in the allowed set.
func (r ResolutionStatus) Valid() bool {
	switch r {
	case ResolutionResolved, ResolutionUnresolved, ResolutionEscalated, ResolutionUnknown:
		return true
	}
	return false
}

// Granularity selects the analytics bucket kind.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

// Valid reports whether the granularity is hour or day.
func (g Granularity) Valid() bool {
	return g == GranularityHour || g == GranularityDay
}

// Message is one immutable entry in the append-only chat log. Only the
// retention purge may remove it once written.
type Message struct {
	ID             int64     `json:"id" example:"42"`
	SessionID      string    `json:"session_id" example:"3f1c9a7e-0b2d-4c1e-9f6a-8d5b2c7e4a10"`
	UserEmail      *string   `json:"user_email,omitempty" example:"customer@example.com"`
	Sender         Sender    `json:"sender" example:"user"`
	Text           string    `json:"text" example:"What is my order status?"`
	Intent         *string   `json:"intent,omitempty" example:"order_status"`
	Confidence     *float64  `json:"confidence,omitempty" example:"0.92"`
	CurrentPage    *string   `json:"current_page,omitempty" example:"/checkout"`
	UserAgent      *string   `json:"user_agent,omitempty"`
	ClientIP       *string   `json:"client_ip,omitempty"`
	ResponseTimeMs *int64    `json:"response_time_ms,omitempty" example:"150"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionSummary is the single mutable summary row per session, derived from
// the message stream. Satisfaction and resolution status are write-only
// outcome fields and survive message-triggered updates untouched.
type SessionSummary struct {
	SessionID          string           `json:"session_id"`
	UserEmail          *string          `json:"user_email,omitempty"`
	CustomerID         *int64           `json:"customer_id,omitempty"`
	SessionType        SessionType      `json:"session_type" example:"customer"`
	FirstMessageAt     time.Time        `json:"first_message_at"`
	LastMessageAt      time.Time        `json:"last_message_at"`
	TotalMessages      int64            `json:"total_messages" example:"5"`
	TotalUserMessages  int64            `json:"total_user_messages" example:"3"`
	TotalBotMessages   int64            `json:"total_bot_messages" example:"2"`
	TotalAdminMessages int64            `json:"total_admin_messages" example:"0"`
	AvgResponseTimeMs  float64          `json:"avg_response_time_ms" example:"150"`
	DurationSeconds    int64            `json:"duration_seconds" example:"63"`
	PrimaryIntent      *string          `json:"primary_intent,omitempty" example:"order_status"`
	Satisfaction       Satisfaction     `json:"satisfaction" example:"unknown"`
	ResolutionStatus   ResolutionStatus `json:"resolution_status" example:"unknown"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// AnalyticsBucket is one fully derived rollup row, unique per
// (date, granularity, hour). Daily rows carry Hour == DailyHour.
type AnalyticsBucket struct {
	Date                  string      `json:"date" example:"2026-08-24"`
	Granularity           Granularity `json:"granularity" example:"hour"`
	Hour                  int         `json:"hour" example:"14"`
	TotalSessions         int64       `json:"total_sessions"`
	TotalMessages         int64       `json:"total_messages"`
	UniqueUsers           int64       `json:"unique_users"`
	AvgSessionDurationSec float64     `json:"avg_session_duration_sec"`
	AvgResponseTimeMs     float64     `json:"avg_response_time_ms"`
	MostCommonIntent      *string     `json:"most_common_intent,omitempty"`
	ResolvedSessions      int64       `json:"resolved_sessions"`
	EscalatedSessions     int64       `json:"escalated_sessions"`
	SatisfactionScore     *float64    `json:"satisfaction_score,omitempty"`
	ComputedAt            time.Time   `json:"computed_at"`
}

// DailyHour is the hour column value for daily buckets. NULL would defeat
// the three-column unique constraint on Postgres, so daily rows store -1.
const DailyHour = -1

// QueryFrequencyEntry is one row of the deduplicated common-queries table,
// unique per normalized text.
type QueryFrequencyEntry struct {
	ID                int64     `json:"id"`
	RawExample        string    `json:"raw_example" example:"What is my order status?"`
	Normalized        string    `json:"normalized" example:"what is my order status"`
	Count             int64     `json:"count" example:"2"`
	Intent            *string   `json:"intent,omitempty" example:"order_status"`
	AvgConfidence     *float64  `json:"avg_confidence,omitempty" example:"0.91"`
	SuggestedResponse *string   `json:"suggested_response,omitempty"`
	LastAskedAt       time.Time `json:"last_asked_at"`
}

// IntentReport is one line of the per-date intent leaderboard.
type IntentReport struct {
	Intent         string  `json:"intent" example:"order_status"`
	Frequency      int64   `json:"frequency" example:"17"`
	AvgConfidence  float64 `json:"avg_confidence" example:"0.88"`
	UniqueSessions int64   `json:"unique_sessions" example:"9"`
}

// PurgeReport summarizes one retention run. Per-category errors are recorded
// here instead of aborting the whole run.
type PurgeReport struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	MessageCutoff    time.Time `json:"message_cutoff"`
	AnalyticsCutoff  time.Time `json:"analytics_cutoff"`
	MessagesDeleted  int64     `json:"messages_deleted"`
	SummariesDeleted int64     `json:"summaries_deleted"`
	BucketsDeleted   int64     `json:"buckets_deleted"`
	MessagePurgeErr  string    `json:"message_purge_error,omitempty"`
	BucketPurgeErr   string    `json:"bucket_purge_error,omitempty"`
}
