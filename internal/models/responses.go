package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2026-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2026-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// AdminAuthRequest represents an admin login request
// @Description Admin login payload
type AdminAuthRequest struct {
	Username string `json:"username" example:"admin"` // Admin username
	Password string `json:"password"`                 // Admin password
}

// AdminAuthResponse represents an admin login response
// @Description Admin login response
type AdminAuthResponse struct {
	Success bool   `json:"success" example:"true"`     // Whether login succeeded
	Token   string `json:"token,omitempty"`            // Bearer token for admin routes
	Error   string `json:"error,omitempty" example:""` // Error message if any
}

// SubmitMessageRequest is the ingestion payload written by the chatbot front
// end and its intent classifier.
// @Description Message ingestion payload
type SubmitMessageRequest struct {
	SessionID      string   `json:"session_id" example:"3f1c9a7e-0b2d-4c1e-9f6a-8d5b2c7e4a10"` // Session identifier
	UserEmail      *string  `json:"user_email,omitempty" example:"customer@example.com"`        // Optional user email
	Sender         string   `json:"sender" example:"user"`                                      // user, bot, admin or admin_bot
	Text           string   `json:"text" example:"What is my order status?"`                    // Message text
	Intent         *string  `json:"intent,omitempty" example:"order_status"`                    // Classifier intent label
	Confidence     *float64 `json:"confidence,omitempty" example:"0.92"`                        // Classifier confidence, 0..1
	CurrentPage    *string  `json:"current_page,omitempty" example:"/checkout"`                 // Page the widget was on
	UserAgent      *string  `json:"user_agent,omitempty"`                                       // Client user agent
	ClientIP       *string  `json:"client_ip,omitempty"`                                        // Client IP
	ResponseTimeMs *int64   `json:"response_time_ms,omitempty" example:"150"`                   // Bot response latency
}

// SubmitMessageResponse acknowledges an ingested message.
// @Description Message ingestion response
type SubmitMessageResponse struct {
	MessageID int64  `json:"message_id,omitempty" example:"42"` // Assigned message id
	Error     string `json:"error,omitempty" example:""`        // Error message if any
}

// SessionOutcomeRequest sets the write-only outcome fields on a session.
// @Description Session outcome payload
type SessionOutcomeRequest struct {
	Satisfaction     *string `json:"satisfaction,omitempty" example:"positive"`      // positive, neutral, negative or unknown
	ResolutionStatus *string `json:"resolution_status,omitempty" example:"resolved"` // resolved, unresolved, escalated or unknown
}

// SessionListResponse is a paginated page of session summaries.
// @Description Paginated session summaries
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"` // Session summaries
	Total    int              `json:"total"`    // Total number of sessions
	Limit    int              `json:"limit"`    // Page size
	Offset   int              `json:"offset"`   // Page offset
	HasMore  bool             `json:"has_more"` // Whether another page exists
}

// SessionDetailResponse is a summary plus its full message history.
// @Description Session summary with messages
type SessionDetailResponse struct {
	Session  SessionSummary `json:"session"`  // Session summary
	Messages []Message      `json:"messages"` // Messages, oldest first
}

// BucketListResponse is an ordered sequence of analytics buckets.
// @Description Analytics buckets
type BucketListResponse struct {
	Buckets []AnalyticsBucket `json:"buckets"`         // Buckets, oldest first
	Error   string            `json:"error,omitempty"` // Error message if any
}

// IntentListResponse is the per-date intent leaderboard.
// @Description Intent leaderboard
type IntentListResponse struct {
	Date    string         `json:"date" example:"2026-08-24"` // Report date
	Intents []IntentReport `json:"intents"`                   // Intents, most frequent first
	Error   string         `json:"error,omitempty"`           // Error message if any
}

// TopQueriesResponse is the common-queries leaderboard.
// @Description Common queries leaderboard
type TopQueriesResponse struct {
	Queries []QueryFrequencyEntry `json:"queries"`         // Entries, highest count first
	Error   string                `json:"error,omitempty"` // Error message if any
}

// RetentionRequest overrides the configured horizons for one run.
// @Description Retention run payload
type RetentionRequest struct {
	MessageHorizonDays   int `json:"message_horizon_days" example:"180"`   // Message retention horizon
	AnalyticsHorizonDays int `json:"analytics_horizon_days" example:"365"` // Bucket retention horizon
}
