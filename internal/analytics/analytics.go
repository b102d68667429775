package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chatlog/internal/cache"
	"chatlog/internal/database"
	"chatlog/internal/eventstore"
	"chatlog/internal/models"
	"chatlog/internal/session"
	"chatlog/internal/stats"

	"github.com/rs/zerolog"
)

// DateLayout is the wire and storage format for bucket dates.
const DateLayout = "2006-01-02"

// closedBucketTTL caches rollups of closed windows; their inputs are
// immutable until retention removes them.
const closedBucketTTL = 15 * time.Minute

// Service recomputes time-bucketed rollups from the event store. Buckets
// are fully derived: a rollup overwrites any existing row for its key, so
// re-running is always safe.
type Service struct {
	client   *database.Client
	events   *eventstore.Service
	sessions *session.Service
	cache    *cache.Cache
	logger   zerolog.Logger

	// Rollups hold the read side; retention takes the write side through
	// Quiesce so it never purges a window an in-flight rollup is reading.
	gate sync.RWMutex
}

// NewService creates an analytics roller.
func NewService(client *database.Client, events *eventstore.Service, sessions *session.Service, logger zerolog.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("database client is required for analytics service")
	}
	if events == nil || sessions == nil {
		return nil, fmt.Errorf("event store and session services are required for analytics service")
	}
	return &Service{
		client:   client,
		events:   events,
		sessions: sessions,
		cache:    cache.New(),
		logger:   logger,
	}, nil
}

// Quiesce blocks until no rollup is in flight and holds off new ones until
// the returned release function is called.
func (s *Service) Quiesce() func() {
	s.gate.Lock()
	return s.gate.Unlock
}

// Window resolves a bucket key to its half-open time window.
func Window(date string, granularity models.Granularity, hour int) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, &models.ValidationError{
			Field:  "date",
			Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", date),
		}
	}

	switch granularity {
	case models.GranularityDay:
		return day, day.AddDate(0, 0, 1), nil
	case models.GranularityHour:
		if hour < 0 || hour > 23 {
			return time.Time{}, time.Time{}, &models.ValidationError{
				Field:  "hour",
				Reason: fmt.Sprintf("%d is outside [0, 23]", hour),
			}
		}
		start := day.Add(time.Duration(hour) * time.Hour)
		return start, start.Add(time.Hour), nil
	default:
		return time.Time{}, time.Time{}, &models.ValidationError{
			Field:  "granularity",
			Reason: fmt.Sprintf("%q is not hour or day", granularity),
		}
	}
}

// Rollup recomputes the bucket for (date, granularity, hour) from scratch
// and overwrites any stored row for that key. Pass models.DailyHour as hour
// for daily buckets. Still-open windows may be rolled as a best-effort
// preview and are expected to change on re-run.
func (s *Service) Rollup(ctx context.Context, date string, granularity models.Granularity, hour int) (*models.AnalyticsBucket, error) {
	if granularity == models.GranularityDay {
		hour = models.DailyHour
	}

	start, end, err := Window(date, granularity, hour)
	if err != nil {
		return nil, err
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	messages, err := s.events.Query(ctx, eventstore.Filter{From: start, To: end})
	if err != nil {
		return nil, err
	}

	bucket := s.compute(ctx, messages)
	bucket.Date = date
	bucket.Granularity = granularity
	bucket.Hour = hour
	bucket.ComputedAt = time.Now().UTC()

	if err := s.upsert(ctx, bucket); err != nil {
		return nil, err
	}
	return bucket, nil
}

// compute derives all bucket metrics from the window's messages and the
// summaries of the sessions active in it.
func (s *Service) compute(ctx context.Context, messages []models.Message) *models.AnalyticsBucket {
	bucket := &models.AnalyticsBucket{}
	bucket.TotalMessages = int64(len(messages))

	sessionIDs := make([]string, 0)
	seenSessions := make(map[string]bool)
	uniqueUsers := make(map[string]bool)
	intentCounts := make(map[string]int64)
	var respMean stats.RunningMean

	for _, msg := range messages {
		if !seenSessions[msg.SessionID] {
			seenSessions[msg.SessionID] = true
			sessionIDs = append(sessionIDs, msg.SessionID)
		}
		if msg.UserEmail != nil && *msg.UserEmail != "" {
			uniqueUsers[*msg.UserEmail] = true
		}
		if msg.Intent != nil && *msg.Intent != "" {
			intentCounts[*msg.Intent]++
		}
		if msg.ResponseTimeMs != nil {
			respMean.Add(float64(*msg.ResponseTimeMs))
		}
	}

	bucket.TotalSessions = int64(len(sessionIDs))
	bucket.UniqueUsers = int64(len(uniqueUsers))
	bucket.AvgResponseTimeMs = respMean.Mean
	if mode, ok := stats.ModeOf(intentCounts); ok {
		bucket.MostCommonIntent = &mode
	}

	summaries := s.loadSummaries(ctx, sessionIDs)
	var durMean, satMean stats.RunningMean
	for _, sum := range summaries {
		durMean.Add(float64(sum.DurationSeconds))
		switch sum.ResolutionStatus {
		case models.ResolutionResolved:
			bucket.ResolvedSessions++
		case models.ResolutionEscalated:
			bucket.EscalatedSessions++
		}
		if score, known := sum.Satisfaction.Score(); known {
			satMean.Add(score)
		}
	}
	bucket.AvgSessionDurationSec = durMean.Mean
	if satMean.Count > 0 {
		score := satMean.Mean
		bucket.SatisfactionScore = &score
	}

	return bucket
}

// loadSummaries fetches summaries for the sessions active in the window,
// repairing any summary that has diverged from the event store instead of
// trusting it.
func (s *Service) loadSummaries(ctx context.Context, sessionIDs []string) []models.SessionSummary {
	summaries, err := s.sessions.ActiveSummaries(ctx, sessionIDs)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load session summaries for rollup")
		return nil
	}

	if len(summaries) < len(sessionIDs) {
		summaries = s.repairMissing(ctx, sessionIDs, summaries)
	}
	return summaries
}

// repairMissing rebuilds summaries for sessions that have messages but no
// summary row, then re-reads the set.
func (s *Service) repairMissing(ctx context.Context, sessionIDs []string, summaries []models.SessionSummary) []models.SessionSummary {
	have := make(map[string]bool, len(summaries))
	for _, sum := range summaries {
		have[sum.SessionID] = true
	}

	for _, id := range sessionIDs {
		if have[id] {
			continue
		}

		cerr := &models.ConsistencyError{Entity: "session", Key: id, Detail: "messages in window but no summary"}
		s.logger.Warn().Err(cerr).Str("session_id", id).Msg("Summary diverged from event store, rebuilding")

		msgs, err := s.events.Query(ctx, eventstore.Filter{SessionID: id})
		if err != nil {
			s.logger.Error().Err(err).Str("session_id", id).Msg("Failed to load messages for rebuild")
			continue
		}
		if err := s.sessions.Rebuild(ctx, id, msgs); err != nil {
			s.logger.Error().Err(err).Str("session_id", id).Msg("Failed to rebuild session summary")
		}
	}

	repaired, err := s.sessions.ActiveSummaries(ctx, sessionIDs)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to re-read summaries after rebuild")
		return summaries
	}
	return repaired
}

func (s *Service) upsert(ctx context.Context, b *models.AnalyticsBucket) error {
	_, err := s.client.Exec(ctx, `
		INSERT INTO analytics_buckets
			(bucket_date, granularity, bucket_hour, total_sessions,
			 total_messages, unique_users, avg_session_duration_sec,
			 avg_response_time_ms, most_common_intent, resolved_sessions,
			 escalated_sessions, satisfaction_score, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bucket_date, granularity, bucket_hour) DO UPDATE SET
			total_sessions = excluded.total_sessions,
			total_messages = excluded.total_messages,
			unique_users = excluded.unique_users,
			avg_session_duration_sec = excluded.avg_session_duration_sec,
			avg_response_time_ms = excluded.avg_response_time_ms,
			most_common_intent = excluded.most_common_intent,
			resolved_sessions = excluded.resolved_sessions,
			escalated_sessions = excluded.escalated_sessions,
			satisfaction_score = excluded.satisfaction_score,
			computed_at = excluded.computed_at`,
		b.Date, string(b.Granularity), b.Hour, b.TotalSessions, b.TotalMessages,
		b.UniqueUsers, b.AvgSessionDurationSec, b.AvgResponseTimeMs,
		b.MostCommonIntent, b.ResolvedSessions, b.EscalatedSessions,
		b.SatisfactionScore, database.UnixMillis(b.ComputedAt))
	if err != nil {
		return &models.StorageError{Op: "upsert analytics bucket", Err: err}
	}
	return nil
}

// RecentActivity returns hourly buckets for the last `hours` hours ending at
// now, oldest first. Closed hours are rolled once and served from cache; the
// still-open hour is recomputed on every call.
func (s *Service) RecentActivity(ctx context.Context, now time.Time, hours int) ([]models.AnalyticsBucket, error) {
	if hours <= 0 {
		hours = 24
	}

	now = now.UTC()
	buckets := make([]models.AnalyticsBucket, 0, hours)
	for i := hours - 1; i >= 0; i-- {
		start := now.Truncate(time.Hour).Add(-time.Duration(i) * time.Hour)
		date := start.Format(DateLayout)
		hour := start.Hour()
		closed := !start.Add(time.Hour).After(now)

		cacheKey := fmt.Sprintf("hourly:%s:%02d", date, hour)
		if closed {
			if cached, found := s.cache.Get(cacheKey); found {
				if b, ok := cached.(models.AnalyticsBucket); ok {
					buckets = append(buckets, b)
					continue
				}
			}
		}

		bucket, err := s.Rollup(ctx, date, models.GranularityHour, hour)
		if err != nil {
			return nil, err
		}
		if closed {
			s.cache.Set(cacheKey, *bucket, closedBucketTTL)
		}
		buckets = append(buckets, *bucket)
	}

	return buckets, nil
}

// DashboardSummary returns daily buckets for the inclusive date range,
// oldest first.
func (s *Service) DashboardSummary(ctx context.Context, fromDate, toDate string, now time.Time) ([]models.AnalyticsBucket, error) {
	from, err := time.ParseInLocation(DateLayout, fromDate, time.UTC)
	if err != nil {
		return nil, &models.ValidationError{Field: "from", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", fromDate)}
	}
	to, err := time.ParseInLocation(DateLayout, toDate, time.UTC)
	if err != nil {
		return nil, &models.ValidationError{Field: "to", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", toDate)}
	}
	if to.Before(from) {
		return nil, &models.ValidationError{Field: "to", Reason: "range end precedes range start"}
	}

	now = now.UTC()
	var buckets []models.AnalyticsBucket
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(DateLayout)
		closed := !day.AddDate(0, 0, 1).After(now)

		cacheKey := "daily:" + date
		if closed {
			if cached, found := s.cache.Get(cacheKey); found {
				if b, ok := cached.(models.AnalyticsBucket); ok {
					buckets = append(buckets, b)
					continue
				}
			}
		}

		bucket, err := s.Rollup(ctx, date, models.GranularityDay, models.DailyHour)
		if err != nil {
			return nil, err
		}
		if closed {
			s.cache.Set(cacheKey, *bucket, closedBucketTTL)
		}
		buckets = append(buckets, *bucket)
	}

	return buckets, nil
}

// TopIntents reports the intents observed on one date, ordered by frequency
// descending then intent name ascending.
func (s *Service) TopIntents(ctx context.Context, date string) ([]models.IntentReport, error) {
	start, end, err := Window(date, models.GranularityDay, models.DailyHour)
	if err != nil {
		return nil, err
	}

	messages, err := s.events.Query(ctx, eventstore.Filter{From: start, To: end})
	if err != nil {
		return nil, err
	}

	type acc struct {
		freq     int64
		conf     stats.RunningMean
		sessions map[string]bool
	}
	byIntent := make(map[string]*acc)
	for _, msg := range messages {
		if msg.Intent == nil || *msg.Intent == "" {
			continue
		}
		a := byIntent[*msg.Intent]
		if a == nil {
			a = &acc{sessions: make(map[string]bool)}
			byIntent[*msg.Intent] = a
		}
		a.freq++
		a.sessions[msg.SessionID] = true
		if msg.Confidence != nil {
			a.conf.Add(*msg.Confidence)
		}
	}

	reports := make([]models.IntentReport, 0, len(byIntent))
	for intent, a := range byIntent {
		reports = append(reports, models.IntentReport{
			Intent:         intent,
			Frequency:      a.freq,
			AvgConfidence:  a.conf.Mean,
			UniqueSessions: int64(len(a.sessions)),
		})
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Frequency != reports[j].Frequency {
			return reports[i].Frequency > reports[j].Frequency
		}
		return reports[i].Intent < reports[j].Intent
	})

	return reports, nil
}

// GetBucket reads a stored bucket without recomputing it.
func (s *Service) GetBucket(ctx context.Context, date string, granularity models.Granularity, hour int) (*models.AnalyticsBucket, error) {
	if granularity == models.GranularityDay {
		hour = models.DailyHour
	}

	var row bucketRow
	err := s.client.Get(ctx, &row, `
		SELECT bucket_date, granularity, bucket_hour, total_sessions,
			total_messages, unique_users, avg_session_duration_sec,
			avg_response_time_ms, most_common_intent, resolved_sessions,
			escalated_sessions, satisfaction_score, computed_at
		FROM analytics_buckets
		WHERE bucket_date = ? AND granularity = ? AND bucket_hour = ?`,
		date, string(granularity), hour)
	if err != nil {
		return nil, &models.NotFoundError{
			Entity: "bucket",
			Key:    fmt.Sprintf("%s/%s/%d", date, granularity, hour),
		}
	}
	bucket := row.toModel()
	return &bucket, nil
}

// DeleteBucketsBefore removes buckets dated before cutoff and returns the
// number deleted. ISO dates compare correctly as strings.
func (s *Service) DeleteBucketsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.client.Exec(ctx,
		`DELETE FROM analytics_buckets WHERE bucket_date < ?`,
		cutoff.UTC().Format(DateLayout))
	if err != nil {
		return 0, &models.StorageError{Op: "delete analytics buckets", Err: err}
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, &models.StorageError{Op: "delete analytics buckets", Err: err}
	}
	return deleted, nil
}

type bucketRow struct {
	BucketDate            string   `db:"bucket_date"`
	Granularity           string   `db:"granularity"`
	BucketHour            int      `db:"bucket_hour"`
	TotalSessions         int64    `db:"total_sessions"`
	TotalMessages         int64    `db:"total_messages"`
	UniqueUsers           int64    `db:"unique_users"`
	AvgSessionDurationSec float64  `db:"avg_session_duration_sec"`
	AvgResponseTimeMs     float64  `db:"avg_response_time_ms"`
	MostCommonIntent      *string  `db:"most_common_intent"`
	ResolvedSessions      int64    `db:"resolved_sessions"`
	EscalatedSessions     int64    `db:"escalated_sessions"`
	SatisfactionScore     *float64 `db:"satisfaction_score"`
	ComputedAt            int64    `db:"computed_at"`
}

func (r bucketRow) toModel() models.AnalyticsBucket {
	return models.AnalyticsBucket{
		Date:                  r.BucketDate,
		Granularity:           models.Granularity(r.Granularity),
		Hour:                  r.BucketHour,
		TotalSessions:         r.TotalSessions,
		TotalMessages:         r.TotalMessages,
		UniqueUsers:           r.UniqueUsers,
		AvgSessionDurationSec: r.AvgSessionDurationSec,
		AvgResponseTimeMs:     r.AvgResponseTimeMs,
		MostCommonIntent:      r.MostCommonIntent,
		ResolvedSessions:      r.ResolvedSessions,
		EscalatedSessions:     r.EscalatedSessions,
		SatisfactionScore:     r.SatisfactionScore,
		ComputedAt:            database.FromUnixMillis(r.ComputedAt),
	}
}
