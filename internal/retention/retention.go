package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatlog/internal/analytics"
	"chatlog/internal/database"
	"chatlog/internal/eventstore"
	"chatlog/internal/models"
	"chatlog/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service enforces the bounded-retention policy: messages past the message
// horizon, buckets past the analytics horizon, and summaries left without
// any messages. Runs are serialized and wait out in-flight rollups.
type Service struct {
	client    *database.Client
	events    *eventstore.Service
	sessions  *session.Service
	analytics *analytics.Service
	logger    zerolog.Logger
	mu        sync.Mutex
}

// NewService creates a retention manager.
func NewService(client *database.Client, events *eventstore.Service, sessions *session.Service, roller *analytics.Service, logger zerolog.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("database client is required for retention service")
	}
	if events == nil || sessions == nil || roller == nil {
		return nil, fmt.Errorf("event store, session and analytics services are required for retention service")
	}
	return &Service{
		client:    client,
		events:    events,
		sessions:  sessions,
		analytics: roller,
		logger:    logger,
	}, nil
}

// Purge removes data past the horizons and reports what happened per
// category. A failure purging one category is recorded in the report and
// does not block the others. Deletes are by predicate, so a retried run
// after a partial failure is harmless.
func (s *Service) Purge(ctx context.Context, messageHorizon, analyticsHorizon time.Duration) *models.PurgeReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Wait for in-flight rollups so no window is purged out from under a
	// reader, and hold off new rollups for the duration of the run.
	release := s.analytics.Quiesce()
	defer release()

	now := time.Now().UTC()
	report := &models.PurgeReport{
		RunID:           uuid.NewString(),
		StartedAt:       now,
		MessageCutoff:   now.Add(-messageHorizon),
		AnalyticsCutoff: now.Add(-analyticsHorizon),
	}

	s.logger.Info().
		Str("run_id", report.RunID).
		Time("message_cutoff", report.MessageCutoff).
		Time("analytics_cutoff", report.AnalyticsCutoff).
		Msg("Retention run starting")

	s.purgeMessages(ctx, report)
	s.purgeBuckets(ctx, report)

	report.FinishedAt = time.Now().UTC()
	s.logger.Info().
		Str("run_id", report.RunID).
		Int64("messages_deleted", report.MessagesDeleted).
		Int64("summaries_deleted", report.SummariesDeleted).
		Int64("buckets_deleted", report.BucketsDeleted).
		Msg("Retention run finished")

	return report
}

// purgeMessages deletes expired messages and then orphaned summaries in one
// transaction. Running them together is what guarantees a summary is only
// removed once its session truly has zero remaining messages.
func (s *Service) purgeMessages(ctx context.Context, report *models.PurgeReport) {
	tx, err := s.client.Begin(ctx)
	if err != nil {
		report.MessagePurgeErr = err.Error()
		return
	}
	defer func() { _ = tx.Rollback() }()

	messagesDeleted, err := s.events.DeleteBefore(ctx, tx, report.MessageCutoff)
	if err != nil {
		report.MessagePurgeErr = err.Error()
		return
	}

	summariesDeleted, err := s.sessions.DeleteOrphans(ctx, tx)
	if err != nil {
		report.MessagePurgeErr = err.Error()
		return
	}

	if err := tx.Commit(); err != nil {
		report.MessagePurgeErr = err.Error()
		return
	}

	report.MessagesDeleted = messagesDeleted
	report.SummariesDeleted = summariesDeleted
}

func (s *Service) purgeBuckets(ctx context.Context, report *models.PurgeReport) {
	deleted, err := s.analytics.DeleteBucketsBefore(ctx, report.AnalyticsCutoff)
	if err != nil {
		report.BucketPurgeErr = err.Error()
		return
	}
	report.BucketsDeleted = deleted
}
