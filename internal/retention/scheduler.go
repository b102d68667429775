package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs retention on a cron schedule. The schedule expression is
// configuration; the purge semantics stay in Service.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewScheduler wires a retention run into an in-process cron. schedule is a
// standard 5-field cron expression.
func NewScheduler(svc *Service, schedule string, messageHorizon, analyticsHorizon time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		report := svc.Purge(ctx, messageHorizon, analyticsHorizon)
		event := logger.Info()
		if report.MessagePurgeErr != "" || report.BucketPurgeErr != "" {
			event = logger.Error().
				Str("message_purge_error", report.MessagePurgeErr).
				Str("bucket_purge_error", report.BucketPurgeErr)
		}
		event.
			Str("run_id", report.RunID).
			Int64("messages_deleted", report.MessagesDeleted).
			Int64("summaries_deleted", report.SummariesDeleted).
			Int64("buckets_deleted", report.BucketsDeleted).
			Msg("Scheduled retention run completed")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	return &Scheduler{cron: c, logger: logger}, nil
}

// Start begins running the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Retention scheduler started")
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Retention scheduler stopped")
}
