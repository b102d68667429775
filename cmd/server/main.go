package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatlog/internal/analytics"
	"chatlog/internal/config"
	"chatlog/internal/database"
	"chatlog/internal/eventstore"
	"chatlog/internal/frequency"
	"chatlog/internal/ingest"
	"chatlog/internal/lookup"
	"chatlog/internal/retention"
	"chatlog/internal/server"
	"chatlog/internal/session"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	logger.Info().Str("driver", database.DetectDriver(cfg.DatabaseURL)).
		Msg("Database connection established")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.CreateTables(ctx, db); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("Failed to create database tables")
	}
	cancel()

	services, customers := buildServices(cfg, db, logger)

	// Schedule the retention run
	var scheduler *retention.Scheduler
	if cfg.EnableRetention {
		scheduler, err = retention.NewScheduler(services.Retention, cfg.RetentionSchedule,
			time.Duration(cfg.MessageRetentionDays)*24*time.Hour,
			time.Duration(cfg.AnalyticsRetentionDays)*24*time.Hour,
			logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create retention scheduler")
		}
		scheduler.Start()
	} else {
		logger.Info().Msg("Retention scheduler disabled")
	}

	// Create and initialize server
	srv := server.New(cfg, db, services, logger)
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	if customers != nil {
		_ = customers.Close()
	}
	_ = db.Close()
}

// buildServices wires the engine services over one database client.
func buildServices(cfg *config.Config, db *sqlx.DB, logger zerolog.Logger) (server.Services, *lookup.Service) {
	client := database.NewClient(db)

	events, err := eventstore.NewService(client)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create event store")
	}
	sessions, err := session.NewService(client)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create session aggregator")
	}
	queries, err := frequency.NewService(client, cfg.MaxQueryLength)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create frequency index")
	}
	roller, err := analytics.NewService(client, events, sessions, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create analytics roller")
	}
	manager, err := retention.NewService(client, events, sessions, roller, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create retention manager")
	}

	// Customer lookup is optional; without a commerce database sessions are
	// simply not enriched.
	var customers *lookup.Service
	if cfg.CommerceDatabaseURL != "" {
		customers, err = lookup.NewService(cfg.CommerceDatabaseURL, cfg.CommerceTablePrefix)
		if err != nil {
			logger.Warn().Err(err).Msg("Commerce database unavailable, customer enrichment disabled")
			customers = nil
		}
	}

	pipeline, err := ingest.NewService(client, events, sessions, queries, customers, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create ingestion pipeline")
	}

	return server.Services{
		Ingest:    pipeline,
		Events:    events,
		Sessions:  sessions,
		Queries:   queries,
		Analytics: roller,
		Retention: manager,
	}, customers
}
