package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatlog/internal/database"
	"chatlog/internal/eventstore"
	"chatlog/internal/frequency"
	"chatlog/internal/lookup"
	"chatlog/internal/models"
	"chatlog/internal/session"

	"github.com/rs/zerolog"
)

// Service is the write path. A submitted message is appended, folded into its
// session summary and recorded in the frequency index inside one transaction,
// so a failure anywhere leaves no partial state. Submissions for the same
// session are serialized; different sessions proceed concurrently.
type Service struct {
	client    *database.Client
	events    *eventstore.Service
	sessions  *session.Service
	queries   *frequency.Service
	customers *lookup.Service
	logger    zerolog.Logger
	locks     keyedMutex
}

// NewService creates the ingestion pipeline. customers may be nil when no
// commerce database is configured; enrichment is then skipped.
func NewService(client *database.Client, events *eventstore.Service, sessions *session.Service, queries *frequency.Service, customers *lookup.Service, logger zerolog.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("database client is required for ingestion")
	}
	if events == nil || sessions == nil || queries == nil {
		return nil, fmt.Errorf("event store, session and frequency services are required for ingestion")
	}
	return &Service{
		client:    client,
		events:    events,
		sessions:  sessions,
		queries:   queries,
		customers: customers,
		logger:    logger,
	}, nil
}

// Submit ingests one message and returns its assigned id.
func (s *Service) Submit(ctx context.Context, req *models.SubmitMessageRequest) (int64, error) {
	msg := &models.Message{
		SessionID:      req.SessionID,
		UserEmail:      req.UserEmail,
		Sender:         models.Sender(req.Sender),
		Text:           req.Text,
		Intent:         req.Intent,
		Confidence:     req.Confidence,
		CurrentPage:    req.CurrentPage,
		UserAgent:      req.UserAgent,
		ClientIP:       req.ClientIP,
		ResponseTimeMs: req.ResponseTimeMs,
		CreatedAt:      time.Now().UTC(),
	}
	if err := eventstore.Validate(msg); err != nil {
		return 0, err
	}

	unlock := s.locks.lock(msg.SessionID)
	defer unlock()

	tx, err := s.client.Begin(ctx)
	if err != nil {
		return 0, &models.StorageError{Op: "begin ingest", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.events.Append(ctx, tx, msg)
	if err != nil {
		return 0, err
	}
	if err := s.sessions.Apply(ctx, tx, msg); err != nil {
		return 0, err
	}
	if err := s.queries.Record(ctx, tx, msg.Text, msg.Intent, msg.Confidence, msg.CreatedAt); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, &models.StorageError{Op: "commit ingest", Err: err}
	}

	s.enrichCustomer(ctx, msg)
	return id, nil
}

// enrichCustomer attaches the commerce customer id to the session when the
// message carries an email. Best effort: a lookup failure is logged and the
// message stays ingested.
func (s *Service) enrichCustomer(ctx context.Context, msg *models.Message) {
	if s.customers == nil || msg.UserEmail == nil || *msg.UserEmail == "" {
		return
	}

	customerID, err := s.customers.CustomerIDByEmail(ctx, *msg.UserEmail)
	if err != nil {
		if !models.IsNotFound(err) {
			s.logger.Warn().Err(err).
				Str("session_id", msg.SessionID).
				Msg("Customer lookup failed")
		}
		return
	}

	if err := s.sessions.AttachCustomer(ctx, msg.SessionID, customerID); err != nil {
		s.logger.Warn().Err(err).
			Str("session_id", msg.SessionID).
			Int64("customer_id", customerID).
			Msg("Failed to attach customer to session")
	}
}

// keyedMutex hands out one mutex per live key. Entries are reference counted
// and dropped once the last holder releases, so the map does not grow with
// the number of sessions ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
