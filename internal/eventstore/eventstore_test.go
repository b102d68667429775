package eventstore

import (
	"context"
	"testing"
	"time"

	"chatlog/internal/database"
	"chatlog/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *database.Client {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.CreateTables(context.Background(), db))
	return database.NewClient(db)
}

func appendMessage(t *testing.T, client *database.Client, svc *Service, msg *models.Message) int64 {
	t.Helper()

	tx, err := client.Begin(context.Background())
	require.NoError(t, err)

	id, err := svc.Append(context.Background(), tx, msg)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func int64Ptr(i int64) *int64 { return &i }

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		msg   models.Message
		field string
	}{
		{
			name:  "empty session id",
			msg:   models.Message{Sender: models.SenderUser, Text: "hi"},
			field: "session_id",
		},
		{
			name:  "unknown sender",
			msg:   models.Message{SessionID: "s1", Sender: "robot", Text: "hi"},
			field: "sender",
		},
		{
			name:  "confidence above one",
			msg:   models.Message{SessionID: "s1", Sender: models.SenderUser, Confidence: floatPtr(1.2)},
			field: "confidence",
		},
		{
			name:  "negative confidence",
			msg:   models.Message{SessionID: "s1", Sender: models.SenderUser, Confidence: floatPtr(-0.1)},
			field: "confidence",
		},
		{
			name:  "negative response time",
			msg:   models.Message{SessionID: "s1", Sender: models.SenderBot, ResponseTimeMs: int64Ptr(-5)},
			field: "response_time_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.msg)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("valid message", func(t *testing.T) {
		msg := models.Message{
			SessionID:  "s1",
			Sender:     models.SenderUser,
			Text:       "hello",
			Confidence: floatPtr(0.5),
		}
		assert.NoError(t, Validate(&msg))
	})

	t.Run("boundary confidence values accepted", func(t *testing.T) {
		for _, c := range []float64{0, 1} {
			msg := models.Message{SessionID: "s1", Sender: models.SenderUser, Confidence: floatPtr(c)}
			assert.NoError(t, Validate(&msg))
		}
	})
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client)
	require.NoError(t, err)

	first := appendMessage(t, client, svc, &models.Message{
		SessionID: "s1", Sender: models.SenderUser, Text: "one",
	})
	second := appendMessage(t, client, svc, &models.Message{
		SessionID: "s1", Sender: models.SenderBot, Text: "two",
	})

	assert.Greater(t, second, first)
}

func TestAppendRejectsInvalid(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client)
	require.NoError(t, err)

	tx, err := client.Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = svc.Append(context.Background(), tx, &models.Message{Sender: models.SenderUser})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestQueryOrderingAndFilters(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client)
	require.NoError(t, err)

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	appendMessage(t, client, svc, &models.Message{
		SessionID: "s1", Sender: models.SenderUser, Text: "first", CreatedAt: base,
	})
	appendMessage(t, client, svc, &models.Message{
		SessionID: "s1", Sender: models.SenderBot, Text: "second", CreatedAt: base.Add(time.Minute),
	})
	appendMessage(t, client, svc, &models.Message{
		SessionID: "s2", Sender: models.SenderUser, Text: "other session", CreatedAt: base.Add(2 * time.Minute),
	})

	t.Run("session filter preserves order", func(t *testing.T) {
		got, err := svc.Query(context.Background(), Filter{SessionID: "s1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "first", got[0].Text)
		assert.Equal(t, "second", got[1].Text)
	})

	t.Run("sender filter", func(t *testing.T) {
		got, err := svc.Query(context.Background(), Filter{Sender: models.SenderBot})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "second", got[0].Text)
	})

	t.Run("time window is half open", func(t *testing.T) {
		got, err := svc.Query(context.Background(), Filter{
			From: base,
			To:   base.Add(time.Minute),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "first", got[0].Text)
	})

	t.Run("limit and offset", func(t *testing.T) {
		got, err := svc.Query(context.Background(), Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "second", got[0].Text)
	})

	t.Run("no match returns empty", func(t *testing.T) {
		got, err := svc.Query(context.Background(), Filter{SessionID: "missing"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestQueryEqualTimestampsStableByID(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client)
	require.NoError(t, err)

	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for _, text := range []string{"a", "b", "c"} {
		appendMessage(t, client, svc, &models.Message{
			SessionID: "s1", Sender: models.SenderUser, Text: text, CreatedAt: at,
		})
	}

	got, err := svc.Query(context.Background(), Filter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "b", got[1].Text)
	assert.Equal(t, "c", got[2].Text)
}

func TestAppendRoundTripsFields(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client)
	require.NoError(t, err)

	at := time.Date(2026, 8, 20, 12, 30, 45, 0, time.UTC)
	msg := &models.Message{
		SessionID:      "s1",
		UserEmail:      strPtr("customer@example.com"),
		Sender:         models.SenderBot,
		Text:           "Your order shipped",
		Intent:         strPtr("order_status"),
		Confidence:     floatPtr(0.92),
		CurrentPage:    strPtr("/orders"),
		ResponseTimeMs: int64Ptr(150),
		CreatedAt:      at,
	}
	id := appendMessage(t, client, svc, msg)

	got, err := svc.Query(context.Background(), Filter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "customer@example.com", *got[0].UserEmail)
	assert.Equal(t, models.SenderBot, got[0].Sender)
	assert.Equal(t, "order_status", *got[0].Intent)
	assert.InDelta(t, 0.92, *got[0].Confidence, 1e-9)
	assert.Equal(t, int64(150), *got[0].ResponseTimeMs)
	assert.True(t, got[0].CreatedAt.Equal(at))
}

func TestCountBySession(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		appendMessage(t, client, svc, &models.Message{
			SessionID: "s1", Sender: models.SenderUser, Text: "m",
		})
	}

	count, err := svc.CountBySession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = svc.CountBySession(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDeleteBefore(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client)
	require.NoError(t, err)

	now := time.Now().UTC()
	appendMessage(t, client, svc, &models.Message{
		SessionID: "old", Sender: models.SenderUser, Text: "ancient", CreatedAt: now.Add(-200 * 24 * time.Hour),
	})
	appendMessage(t, client, svc, &models.Message{
		SessionID: "fresh", Sender: models.SenderUser, Text: "recent", CreatedAt: now,
	})

	tx, err := client.Begin(context.Background())
	require.NoError(t, err)
	deleted, err := svc.DeleteBefore(context.Background(), tx, now.Add(-180*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(1), deleted)

	remaining, err := svc.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "recent", remaining[0].Text)
}
