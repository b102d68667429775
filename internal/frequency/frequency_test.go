package frequency

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

func record(t *testing.T, client *database.Client, svc *Service, text string, intent *string, confidence *float64, at time.Time) {
	t.Helper()

	tx, err := client.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Record(context.Background(), tx, text, intent, confidence, at))
	require.NoError(t, tx.Commit())
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestRecordDeduplicatesVariants(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client, 0)
	require.NoError(t, err)

	now := time.Now().UTC()
	record(t, client, svc, "Where is my order?", nil, nil, now)
	record(t, client, svc, "where is my order", nil, nil, now.Add(time.Minute))

	entries, err := svc.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].Count)
	assert.Equal(t, "where is my order", entries[0].Normalized)
	// The raw example keeps the first raw form seen.
	assert.Equal(t, "Where is my order?", entries[0].RawExample)
}

func TestRecordSkipsEmptyText(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client, 0)
	require.NoError(t, err)

	record(t, client, svc, "", nil, nil, time.Now())
	record(t, client, svc, "   ", nil, nil, time.Now())
	record(t, client, svc, "?!...", nil, nil, time.Now())

	entries, err := svc.Top(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordAveragesConfidence(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client, 0)
	require.NoError(t, err)

	now := time.Now().UTC()
	record(t, client, svc, "shipping cost", nil, floatPtr(0.8), now)
	record(t, client, svc, "shipping cost", nil, nil, now)
	record(t, client, svc, "shipping cost", nil, floatPtr(0.6), now)

	entries, err := svc.Top(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].Count)
	require.NotNil(t, entries[0].AvgConfidence)
	// The nil confidence does not drag the mean.
	assert.InDelta(t, 0.7, *entries[0].AvgConfidence, 1e-9)
}

func TestRecordIntentTieBreaksMostRecent(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client, 0)
	require.NoError(t, err)

	now := time.Now().UTC()
	record(t, client, svc, "track package", strPtr("shipping"), nil, now)
	record(t, client, svc, "track package", strPtr("order_status"), nil, now.Add(time.Minute))

	entries, err := svc.Top(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Intent)
	assert.Equal(t, "order_status", *entries[0].Intent)
}

func TestTopOrdering(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client, 0)
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		record(t, client, svc, "popular question", nil, nil, now.Add(time.Duration(i)*time.Minute))
	}
	record(t, client, svc, "rare question", nil, nil, now)

	entries, err := svc.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "popular question", entries[0].Normalized)
	assert.Equal(t, int64(3), entries[0].Count)
	assert.Equal(t, "rare question", entries[1].Normalized)

	limited, err := svc.Top(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTotalCountMatchesRecordedMessages(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client, 0)
	require.NoError(t, err)

	now := time.Now().UTC()
	texts := []string{"a?", "A", "b", "b!", "c", "", "   "}
	recorded := 0
	for _, text := range texts {
		record(t, client, svc, text, nil, nil, now)
		if text != "" && text != "   " {
			recorded++
		}
	}

	total, err := svc.TotalCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(recorded), total)
}

func TestSetSuggestedResponse(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client, 0)
	require.NoError(t, err)

	record(t, client, svc, "return policy", nil, nil, time.Now())

	require.NoError(t, svc.SetSuggestedResponse(context.Background(), "return policy", "See /returns"))

	entries, err := svc.Top(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, entries[0].SuggestedResponse)
	assert.Equal(t, "See /returns", *entries[0].SuggestedResponse)

	err = svc.SetSuggestedResponse(context.Background(), "missing entry", "n/a")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
}

func TestReset(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client, 0)
	require.NoError(t, err)

	record(t, client, svc, "something", nil, nil, time.Now())
	require.NoError(t, svc.Reset(context.Background()))

	total, err := svc.TotalCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestLongTextTruncatedToLimit(t *testing.T) {
	client := openTestDB(t)
	svc, err := NewService(client, 16)
	require.NoError(t, err)

	long := "this is a very long customer question about shipping"
	record(t, client, svc, long, nil, nil, time.Now())
	record(t, client, svc, long+" with extra words", nil, nil, time.Now())

	entries, err := svc.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.LessOrEqual(t, len(entries[0].Normalized), 16)
	assert.Equal(t, int64(2), entries[0].Count)
}
