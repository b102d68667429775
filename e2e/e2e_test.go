// Package e2e exercises the full HTTP surface against a real server wired to
// an in-memory store: routing, middleware, auth, and the ingestion-to-
// analytics flow, the way a deployed instance handles it.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatlog/internal/analytics"
	"chatlog/internal/config"
	"chatlog/internal/database"
	"chatlog/internal/eventstore"
	"chatlog/internal/frequency"
	"chatlog/internal/ingest"
	"chatlog/internal/models"
	"chatlog/internal/retention"
	"chatlog/internal/server"
	"chatlog/internal/session"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer boots the full application against an in-memory database and
// returns its base URL.
func startServer(t *testing.T) string {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.CreateTables(context.Background(), db))

	client := database.NewClient(db)
	events, err := eventstore.NewService(client)
	require.NoError(t, err)
	sessions, err := session.NewService(client)
	require.NoError(t, err)
	queries, err := frequency.NewService(client, 0)
	require.NoError(t, err)
	roller, err := analytics.NewService(client, events, sessions, zerolog.Nop())
	require.NoError(t, err)
	manager, err := retention.NewService(client, events, sessions, roller, zerolog.Nop())
	require.NoError(t, err)
	pipeline, err := ingest.NewService(client, events, sessions, queries, nil, zerolog.Nop())
	require.NoError(t, err)

	cfg := &config.Config{
		Port:                   "0",
		Version:                "e2e",
		AdminUsername:          "admin",
		AdminPassword:          "secret",
		MessageRetentionDays:   180,
		AnalyticsRetentionDays: 365,
	}

	srv := server.New(cfg, db, server.Services{
		Ingest:    pipeline,
		Events:    events,
		Sessions:  sessions,
		Queries:   queries,
		Analytics: roller,
		Retention: manager,
	}, zerolog.Nop())
	srv.Initialize()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func postJSON(t *testing.T, url, body, token string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, req)
}

func get(t *testing.T, url, token string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func login(t *testing.T, baseURL string) string {
	t.Helper()

	resp, body := postJSON(t, baseURL+"/api/admin/login",
		`{"username":"admin","password":"secret"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var auth models.AdminAuthResponse
	require.NoError(t, json.Unmarshal(body, &auth))
	require.True(t, auth.Success)
	return auth.Token
}

func TestHealthEndpoints(t *testing.T) {
	baseURL := startServer(t)

	resp, body := get(t, baseURL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	resp, body = get(t, baseURL+"/healthz/db", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var db models.DBHealthResponse
	require.NoError(t, json.Unmarshal(body, &db))
	assert.True(t, db.Connected)

	resp, body = get(t, baseURL+"/api/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Chatlog API")
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	baseURL := startServer(t)

	for _, url := range []string{
		baseURL + "/api/admin/sessions",
		baseURL + "/api/admin/queries/top",
	} {
		resp, _ := get(t, url, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, url)

		resp, _ = get(t, url, "bogus-token")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, url)
	}

	resp, _ := postJSON(t, baseURL+"/api/admin/retention/run", `{}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConversationFlow(t *testing.T) {
	baseURL := startServer(t)
	token := login(t, baseURL)

	// A short customer conversation arrives through the public endpoint.
	messages := []string{
		`{"session_id":"conv-1","sender":"user","user_email":"buyer@example.com","text":"Where is my order?","intent":"order_status","confidence":0.93}`,
		`{"session_id":"conv-1","sender":"bot","text":"Your order shipped yesterday.","response_time_ms":120}`,
		`{"session_id":"conv-1","sender":"user","text":"where is my order","intent":"order_status","confidence":0.89}`,
	}
	for _, msg := range messages {
		resp, body := postJSON(t, baseURL+"/api/messages", msg, "")
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	// The session summary reflects the whole conversation.
	resp, body := get(t, baseURL+"/api/admin/sessions/conv-1", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail models.SessionDetailResponse
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, int64(3), detail.Session.TotalMessages)
	assert.Equal(t, int64(2), detail.Session.TotalUserMessages)
	assert.Equal(t, "order_status", *detail.Session.PrimaryIntent)
	assert.Len(t, detail.Messages, 3)

	// Both user phrasings collapsed into one frequency entry.
	resp, body = get(t, baseURL+"/api/admin/queries/top", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var top models.TopQueriesResponse
	require.NoError(t, json.Unmarshal(body, &top))
	found := false
	for _, entry := range top.Queries {
		if entry.Normalized == "where is my order" {
			found = true
			assert.Equal(t, int64(2), entry.Count)
		}
	}
	assert.True(t, found, "expected deduplicated entry for the repeated question")

	// The admin closes the session out.
	resp, _ = postJSON(t, baseURL+"/api/admin/sessions/conv-1/outcome",
		`{"satisfaction":"positive","resolution_status":"resolved"}`, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Today's analytics pick the conversation up. Two hours cover the case
	// where the conversation straddled an hour boundary mid-test.
	resp, body = get(t, baseURL+"/api/analytics/recent?hours=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buckets models.BucketListResponse
	require.NoError(t, json.Unmarshal(body, &buckets))
	require.Len(t, buckets.Buckets, 2)
	var totalMessages int64
	for _, b := range buckets.Buckets {
		totalMessages += b.TotalMessages
	}
	assert.Equal(t, int64(3), totalMessages)
}

func TestRetentionRunEndpoint(t *testing.T) {
	baseURL := startServer(t)
	token := login(t, baseURL)

	resp, body := postJSON(t, baseURL+"/api/messages",
		`{"session_id":"fresh","sender":"user","text":"hello"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = postJSON(t, baseURL+"/api/admin/retention/run", `{}`, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report models.PurgeReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.MessagePurgeErr)
	assert.Empty(t, report.BucketPurgeErr)
	// Nothing is old enough to purge.
	assert.Equal(t, int64(0), report.MessagesDeleted)

	// The fresh message survived the run.
	resp, _ = get(t, baseURL+"/api/admin/sessions/fresh", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownSenderRejectedAtTheEdge(t *testing.T) {
	baseURL := startServer(t)

	resp, body := postJSON(t, baseURL+"/api/messages",
		`{"session_id":"s1","sender":"martian","text":"hi"}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "sender")

	// Nothing was recorded for the rejected message.
	token := login(t, baseURL)
	resp, body = get(t, baseURL+"/api/admin/sessions", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list models.SessionListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 0, list.Total)
}

func TestTokenFromQueryParameter(t *testing.T) {
	baseURL := startServer(t)
	token := login(t, baseURL)

	resp, _ := get(t, fmt.Sprintf("%s/api/admin/sessions?token=%s", baseURL, token), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
