package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/habitloop/habitloop/internal/schema"
)

func liveHabit() *schema.HabitRecord {
	now := time.Now().UTC()
	return &schema.HabitRecord{
		ID:        "habit-1",
		UserID:    "user-1",
		Name:      "Walk",
		Schedule:  schema.ScheduleRule{Kind: schema.ScheduleWeekly, TaskDays: []int{0}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestHTTPClient_UpsertHabit(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody schema.HabitRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1", time.Second)
	require.NoError(t, c.UpsertHabit(context.Background(), liveHabit()))
	require.Equal(t, "PUT /v1/habits/habit-1", gotPath)
	require.Equal(t, "Bearer token-1", gotAuth)
	require.Equal(t, "Walk", gotBody.Name)
}

func TestHTTPClient_FetchCompletions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "user-1", r.URL.Query().Get("user_id"))
		require.Equal(t, "2026-06-03", r.URL.Query().Get("since"))
		_ = json.NewEncoder(w).Encode([]*schema.CompletionRecord{
			{ID: "c1", HabitID: "habit-1", UserID: "user-1", Date: "2026-09-01", Value: 1, CreatedAt: time.Now().UTC()},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	since := time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)
	got, err := c.FetchCompletions(context.Background(), "user-1", since)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "c1", got[0].ID)
}

// TestHTTPClient_ErrorClassification maps status codes onto the
// transient/permanent split the outbox relies on.
func TestHTTPClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusUnprocessableEntity, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		c := NewHTTPClient(srv.URL, "", time.Second)
		err := c.Ping(context.Background())
		require.Error(t, err, "status %d", tt.status)
		require.Equal(t, tt.permanent, IsPermanent(err), "status %d", tt.status)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		require.Equal(t, "ping", ce.Op)

		srv.Close()
	}
}

func TestHTTPClient_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewHTTPClient(srv.URL, "", time.Second)
	err := c.Ping(context.Background())
	require.Error(t, err)
	require.False(t, IsPermanent(err))
}

func TestHTTPClient_InvalidRecordRejectedLocally(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	bad := liveHabit()
	bad.Name = ""
	err := c.UpsertHabit(context.Background(), bad)
	require.True(t, IsPermanent(err))
	require.Zero(t, calls, "invalid record must not hit the wire")
}

func TestIsPermanent_PlainError(t *testing.T) {
	require.False(t, IsPermanent(errors.New("plain")))
	require.False(t, IsPermanent(nil))
}
