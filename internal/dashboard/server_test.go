package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/habitloop/habitloop/internal/events"
	"github.com/habitloop/habitloop/internal/habits"
	"github.com/habitloop/habitloop/internal/store"
)

func testServer(t *testing.T) (*Server, *events.Bus) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	logger := log.New(io.Discard, "", 0)
	bus := events.NewBus()
	projection := habits.NewProjection(s, bus, logger, "user-1", 8)

	server := NewServer(0, bus, projection, logger)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server, bus
}

func TestServerStartStop(t *testing.T) {
	server, _ := testServer(t)

	if addr := server.Addr(); addr == "" {
		t.Fatal("Server address is empty")
	}

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := testServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	var summary habits.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("status did not decode: %v", err)
	}
}

func TestWebSocketRelay(t *testing.T) {
	server, bus := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.Addr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Opening frame is the current summary.
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read opening frame: %v", err)
	}
	var opening map[string]any
	if err := json.Unmarshal(data, &opening); err != nil {
		t.Fatalf("opening frame did not decode: %v", err)
	}
	if opening["kind"] != "summary" {
		t.Errorf("opening frame kind = %v, want summary", opening["kind"])
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	// Bus events reach the client.
	bus.Publish(events.HabitCreated, map[string]any{"habit_id": "h1"})

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read relayed event: %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("relayed event did not decode: %v", err)
	}
	if ev.Kind != events.HabitCreated {
		t.Errorf("relayed kind = %s, want %s", ev.Kind, events.HabitCreated)
	}
}
