package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/fakemouse/go/internal/config"
	"github.com/mcdev12/fakemouse/go/internal/relay"
)

func newTestServer(t *testing.T) (*httptest.Server, *Services) {
	t.Helper()
	cfg := config.DefaultRelay()

	services, err := setupServices(context.Background(), cfg)
	if err != nil {
		t.Fatalf("setup services: %v", err)
	}
	srv := httptest.NewServer(setupServer(cfg, services).Handler)
	t.Cleanup(srv.Close)
	return srv, services
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var status relay.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !status.Healthy {
		t.Fatalf("unexpected health response %d %+v", resp.StatusCode, status)
	}
}

func TestSnapshotAllowsCrossOriginReads(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/data", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected permissive CORS header, got %q", got)
	}
}

func TestWebSocketUpgradeThroughMiddleware(t *testing.T) {
	srv, services := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	phone, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial phone: %v", err)
	}
	defer phone.Close()
	page, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial page: %v", err)
	}
	defer page.Close()

	deadline := time.Now().Add(2 * time.Second)
	for services.Relay.Registry().Stats().TotalConnections < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("peers never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	frame := `{"type":"scroll","x":0,"y":0.5,"click":0,"fingers":1}`
	if err := phone.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
	page.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := page.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != frame {
		t.Fatalf("unexpected frame %s", data)
	}
}
