package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/fakemouse/go/internal/config"
)

type staticChecker HealthStatus

func (c staticChecker) Check(context.Context) HealthStatus { return HealthStatus(c) }

func TestHealthHandlerStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status HealthStatus
		code   int
	}{
		{"healthy", HealthStatus{Healthy: true, Connections: 2}, http.StatusOK},
		{"unhealthy", HealthStatus{Errors: []string{"cluster bridge disconnected"}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HealthHandler(staticChecker(tt.status))(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			var got HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Healthy != tt.status.Healthy || got.Connections != tt.status.Connections {
				t.Fatalf("unexpected body %+v", got)
			}
		})
	}
}

func TestServiceCheckWithoutCollaborators(t *testing.T) {
	svc, err := NewService(context.Background(), config.DefaultRelay())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.Registry().Register(newFakePeer("p"))

	status := svc.Check(context.Background())
	if !status.Healthy || status.Connections != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.NATSConnected != nil || status.SnapshotStoreReachable != nil {
		t.Fatalf("unconfigured collaborators should be omitted, got %+v", status)
	}
}
