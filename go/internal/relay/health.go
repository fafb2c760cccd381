package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus describes the relay and its optional collaborators. Fields
// for collaborators that are not configured are omitted.
type HealthStatus struct {
	Healthy                bool     `json:"healthy"`
	Connections            int      `json:"connections"`
	HasLatest              bool     `json:"has_latest"`
	NATSConnected          *bool    `json:"nats_connected,omitempty"`
	SnapshotStoreReachable *bool    `json:"snapshot_store_reachable,omitempty"`
	Errors                 []string `json:"errors,omitempty"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// Check reports whether the relay can currently serve peers.
func (s *Service) Check(ctx context.Context) HealthStatus {
	stats := s.registry.Stats()
	status := HealthStatus{
		Healthy:     true,
		Connections: stats.TotalConnections,
		HasLatest:   stats.HasLatest,
	}

	if s.bridge != nil {
		connected := s.bridge.Connected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "cluster bridge disconnected")
		}
	}

	if s.snapshots != nil {
		ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		err := s.snapshots.Ping(ctx)
		reachable := err == nil
		status.SnapshotStoreReachable = &reachable
		if err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, err.Error())
		}
	}

	return status
}

// HealthHandler serves a HealthChecker as JSON, with 503 when unhealthy.
func HealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Debug().Err(err).Msg("failed to write health response")
		}
	}
}
