package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/mcdev12/fakemouse/go/internal/config"
	"github.com/mcdev12/fakemouse/go/internal/discovery"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Service is the relay: it accepts peer connections, validates their frames
// and broadcasts them to every other peer.
type Service struct {
	instanceID string
	config     config.Relay

	registry  *Registry
	wsHandler *WebSocketHandler
	bridge    *Bridge
	snapshots *RedisSnapshotStore
	advert    *discovery.Advertisement
}

// NewService creates the relay and connects its optional collaborators.
func NewService(ctx context.Context, cfg config.Relay) (*Service, error) {
	s := &Service{
		instanceID: uuid.New().String()[:8],
		config:     cfg,
	}

	var opts []RegistryOption

	if cfg.Redis.Addr != "" {
		store, err := NewRedisSnapshotStore(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Key, cfg.Redis.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot store: %w", err)
		}
		s.snapshots = store
		opts = append(opts, WithSnapshotStore(store))
	}

	if cfg.NATS.URL != "" {
		bridge, err := NewBridge(BridgeConfig{
			URL:           cfg.NATS.URL,
			Subject:       cfg.NATS.Subject,
			InstanceID:    s.instanceID,
			MaxReconnects: -1,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if err != nil {
			s.closeStores()
			return nil, fmt.Errorf("failed to create cluster bridge: %w", err)
		}
		s.bridge = bridge
		opts = append(opts, WithPublisher(bridge))
	}

	s.registry = NewRegistry(opts...)
	s.wsHandler = NewWebSocketHandler(s.registry, connectionConfig(cfg))
	return s, nil
}

func connectionConfig(cfg config.Relay) ConnectionConfig {
	cc := DefaultConnectionConfig()
	cc.WriteTimeout = cfg.Connection.WriteTimeout
	cc.ReadTimeout = cfg.Connection.ReadTimeout
	cc.PingInterval = cfg.Connection.PingInterval
	cc.MaxMessageSize = cfg.Connection.MaxMessageSize
	cc.SendBuffer = cfg.Connection.SendBuffer
	return cc
}

// Start runs the relay's background work until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Str("instance", s.instanceID).Msg("starting relay service")

	go s.registry.Start(ctx)

	if s.bridge != nil {
		if err := s.bridge.Subscribe(s.registry); err != nil {
			return err
		}
	}

	if s.config.Discovery.Enabled {
		port, err := listenPort(s.config.Addr)
		if err != nil {
			return err
		}
		advert, err := discovery.Advertise(s.config.Discovery.Instance, s.config.Discovery.Service, port, "/ws")
		if err != nil {
			// Discovery is a convenience; peers can still use a configured URL.
			log.Warn().Err(err).Msg("mDNS advertisement unavailable")
		} else {
			s.advert = advert
		}
	}

	<-ctx.Done()

	log.Info().Msg("relay service shutting down")
	return s.Stop()
}

// Stop releases the optional collaborators.
func (s *Service) Stop() error {
	s.advert.Shutdown()
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close cluster bridge")
		}
	}
	s.closeStores()
	log.Info().Msg("relay service stopped")
	return nil
}

func (s *Service) closeStores() {
	if s.snapshots != nil {
		if err := s.snapshots.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close snapshot store")
		}
	}
}

// RegisterRoutes registers the WebSocket and snapshot HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("relay routes registered")
}

// Registry exposes the connection registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("parse listen port %q: %w", portStr, err)
	}
	return port, nil
}
