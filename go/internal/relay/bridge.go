package relay

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const instanceHeader = "Relay-Instance"

// BridgeConfig holds configuration for the NATS cluster bridge
type BridgeConfig struct {
	URL           string
	Subject       string
	InstanceID    string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Bridge shares accepted frames between relay instances over NATS so peers
// connected to different instances still see each other.
type Bridge struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	config BridgeConfig
}

// NewBridge connects to NATS. Call Subscribe to start receiving.
func NewBridge(config BridgeConfig) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name("fakemouse-relay-" + config.InstanceID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Bridge{nc: nc, config: config}, nil
}

// Publish forwards a locally accepted frame to the other instances.
func (b *Bridge) Publish(data []byte) error {
	msg := nats.NewMsg(b.config.Subject)
	msg.Header.Set(instanceHeader, b.config.InstanceID)
	msg.Data = data
	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", b.config.Subject, err)
	}
	return nil
}

// Subscribe relays frames published by other instances into registry.
func (b *Bridge) Subscribe(registry *Registry) error {
	sub, err := b.nc.Subscribe(b.config.Subject, func(msg *nats.Msg) {
		if msg.Header.Get(instanceHeader) == b.config.InstanceID {
			return
		}
		registry.HandleRemote(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.config.Subject, err)
	}
	b.sub = sub

	log.Info().
		Str("subject", b.config.Subject).
		Str("instance", b.config.InstanceID).
		Msg("cluster bridge subscribed")
	return nil
}

// Connected reports whether the NATS connection is up.
func (b *Bridge) Connected() bool {
	return b.nc.IsConnected()
}

// Close drains the subscription and closes the NATS connection.
func (b *Bridge) Close() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("failed to unsubscribe cluster bridge")
		}
	}
	b.nc.Close()
	return nil
}
