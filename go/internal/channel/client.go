// Package channel is the persistent relay connection used by the sender and
// the actuator. It reconnects on a fixed interval for as long as it runs.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fakemouse/go/internal/clock"
	"github.com/mcdev12/fakemouse/go/internal/discovery"
	"github.com/mcdev12/fakemouse/go/internal/protocol"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by Send while the channel is down.
var ErrNotConnected = errors.New("channel is not connected")

const (
	DefaultReconnectInterval = 3 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultResolveTimeout    = 5 * time.Second
)

// Handler receives every inbound frame, one at a time, in arrival order.
type Handler func(ctx context.Context, raw []byte)

// Config configures a Client.
type Config struct {
	// URL of the relay websocket. When empty the relay is located with mDNS.
	URL               string
	DiscoveryService  string
	ReconnectInterval time.Duration
	WriteTimeout      time.Duration
	Clock             clock.Clock
	Dialer            *websocket.Dialer
	// OnConnect runs after every successful dial, before the first inbound
	// frame of that connection reaches the handler.
	OnConnect func()
}

// Client holds one relay connection at a time.
type Client struct {
	cfg     Config
	handler Handler

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client. handler may be nil for send-only peers.
func NewClient(cfg Config, handler Handler) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if handler == nil {
		handler = func(context.Context, []byte) {}
	}
	return &Client{cfg: cfg, handler: handler}
}

// Run connects and serves the channel until ctx is cancelled, retrying after
// ReconnectInterval whenever the connection cannot be made or is lost.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.connectAndServe(ctx); err != nil && ctx.Err() == nil {
			log.Warn().
				Err(err).
				Dur("retry_in", c.cfg.ReconnectInterval).
				Msg("relay channel down")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.cfg.Clock.After(c.cfg.ReconnectInterval):
		}
	}
}

// Connected reports whether a relay connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send encodes and writes a message on the current connection.
func (c *Client) Send(m *protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw writes one frame on the current connection.
func (c *Client) SendRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) connectAndServe(ctx context.Context) error {
	url, err := c.resolve(ctx)
	if err != nil {
		return err
	}

	conn, _, err := c.cfg.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Info().Str("url", url).Msg("connected to relay")
	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("relay closed the connection")
			}
			return fmt.Errorf("read frame: %w", err)
		}
		c.handler(ctx, data)
	}
}

func (c *Client) resolve(ctx context.Context) (string, error) {
	if c.cfg.URL != "" {
		return c.cfg.URL, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultResolveTimeout)
	defer cancel()
	url, err := discovery.Resolve(ctx, c.cfg.DiscoveryService)
	if err != nil {
		return "", fmt.Errorf("locate relay: %w", err)
	}
	return url, nil
}
