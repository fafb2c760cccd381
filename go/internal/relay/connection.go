package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			// The relay is an open room; any page may join.
			return true
		},
	}
}

// Connection represents a WebSocket connection to a peer
type Connection struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	registry *Registry
	config   ConnectionConfig

	closed    chan struct{}
	closeOnce sync.Once
}

func newConnection(id string, ws *websocket.Conn, registry *Registry, config ConnectionConfig) *Connection {
	return &Connection{
		id:       id,
		conn:     ws,
		send:     make(chan []byte, config.SendBuffer),
		registry: registry,
		config:   config,
		closed:   make(chan struct{}),
	}
}

// ID returns the connection's unique id.
func (c *Connection) ID() string {
	return c.id
}

// Send queues a frame without blocking.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrPeerClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return ErrPeerClosed
	default:
		return ErrSendBufferFull
	}
}

// Close asks the write pump to send a close frame and release the socket.
// Safe to call repeatedly.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// run registers the connection and blocks until the peer goes away.
func (c *Connection) run() {
	c.registry.Register(c)
	go c.writePump()
	c.readPump()
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.registry.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.registry.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		// Validation and fan-out happen inline so frames from one peer keep
		// their arrival order.
		c.registry.Handle(c, message)
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}
