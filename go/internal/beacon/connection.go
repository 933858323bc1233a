package beacon

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fppsync/go/internal/synclog"
)

var (
	// ErrSessionClosed is returned when sending to a session that has been torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull is returned when a slow client cannot keep up.
	ErrSendBufferFull = errors.New("session send buffer full")
)

// SessionState is the lifecycle stage of a client connection.
type SessionState int32

const (
	SessionConnected SessionState = iota
	SessionActive
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnected:
		return "connected"
	case SessionActive:
		return "active"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReportRecorder receives client telemetry reports.
type ReportRecorder interface {
	Record(clientLabel string, report synclog.Report)
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     30 * time.Second,
		PingInterval:    20 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			// Listener pages are served from the show controller's web server on another port
			return true
		},
	}
}

// Connection represents a WebSocket connection to a listener client
type Connection struct {
	id      string
	label   string
	conn    *websocket.Conn
	send    chan []byte
	manager *ConnectionManager
	reports ReportRecorder
	clock   clockwork.Clock
	config  ConnectionConfig
	metrics MetricsCollector

	state atomic.Int32

	mu     sync.Mutex
	closed bool
}

func (c *Connection) ID() string    { return c.id }
func (c *Connection) Label() string { return c.label }

// State returns the current lifecycle stage.
func (c *Connection) State() SessionState {
	return SessionState(c.state.Load())
}

// Send queues msg for the write pump.
func (c *Connection) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which in turn closes the socket.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.state.Store(int32(SessionClosed))
	close(c.send)
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.manager.Unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
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
		c.manager.Unregister(c)
		c.conn.Close()
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		if err := c.handleClientMessage(message); err != nil {
			log.Debug().
				Err(err).
				Str("connection_id", c.id).
				Msg("failed to reply to client")
			return
		}
	}
}

// handleClientMessage processes one message received from the client. Only a
// failure to queue a reply is returned; malformed input is dropped.
func (c *Connection) handleClientMessage(message []byte) error {
	msg := ParseClientMessage(message)
	c.metrics.RecordClientMessage(msg.Kind())

	switch m := msg.(type) {
	case PingMessage:
		reply, err := json.Marshal(NewPong(m, c.clock.Now().UnixMilli()))
		if err != nil {
			return err
		}
		return c.Send(reply)

	case ReportMessage:
		if c.reports != nil {
			c.reports.Record(c.label, m.Report)
		}

	case UnknownMessage:
		log.Debug().
			Str("connection_id", c.id).
			Str("reason", m.Reason).
			Msg("ignoring client message")
	}
	return nil
}
