// Package remote implements the control channel: a single outbound
// WebSocket connection whose text messages are timer commands.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/notify"
	"github.com/mcdev12/splitkeeper/go/internal/timer"
)

// Notification texts.
const (
	MsgConnected = "Connected to server"
	MsgClosed    = "Closed connection to server"
)

// ErrConnecting is returned when a connect is requested while a dial is
// still in flight.
var ErrConnecting = errors.New("connection attempt in progress")

// State is the lifecycle stage of the client.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
)

// Config holds configuration for the control connection.
type Config struct {
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	WriteTimeout     time.Duration
}

// DefaultConfig returns default connection configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   1024,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		WriteTimeout:     5 * time.Second,
	}
}

// Client owns at most one control connection at a time. The server is the
// only sender; nothing is acknowledged.
type Client struct {
	shared   *timer.SharedTimer
	notifier notify.Notifier
	dialer   *websocket.Dialer
	config   Config

	mu         sync.Mutex
	conn       *websocket.Conn
	url        string
	connecting bool
	done       chan struct{}
}

// NewClient creates an idle client that applies received commands to shared.
func NewClient(shared *timer.SharedTimer, notifier notify.Notifier, config Config) *Client {
	return &Client{
		shared:   shared,
		notifier: notifier,
		config:   config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
	}
}

// State returns the current lifecycle stage.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.conn != nil:
		return StateConnected
	case c.connecting:
		return StateConnecting
	default:
		return StateIdle
	}
}

// URL returns the address of the open connection, if any.
func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// ConnectOrDisconnect toggles the connection. An open connection is closed
// and its read loop has finished when the call returns. A call made while a
// dial is in flight is ignored. Otherwise url is dialed and, on success,
// commands are read until the connection closes.
func (c *Client) ConnectOrDisconnect(ctx context.Context, url string) error {
	c.mu.Lock()
	if c.conn != nil {
		conn, done := c.conn, c.done
		c.conn, c.url = nil, ""
		c.mu.Unlock()
		c.closeConn(conn)
		<-done
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return ErrConnecting
	}
	c.connecting = true
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, url, nil)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		c.notifier.Error("Failed to connect", err)
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	c.conn = conn
	c.url = url
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	log.Info().Str("url", url).Msg("control connection established")
	c.notifier.Info(MsgConnected)

	go c.readPump(conn, done)
	return nil
}

// Close closes the active connection, if any, and waits for the read loop
// to finish.
func (c *Client) Close() {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn, c.url = nil, ""
	c.mu.Unlock()
	if conn != nil {
		c.closeConn(conn)
	}
	if done != nil {
		<-done
	}
}

// Wait blocks until the active connection, if any, has closed.
func (c *Client) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Client) closeConn(conn *websocket.Conn) {
	deadline := time.Now().Add(c.config.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Debug().Err(err).Msg("failed to send close frame")
	}
	conn.Close()
}

// readPump applies text messages until the connection fails or is closed.
// A partially received message is discarded with the connection.
func (c *Client) readPump(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		conn.Close()

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.url = ""
		}
		c.mu.Unlock()

		log.Info().Msg("control connection closed")
		c.notifier.Info(MsgClosed)
		close(done)
	}()

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.notifier.Error("Connection error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !Dispatch(c.shared, string(message)) {
			log.Debug().Str("message", string(message)).Msg("dropped control message")
		}
	}
}
