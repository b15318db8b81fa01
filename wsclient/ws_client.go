// Package wsclient provides an event-driven WebSocket client that notifies
// callers of connection state changes, received messages, and errors via
// registered handlers. It supports optional auto-reconnect.
package wsclient

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectionState represents the current state of the WebSocket connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected and not attempting to connect
	Connecting                          // Connection attempt in progress
	Connected                           // Successfully connected
	Reconnecting                        // Disconnected and attempting to reconnect (when AutoReconnect is enabled)
	Closed                              // Client has been closed and will not reconnect
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is emitted when the connection state changes.
// It is passed to the handler registered with OnConnectionState.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	URL       string          // The server URL (e.g. "ws://host:port/")
	Timestamp time.Time       // When the state change occurred
	Error     error           // Non-nil if the state change was due to an error
}

// MessageReceivedEvent is emitted when a message is read from the connection.
// It is passed to the handler registered with OnMessageReceived.
type MessageReceivedEvent struct {
	MessageType int       // websocket.TextMessage or websocket.BinaryMessage
	Data        []byte    // The received payload (do not modify; copy if needed)
	Timestamp   time.Time // When the message was received
}

// ErrorEvent is emitted when a read, write, or connection error occurs.
// It is passed to the handler registered with OnError.
type ErrorEvent struct {
	Error     error     // The error that occurred
	Timestamp time.Time // When the error occurred
}

// ConnectionStateHandler is called when the connection state changes.
// Handlers are invoked from goroutines; implementations must be safe for concurrent use.
type ConnectionStateHandler func(event ConnectionStateEvent)

// MessageReceivedHandler is called when a message is received from the connection.
// Handlers are invoked from goroutines; implementations must be safe for concurrent use.
type MessageReceivedHandler func(event MessageReceivedEvent)

// ErrorHandler is called when a read, write, or connection error occurs.
// Handlers are invoked from goroutines; implementations must be safe for concurrent use.
type ErrorHandler func(event ErrorEvent)

// Config holds configuration for the event-driven WebSocket client.
type Config struct {
	// URL is the server URL to connect to (e.g. "ws://localhost:9090/").
	URL string
	// AutoReconnect enables automatic reconnection when the connection is lost.
	AutoReconnect bool
	// ReconnectInterval is the delay between reconnection attempts when AutoReconnect is true.
	ReconnectInterval time.Duration
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
	// ConnectionTimeout is the max duration for establishing a new connection.
	ConnectionTimeout time.Duration
	// EnableCompression negotiates permessage-deflate with the server.
	EnableCompression bool
}

// DefaultConfig returns a Config with default values for the given URL.
// AutoReconnect is false; override fields as needed before passing to NewClient.
//
// Parameters:
//   - url: The server URL to connect to
//
// Returns:
//   - A Config with defaults: ReconnectInterval 5s, WriteTimeout 10s,
//     ConnectionTimeout 10s.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		AutoReconnect:     false,
		ReconnectInterval: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		ConnectionTimeout: 10 * time.Second,
	}
}

// Client is a WebSocket client that drives I/O and connection lifecycle via
// events. Register handlers with OnConnectionState, OnMessageReceived, and
// OnError, then call Connect to start. It is safe for concurrent use.
type Client struct {
	config Config
	conn   *websocket.Conn
	state  ConnectionState

	onConnectionState ConnectionStateHandler
	onMessageReceived MessageReceivedHandler
	onError           ErrorHandler

	mu            sync.RWMutex
	writeMu       sync.Mutex
	stopChan      chan struct{}
	reconnectChan chan struct{}
	wg            sync.WaitGroup
	closed        bool
	reconnecting  bool
}

// NewClient creates a new event-driven WebSocket client with the given config.
// The client starts in Disconnected state; call Connect to establish a connection.
//
// Parameters:
//   - config: Connection and behavior settings (e.g. from DefaultConfig)
//
// Returns:
//   - A new *Client ready to use; call Close when done to release resources.
func NewClient(config Config) *Client {
	return &Client{
		config:        config,
		state:         Disconnected,
		stopChan:      make(chan struct{}),
		reconnectChan: make(chan struct{}, 1),
	}
}

// OnConnectionState registers the handler for connection state changes.
// Only one handler is active; repeated calls replace the previous handler.
// Pass nil to clear the handler.
//
// Parameters:
//   - handler: Function called on state changes (Connecting, Connected, Disconnected, etc.)
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnMessageReceived registers the handler for incoming messages.
// Only one handler is active; repeated calls replace the previous handler.
// Pass nil to clear the handler.
//
// Parameters:
//   - handler: Function called with each received message
func (c *Client) OnMessageReceived(handler MessageReceivedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessageReceived = handler
}

// OnError registers the handler for read, write, and connection errors.
// Only one handler is active; repeated calls replace the previous handler.
// Pass nil to clear the handler.
//
// Parameters:
//   - handler: Function called when an error occurs
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect establishes a WebSocket connection to the configured URL.
// It returns an error if the client is closed, already connected/connecting,
// or if the dial fails. When AutoReconnect is enabled, a reconnect goroutine
// is started alongside the read goroutine.
//
// Returns:
//   - nil on success; otherwise an error (e.g. "client is closed",
//     "already connected or connecting", or the dial error).
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.mu.Unlock()

	return c.connect()
}

// Disconnect closes the current connection and moves to Disconnected state.
// It does not set the client to Closed; Connect may be called again.
// Safe to call when already disconnected or closed; returns nil in those cases.
//
// Returns:
//   - nil if already disconnected/closed, or the error from closing the connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Disconnected || c.state == Closed {
		return nil
	}

	return c.disconnect()
}

func (c *Client) disconnect() error {
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.setState(Disconnected, nil)
		return err
	}

	return nil
}

// Close shuts down the client, closes the connection, and stops all goroutines.
// After Close, the client is in Closed state and must not be used further.
// Idempotent; calling Close multiple times is safe and returns nil.
//
// Returns:
//   - nil
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()

	c.setState(Closed, nil)

	return nil
}

// SendText writes one text message to the connection.
//
// Parameters:
//   - payload: The message payload
//
// Returns:
//   - nil on success; an error if not connected or the write fails.
func (c *Client) SendText(payload string) error {
	return c.send(websocket.TextMessage, []byte(payload))
}

// SendBinary writes one binary message to the connection.
//
// Parameters:
//   - data: Bytes to send; not modified
//
// Returns:
//   - nil on success; an error if not connected or the write fails.
func (c *Client) SendBinary(data []byte) error {
	return c.send(websocket.BinaryMessage, data)
}

func (c *Client) send(messageType int, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != Connected {
		return fmt.Errorf("not connected")
	}

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}

		defer func() {
			_ = conn.SetWriteDeadline(time.Time{}) // Best effort to clear deadline
		}()
	}

	err := conn.WriteMessage(messageType, data)
	if err != nil {
		c.emitError(err)
		c.triggerReconnect()
	}

	return err
}

// GetState returns the current connection state.
//
// Returns:
//   - The current ConnectionState (Disconnected, Connecting, Connected, Reconnecting, or Closed).
func (c *Client) GetState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected returns true if the client is in Connected state.
func (c *Client) IsConnected() bool {
	return c.GetState() == Connected
}

func (c *Client) connect() error {
	c.setState(Connecting, nil)

	dialer := websocket.Dialer{
		HandshakeTimeout:  c.config.ConnectionTimeout,
		EnableCompression: c.config.EnableCompression,
	}

	conn, resp, err := dialer.Dial(c.config.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop()

	if c.config.AutoReconnect {
		c.wg.Add(1)
		go c.reconnectHandler()
	}

	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		c.mu.RLock()
		conn := c.conn
		closed := c.closed
		c.mu.RUnlock()

		if conn == nil || closed {
			return
		}

		messageType, data, err := conn.ReadMessage()

		if c.isClosed() {
			return
		}

		if err != nil {
			c.emitError(err)
			c.triggerReconnect()
			return
		}

		c.emitMessageReceived(messageType, data)
	}
}

func (c *Client) reconnectHandler() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case <-c.reconnectChan:
			c.mu.Lock()
			if c.reconnecting {
				c.mu.Unlock()
				continue
			}
			c.reconnecting = true

			if err := c.disconnect(); err != nil {
				c.emitError(err)
			}
			c.mu.Unlock()

			c.setState(Reconnecting, nil)

			select {
			case <-c.stopChan:
				c.mu.Lock()
				c.reconnecting = false
				c.mu.Unlock()
				return
			case <-time.After(c.config.ReconnectInterval):
			}

			if c.isClosed() {
				c.mu.Lock()
				c.reconnecting = false
				c.mu.Unlock()
				return
			}

			err := c.connect()

			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()

			if err != nil {
				select {
				case c.reconnectChan <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (c *Client) triggerReconnect() {
	if !c.config.AutoReconnect || c.isClosed() {
		return
	}

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.emitConnectionState(state, err)
}

func (c *Client) emitConnectionState(state ConnectionState, err error) {
	c.mu.RLock()
	handler := c.onConnectionState
	c.mu.RUnlock()

	if handler != nil {
		event := ConnectionStateEvent{
			State:     state,
			URL:       c.config.URL,
			Timestamp: time.Now(),
			Error:     err,
		}

		go handler(event)
	}
}

func (c *Client) emitMessageReceived(messageType int, data []byte) {
	c.mu.RLock()
	handler := c.onMessageReceived
	c.mu.RUnlock()

	if handler != nil {
		event := MessageReceivedEvent{
			MessageType: messageType,
			Data:        data,
			Timestamp:   time.Now(),
		}

		go handler(event)
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		event := ErrorEvent{
			Error:     err,
			Timestamp: time.Now(),
		}

		go handler(event)
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
