package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cyberinferno/wsbridge/logger"
)

// closedWriteLogInterval throttles the closed-connection warning per session.
const closedWriteLogInterval = time.Second

// WriteGate serializes one session's outbound writes. Concurrent producers
// (the protocol's output path and the session's own teardown) call
// SendMessage; the gate classifies the payload as text or binary, submits
// the actual write to the shared WriteScheduler while holding the session's
// write lock, and waits for the completion signal. Holding the lock around
// submission guarantees that two logically concurrent sends land on the wire
// in submission order and never interleave partial frames.
type WriteGate struct {
	conn     Conn
	sched    *WriteScheduler
	log      logger.Logger
	throttle *logger.Throttler
	key      string
	mu       sync.Mutex
}

// NewWriteGate creates the write gate for one session.
//
// Parameters:
//   - conn: The session's connection
//   - sched: The shared write scheduler
//   - log: Session-scoped logger
//   - throttle: Throttler for the closed-connection warning
//   - clientID: The session's client identifier, used as the throttle key
//
// Returns:
//   - A new WriteGate instance
func NewWriteGate(conn Conn, sched *WriteScheduler, log logger.Logger, throttle *logger.Throttler, clientID string) *WriteGate {
	return &WriteGate{
		conn:     conn,
		sched:    sched,
		log:      log,
		throttle: throttle,
		key:      "closed_write:" + clientID,
	}
}

// SendMessage writes one payload to the connection. []byte and Binary
// payloads use binary framing; strings (and anything else, stringified) use
// text framing. The call blocks until the shared scheduler has executed the
// write, and returns the normalized result: nil on success,
// ErrTransportClosed if the connection was already closed or closing, or the
// underlying write error.
//
// Parameters:
//   - payload: The outbound payload
//
// Returns:
//   - nil, ErrTransportClosed, or the write error
func (g *WriteGate) SendMessage(payload any) error {
	messageType, data := classifyPayload(payload)

	result := make(chan error, 1)

	g.mu.Lock()
	err := g.sched.Submit(func() {
		result <- g.conn.WriteMessage(messageType, data)
	})
	g.mu.Unlock()

	if err != nil {
		// The scheduler is gone, so the transport is too.
		g.warnClosed()
		return ErrTransportClosed
	}

	select {
	case werr := <-result:
		return g.finish(werr)
	case <-g.sched.Done():
		select {
		case werr := <-result:
			return g.finish(werr)
		default:
			g.warnClosed()
			return ErrTransportClosed
		}
	}
}

// finish normalizes and logs the outcome of one executed write.
func (g *WriteGate) finish(err error) error {
	err = NormalizeWriteError(err)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTransportClosed) {
		g.warnClosed()
		return err
	}

	g.log.Error("failed to write message", logger.Field{Key: "error", Value: err})
	return err
}

// warnClosed logs the closed-connection warning, throttled per session.
func (g *WriteGate) warnClosed() {
	if g.throttle == nil || g.throttle.Allow(g.key, closedWriteLogInterval) {
		g.log.Warn("tried to write to a closed connection")
	}
}

// classifyPayload maps a payload to a websocket frame type and raw bytes.
func classifyPayload(payload any) (int, []byte) {
	switch p := payload.(type) {
	case Binary:
		return websocket.BinaryMessage, []byte(p)
	case []byte:
		return websocket.BinaryMessage, p
	case string:
		return websocket.TextMessage, []byte(p)
	default:
		return websocket.TextMessage, []byte(fmt.Sprint(p))
	}
}
