package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/wsbridge/auth"
	"github.com/cyberinferno/wsbridge/logger"
	"github.com/cyberinferno/wsbridge/utils"
)

// OpAuth is the operation name of the one-shot authentication handshake.
// Handshake messages are always consumed by the gate and never reach the
// protocol, in any state.
const OpAuth = "auth"

// DefaultAuthTimeout bounds the authentication service call when no timeout
// is configured.
const DefaultAuthTimeout = 90 * time.Second

// Decision is the outcome of inspecting one inbound message.
type Decision int

const (
	// Forward admits the message to the inbound queue.
	Forward Decision = iota
	// Ignore drops the message silently.
	Ignore
	// Consumed means the gate handled the message itself (auth handshake).
	Consumed
	// Reject means the session must be closed (unauthenticated traffic or a
	// failed handshake).
	Reject
)

// opPeek is the single structural look the gate takes at a payload.
type opPeek struct {
	Op     string          `json:"op"`
	Fields json.RawMessage `json:"fields"`
}

// AuthGate inspects every inbound message before it reaches the inbound
// queue. When an authenticator is configured the session starts
// unauthenticated: the only admissible first message is the auth handshake,
// checked synchronously against the authenticator with a bounded timeout.
// The unauthenticated-to-authenticated transition is one-way and permanent
// for the life of the session. Without an authenticator the gate only strips
// handshake messages and forwards everything else.
type AuthGate struct {
	authenticator auth.Authenticator
	timeout       time.Duration
	log           logger.Logger
	authenticated atomic.Bool
}

// NewAuthGate creates the gate for one session.
//
// Parameters:
//   - authenticator: The authentication backend; nil disables gating
//   - timeout: Bound on one authentication check; 0 uses DefaultAuthTimeout
//   - log: Session-scoped logger
//
// Returns:
//   - A new AuthGate instance
func NewAuthGate(authenticator auth.Authenticator, timeout time.Duration, log logger.Logger) *AuthGate {
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}

	return &AuthGate{
		authenticator: authenticator,
		timeout:       timeout,
		log:           log,
	}
}

// Authenticated reports whether the handshake has succeeded. It stays false
// for ungated sessions, which never run the handshake.
//
// Returns:
//   - true once a handshake has been accepted
func (g *AuthGate) Authenticated() bool {
	return g.authenticated.Load()
}

// Gated reports whether an authenticator is configured.
//
// Returns:
//   - true if inbound traffic must authenticate before being admitted
func (g *AuthGate) Gated() bool {
	return g.authenticator != nil
}

// Inspect classifies one inbound payload. Empty or whitespace-only payloads
// and JSON objects without an "op" field are ignored. Payloads that are not
// JSON objects bypass the gate entirely (rejecting protocol violations is
// the pipeline's concern). Handshake messages are consumed, running the
// authentication check when the session is still unauthenticated. Any other
// operation is forwarded once admitted, or rejected while unauthenticated.
//
// Inspect runs on the transport's read goroutine; a pending authentication
// check blocks further inbound processing for this session.
//
// Parameters:
//   - clientID: The session's client identifier
//   - remoteAddr: The connection's remote address
//   - payload: The raw inbound message
//
// Returns:
//   - The Decision for this payload
func (g *AuthGate) Inspect(clientID string, remoteAddr string, payload string) Decision {
	if strings.TrimSpace(payload) == "" {
		return Ignore
	}

	if !utils.IsJsonObject(payload) {
		return Forward
	}

	var peek opPeek
	if err := json.Unmarshal([]byte(payload), &peek); err != nil {
		return Forward
	}

	if peek.Op == "" {
		return Ignore
	}

	if peek.Op == OpAuth {
		if !g.Gated() || g.authenticated.Load() {
			return Consumed
		}

		if g.check(clientID, remoteAddr, decodeFields(peek.Fields)) {
			g.authenticated.Store(true)
			return Consumed
		}

		return Reject
	}

	if !g.Gated() || g.authenticated.Load() {
		return Forward
	}

	g.log.Warn("rejecting unauthenticated message",
		logger.Field{Key: "op", Value: peek.Op},
	)
	return Reject
}

// check runs one authentication attempt, bounding it with the configured
// timeout and logging timeouts, service errors, and rejections distinctly.
func (g *AuthGate) check(clientID string, remoteAddr string, fields map[string]string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	ok, err := g.authenticator.Authenticate(ctx, auth.Request{
		ClientID:   clientID,
		RemoteAddr: remoteAddr,
		Fields:     fields,
	})

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		g.log.Error("authentication timed out",
			logger.Field{Key: "timeout", Value: g.timeout.String()},
		)
		return false
	case err != nil:
		g.log.Error("authentication check failed",
			logger.Field{Key: "error", Value: err},
		)
		return false
	case !ok:
		g.log.Warn("authentication rejected")
		return false
	}

	g.log.Info("client authenticated")
	return true
}

// decodeFields extracts the handshake's credential fields. Non-object or
// missing fields yield an empty map; non-string values are stringified.
func decodeFields(raw json.RawMessage) map[string]string {
	fields := map[string]string{}
	if len(raw) == 0 {
		return fields
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fields
	}

	for k, v := range decoded {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprint(v)
		}
	}

	return fields
}
