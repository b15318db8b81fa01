// Package auth defines the authentication boundary for incoming sessions.
// A session performing the one-shot authentication handshake is checked
// against an Authenticator; implementations include a remote HTTP service
// client and a local JWT validator.
package auth

import "context"

// Request carries the identity material for one authentication attempt.
type Request struct {
	// ClientID is the session's globally-unique client identifier.
	ClientID string
	// RemoteAddr is the remote address of the underlying connection.
	RemoteAddr string
	// Fields holds arbitrary credential fields extracted from the handshake
	// message (e.g. "token", "user"). May be empty but never nil for a
	// well-formed request.
	Fields map[string]string
}

// Authenticator decides whether a session is allowed to proceed.
// Implementations must be safe for concurrent use; a server shares one
// Authenticator across all sessions.
type Authenticator interface {
	// Authenticate checks the request against the backing credential source.
	// The caller bounds the call through ctx; implementations must honor
	// cancellation and deadlines.
	//
	// Parameters:
	//   - ctx: Context carrying the caller-enforced timeout
	//   - req: The identity material for this attempt
	//
	// Returns:
	//   - true if the client is authenticated, false on explicit rejection
	//   - An error if the check itself could not be performed (service
	//     unreachable, timeout, malformed response)
	Authenticate(ctx context.Context, req Request) (bool, error)
}
