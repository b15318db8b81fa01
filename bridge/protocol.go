// Package bridge implements the per-connection session layer between a
// WebSocket transport and a message-processing protocol instance. Each
// session owns an inbound queue drained by a dedicated worker goroutine, a
// write gate that serializes outbound frames onto a shared write scheduler,
// and an optional authentication gate that intercepts the one-shot auth
// handshake before any other traffic is admitted.
package bridge

import "time"

// OutgoingFunc is the callback a protocol instance uses to emit outbound
// payloads. It may be invoked concurrently from any goroutine; the session's
// write gate serializes the resulting frames.
type OutgoingFunc func(payload any) error

// Protocol is the opaque message-processing pipeline fed by a session.
// Incoming is only ever called from the session's worker goroutine, one
// message at a time, in arrival order. Finish is called exactly once after
// the session closes and no further Incoming calls will be made.
type Protocol interface {
	// Incoming processes one raw inbound message. An error aborts processing
	// of this message only; the session keeps running.
	//
	// Parameters:
	//   - msg: The raw text payload of one inbound frame
	//
	// Returns:
	//   - An error if the message could not be processed
	Incoming(msg string) error

	// Finish releases the protocol's resources. It is called exactly once,
	// after the last Incoming call.
	Finish()
}

// ProtocolFactory creates the protocol instance for a new session. The seed
// is a process-unique numeric identifier for the session, params carry the
// server-wide tuning values, and outgoing is the session's write path.
type ProtocolFactory func(seed uint32, params ProtocolParams, outgoing OutgoingFunc) (Protocol, error)

// ProtocolParams are server-wide tuning values handed to every protocol
// instance unmodified. The session layer does not interpret them beyond
// applying MaxMessageSize as the connection read limit.
type ProtocolParams struct {
	// FragmentTimeout is how long the protocol keeps partial fragments
	// before discarding a reassembly in progress.
	FragmentTimeout time.Duration
	// DelayBetweenMessages is an artificial delay the protocol inserts
	// between outbound messages; zero disables it.
	DelayBetweenMessages time.Duration
	// MaxMessageSize caps the size of one inbound frame in bytes.
	MaxMessageSize int64
	// UnregisterTimeout is how long the protocol waits before releasing
	// resources tied to an unregistering consumer.
	UnregisterTimeout time.Duration
	// BinaryOnly makes the protocol emit binary-encoded payloads only.
	BinaryOnly bool
}

// Binary marks a payload as already binary-encoded. The write gate sends
// Binary payloads (like raw []byte) as binary frames instead of text.
type Binary []byte
