package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cyberinferno/wsbridge/auth"
	"github.com/cyberinferno/wsbridge/logger"
	"github.com/cyberinferno/wsbridge/registry"
)

// registryTimeout bounds registry calls made during session open and close.
const registryTimeout = 5 * time.Second

// Conn is the subset of a websocket connection the session layer uses.
// *websocket.Conn from gorilla/websocket satisfies it.
type Conn interface {
	// ReadMessage blocks until the next inbound frame arrives and returns
	// its frame type and payload.
	ReadMessage() (messageType int, p []byte, err error)
	// WriteMessage writes one frame. It must only be called from the write
	// scheduler goroutine.
	WriteMessage(messageType int, data []byte) error
	// SetReadLimit caps the size of one inbound frame in bytes.
	SetReadLimit(limit int64)
	// Close closes the underlying connection.
	Close() error
}

// Options configure a new Session. Logger, Scheduler, and Factory are
// required; everything else has a working zero value.
type Options struct {
	// Logger is the base logger; the session derives one scoped with its
	// client identifier and remote address.
	Logger logger.Logger
	// Scheduler is the shared write scheduler all sessions write through.
	Scheduler *WriteScheduler
	// Throttler rate-limits the closed-connection write warning. May be nil.
	Throttler *logger.Throttler
	// Factory creates the session's protocol instance.
	Factory ProtocolFactory
	// Params are handed to the factory unmodified.
	Params ProtocolParams
	// Authenticator gates inbound traffic behind the auth handshake.
	// Nil disables the gate.
	Authenticator auth.Authenticator
	// AuthTimeout bounds one authentication check; 0 uses DefaultAuthTimeout.
	AuthTimeout time.Duration
	// Registry is informed of the session's open and close. May be nil.
	Registry registry.ClientRegistry
	// Counter is the shared connected-count of the owning server. A private
	// counter is used when nil.
	Counter *atomic.Int64
	// Seed is the process-unique numeric identifier for the protocol.
	Seed uint32
	// RemoteAddr is the connection's remote address.
	RemoteAddr string
}

// Session ties one connection to one protocol instance. It owns the inbound
// queue and its worker goroutine, the write gate, and the auth gate, and it
// performs the open/close bookkeeping: connected-count, client registry, and
// protocol lifecycle. A session is created per accepted connection and
// discarded on close; client identifiers are never reused.
type Session struct {
	clientID   string
	seed       uint32
	remoteAddr string

	conn      Conn
	log       logger.Logger
	queue     *InboundQueue
	gate      *AuthGate
	writeGate *WriteGate
	protocol  Protocol
	registry  registry.ClientRegistry
	counter   *atomic.Int64

	connected  atomic.Bool
	closeOnce  sync.Once
	workerDone chan struct{}
}

// NewSession creates a session for an accepted connection, creates its
// protocol instance, starts the worker goroutine, and performs the open
// bookkeeping. On error nothing is left running and no counts are changed.
//
// Parameters:
//   - conn: The accepted connection
//   - opts: Session configuration
//
// Returns:
//   - The running session, or an error if configuration is incomplete or
//     the protocol factory failed
func NewSession(conn Conn, opts Options) (*Session, error) {
	if conn == nil {
		return nil, errors.New("conn is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("write scheduler is required")
	}
	if opts.Factory == nil {
		return nil, errors.New("protocol factory is required")
	}

	counter := opts.Counter
	if counter == nil {
		counter = new(atomic.Int64)
	}

	clientID := uuid.NewString()
	log := opts.Logger.With(
		logger.Field{Key: "client_id", Value: clientID},
		logger.Field{Key: "remote_addr", Value: opts.RemoteAddr},
	)

	s := &Session{
		clientID:   clientID,
		seed:       opts.Seed,
		remoteAddr: opts.RemoteAddr,
		conn:       conn,
		log:        log,
		registry:   opts.Registry,
		counter:    counter,
		workerDone: make(chan struct{}),
	}

	if opts.Params.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.Params.MaxMessageSize)
	}

	s.writeGate = NewWriteGate(conn, opts.Scheduler, log, opts.Throttler, clientID)

	protocol, err := opts.Factory(opts.Seed, opts.Params, s.writeGate.SendMessage)
	if err != nil {
		return nil, fmt.Errorf("unable to accept incoming connection: %w", err)
	}
	s.protocol = protocol

	s.gate = NewAuthGate(opts.Authenticator, opts.AuthTimeout, log)
	s.queue = NewInboundQueue()

	counter.Add(1)
	s.connected.Store(true)

	go func() {
		defer close(s.workerDone)
		defer func() {
			// A failure escaping the worker loop itself is fatal to the
			// session, unlike per-message failures handled inside Run.
			if r := recover(); r != nil {
				log.Error("session worker failed", logger.Field{Key: "panic", Value: fmt.Sprint(r)})
				s.Close()
			}
		}()
		s.queue.Run(protocol, log)
	}()

	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		if err := s.registry.Add(ctx, clientID, opts.RemoteAddr); err != nil {
			log.Warn("failed to register client", logger.Field{Key: "error", Value: err})
		}
		cancel()
	}

	log.Info("client connected", logger.Field{Key: "clients_connected", Value: counter.Load()})
	return s, nil
}

// ClientID returns the session's globally-unique client identifier.
//
// Returns:
//   - The client identifier
func (s *Session) ClientID() string {
	return s.clientID
}

// RemoteAddr returns the connection's remote address.
//
// Returns:
//   - The remote address
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Connected reports whether the session is still open.
//
// Returns:
//   - true until Close has been called
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Authenticated reports whether the session has completed the auth
// handshake. Only meaningful when an authenticator is configured.
//
// Returns:
//   - true once the handshake has been accepted
func (s *Session) Authenticated() bool {
	return s.gate.Authenticated()
}

// Run reads frames from the connection until it fails, dispatching each one
// through HandleMessage, and closes the session on return. It is intended to
// be the connection handler's main loop.
func (s *Session) Run() {
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug("read loop ended", logger.Field{Key: "reason", Value: err.Error()})
			return
		}

		s.HandleMessage(data)
	}
}

// HandleMessage runs the auth gate for one raw inbound frame and either
// pushes it onto the inbound queue, drops it, or closes the session. Binary
// frames are treated as UTF-8 text payloads. Messages arriving after close
// are dropped.
//
// Parameters:
//   - payload: The raw frame payload
func (s *Session) HandleMessage(payload []byte) {
	if !s.connected.Load() {
		return
	}

	msg := string(payload)
	switch s.gate.Inspect(s.clientID, s.remoteAddr, msg) {
	case Forward:
		s.queue.Push(msg)
	case Reject:
		s.Close()
	default:
		// Ignore and Consumed end here.
	}
}

// SendMessage writes one outbound payload through the session's write gate.
// It is safe for concurrent use.
//
// Parameters:
//   - payload: The outbound payload
//
// Returns:
//   - nil, ErrTransportClosed, or the underlying write error
func (s *Session) SendMessage(payload any) error {
	return s.writeGate.SendMessage(payload)
}

// Close tears the session down: no further inbound pushes are accepted,
// queued unprocessed messages are discarded, the worker exits and calls the
// protocol's Finish exactly once, the connection is closed, the connected
// count is decremented exactly once, and the client is deregistered. Close
// is idempotent and safe to call from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.connected.Store(false)
		s.queue.Finish()
		_ = s.conn.Close()

		remaining := s.counter.Add(-1)

		if s.registry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
			if err := s.registry.Remove(ctx, s.clientID); err != nil {
				s.log.Warn("failed to deregister client", logger.Field{Key: "error", Value: err})
			}
			cancel()
		}

		s.log.Info("client disconnected", logger.Field{Key: "clients_connected", Value: remaining})
	})
}

// Done returns a channel closed once the worker has exited and the
// protocol's Finish has returned.
//
// Returns:
//   - A channel closed at full teardown of the worker
func (s *Session) Done() <-chan struct{} {
	return s.workerDone
}
