// Package server runs the WebSocket listener. It upgrades HTTP requests,
// creates one bridge.Session per accepted connection, tracks live sessions,
// and shares one write scheduler across all of them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cyberinferno/wsbridge/auth"
	"github.com/cyberinferno/wsbridge/bridge"
	"github.com/cyberinferno/wsbridge/idgenerator"
	"github.com/cyberinferno/wsbridge/logger"
	"github.com/cyberinferno/wsbridge/registry"
	"github.com/cyberinferno/wsbridge/safemap"
	"github.com/cyberinferno/wsbridge/stat"
)

const (
	// defaultWriteBuffer is the task buffer of the shared write scheduler.
	defaultWriteBuffer = 256
	// throttleCleanupInterval is how often expired throttle keys are purged.
	throttleCleanupInterval = 5 * time.Minute
)

// Options configure a WebsocketServer. Logger and Factory are required.
type Options struct {
	// Logger is the server's base logger; sessions derive scoped loggers
	// from it.
	Logger logger.Logger
	// Name identifies the server in log lines.
	Name string
	// Addr is the listen address, for example ":9090".
	Addr string
	// Path is the HTTP path serving WebSocket upgrades; "/" when empty.
	Path string
	// Factory creates one protocol instance per session.
	Factory bridge.ProtocolFactory
	// Params are handed to the factory for every session.
	Params bridge.ProtocolParams
	// Authenticator gates session traffic behind the auth handshake.
	// Nil disables the gate.
	Authenticator auth.Authenticator
	// AuthTimeout bounds one authentication check.
	AuthTimeout time.Duration
	// Registry tracks connected clients. May be nil.
	Registry registry.ClientRegistry
	// Statistics collects per-address connection statistics. May be nil.
	Statistics *stat.Statistics
	// StatsLogInterval emits a periodic statistics info log when positive
	// and Statistics is set.
	StatsLogInterval time.Duration
	// UseCompression enables permessage-deflate on accepted connections.
	UseCompression bool
	// CheckOrigin overrides the upgrader's origin check. The default
	// accepts any origin.
	CheckOrigin func(r *http.Request) bool
	// WriteBuffer is the shared write scheduler's task buffer;
	// defaultWriteBuffer when zero.
	WriteBuffer int
}

// WebsocketServer accepts WebSocket connections and delegates each one to a
// bridge.Session. Sessions are stored by client identifier and torn down on
// Stop. The server runs its HTTP serve loop in a goroutine and supports
// graceful stop.
type WebsocketServer struct {
	log  logger.Logger
	name string
	addr string
	path string

	opts      Options
	upgrader  websocket.Upgrader
	sessions  *safemap.SafeMap[string, *bridge.Session]
	seeds     *idgenerator.IdGenerator
	scheduler *bridge.WriteScheduler
	throttler *logger.Throttler
	counter   atomic.Int64

	httpServer *http.Server
	listener   net.Listener
	running    atomic.Bool
	stopped    atomic.Bool
	stopStats  chan struct{}
}

// New creates a WebsocketServer from the given options.
//
// Parameters:
//   - opts: Server configuration
//
// Returns:
//   - The server, or an error if required options are missing
func New(opts Options) (*WebsocketServer, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Factory == nil {
		return nil, errors.New("protocol factory is required")
	}

	name := opts.Name
	if name == "" {
		name = "websocket"
	}
	path := opts.Path
	if path == "" {
		path = "/"
	}
	buffer := opts.WriteBuffer
	if buffer <= 0 {
		buffer = defaultWriteBuffer
	}

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	s := &WebsocketServer{
		log:  opts.Logger,
		name: name,
		addr: opts.Addr,
		path: path,
		opts: opts,
		upgrader: websocket.Upgrader{
			EnableCompression: opts.UseCompression,
			CheckOrigin:       checkOrigin,
		},
		sessions:  safemap.NewSafeMap[string, *bridge.Session](),
		seeds:     idgenerator.NewIdGenerator(0),
		scheduler: bridge.NewWriteScheduler(buffer),
		throttler: logger.NewThrottler(throttleCleanupInterval),
		stopStats: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleUpgrade)
	s.httpServer = &http.Server{Addr: opts.Addr, Handler: mux}

	return s, nil
}

// Handler returns the server's HTTP handler serving WebSocket upgrades. It
// allows mounting the server under an existing HTTP server.
//
// Returns:
//   - The upgrade handler
func (s *WebsocketServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds to the configured address and begins serving in a goroutine.
// It is safe to call only when the server is not already running.
//
// Returns:
//   - An error if the server is already running or if listening fails
func (s *WebsocketServer) Start() error {
	if s.running.Load() {
		s.log.Error("server already running")
		return fmt.Errorf("server %s already running", s.name)
	}
	if s.stopped.Load() {
		return fmt.Errorf("server %s already stopped", s.name)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.log.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.name, err)
	}

	s.listener = ln
	s.running.Store(true)

	s.log.Info(fmt.Sprintf("%s server started", s.name),
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "path", Value: s.path},
	)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(fmt.Sprintf("%s server serve error", s.name), logger.Field{Key: "error", Value: err})
		}
	}()

	if s.opts.Statistics != nil && s.opts.StatsLogInterval > 0 {
		go s.statsLoop()
	}

	return nil
}

// Addr returns the address the server is listening on. Useful when the
// configured address uses port 0.
//
// Returns:
//   - The bound address, or the configured address before Start
func (s *WebsocketServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ConnectedCount returns the number of currently connected sessions.
//
// Returns:
//   - The live session count
func (s *WebsocketServer) ConnectedCount() int64 {
	return s.counter.Load()
}

// GetSession returns the session for the given client identifier, if present.
//
// Parameters:
//   - clientID: The client identifier to look up
//
// Returns:
//   - The session and true if found, or nil and false otherwise
func (s *WebsocketServer) GetSession(clientID string) (*bridge.Session, bool) {
	return s.sessions.Load(clientID)
}

// Stop stops the server: it stops accepting upgrades, shuts the HTTP server
// down within the context's deadline, closes all live sessions, and stops
// the shared write scheduler. Stop is idempotent and also works for servers
// mounted through Handler that were never started.
//
// Parameters:
//   - ctx: Bounds the HTTP server shutdown
//
// Returns:
//   - The HTTP shutdown error, if any
func (s *WebsocketServer) Stop(ctx context.Context) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	close(s.stopStats)

	var err error
	if s.running.Swap(false) {
		err = s.httpServer.Shutdown(ctx)
	}

	s.sessions.Range(func(id string, session *bridge.Session) bool {
		session.Close()
		return true
	})

	s.scheduler.Stop()
	s.log.Info(fmt.Sprintf("%s server stopped", s.name))
	return err
}

// handleUpgrade upgrades one HTTP request, creates the session, and runs its
// read loop until the connection goes away.
func (s *WebsocketServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.stopped.Load() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.log.Warn("websocket upgrade failed",
			logger.Field{Key: "remote_addr", Value: r.RemoteAddr},
			logger.Field{Key: "error", Value: err},
		)
		return
	}

	session, err := bridge.NewSession(conn, bridge.Options{
		Logger:        s.log,
		Scheduler:     s.scheduler,
		Throttler:     s.throttler,
		Factory:       s.opts.Factory,
		Params:        s.opts.Params,
		Authenticator: s.opts.Authenticator,
		AuthTimeout:   s.opts.AuthTimeout,
		Registry:      s.opts.Registry,
		Counter:       &s.counter,
		Seed:          s.seeds.Id(),
		RemoteAddr:    r.RemoteAddr,
	})
	if err != nil {
		s.log.Error("unable to accept incoming connection", logger.Field{Key: "error", Value: err})
		_ = conn.Close()
		return
	}

	host := remoteHost(r.RemoteAddr)
	if s.opts.Statistics != nil {
		s.opts.Statistics.ConnectionOpened(host)
	}

	s.sessions.Store(session.ClientID(), session)

	session.Run()
	<-session.Done()

	s.sessions.Delete(session.ClientID())
	if s.opts.Statistics != nil {
		s.opts.Statistics.ConnectionClosed()
	}
}

// statsLoop emits a periodic statistics info log until the server stops.
func (s *WebsocketServer) statsLoop() {
	ticker := time.NewTicker(s.opts.StatsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := s.opts.Statistics.Snapshot()
			s.log.Info("connection statistics",
				logger.Field{Key: "now_connected", Value: snap.NowConnected},
				logger.Field{Key: "max_concurrent", Value: snap.MaxConcurrent},
				logger.Field{Key: "total_connections", Value: snap.TotalConnections},
				logger.Field{Key: "distinct_addresses", Value: snap.DistinctAddresses},
			)
		case <-s.stopStats:
			return
		}
	}
}

// remoteHost strips the port from a remote address when present.
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
