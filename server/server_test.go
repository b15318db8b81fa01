package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/wsbridge/auth"
	"github.com/cyberinferno/wsbridge/bridge"
	"github.com/cyberinferno/wsbridge/logger"
	"github.com/cyberinferno/wsbridge/registry"
	"github.com/cyberinferno/wsbridge/stat"
)

func testLogger() logger.Logger {
	return logger.NewZerologLogger(zerolog.Nop(), "test", zerolog.Disabled)
}

// echoProtocol sends every inbound message straight back out.
type echoProtocol struct {
	outgoing bridge.OutgoingFunc
	finished atomic.Bool
}

func (p *echoProtocol) Incoming(msg string) error {
	return p.outgoing(msg)
}

func (p *echoProtocol) Finish() {
	p.finished.Store(true)
}

func echoFactory(seed uint32, params bridge.ProtocolParams, outgoing bridge.OutgoingFunc) (bridge.Protocol, error) {
	return &echoProtocol{outgoing: outgoing}, nil
}

// allowAll authenticates every request and records how often it ran.
type allowAll struct {
	calls atomic.Int32
}

func (a *allowAll) Authenticate(ctx context.Context, req auth.Request) (bool, error) {
	a.calls.Add(1)
	return true, nil
}

// denyAll rejects every request.
type denyAll struct{}

func (denyAll) Authenticate(ctx context.Context, req auth.Request) (bool, error) {
	return false, nil
}

func newTestServer(t *testing.T, opts Options) (*WebsocketServer, string) {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	if opts.Factory == nil {
		opts.Factory = echoFactory
	}

	s, err := New(opts)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Stop(context.Background())
		ts.Close()
	})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	return s, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestNew_Validation(t *testing.T) {
	t.Run("missing logger", func(t *testing.T) {
		_, err := New(Options{Factory: echoFactory})
		assert.Error(t, err)
	})

	t.Run("missing factory", func(t *testing.T) {
		_, err := New(Options{Logger: testLogger()})
		assert.Error(t, err)
	})
}

func TestWebsocketServer_Echo(t *testing.T) {
	s, url := newTestServer(t, Options{})

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"ping","id":1}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"op":"ping","id":1}`, string(data))

	assert.Equal(t, int64(1), s.ConnectedCount())
}

func TestWebsocketServer_BinaryFramesReachProtocol(t *testing.T) {
	_, url := newTestServer(t, Options{})

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(`{"op":"ping"}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"op":"ping"}`, string(data))
}

func TestWebsocketServer_DisconnectCleansUp(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	s, url := newTestServer(t, Options{Registry: reg})

	conn := dial(t, url)

	require.Eventually(t, func() bool {
		return s.ConnectedCount() == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return s.ConnectedCount() == 0
	}, time.Second, time.Millisecond)

	n, err := reg.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWebsocketServer_AuthHandshake(t *testing.T) {
	a := &allowAll{}
	_, url := newTestServer(t, Options{Authenticator: a, AuthTimeout: time.Second})

	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"auth","fields":{"token":"ok"}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"subscribe"}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"op":"subscribe"}`, string(data))
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestWebsocketServer_UnauthenticatedTrafficCloses(t *testing.T) {
	_, url := newTestServer(t, Options{Authenticator: denyAll{}, AuthTimeout: time.Second})

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"subscribe"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebsocketServer_Statistics(t *testing.T) {
	stats := stat.New(time.Minute)
	s, url := newTestServer(t, Options{Statistics: stats})

	first := dial(t, url)
	second := dial(t, url)

	require.Eventually(t, func() bool {
		return s.ConnectedCount() == 2
	}, time.Second, time.Millisecond)

	snap := stats.Snapshot()
	assert.EqualValues(t, 2, snap.NowConnected)
	assert.EqualValues(t, 2, snap.TotalConnections)
	assert.Equal(t, 1, snap.DistinctAddresses)

	require.NoError(t, first.Close())
	require.NoError(t, second.Close())

	require.Eventually(t, func() bool {
		return stats.Snapshot().NowConnected == 0
	}, time.Second, time.Millisecond)
}

func TestWebsocketServer_StopClosesSessions(t *testing.T) {
	s, url := newTestServer(t, Options{})

	conn := dial(t, url)

	require.Eventually(t, func() bool {
		return s.ConnectedCount() == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, int64(0), s.ConnectedCount())
}

func TestWebsocketServer_StartStop(t *testing.T) {
	s, err := New(Options{Logger: testLogger(), Factory: echoFactory, Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+s.Addr(), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	_ = conn.Close()

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}