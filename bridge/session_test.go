package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/wsbridge/registry"
)

func newSessionForTest(t *testing.T, conn *fakeConn, opts Options) (*Session, *fakeProtocol) {
	t.Helper()

	p := &fakeProtocol{}
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	if opts.Scheduler == nil {
		sched := NewWriteScheduler(64)
		t.Cleanup(sched.Stop)
		opts.Scheduler = sched
	}
	if opts.Factory == nil {
		opts.Factory = func(seed uint32, params ProtocolParams, outgoing OutgoingFunc) (Protocol, error) {
			return p, nil
		}
	}

	s, err := NewSession(conn, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, p
}

func TestNewSession_Validation(t *testing.T) {
	sched := NewWriteScheduler(8)
	defer sched.Stop()

	factory := func(seed uint32, params ProtocolParams, outgoing OutgoingFunc) (Protocol, error) {
		return &fakeProtocol{}, nil
	}

	t.Run("nil conn", func(t *testing.T) {
		_, err := NewSession(nil, Options{Logger: testLogger(), Scheduler: sched, Factory: factory})
		assert.Error(t, err)
	})

	t.Run("missing logger", func(t *testing.T) {
		_, err := NewSession(newFakeConn(), Options{Scheduler: sched, Factory: factory})
		assert.Error(t, err)
	})

	t.Run("missing scheduler", func(t *testing.T) {
		_, err := NewSession(newFakeConn(), Options{Logger: testLogger(), Factory: factory})
		assert.Error(t, err)
	})

	t.Run("missing factory", func(t *testing.T) {
		_, err := NewSession(newFakeConn(), Options{Logger: testLogger(), Scheduler: sched})
		assert.Error(t, err)
	})

	t.Run("factory failure leaves counter untouched", func(t *testing.T) {
		counter := new(atomic.Int64)
		_, err := NewSession(newFakeConn(), Options{
			Logger:    testLogger(),
			Scheduler: sched,
			Counter:   counter,
			Factory: func(seed uint32, params ProtocolParams, outgoing OutgoingFunc) (Protocol, error) {
				return nil, errors.New("no protocol for you")
			},
		})
		assert.Error(t, err)
		assert.Equal(t, int64(0), counter.Load())
	})
}

func TestSession_Open(t *testing.T) {
	counter := new(atomic.Int64)
	conn := newFakeConn()
	s, _ := newSessionForTest(t, conn, Options{
		Counter:    counter,
		Params:     ProtocolParams{MaxMessageSize: 1024},
		RemoteAddr: "10.0.0.7:51234",
	})

	assert.NotEmpty(t, s.ClientID())
	assert.Equal(t, "10.0.0.7:51234", s.RemoteAddr())
	assert.True(t, s.Connected())
	assert.Equal(t, int64(1), counter.Load())
	assert.Equal(t, int64(1024), conn.readLimit)
}

func TestSession_UniqueClientIDs(t *testing.T) {
	a, _ := newSessionForTest(t, newFakeConn(), Options{})
	b, _ := newSessionForTest(t, newFakeConn(), Options{})
	assert.NotEqual(t, a.ClientID(), b.ClientID())
}

func TestSession_AuthDisabledForwardsInOrder(t *testing.T) {
	conn := newFakeConn()
	s, p := newSessionForTest(t, conn, Options{})

	go s.Run()
	conn.inbound <- []byte(`{"op":"ping"}`)
	conn.inbound <- []byte(`{"op":"publish","topic":"/t"}`)

	require.Eventually(t, func() bool {
		return len(p.received()) == 2
	}, time.Second, time.Millisecond)

	assert.Equal(t, []string{`{"op":"ping"}`, `{"op":"publish","topic":"/t"}`}, p.received())
	assert.True(t, s.Connected())
}

func TestSession_AuthRequiredBeforeTraffic(t *testing.T) {
	conn := newFakeConn()
	a := &fakeAuthenticator{}
	s, p := newSessionForTest(t, conn, Options{Authenticator: a, AuthTimeout: time.Second})

	go s.Run()
	conn.inbound <- []byte(`{"op":"publish"}`)

	require.Eventually(t, func() bool {
		return !s.Connected()
	}, time.Second, time.Millisecond)

	<-s.Done()
	assert.Empty(t, p.received())
	assert.Equal(t, 0, a.callCount())
}

func TestSession_AuthHandshakeThenTraffic(t *testing.T) {
	conn := newFakeConn()
	a := &fakeAuthenticator{result: true}
	s, p := newSessionForTest(t, conn, Options{Authenticator: a, AuthTimeout: time.Second})

	go s.Run()
	conn.inbound <- []byte(`{"op":"auth","fields":{"token":"abc"}}`)

	require.Eventually(t, func() bool {
		return s.Authenticated()
	}, time.Second, time.Millisecond)

	conn.inbound <- []byte(`{"op":"subscribe","topic":"/t"}`)

	require.Eventually(t, func() bool {
		return len(p.received()) == 1
	}, time.Second, time.Millisecond)

	// The handshake itself never reaches the protocol.
	assert.Equal(t, []string{`{"op":"subscribe","topic":"/t"}`}, p.received())
}

func TestSession_AuthRejectionCloses(t *testing.T) {
	conn := newFakeConn()
	a := &fakeAuthenticator{result: false}
	s, p := newSessionForTest(t, conn, Options{Authenticator: a, AuthTimeout: time.Second})

	go s.Run()
	conn.inbound <- []byte(`{"op":"auth","fields":{"token":"bad"}}`)

	require.Eventually(t, func() bool {
		return !s.Connected()
	}, time.Second, time.Millisecond)

	<-s.Done()
	assert.Empty(t, p.received())
}

func TestSession_CloseDiscardsQueuedMessages(t *testing.T) {
	conn := newFakeConn()
	s, p := newSessionForTest(t, conn, Options{})

	s.Close()
	s.HandleMessage([]byte(`{"op":"late"}`))

	<-s.Done()
	assert.Empty(t, p.received())
	assert.Equal(t, int32(1), p.finishCount.Load())
}

func TestSession_IdempotentClose(t *testing.T) {
	counter := new(atomic.Int64)
	conn := newFakeConn()
	s, p := newSessionForTest(t, conn, Options{Counter: counter})

	require.Equal(t, int64(1), counter.Load())

	s.Close()
	s.Close()
	<-s.Done()

	assert.Equal(t, int64(0), counter.Load())
	assert.Equal(t, int32(1), p.finishCount.Load())
	assert.False(t, s.Connected())
}

func TestSession_RegistryLifecycle(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	conn := newFakeConn()
	s, _ := newSessionForTest(t, conn, Options{Registry: reg, RemoteAddr: "10.0.0.9:1234"})

	addr, ok := reg.RemoteAddr(s.ClientID())
	require.True(t, ok)
	assert.Equal(t, "10.0.0.9:1234", addr)

	n, err := reg.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s.Close()

	_, ok = reg.RemoteAddr(s.ClientID())
	assert.False(t, ok)
}

func TestSession_SendMessageWritesFrame(t *testing.T) {
	conn := newFakeConn()
	s, _ := newSessionForTest(t, conn, Options{})

	require.NoError(t, s.SendMessage(`{"op":"status"}`))

	frames := conn.writtenFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, `{"op":"status"}`, string(frames[0].data))
}

func TestSession_ProtocolOutgoingPath(t *testing.T) {
	conn := newFakeConn()
	var outgoing OutgoingFunc

	sched := NewWriteScheduler(64)
	t.Cleanup(sched.Stop)

	s, err := NewSession(conn, Options{
		Logger:    testLogger(),
		Scheduler: sched,
		Factory: func(seed uint32, params ProtocolParams, out OutgoingFunc) (Protocol, error) {
			outgoing = out
			return &fakeProtocol{}, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NotNil(t, outgoing)
	require.NoError(t, outgoing(Binary("encoded-response")))

	frames := conn.writtenFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, "encoded-response", string(frames[0].data))
}
