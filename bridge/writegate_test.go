package bridge

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/wsbridge/logger"
)

func newTestGate(t *testing.T, conn *fakeConn) (*WriteGate, *WriteScheduler) {
	t.Helper()
	sched := NewWriteScheduler(64)
	t.Cleanup(sched.Stop)
	gate := NewWriteGate(conn, sched, testLogger(), logger.NewThrottler(time.Minute), "client-test")
	return gate, sched
}

func TestWriteGate_PayloadClassification(t *testing.T) {
	tests := []struct {
		name     string
		payload  any
		wantType int
		wantData string
	}{
		{"string is text framed", "hello", websocket.TextMessage, "hello"},
		{"bytes are binary framed", []byte{0x01, 0x02}, websocket.BinaryMessage, "\x01\x02"},
		{"tagged binary is binary framed", Binary("encoded"), websocket.BinaryMessage, "encoded"},
		{"other values are stringified text", 42, websocket.TextMessage, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			gate, _ := newTestGate(t, conn)

			require.NoError(t, gate.SendMessage(tt.payload))

			frames := conn.writtenFrames()
			require.Len(t, frames, 1)
			assert.Equal(t, tt.wantType, frames[0].messageType)
			assert.Equal(t, tt.wantData, string(frames[0].data))
		})
	}
}

func TestWriteGate_SubmissionOrderIsWireOrder(t *testing.T) {
	conn := newFakeConn()
	gate, _ := newTestGate(t, conn)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, gate.SendMessage(fmt.Sprintf("out-%03d", i)))
	}

	frames := conn.writtenFrames()
	require.Len(t, frames, n)
	for i, f := range frames {
		assert.Equal(t, fmt.Sprintf("out-%03d", i), string(f.data))
	}
}

func TestWriteGate_ConcurrentSendsNeverInterleave(t *testing.T) {
	conn := newFakeConn()
	gate, _ := newTestGate(t, conn)

	const senders = 20
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, gate.SendMessage(fmt.Sprintf("sender-%d", n)))
		}(i)
	}
	wg.Wait()

	// Every submitted payload must appear as exactly one intact frame.
	frames := conn.writtenFrames()
	require.Len(t, frames, senders)

	seen := make(map[string]bool)
	for _, f := range frames {
		seen[string(f.data)] = true
	}
	for i := 0; i < senders; i++ {
		assert.True(t, seen[fmt.Sprintf("sender-%d", i)])
	}
}

func TestWriteGate_ClosedConnection(t *testing.T) {
	t.Run("close sent maps to transport closed", func(t *testing.T) {
		conn := newFakeConn()
		conn.setWriteErr(websocket.ErrCloseSent)
		gate, _ := newTestGate(t, conn)

		err := gate.SendMessage("late")
		assert.ErrorIs(t, err, ErrTransportClosed)
	})

	t.Run("benign close handshake error is success", func(t *testing.T) {
		conn := newFakeConn()
		conn.setWriteErr(&websocket.CloseError{Code: websocket.CloseNormalClosure})
		gate, _ := newTestGate(t, conn)

		assert.NoError(t, gate.SendMessage("late"))
	})

	t.Run("stopped scheduler maps to transport closed", func(t *testing.T) {
		conn := newFakeConn()
		gate, sched := newTestGate(t, conn)
		sched.Stop()

		err := gate.SendMessage("late")
		assert.ErrorIs(t, err, ErrTransportClosed)
	})
}

func TestWriteGate_OtherWriteErrorsPropagate(t *testing.T) {
	conn := newFakeConn()
	wantErr := errors.New("disk on fire")
	conn.setWriteErr(wantErr)
	gate, _ := newTestGate(t, conn)

	err := gate.SendMessage("payload")
	assert.ErrorIs(t, err, wantErr)
}
