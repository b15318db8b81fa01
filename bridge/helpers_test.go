package bridge

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cyberinferno/wsbridge/logger"
)

// testLogger returns a Logger that discards all output.
func testLogger() logger.Logger {
	return logger.NewZerologLogger(zerolog.Nop(), "test", zerolog.Disabled)
}

// frame is one recorded write on a fakeConn.
type frame struct {
	messageType int
	data        []byte
}

// fakeConn is an in-memory Conn. Inbound frames are fed through the inbound
// channel; writes are recorded. Closing unblocks any pending ReadMessage.
type fakeConn struct {
	mu        sync.Mutex
	frames    []frame
	writeErr  error
	readLimit int64

	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.inbound:
		return 1, msg, nil
	case <-c.done:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return c.writeErr
	}

	c.frames = append(c.frames, frame{messageType: messageType, data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLimit = limit
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
	return nil
}

func (c *fakeConn) writtenFrames() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.frames...)
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// fakeProtocol records Incoming calls and counts Finish invocations.
type fakeProtocol struct {
	mu          sync.Mutex
	incoming    []string
	finishCount atomic.Int32
	errOn       string
	panicOn     string
}

func (p *fakeProtocol) Incoming(msg string) error {
	p.mu.Lock()
	p.incoming = append(p.incoming, msg)
	p.mu.Unlock()

	if p.panicOn != "" && msg == p.panicOn {
		panic("protocol exploded")
	}
	if p.errOn != "" && msg == p.errOn {
		return errors.New("cannot process message")
	}

	return nil
}

func (p *fakeProtocol) Finish() {
	p.finishCount.Add(1)
}

func (p *fakeProtocol) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.incoming...)
}
