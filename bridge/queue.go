package bridge

import (
	"fmt"
	"sync"

	"github.com/cyberinferno/wsbridge/logger"
	"github.com/cyberinferno/wsbridge/utils"
)

// payloadPreviewLen caps how much of a failing message is echoed into logs.
const payloadPreviewLen = 256

// InboundQueue decouples inbound message arrival from pipeline processing.
// The transport's read goroutine pushes raw messages; a single dedicated
// worker goroutine (Run) pops them and feeds the protocol. This keeps a slow
// protocol, or one blocked writing output back through the same connection,
// from stalling the transport's read path.
//
// Once finished, the queue accepts no further pushes and any messages still
// queued are discarded, never delivered.
type InboundQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []string
	finished bool
}

// NewInboundQueue creates an empty, open InboundQueue.
//
// Returns:
//   - A new InboundQueue instance
func NewInboundQueue() *InboundQueue {
	q := &InboundQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a message at the tail of the queue and wakes the worker if it
// is idle. Messages pushed after Finish are dropped silently.
//
// Parameters:
//   - msg: The raw message payload to enqueue
func (q *InboundQueue) Push(msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.finished {
		return
	}

	q.items = append(q.items, msg)
	q.cond.Signal()
}

// Finish marks the queue finished, discards all queued unprocessed messages,
// and wakes the worker so it can exit. It is idempotent.
func (q *InboundQueue) Finish() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.finished {
		return
	}

	q.finished = true
	q.items = nil
	q.cond.Signal()
}

// Finished reports whether Finish has been called.
//
// Returns:
//   - true if the queue no longer accepts pushes
func (q *InboundQueue) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finished
}

// Len returns the number of messages currently queued.
//
// Returns:
//   - The queue length
func (q *InboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run is the worker loop. It pops messages in FIFO order and hands each one
// to protocol.Incoming synchronously. When the queue is finished it returns
// after calling protocol.Finish exactly once. Run must be invoked on exactly
// one goroutine per queue.
//
// A failure inside protocol.Incoming affects only that message: the error is
// logged and the worker moves on to the next one.
//
// Parameters:
//   - protocol: The pipeline consuming the messages
//   - log: Logger for per-message processing failures
func (q *InboundQueue) Run(protocol Protocol, log logger.Logger) {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.finished {
			q.cond.Wait()
		}

		if q.finished {
			q.mu.Unlock()
			break
		}

		msg := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.dispatch(protocol, msg, log)
	}

	protocol.Finish()
}

// dispatch feeds one message to the protocol, isolating panics and errors so
// a single malformed message cannot halt the worker.
func (q *InboundQueue) dispatch(protocol Protocol, msg string, log logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing inbound message",
				logger.Field{Key: "panic", Value: fmt.Sprint(r)},
				logger.Field{Key: "payload", Value: utils.TruncateString(msg, payloadPreviewLen)},
			)
		}
	}()

	if err := protocol.Incoming(msg); err != nil {
		log.Error("failed to process inbound message",
			logger.Field{Key: "error", Value: err},
			logger.Field{Key: "payload", Value: utils.TruncateString(msg, payloadPreviewLen)},
		)
	}
}
