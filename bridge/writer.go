package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrSchedulerStopped is returned by Submit after the scheduler has stopped.
var ErrSchedulerStopped = errors.New("write scheduler stopped")

// WriteScheduler executes submitted write tasks sequentially on a single
// goroutine. One scheduler is shared by every session of a server, so all
// outbound frames in the process are written from one execution context;
// tasks from different sessions interleave, while each session's own write
// gate keeps its submissions in order.
type WriteScheduler struct {
	tasks   chan func()
	stop    chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewWriteScheduler creates a WriteScheduler and starts its goroutine.
//
// Parameters:
//   - buffer: Capacity of the task channel; submissions beyond it block
//
// Returns:
//   - A running WriteScheduler
func NewWriteScheduler(buffer int) *WriteScheduler {
	s := &WriteScheduler{
		tasks: make(chan func(), buffer),
		stop:  make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// Submit enqueues a task for execution on the scheduler goroutine. Tasks are
// executed in submission order.
//
// Parameters:
//   - task: The write operation to execute
//
// Returns:
//   - ErrSchedulerStopped if the scheduler has stopped, nil otherwise
func (s *WriteScheduler) Submit(task func()) error {
	if s.stopped.Load() {
		return ErrSchedulerStopped
	}

	select {
	case s.tasks <- task:
		return nil
	case <-s.stop:
		return ErrSchedulerStopped
	}
}

// Done returns a channel that is closed when the scheduler stops. Callers
// waiting on a task's completion select on Done to avoid waiting forever
// across a shutdown.
//
// Returns:
//   - A channel closed once Stop has been called
func (s *WriteScheduler) Done() <-chan struct{} {
	return s.stop
}

// Stop stops the scheduler. Tasks accepted before Stop are still executed;
// later submissions fail with ErrSchedulerStopped. It is idempotent.
func (s *WriteScheduler) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}

	close(s.stop)
	s.wg.Wait()
	s.drain()
}

// run executes tasks until Stop, then drains whatever was already queued.
func (s *WriteScheduler) run() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

// drain executes all currently queued tasks without blocking for new ones.
func (s *WriteScheduler) drain() {
	for {
		select {
		case task := <-s.tasks:
			task()
		default:
			return
		}
	}
}
