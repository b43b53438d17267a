package spectrum

import (
	"sync"
	"sync/atomic"
)

// TaskState is the lifecycle state of a Task run.
type TaskState int32

const (
	TaskIdle      TaskState = iota // never started
	TaskRunning                    // started, no terminal event claimed
	TaskCancelled                  // cancel requested, or terminal event refused
	TaskCompleted                  // terminal event claimed by the run itself
)

func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "idle"
	case TaskRunning:
		return "running"
	case TaskCancelled:
		return "cancelled"
	case TaskCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Task runs one function at a time on its own goroutine with cooperative
// cancellation. Start always joins the previous run first, so a Task never
// has two live runs.
//
// The state word doubles as the cancellation flag: RequestCancel and Settle
// both move it out of TaskRunning with a compare-and-swap, so exactly one of
// them wins for a given run.
type Task struct {
	startMu sync.Mutex // serialises Start

	mu   sync.Mutex // guards done, and the state change that goes with it
	done chan struct{}

	state atomic.Int32
}

// Start cancels and joins any previous run, then launches fn on a new
// goroutine. fn receives the task so it can poll Cancelled and Settle.
func (t *Task) Start(fn func(t *Task)) {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	t.Stop()

	// state and done change together so a concurrent Stop never cancels one
	// run and joins the next
	done := make(chan struct{})
	t.mu.Lock()
	t.state.Store(int32(TaskRunning))
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		fn(t)
	}()
}

// RequestCancel asks the current run to stop. It has no effect once the run
// has claimed its terminal event.
func (t *Task) RequestCancel() {
	t.state.CompareAndSwap(int32(TaskRunning), int32(TaskCancelled))
}

// Join blocks until the current run, if any, has returned.
func (t *Task) Join() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Stop requests cancellation and joins. Calling it on a stopped task returns
// immediately. The cancel and the done channel it waits on always belong to
// the same run.
func (t *Task) Stop() {
	t.mu.Lock()
	t.RequestCancel()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Cancelled reports whether the current run has been cancelled.
func (t *Task) Cancelled() bool {
	return t.State() == TaskCancelled
}

// Finished reports whether the current run's goroutine has returned. A task
// that never started counts as finished.
func (t *Task) Finished() bool {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// State returns the current state.
func (t *Task) State() TaskState {
	return TaskState(t.state.Load())
}

// Settle claims the terminal event of the run. It returns true exactly when
// the run was still running and the receiver is alive; a dead receiver is
// recorded as a cancellation. After a successful Settle, RequestCancel is a
// no-op.
func (t *Task) Settle(alive bool) bool {
	next := TaskCompleted
	if !alive {
		next = TaskCancelled
	}
	return t.state.CompareAndSwap(int32(TaskRunning), int32(next)) && alive
}

// Proceed is the non-terminal counterpart of Settle: it returns whether an
// intermediate notification may be delivered, cancelling the run when the
// receiver is gone.
func (t *Task) Proceed(alive bool) bool {
	if !alive {
		t.RequestCancel()
		return false
	}
	return t.State() == TaskRunning
}

// Abort forces the run into the cancelled state whatever its current state.
// It is used when the run fails.
func (t *Task) Abort() {
	t.state.Store(int32(TaskCancelled))
}
