package core

import "time"

// Task is the unit of work: a user callable with its arguments bound at
// construction by closure capture, an optional After continuation, and a
// pair of hooks reserved for the queue machinery. A task runs at most once
// and is owned by whichever container currently holds it (a queue, a worker,
// or the caller).
type Task struct {
	fn func()

	// After is the optional user continuation. It runs on the worker that
	// executed the body, immediately after the body returns. Tasks built
	// with NewResultTask deliver the body's result to a typed continuation
	// instead.
	After func()

	// beforeInternal and afterInternal are set only by the runtime (the run
	// helpers and TaskQueue). afterInternal runs on every exit path of Run,
	// including token-revoked skips and panicking bodies, so that queue
	// bookkeeping always completes.
	beforeInternal func()
	afterInternal  func()

	// onDrop is set only by the runtime. It fires when a still-pending task
	// is discarded by its queue's teardown, so waiters blocked on the task
	// are released even though the hook chain never runs.
	onDrop func()

	// dispatchTime orders the task in time-based contexts. The zero value
	// means "dispatch immediately" and sorts before every real instant.
	dispatchTime time.Time

	token    *Token
	useToken bool
}

// NewTask binds fn into a Task.
func NewTask(fn func()) *Task {
	return &Task{fn: fn}
}

// DispatchTime returns the instant the task is due. Zero means immediately.
func (t *Task) DispatchTime() time.Time {
	return t.dispatchTime
}

// SetDispatchTime marks the task as due at the given instant. Only honoured
// by time-ordered contexts (a RunLoop queue); plain queues and pools ignore
// it.
func (t *Task) SetDispatchTime(at time.Time) {
	t.dispatchTime = at
}

// Run executes the task pipeline: beforeInternal, the token check, the body,
// After, then afterInternal. When the owning queue has revoked its token the
// body and After are skipped, but afterInternal still runs so a serial chain
// can release its baton and drain.
func (t *Task) Run() {
	defer func() {
		if t.afterInternal != nil {
			t.afterInternal()
		}
	}()
	if t.beforeInternal != nil {
		t.beforeInternal()
	}
	if t.useToken && !t.token.Alive() {
		return
	}
	if t.fn != nil {
		t.fn()
	}
	if t.After != nil {
		t.After()
	}
}

// drain runs only the internal hooks, skipping the body and After. It is
// the exit path for tasks abandoned at pool shutdown: by the time a task is
// popped it may already own a queue baton or a sync waiter, so its
// bookkeeping must complete even though the work is discarded.
func (t *Task) drain() {
	defer func() {
		if t.afterInternal != nil {
			t.afterInternal()
		}
	}()
	if t.beforeInternal != nil {
		t.beforeInternal()
	}
}

// ResultTask couples a task body returning R with a continuation typed on R.
// The continuation runs on the executing worker, after the body and before
// the runtime's afterInternal hook. It may be assigned any time before the
// task is dispatched.
type ResultTask[R any] struct {
	*Task

	// After receives the body's result.
	After func(R)
}

// NewResultTask binds fn, whose result is delivered to the typed After
// continuation when the task runs.
func NewResultTask[R any](fn func() R) *ResultTask[R] {
	rt := &ResultTask[R]{Task: &Task{}}
	rt.Task.fn = func() {
		res := fn()
		if rt.After != nil {
			rt.After(res)
		}
	}
	return rt
}
