package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// RunInline adds t to queue and drains one task on the calling goroutine.
// Draining a pre-filled queue completely is `for queue.Next() {}`.
func RunInline(queue *TaskQueue, t *Task) {
	queue.Add(t)
	queue.Next()
}

// RunInlineFunc is RunInline for a bare closure.
func RunInlineFunc(queue *TaskQueue, fn func()) {
	RunInline(queue, NewTask(fn))
}

// Run dispatches t to the pool for parallel execution on any worker.
// Submissions during shutdown are dropped.
func Run(pool *ThreadPool, t *Task) {
	if pool.exiting.Load() || !pool.dispatch(t) {
		pool.reject("shutdown")
	}
}

// RunFunc is Run for a bare closure.
func RunFunc(pool *ThreadPool, fn func()) {
	Run(pool, NewTask(fn))
}

// RunQueued dispatches t through queue onto pool with strict FIFO ordering:
// tasks submitted to the same queue execute one at a time, in submission
// order, on whichever worker is free. Different queues proceed in parallel.
//
// The queue's baton mutex makes the ordering hold: the dispatcher acquires
// it before handing the head task to the pool, ownership transfers into the
// task, and the task's afterInternal hook releases it and launches the next
// task. At most one task per queue is ever in flight.
func RunQueued(pool *ThreadPool, queue *TaskQueue, t *Task) {
	runQueued(pool, queue, t)
}

// RunQueuedFunc is RunQueued for a bare closure.
func RunQueuedFunc(pool *ThreadPool, queue *TaskQueue, fn func()) {
	RunQueued(pool, queue, NewTask(fn))
}

// runQueued reports whether t was actually enqueued, so the sync variants
// know whether a completion signal will ever fire.
func runQueued(pool *ThreadPool, queue *TaskQueue, t *Task) bool {
	if queue.complete.Load() || !queue.token.Alive() {
		return false
	}

	token := queue.token
	prior := t.afterInternal

	tryNext := func() {
		if token.Alive() && queue.HasNext() && queue.baton.TryLock() {
			if next := queue.NextPop(); next != nil {
				queue.retain()
				if !pool.dispatch(next) {
					// The pool is gone mid-chain, but the baton has
					// already transferred into next; draining its hooks
					// releases it and cascades down the queue.
					next.drain()
				}
			} else {
				queue.baton.Unlock()
			}
		}
	}

	t.afterInternal = func() {
		if prior != nil {
			prior()
		}
		queue.baton.Unlock()
		tryNext()
		queue.release()
	}

	if !queue.add(t) {
		t.afterInternal = prior
		return false
	}
	tryNext()
	return true
}

// RunSync dispatches t to the pool and blocks the caller until the task's
// whole after-chain has completed. If the pool shuts down first the task is
// discarded and RunSync returns without running the body; it never blocks
// past teardown. The caller must not be the only worker the task could run
// on; sizing the pool for nested RunSync calls is the host's
// responsibility.
func RunSync(pool *ThreadPool, t *Task) {
	if pool.exiting.Load() {
		pool.reject("shutdown")
		return
	}

	done := make(chan struct{})
	signal := signalOnce(done)
	prior := t.afterInternal
	t.afterInternal = func() {
		if prior != nil {
			prior()
		}
		signal()
	}
	priorDrop := t.onDrop
	t.onDrop = func() {
		if priorDrop != nil {
			priorDrop()
		}
		signal()
	}

	if !pool.dispatch(t) {
		pool.reject("shutdown")
		return
	}
	<-done
}

// RunSyncFunc is RunSync for a bare closure.
func RunSyncFunc(pool *ThreadPool, fn func()) {
	RunSync(pool, NewTask(fn))
}

// RunSyncQueued is RunQueued plus a blocking wait for completion. Serial
// execution dispatches onto a pool worker, never the caller, so waiting on
// the same queue from inside another queue's task cannot self-deadlock.
// If the queue or the pool is torn down before the task runs, the task is
// discarded and RunSyncQueued returns; it never blocks past teardown.
func RunSyncQueued(pool *ThreadPool, queue *TaskQueue, t *Task) {
	if queue.complete.Load() || !queue.token.Alive() {
		return
	}

	done := make(chan struct{})
	signal := signalOnce(done)
	prior := t.afterInternal
	t.afterInternal = func() {
		if prior != nil {
			prior()
		}
		signal()
	}
	priorDrop := t.onDrop
	t.onDrop = func() {
		if priorDrop != nil {
			priorDrop()
		}
		signal()
	}

	if !runQueued(pool, queue, t) {
		return
	}
	<-done
}

// signalOnce returns a closure that closes done exactly once; completion
// (afterInternal) and teardown discard (onDrop) may both reach it.
func signalOnce(done chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// RunSyncQueuedFunc is RunSyncQueued for a bare closure.
func RunSyncQueuedFunc(pool *ThreadPool, queue *TaskQueue, fn func()) {
	RunSyncQueued(pool, queue, NewTask(fn))
}

// Schedule dispatches t to the pool at or after the given instant. An
// instant already in the past dispatches on the looper's next wake, which
// may be immediate. The pool constructs its run loop on first use.
func Schedule(pool *ThreadPool, at time.Time, t *Task) {
	if pool.exiting.Load() {
		pool.reject("shutdown")
		return
	}
	w := NewTask(func() {
		Run(pool, t)
	})
	w.dispatchTime = at
	loop := pool.ensureRunLoop()
	loop.queue.Add(w)
	loop.Notify()
}

// ScheduleFunc is Schedule for a bare closure.
func ScheduleFunc(pool *ThreadPool, at time.Time, fn func()) {
	Schedule(pool, at, NewTask(fn))
}

// ScheduleQueued dispatches t through queue onto pool at or after the given
// instant. The wrapper captures the queue token: if the queue is gone by
// the time the instant arrives, nothing runs.
func ScheduleQueued(pool *ThreadPool, queue *TaskQueue, at time.Time, t *Task) {
	if pool.exiting.Load() {
		pool.reject("shutdown")
		return
	}
	token := queue.token
	w := NewTask(func() {
		if token.Alive() {
			RunQueued(pool, queue, t)
		}
	})
	w.dispatchTime = at
	loop := pool.ensureRunLoop()
	loop.queue.Add(w)
	loop.Notify()
}

// ScheduleQueuedFunc is ScheduleQueued for a bare closure.
func ScheduleQueuedFunc(pool *ThreadPool, queue *TaskQueue, at time.Time, fn func()) {
	ScheduleQueued(pool, queue, at, NewTask(fn))
}

// ScheduleOn enqueues t directly on an externally owned run loop; the task
// body runs on the looper goroutine when its instant arrives.
func ScheduleOn(loop *RunLoop, at time.Time, t *Task) {
	t.dispatchTime = at
	loop.queue.Add(t)
	loop.Notify()
}

// ScheduleOnFunc is ScheduleOn for a bare closure.
func ScheduleOnFunc(loop *RunLoop, at time.Time, fn func()) {
	ScheduleOn(loop, at, NewTask(fn))
}

// ScheduleOnQueued enqueues a wrapper on an externally owned run loop that,
// when due, runs t through queue inline on the looper goroutine, provided
// the queue is still alive.
func ScheduleOnQueued(loop *RunLoop, queue *TaskQueue, at time.Time, t *Task) {
	token := queue.token
	w := NewTask(func() {
		if token.Alive() {
			RunInline(queue, t)
		}
	})
	w.dispatchTime = at
	loop.queue.Add(w)
	loop.Notify()
}

// ScheduleOnQueuedFunc is ScheduleOnQueued for a bare closure.
func ScheduleOnQueuedFunc(loop *RunLoop, queue *TaskQueue, at time.Time, fn func()) {
	ScheduleOnQueued(loop, queue, at, NewTask(fn))
}

// RepeatingHandle controls the lifecycle of a repeating task.
type RepeatingHandle struct {
	stopped atomic.Bool
}

// Stop prevents further repetitions. The current execution, if any, is not
// interrupted.
func (h *RepeatingHandle) Stop() {
	h.stopped.Store(true)
}

// Stopped reports whether the handle has been stopped.
func (h *RepeatingHandle) Stopped() bool {
	return h.stopped.Load()
}

// ScheduleRepeating runs fn on the pool every interval, starting one
// interval from now, until the handle is stopped or the pool closes.
func ScheduleRepeating(pool *ThreadPool, interval time.Duration, fn func()) *RepeatingHandle {
	h := &RepeatingHandle{}
	var tick func()
	tick = func() {
		if h.Stopped() || pool.exiting.Load() {
			return
		}
		fn()
		if !h.Stopped() && !pool.exiting.Load() {
			Schedule(pool, time.Now().Add(interval), NewTask(tick))
		}
	}
	Schedule(pool, time.Now().Add(interval), NewTask(tick))
	return h
}

// ScheduleRepeatingQueued runs fn serially on the named queue every
// interval. Repetition also ends when the queue's token dies; the scheduled
// wrapper finds it dead and never re-arms.
func ScheduleRepeatingQueued(pool *ThreadPool, queue *TaskQueue, interval time.Duration, fn func()) *RepeatingHandle {
	h := &RepeatingHandle{}
	var tick func()
	tick = func() {
		if h.Stopped() || pool.exiting.Load() {
			return
		}
		fn()
		if !h.Stopped() && !pool.exiting.Load() {
			ScheduleQueued(pool, queue, time.Now().Add(interval), NewTask(tick))
		}
	}
	ScheduleQueued(pool, queue, time.Now().Add(interval), NewTask(tick))
	return h
}
