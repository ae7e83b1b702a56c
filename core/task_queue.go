package core

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4

	// drainTimeout bounds how long Close waits for in-flight tasks.
	// Callers who need a stronger guarantee must use RunSync.
	drainTimeout = 5 * time.Second
)

// TaskQueue is an insertion-ordered container of tasks with a liveness
// token, a completion flag, and a baton mutex that serialises dispatch when
// the queue is paired with a ThreadPool.
//
// The container mutex and the baton are never held together; the baton is
// acquired only through TryLock and its ownership transfers into whichever
// task is currently in flight.
type TaskQueue struct {
	mu    sync.Mutex // container lock: tasks + name
	tasks []*Task

	token    *Token
	complete atomic.Bool
	count    atomic.Int64 // mirrors len(tasks) so HasNext skips the mutex
	inFlight atomic.Int32 // critical sections Close must wait out

	// baton is the dispatch-serialisation lock. Whoever holds it owns the
	// sole right to hand the head task to a pool; ownership transfers into
	// the dispatched task and is released by its afterInternal hook.
	baton sync.Mutex

	name string
}

// NewTaskQueue creates an empty queue with a live token.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		tasks: make([]*Task, 0, defaultQueueCap),
		token: newToken(),
	}
}

// NewNamedTaskQueue creates an empty queue carrying an identifier.
func NewNamedTaskQueue(name string) *TaskQueue {
	q := NewTaskQueue()
	q.name = name
	return q
}

// Name returns the queue's identifier, empty if unnamed.
func (q *TaskQueue) Name() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.name
}

// SetName sets the queue's identifier.
func (q *TaskQueue) SetName(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.name = name
}

// Token returns the queue's liveness token. Tasks stamped with it skip
// their bodies once the queue closes.
func (q *TaskQueue) Token() *Token {
	return q.token
}

// Add appends t to the queue, stamping it with the queue token if it does
// not already carry one. Adding to a closed queue silently drops the task;
// teardown races are expected, not errors.
func (q *TaskQueue) Add(t *Task) {
	q.add(t)
}

func (q *TaskQueue) add(t *Task) bool {
	if t == nil || q.complete.Load() {
		return false
	}
	q.retain()
	defer q.release()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.complete.Load() {
		return false
	}
	if !t.useToken {
		t.token = q.token
		t.useToken = true
	}
	q.tasks = append(q.tasks, t)
	q.count.Add(1)
	return true
}

// Next pops the head task and runs it on the calling goroutine, then
// reports whether more tasks remain. Draining a queue inline is
// `for q.Next() {}`.
func (q *TaskQueue) Next() bool {
	q.retain()
	if t := q.NextPop(); t != nil && !q.complete.Load() {
		t.Run()
	}
	q.release()
	return q.HasNext()
}

// NextPop detaches and returns the head task without running it, or nil if
// the queue is empty or closed.
func (q *TaskQueue) NextPop() *Task {
	if q.complete.Load() {
		return nil
	}
	q.retain()
	defer q.release()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.complete.Load() || len(q.tasks) == 0 {
		return nil
	}
	t := q.tasks[0]
	q.tasks[0] = nil // release the reference held by the backing array
	q.tasks = q.tasks[1:]
	q.count.Add(-1)
	q.maybeCompactLocked()
	return t
}

// NextDispatchTime returns the head task's dispatch instant, or the zero
// time if the queue is empty or closed. Zero sorts as "dispatch now".
func (q *TaskQueue) NextDispatchTime() time.Time {
	if q.complete.Load() {
		return time.Time{}
	}
	q.retain()
	defer q.release()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.complete.Load() || len(q.tasks) == 0 {
		return time.Time{}
	}
	return q.tasks[0].dispatchTime
}

// HasNext reports whether a task is pending. It reads the atomic count and
// never takes the container mutex.
func (q *TaskQueue) HasNext() bool {
	return !q.complete.Load() && q.count.Load() > 0
}

// Len returns the number of pending tasks.
func (q *TaskQueue) Len() int {
	return int(q.count.Load())
}

// Sort stably reorders pending tasks; ties keep insertion order.
func (q *TaskQueue) Sort(less func(a, b *Task) bool) {
	if q.complete.Load() {
		return
	}
	q.retain()
	defer q.release()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.complete.Load() {
		return
	}
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return less(q.tasks[i], q.tasks[j])
	})
}

// Stats returns a point-in-time snapshot of the queue.
func (q *TaskQueue) Stats() QueueStats {
	q.mu.Lock()
	name := q.name
	q.mu.Unlock()
	return QueueStats{
		Name:     name,
		Pending:  int(q.count.Load()),
		InFlight: int(q.inFlight.Load()),
		Complete: q.complete.Load(),
	}
}

// Close completes the queue: no new tasks are accepted, pending tasks are
// dropped, the token is revoked, and Close yields until in-flight tasks have
// drained, bounded by 5 seconds of wall clock. The bound is a safety valve
// so teardown can never deadlock on misbehaving user code.
//
// Dropped tasks get their onDrop notification (releasing any sync waiter)
// but not their hook chain: a pending serial task does not own the baton,
// so its afterInternal must never run here.
func (q *TaskQueue) Close() {
	dropped := q.seal()
	for _, t := range dropped {
		if t != nil && t.onDrop != nil {
			t.onDrop()
		}
	}
	q.awaitInFlight()
}

// closeDrain is Close for a pool inbox. Every task in an inbox was handed
// its baton (serial dispatch) or a waiter before it was appended, so the
// dropped tasks run their full internal-hook chain instead of just onDrop,
// releasing batons and in-flight counts on the owning queues.
func (q *TaskQueue) closeDrain() {
	dropped := q.seal()
	for _, t := range dropped {
		if t != nil {
			t.drain()
		}
	}
	q.awaitInFlight()
}

// seal completes the queue under the container mutex and returns whatever
// was still pending.
func (q *TaskQueue) seal() []*Task {
	q.mu.Lock()
	q.complete.Store(true)
	q.token.revoke()
	dropped := q.tasks
	q.tasks = nil
	q.count.Store(0)
	q.mu.Unlock()
	return dropped
}

func (q *TaskQueue) awaitInFlight() {
	start := time.Now()
	for q.inFlight.Load() > 0 && time.Since(start) < drainTimeout {
		runtime.Gosched()
	}
}

// retain/release bracket every critical section a concurrent Close must
// wait out.
func (q *TaskQueue) retain()  { q.inFlight.Add(1) }
func (q *TaskQueue) release() { q.inFlight.Add(-1) }

func (q *TaskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]*Task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	compacted := make([]*Task, n, newCap)
	copy(compacted, q.tasks)
	q.tasks = compacted
}
