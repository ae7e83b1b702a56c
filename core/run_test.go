package core_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calder-io/asyncrun/core"
)

// TestRunQueued_SerialFIFO verifies strict per-queue ordering on a pool
// Given: 10,000 tasks submitted to one queue over a multi-worker pool
// When: each task appends its index to a shared slice
// Then: the observed order is exactly the submission order
func TestRunQueued_SerialFIFO(t *testing.T) {
	// Arrange
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("serial-fifo", 0))
	defer pool.Close()
	queue := core.NewNamedTaskQueue("fifo")
	defer queue.Close()

	const n = 10000
	var mu sync.Mutex
	res := make([]int, 0, n)
	var remaining atomic.Int64
	remaining.Store(n)

	// Act
	for i := range n {
		core.RunQueuedFunc(pool, queue, func() {
			mu.Lock()
			res = append(res, i)
			mu.Unlock()
			remaining.Add(-1)
		})
	}
	waitFor(t, 60*time.Second, func() bool { return remaining.Load() == 0 }, "all serial tasks to finish")

	// Assert
	mu.Lock()
	defer mu.Unlock()
	if len(res) != n {
		t.Fatalf("executed %d tasks, want %d", len(res), n)
	}
	for i := range n {
		if res[i] != i {
			t.Fatalf("res[%d] = %d, want %d", i, res[i], i)
		}
	}
}

// TestRunQueued_SingleInFlight verifies the baton invariant
// Given: many serial tasks that track a concurrent-execution counter
// When: they run over a wide pool
// Then: the counter never exceeds one
func TestRunQueued_SingleInFlight(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("baton", 8))
	defer pool.Close()
	queue := core.NewTaskQueue()
	defer queue.Close()

	const n = 2000
	var running atomic.Int32
	var maxRunning atomic.Int32
	var remaining atomic.Int64
	remaining.Store(n)

	for range n {
		core.RunQueuedFunc(pool, queue, func() {
			cur := running.Add(1)
			for {
				prev := maxRunning.Load()
				if cur <= prev || maxRunning.CompareAndSwap(prev, cur) {
					break
				}
			}
			running.Add(-1)
			remaining.Add(-1)
		})
	}
	waitFor(t, 30*time.Second, func() bool { return remaining.Load() == 0 }, "serial tasks to finish")

	if got := maxRunning.Load(); got > 1 {
		t.Errorf("max concurrent serial tasks = %d, want <= 1", got)
	}
}

// TestRunQueued_QueuesProceedInParallel verifies independence across queues
// Given: two serial queues over one pool, the first blocked
// When: work is submitted to the second
// Then: the second queue makes progress while the first is blocked
func TestRunQueued_QueuesProceedInParallel(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("multi-queue", 4))
	defer pool.Close()
	blocked := core.NewNamedTaskQueue("blocked")
	defer blocked.Close()
	free := core.NewNamedTaskQueue("free")
	defer free.Close()

	release := make(chan struct{})
	core.RunQueuedFunc(pool, blocked, func() { <-release })

	ran := make(chan struct{})
	core.RunQueuedFunc(pool, free, func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Error("independent queue made no progress while another was blocked")
	}
	close(release)
}

// TestRunSync_WaitsForAfterChain verifies the synchronous wait contract
// Given: a result task with a slow body and an After continuation
// When: RunSync returns
// Then: both the body and the continuation have completed
func TestRunSync_WaitsForAfterChain(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("sync", 2))
	defer pool.Close()

	var bodyDone, afterDone atomic.Bool
	rt := core.NewResultTask(func() int {
		time.Sleep(50 * time.Millisecond)
		bodyDone.Store(true)
		return 42
	})
	rt.After = func(ret int) {
		if ret != 42 {
			t.Errorf("After received %d, want 42", ret)
		}
		afterDone.Store(true)
	}

	core.RunSync(pool, rt.Task)

	if !bodyDone.Load() {
		t.Error("RunSync returned before the body completed")
	}
	if !afterDone.Load() {
		t.Error("RunSync returned before the After continuation completed")
	}
}

// TestRunSyncQueued_WaitsAndKeepsOrder verifies sync submission to a serial
// queue behind queued asynchronous work.
func TestRunSyncQueued_WaitsAndKeepsOrder(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("sync-queued", 4))
	defer pool.Close()
	queue := core.NewTaskQueue()
	defer queue.Close()

	var mu sync.Mutex
	var order []int
	for i := range 5 {
		core.RunQueuedFunc(pool, queue, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	core.RunSyncQueuedFunc(pool, queue, func() {
		mu.Lock()
		order = append(order, 5)
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 6 {
		t.Fatalf("executed %d tasks, want 6", len(order))
	}
	for i := range 6 {
		if order[i] != i {
			t.Fatalf("order = %v, want ascending 0..5", order)
		}
	}
}

// TestRunSyncQueued_ClosedQueueReturns verifies the sync variant cannot
// block on a dead queue.
func TestRunSyncQueued_ClosedQueueReturns(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("sync-dead", 1))
	defer pool.Close()
	queue := core.NewTaskQueue()
	queue.Close()

	done := make(chan struct{})
	go func() {
		core.RunSyncQueuedFunc(pool, queue, func() {
			t.Error("body ran on a closed queue")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunSyncQueued blocked on a closed queue")
	}
}

// TestRunQueued_ClosedQueueNoop verifies the async variant drops silently.
func TestRunQueued_ClosedQueueNoop(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("dead-queue", 1))
	defer pool.Close()
	queue := core.NewTaskQueue()
	queue.Close()

	core.RunQueuedFunc(pool, queue, func() {
		t.Error("body ran on a closed queue")
	})
	time.Sleep(50 * time.Millisecond)
}

// TestRunInline_DrainsOnCaller verifies the queue-only entry point.
func TestRunInline_DrainsOnCaller(t *testing.T) {
	queue := core.NewTaskQueue()
	defer queue.Close()

	ran := false
	core.RunInlineFunc(queue, func() { ran = true })
	if !ran {
		t.Error("RunInline did not run the task on the caller")
	}
}

// TestRunQueued_PanicReleasesBaton verifies serial liveness across faults
// Given: a serial queue whose first task panics
// When: more tasks follow on the same queue
// Then: the chain keeps draining
func TestRunQueued_PanicReleasesBaton(t *testing.T) {
	cfg := quietPoolConfig("panic-serial", 2)
	cfg.PanicHandler = &recordingPanicHandler{}
	pool := core.NewThreadPoolWithConfig(cfg)
	defer pool.Close()
	queue := core.NewTaskQueue()
	defer queue.Close()

	core.RunQueuedFunc(pool, queue, func() { panic("first task fault") })

	ran := false
	core.RunSyncQueuedFunc(pool, queue, func() { ran = true })
	if !ran {
		t.Error("serial queue wedged after a panicking task")
	}
}

// TestRunSync_ReleasedOnPoolClose verifies the waiter survives a shutdown race
// Given: a sync task stuck in the inbox behind a blocked worker
// When: the pool closes before the task can run
// Then: the task is discarded, its body never runs, and the waiter returns
func TestRunSync_ReleasedOnPoolClose(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("sync-shutdown", 1))

	release := make(chan struct{})
	core.RunFunc(pool, func() { <-release })
	waitFor(t, 5*time.Second, func() bool { return pool.ActiveTaskCount() == 1 }, "blocker to start")

	var ran atomic.Bool
	returned := make(chan struct{})
	go func() {
		core.RunSyncFunc(pool, func() { ran.Store(true) })
		close(returned)
	}()
	waitFor(t, 5*time.Second, func() bool { return pool.QueuedTaskCount() == 1 }, "sync task to queue")

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()
	waitFor(t, 5*time.Second, func() bool { return !pool.Stats().Running }, "close to begin")
	close(release)

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("RunSync still blocked after the pool closed")
	}
	<-closed
	if ran.Load() {
		t.Error("discarded sync task ran its body")
	}
}

// TestRunSyncQueued_ReleasedOnQueueClose verifies the waiter survives queue
// teardown
// Given: a sync task pending in a serial queue behind an in-flight blocker
// When: the queue closes before the task is dispatched
// Then: the drop notification releases the waiter without running the body
func TestRunSyncQueued_ReleasedOnQueueClose(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("sync-queue-teardown", 2))
	defer pool.Close()
	queue := core.NewTaskQueue()

	release := make(chan struct{})
	core.RunQueuedFunc(pool, queue, func() { <-release })
	waitFor(t, 5*time.Second, func() bool { return pool.ActiveTaskCount() == 1 }, "blocker to start")

	var ran atomic.Bool
	returned := make(chan struct{})
	go func() {
		core.RunSyncQueuedFunc(pool, queue, func() { ran.Store(true) })
		close(returned)
	}()
	waitFor(t, 5*time.Second, func() bool { return queue.Len() == 1 }, "sync task to queue")

	closed := make(chan struct{})
	go func() {
		queue.Close()
		close(closed)
	}()

	// The waiter is released while Close is still draining the blocker.
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("RunSyncQueued still blocked after the queue closed")
	}
	close(release)
	<-closed
	if ran.Load() {
		t.Error("dropped sync task ran its body")
	}
}

// TestPoolClose_ReleasesSerialQueue verifies no baton or in-flight leak when
// the pool shuts down under a loaded serial queue
// Given: a serial chain whose head is running while the rest is pending
// When: the pool closes mid-chain
// Then: the discarded tasks drain their hooks, so the queue's own Close
// returns promptly instead of burning the full drain bound
func TestPoolClose_ReleasesSerialQueue(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("pool-teardown", 1))
	queue := core.NewTaskQueue()

	var executed atomic.Int32
	core.RunQueuedFunc(pool, queue, func() {
		time.Sleep(100 * time.Millisecond)
		executed.Add(1)
	})
	for range 10 {
		core.RunQueuedFunc(pool, queue, func() { executed.Add(1) })
	}

	pool.Close()

	start := time.Now()
	queue.Close()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("queue.Close took %v after pool shutdown, want a prompt return", elapsed)
	}
}

// TestAbruptTeardown verifies queue destruction under churn
// Given: thousands of short-lived queues, each with 100 pending tasks
// When: every queue closes immediately after submission
// Then: no crash, no deadlock, and the loop completes promptly
func TestAbruptTeardown(t *testing.T) {
	iterations := 10000
	if testing.Short() {
		iterations = 500
	}

	pool := core.NewThreadPoolWithConfig(quietPoolConfig("teardown", 0))
	defer pool.Close()

	var executed atomic.Int64
	for range iterations {
		queue := core.NewTaskQueue()
		for range 100 {
			core.RunQueuedFunc(pool, queue, func() {
				executed.Add(1)
			})
		}
		queue.Close()
	}
	// Whatever ran, ran; the property under test is survival.
	t.Logf("executed %d of %d submitted tasks", executed.Load(), int64(iterations)*100)
}
