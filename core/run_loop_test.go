package core_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calder-io/asyncrun/core"
)

// TestSchedule_Accuracy verifies timed dispatch on a pool
// Given: three tasks scheduled at +2.5s, +3s and +4s
// When: each records its completion offset from the start
// Then: completions land inside their half-second windows, in order
func TestSchedule_Accuracy(t *testing.T) {
	if testing.Short() {
		t.Skip("multi-second scheduling test")
	}

	pool := core.NewThreadPoolWithConfig(quietPoolConfig("schedule", 2))
	defer pool.Close()

	start := time.Now()
	var mu sync.Mutex
	offsets := make(map[int]time.Duration)
	var done atomic.Int32

	record := func(id int) {
		mu.Lock()
		offsets[id] = time.Since(start)
		mu.Unlock()
		done.Add(1)
	}

	core.ScheduleFunc(pool, start.Add(2500*time.Millisecond), func() { record(0) })
	core.ScheduleFunc(pool, start.Add(3*time.Second), func() { record(1) })
	core.ScheduleFunc(pool, start.Add(4*time.Second), func() { record(2) })

	waitFor(t, 10*time.Second, func() bool { return done.Load() == 3 }, "scheduled tasks to fire")

	mu.Lock()
	defer mu.Unlock()
	windows := []struct {
		lo, hi time.Duration
	}{
		{2500 * time.Millisecond, 3 * time.Second},
		{3 * time.Second, 3500 * time.Millisecond},
		{4 * time.Second, 4500 * time.Millisecond},
	}
	for id, w := range windows {
		got := offsets[id]
		if got < w.lo || got > w.hi {
			t.Errorf("task %d fired at %v, want within [%v, %v]", id, got, w.lo, w.hi)
		}
	}
}

// TestScheduleQueued_SerialOverridesTiming verifies that serial ordering
// dominates dispatch instants
// Given: a serial queue where the +2.5s task sleeps 1.5s and +3s/+4s tasks follow
// When: each records when its body starts and ends
// Then: the +3s task cannot start before the sleeper finishes, and the +4s
// task fires on time after it
func TestScheduleQueued_SerialOverridesTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("multi-second scheduling test")
	}

	pool := core.NewThreadPoolWithConfig(quietPoolConfig("schedule-serial", 2))
	defer pool.Close()
	queue := core.NewTaskQueue()
	defer queue.Close()

	start := time.Now()
	var mu sync.Mutex
	starts := make(map[int]time.Duration)
	ends := make(map[int]time.Duration)
	var done atomic.Int32

	enter := func(id int) {
		mu.Lock()
		starts[id] = time.Since(start)
		mu.Unlock()
	}
	leave := func(id int) {
		mu.Lock()
		ends[id] = time.Since(start)
		mu.Unlock()
		done.Add(1)
	}

	core.ScheduleQueuedFunc(pool, queue, start.Add(2500*time.Millisecond), func() {
		enter(0)
		time.Sleep(1500 * time.Millisecond)
		leave(0)
	})
	core.ScheduleQueuedFunc(pool, queue, start.Add(3*time.Second), func() {
		enter(1)
		leave(1)
	})
	core.ScheduleQueuedFunc(pool, queue, start.Add(4*time.Second), func() {
		enter(2)
		leave(2)
	})

	waitFor(t, 15*time.Second, func() bool { return done.Load() == 3 }, "serial scheduled tasks to fire")

	mu.Lock()
	defer mu.Unlock()

	// The sleeper starts inside its own window.
	if starts[0] < 2500*time.Millisecond || starts[0] > 3*time.Second {
		t.Errorf("sleeper started at %v, want within [2.5s, 3s]", starts[0])
	}
	// The +3s task is due before the sleeper ends (~4s) but must wait for
	// the baton; it starts only after the sleeper completes.
	if starts[1] < ends[0] {
		t.Errorf("+3s task started at %v, before the sleeper finished at %v", starts[1], ends[0])
	}
	if starts[1] > ends[0]+500*time.Millisecond {
		t.Errorf("+3s task started at %v, long after the sleeper finished at %v", starts[1], ends[0])
	}
	// The +4s task fires on time, after everything ahead of it.
	if starts[2] < 4*time.Second || starts[2] > 4500*time.Millisecond {
		t.Errorf("+4s task started at %v, want within [4s, 4.5s]", starts[2])
	}
	if starts[2] < ends[1] {
		t.Errorf("+4s task started at %v, before the +3s task finished at %v", starts[2], ends[1])
	}
}

// TestRunLoop_TiesFireInInsertionOrder verifies stable ordering on equal
// dispatch instants.
func TestRunLoop_TiesFireInInsertionOrder(t *testing.T) {
	loop := core.NewRunLoop()
	defer loop.Close()

	at := time.Now().Add(100 * time.Millisecond)
	var mu sync.Mutex
	var order []int
	var done atomic.Int32

	for i := range 5 {
		core.ScheduleOnFunc(loop, at, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			done.Add(1)
		})
	}

	waitFor(t, 5*time.Second, func() bool { return done.Load() == 5 }, "tied tasks to fire")

	mu.Lock()
	defer mu.Unlock()
	for i := range 5 {
		if order[i] != i {
			t.Fatalf("order = %v, want insertion order 0..4", order)
		}
	}
}

// TestRunLoop_PastInstantFiresImmediately verifies the MIN/past policy.
func TestRunLoop_PastInstantFiresImmediately(t *testing.T) {
	loop := core.NewRunLoop()
	defer loop.Close()

	fired := make(chan struct{})
	core.ScheduleOnFunc(loop, time.Now().Add(-time.Second), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Error("past-instant task did not fire on the next wake")
	}
}

// TestScheduleQueued_DeadQueueNoop verifies token capture in the wrapper
// Given: a task scheduled against a queue that closes before the instant
// When: the instant arrives
// Then: nothing runs
func TestScheduleQueued_DeadQueueNoop(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("schedule-dead", 1))
	defer pool.Close()
	queue := core.NewTaskQueue()

	var ran atomic.Bool
	core.ScheduleQueuedFunc(pool, queue, time.Now().Add(50*time.Millisecond), func() {
		ran.Store(true)
	})
	queue.Close()

	time.Sleep(200 * time.Millisecond)
	if ran.Load() {
		t.Error("scheduled task ran against a closed queue")
	}
}

// TestScheduleRepeating verifies the repeating wrapper and its handle.
func TestScheduleRepeating(t *testing.T) {
	pool := core.NewThreadPoolWithConfig(quietPoolConfig("repeat", 2))
	defer pool.Close()

	var ticks atomic.Int32
	handle := core.ScheduleRepeating(pool, 20*time.Millisecond, func() {
		ticks.Add(1)
	})

	waitFor(t, 5*time.Second, func() bool { return ticks.Load() >= 3 }, "repeating task to tick")
	handle.Stop()

	settled := ticks.Load()
	time.Sleep(100 * time.Millisecond)
	if got := ticks.Load(); got > settled+1 {
		t.Errorf("ticks advanced from %d to %d after Stop", settled, got)
	}
}

// TestScheduleOnQueued_RunsInlineOnLooper verifies the external-loop variant
// drives the queue on the looper goroutine.
func TestScheduleOnQueued_RunsInlineOnLooper(t *testing.T) {
	loop := core.NewRunLoop()
	defer loop.Close()
	queue := core.NewTaskQueue()
	defer queue.Close()

	fired := make(chan struct{})
	core.ScheduleOnQueuedFunc(loop, queue, time.Now().Add(50*time.Millisecond), func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Error("queued task on external loop never fired")
	}
}
