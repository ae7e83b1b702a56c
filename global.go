package asyncrun

import (
	"sync"

	"github.com/calder-io/asyncrun/core"
)

// The process-wide convenience surface: named serial queues backed by one
// shared pool. Queues are created on first reference and live until
// Shutdown.

const defaultThreadCount = 8

var (
	globalMu     sync.Mutex
	globalPool   *core.ThreadPool
	globalQueues map[string]*core.TaskQueue
	threadCount  = defaultThreadCount
)

// SetThreadCount configures the worker count of the shared pool. It must be
// called before the first Q/BLQ/Any/BLAny; calls after the pool exists are
// ignored.
func SetThreadCount(n int) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalPool != nil || n <= 0 {
		return
	}
	threadCount = n
}

// Q runs fn asynchronously on the named serial queue. Tasks sharing a name
// execute in submission order, one at a time; distinct names proceed in
// parallel on the shared pool.
func Q(name string, fn func()) {
	pool, queue := namedQueue(name)
	core.RunQueued(pool, queue, core.NewTask(fn))
}

// BLQ runs fn on the named serial queue and blocks until it completes.
func BLQ(name string, fn func()) {
	pool, queue := namedQueue(name)
	core.RunSyncQueued(pool, queue, core.NewTask(fn))
}

// Any runs fn on any worker of the shared pool.
func Any(fn func()) {
	core.Run(sharedPool(), core.NewTask(fn))
}

// BLAny runs fn on any worker of the shared pool and blocks until it
// completes.
func BLAny(fn func()) {
	core.RunSync(sharedPool(), core.NewTask(fn))
}

// SharedPoolStats snapshots the shared pool, which exists after the first
// submission. The second return is false before first use or after
// Shutdown.
func SharedPoolStats() (core.PoolStats, bool) {
	globalMu.Lock()
	pool := globalPool
	globalMu.Unlock()
	if pool == nil {
		return core.PoolStats{}, false
	}
	return pool.Stats(), true
}

// Shutdown tears down the process-wide surface: named queues are closed
// (revoking their tokens), then the shared pool is drained and joined.
// After Shutdown the surface may be used again; a fresh pool is built on
// the next submission.
func Shutdown() {
	globalMu.Lock()
	pool := globalPool
	queues := globalQueues
	globalPool = nil
	globalQueues = nil
	threadCount = defaultThreadCount
	globalMu.Unlock()

	if pool == nil {
		return
	}
	for _, q := range queues {
		q.Close()
	}
	pool.Close()
}

func sharedPool() *core.ThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return sharedPoolLocked()
}

func sharedPoolLocked() *core.ThreadPool {
	if globalPool == nil {
		cfg := core.DefaultPoolConfig()
		cfg.Name = "asyncrun-shared"
		cfg.Workers = threadCount
		globalPool = core.NewThreadPoolWithConfig(cfg)
		globalQueues = make(map[string]*core.TaskQueue)
	}
	return globalPool
}

func namedQueue(name string) (*core.ThreadPool, *core.TaskQueue) {
	globalMu.Lock()
	defer globalMu.Unlock()
	pool := sharedPoolLocked()
	q, ok := globalQueues[name]
	if !ok {
		q = core.NewNamedTaskQueue(name)
		globalQueues[name] = q
	}
	return pool, q
}
