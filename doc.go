// Package asyncrun is a small, embeddable asynchronous execution runtime:
// tasks run on a fixed pool of workers with three composable disciplines —
// parallel, serial (FIFO per named queue), and delayed (dispatched at or
// after an instant).
//
// # Quick start
//
// Run closures on the process-wide shared pool:
//
//	asyncrun.Any(func() { ... })          // any worker, fire and forget
//	asyncrun.Q("io", func() { ... })      // serial FIFO on the "io" queue
//	asyncrun.BLQ("io", func() { ... })    // same, but wait for completion
//	defer asyncrun.Shutdown()
//
// The shared pool defaults to 8 workers; call SetThreadCount before the
// first submission to change that.
//
// # Owning the pieces
//
// For finer control, construct the pieces from the core package (re-exported
// here): a ThreadPool runs tasks in parallel, a TaskQueue paired with a pool
// runs them serially, and Schedule defers dispatch to an instant:
//
//	pool := asyncrun.NewThreadPool()
//	defer pool.Close()
//
//	queue := asyncrun.NewNamedTaskQueue("ingest")
//	defer queue.Close()
//
//	asyncrun.RunQueuedFunc(pool, queue, func() { ... }) // strict FIFO
//	asyncrun.RunSyncFunc(pool, func() { ... })          // wait for completion
//	asyncrun.ScheduleFunc(pool, time.Now().Add(time.Second), func() { ... })
//
// Tasks carry an optional After continuation that runs on the executing
// worker; NewResultTask types the continuation on the body's result.
//
// # Lifetime
//
// Closing a TaskQueue drops pending tasks, revokes the queue's liveness
// token (already-dispatched tasks skip their bodies), and waits up to five
// seconds for in-flight tasks to drain. Submissions racing a shutdown are
// silently dropped; that is a routine teardown race, not an error. A task
// discarded at teardown still drains its internal bookkeeping, so RunSync
// and its variants always return: either the task completed, or the pool or
// queue it was bound to is gone.
package asyncrun
