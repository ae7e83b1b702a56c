package core

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// idleWake bounds how long a worker parks without a signal, so a missed
// wakeup can only delay a queued task, never strand it.
const idleWake = 100 * time.Millisecond

// PoolConfig holds construction options for a ThreadPool. Zero fields are
// filled with defaults.
type PoolConfig struct {
	// Name labels the pool in logs, metrics and history records.
	Name string

	// Workers is the fixed worker count. Defaults to runtime.NumCPU().
	Workers int

	// Logger receives lifecycle events. Defaults to the slog adapter.
	Logger Logger

	// PanicHandler is called when a task body panics. Defaults to
	// LogPanicHandler.
	PanicHandler PanicHandler

	// Metrics receives execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a submission is dropped during
	// shutdown. Defaults to LogRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// HistoryCapacity sizes the execution history ring. Defaults to 100.
	HistoryCapacity int
}

// DefaultPoolConfig returns a config with default values filled in.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:            "pool",
		Workers:         runtime.NumCPU(),
		HistoryCapacity: defaultHistoryCapacity,
	}
}

// ThreadPool is a fixed set of workers sharing one inbox queue. Workers
// start at construction and run until Close. The pool lazily owns a RunLoop
// the first time a scheduled task is submitted through it.
type ThreadPool struct {
	name    string
	workers int

	inbox  *TaskQueue
	signal chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup

	exiting atomic.Bool
	active  atomic.Int32

	logger   Logger
	panics   PanicHandler
	metrics  Metrics
	rejected RejectedTaskHandler
	history  *executionHistory

	mu      sync.Mutex // guards lazy runloop construction
	runloop *RunLoop

	closeOnce sync.Once
}

// NewThreadPool creates a pool with default configuration: one worker per
// CPU, sharing one inbox queue.
func NewThreadPool() *ThreadPool {
	return NewThreadPoolWithConfig(DefaultPoolConfig())
}

// NewThreadPoolWithConfig creates a pool from cfg, filling zero fields with
// defaults, and starts its workers.
func NewThreadPoolWithConfig(cfg PoolConfig) *ThreadPool {
	if cfg.Name == "" {
		cfg.Name = "pool"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = NewSlogLogger(nil)
	}
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &LogPanicHandler{Log: cfg.Logger}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}
	if cfg.RejectedTaskHandler == nil {
		cfg.RejectedTaskHandler = &LogRejectedTaskHandler{Log: cfg.Logger}
	}

	p := &ThreadPool{
		name:     cfg.Name,
		workers:  cfg.Workers,
		inbox:    NewNamedTaskQueue(cfg.Name + "-inbox"),
		signal:   make(chan struct{}, cfg.Workers*2),
		stop:     make(chan struct{}),
		logger:   cfg.Logger,
		panics:   cfg.PanicHandler,
		metrics:  cfg.Metrics,
		rejected: cfg.RejectedTaskHandler,
		history:  newExecutionHistory(cfg.HistoryCapacity),
	}

	for i := range cfg.Workers {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Debug("thread pool started", F("pool", p.name), F("workers", p.workers))
	return p
}

// Name returns the pool's label.
func (p *ThreadPool) Name() string {
	return p.name
}

// WorkerCount returns the fixed number of workers.
func (p *ThreadPool) WorkerCount() int {
	return p.workers
}

// QueuedTaskCount returns the number of tasks waiting in the inbox.
func (p *ThreadPool) QueuedTaskCount() int {
	return p.inbox.Len()
}

// ActiveTaskCount returns the number of tasks currently executing.
func (p *ThreadPool) ActiveTaskCount() int {
	return int(p.active.Load())
}

// DelayedTaskCount returns the number of tasks waiting on the pool's run
// loop, zero if no scheduled task was ever submitted.
func (p *ThreadPool) DelayedTaskCount() int {
	p.mu.Lock()
	rl := p.runloop
	p.mu.Unlock()
	if rl == nil {
		return 0
	}
	return rl.queue.Len()
}

// Stats returns a point-in-time snapshot of the pool.
func (p *ThreadPool) Stats() PoolStats {
	return PoolStats{
		Name:    p.name,
		Workers: p.workers,
		Queued:  p.QueuedTaskCount(),
		Active:  p.ActiveTaskCount(),
		Delayed: p.DelayedTaskCount(),
		Running: !p.exiting.Load(),
	}
}

// History returns up to limit recent execution records, newest first.
// limit <= 0 returns everything retained.
func (p *ThreadPool) History(limit int) []TaskExecutionRecord {
	return p.history.Recent(limit)
}

// Close stops the pool: the owned run loop (if any) is shut down first,
// workers are woken and joined, then the inbox is closed. Tasks still
// queued are discarded without running their bodies, but their internal
// hooks drain so serial batons and sync waiters are released. Safe to call
// more than once.
func (p *ThreadPool) Close() {
	p.closeOnce.Do(func() {
		p.exiting.Store(true)

		p.mu.Lock()
		rl := p.runloop
		p.mu.Unlock()
		if rl != nil {
			rl.Close()
		}

		close(p.stop)
		p.wg.Wait()

		// A Schedule racing this close may have constructed the run loop
		// after the first read; RunLoop.Close is idempotent.
		p.mu.Lock()
		rl = p.runloop
		p.mu.Unlock()
		if rl != nil {
			rl.Close()
		}

		p.inbox.closeDrain()
		p.logger.Debug("thread pool closed", F("pool", p.name))
	})
}

// CloseGraceful waits for the inbox to drain and active tasks to finish
// before closing, bounded by timeout. The pool is closed on both paths; the
// error reports whether the drain completed in time.
func (p *ThreadPool) CloseGraceful(timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.QueuedTaskCount() == 0 && p.ActiveTaskCount() == 0 {
			p.Close()
			return nil
		}
		select {
		case <-deadline:
			p.Close()
			return fmt.Errorf("pool %s: graceful close timed out after %v", p.name, timeout)
		case <-ticker.C:
		}
	}
}

// dispatch appends t to the inbox and wakes one worker, reporting whether
// the inbox accepted the task. A false return means the pool is past the
// point of running anything; the caller still owns the task and must drain
// it if it carries bookkeeping.
func (p *ThreadPool) dispatch(t *Task) bool {
	if !p.inbox.add(t) {
		return false
	}
	p.notifyOne()
	return true
}

func (p *ThreadPool) notifyOne() {
	select {
	case p.signal <- struct{}{}:
	default:
		// Signal buffer full; a worker is already due to wake.
	}
}

func (p *ThreadPool) reject(reason string) {
	p.rejected.HandleRejectedTask(p.name, reason)
	p.metrics.RecordTaskRejected(p.name, reason)
}

// ensureRunLoop lazily constructs the pool-owned run loop. First
// construction happens under the pool mutex, so there is no init race.
func (p *ThreadPool) ensureRunLoop() *RunLoop {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runloop == nil {
		p.runloop = newRunLoop(p.name+"-runloop", p.logger)
	}
	return p.runloop
}

func (p *ThreadPool) worker(id int) {
	defer p.wg.Done()

	timer := time.NewTimer(idleWake)
	defer timer.Stop()

	for {
		if p.exiting.Load() {
			return
		}
		if t := p.inbox.NextPop(); t != nil {
			if p.exiting.Load() {
				// The task is discarded, but it may already own a serial
				// baton or a sync waiter; its hooks must still run.
				t.drain()
			} else {
				p.runTask(id, t)
			}
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(idleWake)
		select {
		case <-p.signal:
		case <-p.stop:
			return
		case <-timer.C:
		}
	}
}

// runTask executes t with panic containment and records the execution. The
// task's own afterInternal hook runs during unwind on the panic path, so a
// serial baton is released before the handler sees the panic.
func (p *ThreadPool) runTask(workerID int, t *Task) {
	p.active.Add(1)
	id := newTaskID()
	name := taskName(t)
	startedAt := time.Now()
	panicked := false

	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				p.panics.HandlePanic(p.name, workerID, r, debug.Stack())
				p.metrics.RecordTaskPanic(p.name, r)
			}
		}()
		t.Run()
	}()

	finishedAt := time.Now()
	p.active.Add(-1)
	p.metrics.RecordTaskDuration(p.name, finishedAt.Sub(startedAt))
	p.history.Add(TaskExecutionRecord{
		ID:         id,
		Name:       name,
		Pool:       p.name,
		WorkerID:   workerID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(startedAt),
		Panicked:   panicked,
	})
}
